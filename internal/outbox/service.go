package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/myhibachi/hibachi-backend/pkg/db/models"
	"github.com/myhibachi/hibachi-backend/pkg/enums"
	"github.com/myhibachi/hibachi-backend/pkg/errors"
)

// Service is the producer-side API. Business code emits entries inside its
// own transaction so the side effect commits or rolls back with the state
// change that caused it.
type Service struct {
	repo *Repository
}

// ServiceParams carries Service dependencies.
type ServiceParams struct {
	Repo *Repository
}

// NewService builds the outbox producer service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("outbox repository is required")
	}
	return &Service{repo: params.Repo}, nil
}

// EmitTx validates and inserts an entry inside the caller's transaction. The
// payload is round-tripped through the decoder up front so malformed emits
// fail at the producer instead of poisoning the queue.
func (s *Service) EmitTx(_ context.Context, tx *gorm.DB, eventType enums.OutboxEventType, payload any) (*models.OutboxEntry, error) {
	if !eventType.IsValid() {
		return nil, errors.New(errors.CodeValidation, fmt.Sprintf("unknown event type %q", eventType))
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(errors.CodeValidation, err, "encoding outbox payload")
	}
	if _, err := DecodePayload(eventType, raw); err != nil {
		return nil, errors.Wrap(errors.CodeValidation, err, "outbox payload failed schema check")
	}

	entry := &models.OutboxEntry{
		EventType:     eventType,
		Payload:       raw,
		Status:        enums.OutboxStatusPending,
		NextAttemptAt: time.Now().UTC(),
	}
	if err := s.repo.Insert(tx, entry); err != nil {
		return nil, fmt.Errorf("inserting outbox entry: %w", err)
	}
	return entry, nil
}
