package email

import (
	"context"
	"fmt"
	"strings"

	"github.com/myhibachi/hibachi-backend/internal/outbox"
	"github.com/myhibachi/hibachi-backend/pkg/config"
	"github.com/myhibachi/hibachi-backend/pkg/db/models"
	"github.com/myhibachi/hibachi-backend/pkg/enums"
	pkgerrors "github.com/myhibachi/hibachi-backend/pkg/errors"
)

// Channel delivers the email_* entries through the configured transport.
type Channel struct {
	transport   Transport
	defaultFrom string
	adminEmail  string
}

// ChannelParams carries Channel dependencies.
type ChannelParams struct {
	Transport   Transport
	DefaultFrom string
	AdminEmail  string
}

// NewChannel builds the email channel adapter.
func NewChannel(params ChannelParams) (*Channel, error) {
	if params.Transport == nil {
		return nil, fmt.Errorf("email transport is required")
	}
	if strings.TrimSpace(params.DefaultFrom) == "" {
		return nil, fmt.Errorf("default from address is required")
	}
	return &Channel{
		transport:   params.Transport,
		defaultFrom: params.DefaultFrom,
		adminEmail:  params.AdminEmail,
	}, nil
}

// NewTransport selects the transport implied by configuration: templated API
// when an API key is present, SMTP otherwise.
func NewTransport(cfg config.EmailConfig) (Transport, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "template", "sendgrid":
		return NewAPITransport(APITransportParams{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Timeout: cfg.Timeout,
		})
	case "smtp":
		return NewSMTPTransport(SMTPTransportParams{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPassword,
		})
	default:
		return nil, fmt.Errorf("unsupported email provider %q", cfg.Provider)
	}
}

// Name implements outbox.Channel.
func (c *Channel) Name() string {
	return "email"
}

// EventTypes implements outbox.Channel.
func (c *Channel) EventTypes() []enums.OutboxEventType {
	return []enums.OutboxEventType{
		enums.EventEmailConfirmation,
		enums.EventEmailPaymentReceived,
		enums.EventEmailAdminAlert,
	}
}

// Deliver implements outbox.Channel. Admin alerts are forced to the
// configured admin address so a bad payload cannot leak internal alerts.
func (c *Channel) Deliver(ctx context.Context, entry *models.OutboxEntry, payload any) error {
	emailPayload, ok := payload.(*outbox.EmailPayload)
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNonRetryable, fmt.Sprintf("unexpected payload type %T for email channel", payload))
	}

	to := emailPayload.To
	if entry != nil && entry.EventType == enums.EventEmailAdminAlert && c.adminEmail != "" {
		to = c.adminEmail
	}

	return c.transport.Send(ctx, Message{
		From:     c.defaultFrom,
		To:       to,
		ReplyTo:  emailPayload.ReplyTo,
		Subject:  emailPayload.Subject,
		Template: emailPayload.Template,
		Data:     emailPayload.Data,
	})
}
