package matching

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/myhibachi/hibachi-backend/internal/outbox"
	"github.com/myhibachi/hibachi-backend/pkg/config"
	"github.com/myhibachi/hibachi-backend/pkg/db"
	"github.com/myhibachi/hibachi-backend/pkg/db/models"
	"github.com/myhibachi/hibachi-backend/pkg/enums"
	pkgerrors "github.com/myhibachi/hibachi-backend/pkg/errors"
	"github.com/myhibachi/hibachi-backend/pkg/logger"
	"github.com/myhibachi/hibachi-backend/pkg/metrics"
)

// Service reconciles payment notifications against open ledger payments.
// Matching is tiered: explicit phone identifier, then amount/time window,
// then sender-attribute scoring, then closest-by-time.
type Service struct {
	db      *db.Client
	repo    *Repository
	outbox  *outbox.Service
	logg    *logger.Logger
	metrics *metrics.DispatchMetrics
	cfg     config.MatchingConfig

	adminEmail string
}

// ServiceParams carries Service dependencies.
type ServiceParams struct {
	DB         *db.Client
	Repo       *Repository
	Outbox     *outbox.Service
	Logger     *logger.Logger
	Metrics    *metrics.DispatchMetrics
	Config     config.MatchingConfig
	AdminEmail string
}

// NewService builds the payment matching service.
func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db client is required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("matching repository is required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service is required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Service{
		db:         params.DB,
		repo:       params.Repo,
		outbox:     params.Outbox,
		logg:       params.Logger,
		metrics:    params.Metrics,
		cfg:        params.Config,
		adminEmail: params.AdminEmail,
	}, nil
}

// FindMatchingPayment runs the tiered match and records the decision in the
// audit log. The result is explicit: matched, no match, or invalid.
func (s *Service) FindMatchingPayment(ctx context.Context, notification Notification) (MatchResult, error) {
	var result MatchResult
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var matchErr error
		result, matchErr = s.match(tx, notification)
		if matchErr != nil {
			return matchErr
		}
		return s.repo.InsertMatchLog(tx, buildMatchLog(notification, result))
	})
	if err != nil {
		return MatchResult{}, err
	}

	s.metrics.IncMatchOutcome(string(result.Outcome), result.Tier)
	ctx = s.logg.WithField(ctx, "outcome", string(result.Outcome))
	if result.Matched() {
		ctx = s.logg.WithField(ctx, "tier", result.Tier)
	}
	s.logg.Info(ctx, "payment match attempt finished")
	return result, nil
}

func (s *Service) match(tx *gorm.DB, n Notification) (MatchResult, error) {
	if n.Amount.LessThanOrEqual(decimal.Zero) {
		return invalid("non-positive amount"), nil
	}

	method, err := n.Provider.PaymentMethod()
	if err != nil {
		return invalid(err.Error()), nil
	}

	// Tier 1: payer-supplied phone identifier bypasses amount/time filtering.
	if n.Sender.CustomerPhone != "" {
		result, err := s.matchByPhone(tx, method, n)
		if err != nil {
			return MatchResult{}, err
		}
		if result.Outcome != OutcomeNoMatch {
			return result, nil
		}
	}

	return s.matchByWindow(tx, method, n)
}

func (s *Service) matchByPhone(tx *gorm.DB, method enums.PaymentMethod, n Notification) (MatchResult, error) {
	from := n.ReceivedAt.Add(-s.cfg.PhoneWindow)
	to := n.ReceivedAt.Add(time.Hour)
	candidates, err := s.repo.FindOpenCandidates(tx, method, from, to)
	if err != nil {
		return MatchResult{}, err
	}

	var matchedCandidates []models.Payment
	for _, candidate := range candidates {
		if candidate.Booking == nil {
			continue
		}
		if phoneSuffixMatches(n.Sender.CustomerPhone, candidate.Booking.CustomerPhone) {
			matchedCandidates = append(matchedCandidates, candidate)
		}
	}

	switch len(matchedCandidates) {
	case 0:
		return noMatch("no open payment with matching phone suffix"), nil
	case 1:
		return s.validateAmount(&matchedCandidates[0], n, TierPhone, 0), nil
	default:
		best := &matchedCandidates[0]
		bestScore := phoneTierScore(best, n)
		for i := 1; i < len(matchedCandidates); i++ {
			// Candidates arrive ordered oldest-first; strict comparison keeps
			// ties deterministic.
			if score := phoneTierScore(&matchedCandidates[i], n); score > bestScore {
				best = &matchedCandidates[i]
				bestScore = score
			}
		}
		return s.validateAmount(best, n, TierPhone, bestScore), nil
	}
}

// phoneTierScore ranks multiple phone-suffix candidates by amount and time
// proximity.
func phoneTierScore(payment *models.Payment, n Notification) int {
	amountDelta, _ := payment.TotalAmount.Sub(n.Amount).Abs().Float64()
	hoursDelta := n.ReceivedAt.Sub(payment.CreatedAt).Abs().Hours()
	return 1000 - int(10*amountDelta+hoursDelta)
}

func (s *Service) matchByWindow(tx *gorm.DB, method enums.PaymentMethod, n Notification) (MatchResult, error) {
	tolerance := s.activeTolerance(n)
	window := s.cfg.Window
	if n.Fuzzy {
		window = s.cfg.FuzzyWindow
	}

	from := n.ReceivedAt.Add(-window)
	to := n.ReceivedAt.Add(time.Hour)
	candidates, err := s.repo.FindOpenCandidates(tx, method, from, to)
	if err != nil {
		return MatchResult{}, err
	}

	var inBand []models.Payment
	for _, candidate := range candidates {
		if amountWithinBand(candidate, n.Amount, tolerance) {
			inBand = append(inBand, candidate)
		}
	}

	switch len(inBand) {
	case 0:
		return noMatch("no open payment within amount and time bands"), nil
	case 1:
		return s.validateAmount(&inBand[0], n, TierWindow, 0), nil
	}

	// Tier 3: sender-attribute scoring across the windowed candidates.
	best := &inBand[0]
	bestScore := scoreCandidate(best, n)
	for i := 1; i < len(inBand); i++ {
		if score := scoreCandidate(&inBand[i], n); score > bestScore {
			best = &inBand[i]
			bestScore = score
		}
	}
	minScore := s.cfg.MinScore
	if minScore <= 0 {
		minScore = minAcceptScore
	}
	if bestScore > minScore {
		return s.validateAmount(best, n, TierScored, bestScore), nil
	}

	// Tier 4: closest createdAt to the notification time.
	closest := &inBand[0]
	closestDelta := n.ReceivedAt.Sub(closest.CreatedAt).Abs()
	for i := 1; i < len(inBand); i++ {
		if delta := n.ReceivedAt.Sub(inBand[i].CreatedAt).Abs(); delta < closestDelta {
			closest = &inBand[i]
			closestDelta = delta
		}
	}
	return s.validateAmount(closest, n, TierClosest, 0), nil
}

// amountWithinBand accepts a candidate when the notification amount is within
// tolerance of either the total or the remaining balance, so deposit and
// final payments both band-match.
func amountWithinBand(payment models.Payment, amount, tolerance decimal.Decimal) bool {
	if payment.TotalAmount.Sub(amount).Abs().LessThanOrEqual(tolerance) {
		return true
	}
	remaining := payment.RemainingBalance()
	return remaining.GreaterThan(decimal.Zero) && remaining.Sub(amount).Abs().LessThanOrEqual(tolerance)
}

// validateAmount applies the final acceptance checks to a tier's winner. An
// amount above the remaining balance by more than the active tolerance is an
// explicit invalid result so staff get alerted instead of the notification
// silently dropping.
func (s *Service) validateAmount(payment *models.Payment, n Notification, tier string, score int) MatchResult {
	ceiling := payment.RemainingBalance().Add(s.activeTolerance(n))
	if n.Amount.GreaterThan(ceiling) {
		return invalid(fmt.Sprintf("overpayment: notification %s exceeds remaining balance %s", n.Amount, payment.RemainingBalance()))
	}
	return matched(payment, tier, score)
}

func (s *Service) activeTolerance(n Notification) decimal.Decimal {
	if n.Fuzzy {
		return decimal.NewFromFloat(s.cfg.FuzzyAmountTolerance)
	}
	return decimal.NewFromFloat(s.cfg.AmountTolerance)
}

// ConfirmPayment settles a matched payment: marks it completed, stamps
// confirmation metadata, moves the booking's payment status, and enqueues the
// downstream notifications as outbox entries in the same transaction.
func (s *Service) ConfirmPayment(ctx context.Context, paymentID uuid.UUID, n Notification) (ConfirmResult, error) {
	var result ConfirmResult
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		payment, err := s.repo.GetPaymentForUpdate(tx, paymentID)
		if err != nil {
			return err
		}
		if !payment.Status.IsOpen() {
			return pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("payment %s is already %s", payment.ID, payment.Status))
		}
		if n.Amount.LessThanOrEqual(decimal.Zero) {
			return pkgerrors.New(pkgerrors.CodeValidation, "confirmation amount must be positive")
		}
		if n.Amount.GreaterThan(payment.RemainingBalance().Add(s.activeTolerance(n))) {
			return pkgerrors.New(pkgerrors.CodeValidation, "confirmation amount exceeds remaining balance")
		}

		threshold := depositThreshold(payment.TotalAmount, s.cfg.DepositPercent)
		wasMet := payment.AmountPaid.GreaterThanOrEqual(threshold)

		now := time.Now().UTC()
		payment.AmountPaid = payment.AmountPaid.Add(n.Amount)
		payment.Status = enums.PaymentStatusCompleted
		payment.ConfirmedAt = &now
		provider := string(n.Provider)
		payment.Provider = &provider
		if n.ExternalTxnID != "" {
			txnID := n.ExternalTxnID
			payment.ExternalTxnID = &txnID
		}

		meta, err := json.Marshal(map[string]any{
			"provider":        string(n.Provider),
			"external_txn_id": n.ExternalTxnID,
			"amount":          n.Amount.String(),
			"received_at":     n.ReceivedAt,
			"confirmed_at":    now,
			"sender":          n.Sender,
		})
		if err != nil {
			return fmt.Errorf("encoding confirmation meta: %w", err)
		}
		payment.ConfirmationMeta = meta

		if err := s.repo.SavePayment(tx, payment); err != nil {
			if db.IsUniqueViolation(err, "external_txn") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "external transaction already applied")
			}
			return err
		}

		nowMet := payment.AmountPaid.GreaterThanOrEqual(threshold)
		paidInFull := payment.AmountPaid.GreaterThanOrEqual(payment.TotalAmount)

		bookingStatus := models.BookingPaymentUnpaid
		switch {
		case paidInFull:
			bookingStatus = models.BookingPaymentPaidInFull
		case nowMet:
			bookingStatus = models.BookingPaymentDepositPaid
		}
		if bookingStatus != models.BookingPaymentUnpaid {
			if err := s.repo.UpdateBookingPaymentStatus(tx, payment.BookingID, bookingStatus); err != nil {
				return err
			}
		}

		result = ConfirmResult{
			Payment:        payment,
			DepositJustMet: !wasMet && nowMet,
			DepositWasMet:  wasMet,
			PaidInFull:     paidInFull,
		}

		return s.emitConfirmationEvents(ctx, tx, payment, n, result)
	})
	if err != nil {
		return ConfirmResult{}, err
	}

	ctx = s.logg.WithBookingID(ctx, result.Payment.BookingID.String())
	s.logg.Info(ctx, "payment confirmed")
	return result, nil
}

// emitConfirmationEvents enqueues the downstream side effects. The matcher
// never talks to notification providers directly; everything rides the
// outbox so a crash after commit still delivers.
func (s *Service) emitConfirmationEvents(ctx context.Context, tx *gorm.DB, payment *models.Payment, n Notification, result ConfirmResult) error {
	bookingID := payment.BookingID
	paymentID := payment.ID

	if payment.Booking != nil && payment.Booking.CustomerEmail != "" {
		subject := "Payment received"
		if result.DepositJustMet {
			subject = "Deposit received, booking secured"
		}
		_, err := s.outbox.EmitTx(ctx, tx, enums.EventEmailPaymentReceived, outbox.EmailPayload{
			To:       payment.Booking.CustomerEmail,
			Subject:  subject,
			Template: "payment-received",
			Data: map[string]any{
				"amount":           n.Amount.String(),
				"deposit_just_met": result.DepositJustMet,
				"paid_in_full":     result.PaidInFull,
			},
		})
		if err != nil {
			return err
		}
	}

	if s.adminEmail != "" {
		data := map[string]any{
			"payment_id": paymentID.String(),
			"booking_id": bookingID.String(),
			"provider":   string(n.Provider),
		}
		if booking := payment.Booking; booking != nil {
			data["guest_count"] = booking.GuestCount
			if len(booking.DietaryNotes) > 0 {
				data["dietary_notes"] = []string(booking.DietaryNotes)
			}
		}
		_, err := s.outbox.EmitTx(ctx, tx, enums.EventEmailAdminAlert, outbox.EmailPayload{
			To:      s.adminEmail,
			Subject: fmt.Sprintf("Payment settled: %s via %s", n.Amount, n.Provider),
			Data:    data,
		})
		if err != nil {
			return err
		}
	}

	_, err := s.outbox.EmitTx(ctx, tx, enums.EventPaymentSettledRelay, outbox.RelayPayload{
		Kind:       "payment.settled",
		BookingID:  &bookingID,
		PaymentID:  &paymentID,
		OccurredAt: time.Now().UTC(),
		Data: map[string]any{
			"amount":   n.Amount.String(),
			"provider": string(n.Provider),
		},
	})
	return err
}

func depositThreshold(total decimal.Decimal, percent int) decimal.Decimal {
	if percent <= 0 {
		percent = 50
	}
	return total.Mul(decimal.NewFromInt(int64(percent))).Div(decimal.NewFromInt(100))
}

func buildMatchLog(n Notification, result MatchResult) *models.PaymentMatchLog {
	log := &models.PaymentMatchLog{
		Provider:   n.Provider,
		Amount:     n.Amount,
		ReceivedAt: n.ReceivedAt,
		Outcome:    string(result.Outcome),
		Tier:       result.Tier,
		Score:      result.Score,
	}
	if result.Reason != "" {
		reason := result.Reason
		log.Reason = &reason
	}
	if result.Payment != nil {
		id := result.Payment.ID
		log.PaymentID = &id
	}
	if sender, err := json.Marshal(n.Sender); err == nil {
		log.SenderInfo = sender
	}
	return log
}
