package matching

import (
	"encoding/json"
	"strings"

	"github.com/myhibachi/hibachi-backend/pkg/db/models"
)

// Signal weights for tier-3 sender scoring. Alternative-payer signals
// outweigh the booking customer's own identity because a friend/family payer
// who was recorded up front is the strongest possible signal.
const (
	scoreNameExact   = 100
	scoreNameToken   = 75
	scoreNamePartial = 50
	scoreEmailExact  = 100
	scorePhoneExact  = 100
	scorePhoneLast4  = 40
	scoreAltName     = 150
	scoreAltToken    = 125
	scoreAltPartial  = 100
	scoreAltEmail    = 150
	scoreAltPhone    = 150
	scoreUsername    = 100
	scoreExactAmount = 25

	// Minimum accepted tier-3 score; anything at or below falls through to
	// the closest-by-time tier.
	minAcceptScore = 50
)

// scoreCandidate accumulates independent identity signals between the sender
// and one candidate's booking. Within a category (name, phone) only the
// strongest level counts; categories themselves are additive.
func scoreCandidate(payment *models.Payment, notification Notification) int {
	booking := payment.Booking
	if booking == nil {
		return 0
	}
	sender := notification.Sender
	score := 0

	score += nameScore(sender.Name, booking.CustomerName, scoreNameExact, scoreNameToken, scoreNamePartial)

	if sender.Email != "" && normalizeEmail(sender.Email) == normalizeEmail(booking.CustomerEmail) {
		score += scoreEmailExact
	}

	score += phoneScore(sender.Phone, booking.CustomerPhone)

	meta := decodeBookingMetadata(booking)
	if meta != nil && meta.AlternativePayer != nil {
		alt := meta.AlternativePayer
		score += nameScore(sender.Name, alt.Name, scoreAltName, scoreAltToken, scoreAltPartial)
		if sender.Email != "" && alt.Email != "" && normalizeEmail(sender.Email) == normalizeEmail(alt.Email) {
			score += scoreAltEmail
		}
		if sender.Phone != "" && alt.Phone != "" && phoneSuffixMatches(sender.Phone, alt.Phone) {
			score += scoreAltPhone
		}
	}
	if meta != nil && meta.VenmoUsername != "" && sender.Username != "" {
		if normalizeUsername(sender.Username) == normalizeUsername(meta.VenmoUsername) {
			score += scoreUsername
		}
	}

	if notification.Amount.Equal(payment.RemainingBalance()) || notification.Amount.Equal(payment.TotalAmount) {
		score += scoreExactAmount
	}

	return score
}

// nameScore returns the strongest applicable name signal: exact, shared
// first/last token, or any partial token overlap.
func nameScore(senderName, storedName string, exact, token, partial int) int {
	sender := normalizeName(senderName)
	stored := normalizeName(storedName)
	if sender == "" || stored == "" {
		return 0
	}
	if sender == stored {
		return exact
	}

	senderTokens := nameTokens(senderName)
	storedTokens := nameTokens(storedName)
	if len(senderTokens) == 0 || len(storedTokens) == 0 {
		return 0
	}

	// First or last name agreeing outranks an arbitrary token overlap.
	if senderTokens[0] == storedTokens[0] || senderTokens[len(senderTokens)-1] == storedTokens[len(storedTokens)-1] {
		return token
	}
	for _, st := range senderTokens {
		for _, bt := range storedTokens {
			if st == bt || strings.Contains(bt, st) || strings.Contains(st, bt) {
				return partial
			}
		}
	}
	return 0
}

func phoneScore(senderPhone, storedPhone string) int {
	sender := normalizePhone(senderPhone)
	stored := normalizePhone(storedPhone)
	if sender == "" || stored == "" {
		return 0
	}
	if len(sender) >= 10 && len(stored) >= 10 && lastDigits(sender, 10) == lastDigits(stored, 10) {
		return scorePhoneExact
	}
	if len(sender) >= 4 && len(stored) >= 4 && lastDigits(sender, 4) == lastDigits(stored, 4) {
		return scorePhoneLast4
	}
	return 0
}

func decodeBookingMetadata(booking *models.Booking) *models.BookingMetadata {
	if booking == nil || len(booking.Metadata) == 0 {
		return nil
	}
	var meta models.BookingMetadata
	if err := json.Unmarshal(booking.Metadata, &meta); err != nil {
		return nil
	}
	return &meta
}
