package enums

import "fmt"

// NotificationProvider identifies the external source of a payment notification.
type NotificationProvider string

const (
	ProviderStripe       NotificationProvider = "stripe"
	ProviderVenmo        NotificationProvider = "venmo"
	ProviderZelle        NotificationProvider = "zelle"
	ProviderBankTransfer NotificationProvider = "bank_transfer"
)

var validNotificationProviders = []NotificationProvider{
	ProviderStripe,
	ProviderVenmo,
	ProviderZelle,
	ProviderBankTransfer,
}

// String implements fmt.Stringer.
func (p NotificationProvider) String() string {
	return string(p)
}

// IsValid reports whether the value is a known NotificationProvider.
func (p NotificationProvider) IsValid() bool {
	for _, candidate := range validNotificationProviders {
		if candidate == p {
			return true
		}
	}
	return false
}

// PaymentMethod maps a provider onto the payment method stored on the ledger.
func (p NotificationProvider) PaymentMethod() (PaymentMethod, error) {
	switch p {
	case ProviderStripe:
		return PaymentMethodStripe, nil
	case ProviderVenmo:
		return PaymentMethodVenmo, nil
	case ProviderZelle:
		return PaymentMethodZelle, nil
	case ProviderBankTransfer:
		return PaymentMethodBankTransfer, nil
	default:
		return "", fmt.Errorf("no payment method for provider %q", p)
	}
}
