package checkout

import "github.com/fafportal/checkout/pkg/format"

const messageShortfall = "not enough points: %s available, %s required"

// Balance is the session's spendable points.
type Balance struct {
	Available int64
}

// Decision is the advisory outcome of the checkout gate. The backend re-verifies at settlement.
type Decision struct {
	Allowed   bool
	Shortfall int64
	Message   string
}

// CanSettle reports whether balance covers the intent total.
func CanSettle(intent Intent, balance Balance) bool {
	return balance.Available >= intent.TotalAmount
}

func Evaluate(intent Intent, balance Balance, lang string) Decision {
	if CanSettle(intent, balance) {
		return Decision{Allowed: true}
	}
	shortfall := intent.TotalAmount - balance.Available
	return Decision{
		Allowed:   false,
		Shortfall: shortfall,
		Message: format.Message(lang, messageShortfall,
			format.Points(balance.Available, lang), format.Points(intent.TotalAmount, lang)),
	}
}
