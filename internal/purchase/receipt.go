package purchase

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/fafportal/checkout/internal/checkout"
	"github.com/fafportal/checkout/pkg/format"
)

// Receipt is the immutable record of a server-confirmed settlement. OrderNumber is display
// only and is not tied to any backend record.
type Receipt struct {
	OrderNumber      string        `json:"order_number"`
	TotalAmount      int64         `json:"total_amount"`
	PurchaseKind     checkout.Kind `json:"purchase_kind"`
	ReferenceID      string        `json:"reference_id"`
	SettledAt        time.Time     `json:"settled_at"`
	RemainingBalance int64         `json:"remaining_balance"`
	IdempotencyKey   string        `json:"idempotency_key"`
	Message          string        `json:"message,omitempty"`
}

// Summary renders the receipt as one human-readable line.
func (r Receipt) Summary(lang string) string {
	return fmt.Sprintf("%s: %s paid, %s remaining (%s)",
		r.OrderNumber,
		format.Points(r.TotalAmount, lang),
		format.Points(r.RemainingBalance, lang),
		format.Timestamp(r.SettledAt, lang),
	)
}

// orderNumber returns ORDER-YYYYMMDD-NNNN for t.
func orderNumber(t time.Time) string {
	return fmt.Sprintf("ORDER-%s-%04d", t.Format("20060102"), rand.IntN(10000))
}
