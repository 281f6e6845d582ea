package purchase

import (
	"time"

	"github.com/fafportal/checkout/internal/checkout"
	purchasesvc "github.com/fafportal/checkout/internal/purchase"
	"github.com/fafportal/checkout/pkg/format"
)

type LineView struct {
	ProductID int64  `json:"product_id"`
	Title     string `json:"title"`
	Author    string `json:"author"`
	Publisher string `json:"publisher"`
	CoverRef  string `json:"cover_ref"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	Subtotal  int64  `json:"subtotal"`
}

// PurchaseView is the Purchase page. SettleURL is empty unless the gate allows settlement.
type PurchaseView struct {
	Kind           checkout.Kind `json:"purchase_kind"`
	ReferenceID    string        `json:"reference_id"`
	Lines          []LineView    `json:"lines"`
	TotalAmount    int64         `json:"total_amount"`
	TotalLabel     string        `json:"total_label"`
	Nickname       string        `json:"nickname,omitempty"`
	Balance        int64         `json:"balance"`
	BalanceLabel   string        `json:"balance_label"`
	CanSettle      bool          `json:"can_settle"`
	Shortfall      int64         `json:"shortfall,omitempty"`
	Message        string        `json:"message,omitempty"`
	SettleURL      string        `json:"settle_url,omitempty"`
	IdempotencyKey string        `json:"idempotency_key"`
}

// ReceiptView is the Purchase-Complete page after a successful settlement.
type ReceiptView struct {
	OrderNumber      string        `json:"order_number"`
	PurchaseKind     checkout.Kind `json:"purchase_kind"`
	ReferenceID      string        `json:"reference_id"`
	TotalAmount      int64         `json:"total_amount"`
	TotalLabel       string        `json:"total_label"`
	RemainingBalance int64         `json:"remaining_balance"`
	RemainingLabel   string        `json:"remaining_label"`
	SettledAt        time.Time     `json:"settled_at"`
	SettledAtLabel   string        `json:"settled_at_label"`
	Message          string        `json:"message,omitempty"`
	Summary          string        `json:"summary"`
	Replayed         bool          `json:"replayed"`
}

func newPurchaseView(page *checkout.Page, idempotencyKey, lang string) PurchaseView {
	lines := make([]LineView, 0, len(page.Intent.Lines))
	for _, line := range page.Intent.Lines {
		lines = append(lines, LineView{
			ProductID: line.ProductID,
			Title:     line.Title,
			Author:    line.Author,
			Publisher: line.Publisher,
			CoverRef:  line.CoverRef,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Subtotal:  line.Subtotal(),
		})
	}
	view := PurchaseView{
		Kind:           page.Intent.Kind,
		ReferenceID:    page.Intent.ReferenceID,
		Lines:          lines,
		TotalAmount:    page.Intent.TotalAmount,
		TotalLabel:     format.Points(page.Intent.TotalAmount, lang),
		Nickname:       page.Session.Nickname,
		Balance:        page.Balance.Available,
		BalanceLabel:   format.Points(page.Balance.Available, lang),
		CanSettle:      page.Decision.Allowed,
		Shortfall:      page.Decision.Shortfall,
		Message:        page.Decision.Message,
		IdempotencyKey: idempotencyKey,
	}
	if page.Decision.Allowed {
		view.SettleURL = page.Settlement.URL()
	}
	return view
}

func newReceiptView(outcome *purchasesvc.Outcome, lang string) ReceiptView {
	r := outcome.Receipt
	return ReceiptView{
		OrderNumber:      r.OrderNumber,
		PurchaseKind:     r.PurchaseKind,
		ReferenceID:      r.ReferenceID,
		TotalAmount:      r.TotalAmount,
		TotalLabel:       format.Points(r.TotalAmount, lang),
		RemainingBalance: r.RemainingBalance,
		RemainingLabel:   format.Points(r.RemainingBalance, lang),
		SettledAt:        r.SettledAt,
		SettledAtLabel:   format.Timestamp(r.SettledAt, lang),
		Message:          r.Message,
		Summary:          r.Summary(lang),
		Replayed:         outcome.Replayed,
	}
}
