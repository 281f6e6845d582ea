package cart

import (
	"github.com/fafportal/checkout/internal/backend"
	cartsvc "github.com/fafportal/checkout/internal/cart"
	"github.com/fafportal/checkout/pkg/format"
)

// LineView is one row of the Cart page.
type LineView struct {
	ProductID int64          `json:"product_id"`
	Title     string         `json:"title"`
	Author    string         `json:"author"`
	Publisher string         `json:"publisher"`
	CoverRef  string         `json:"cover_ref"`
	Quantity  int            `json:"quantity"`
	UnitPrice int64          `json:"unit_price"`
	Subtotal  int64          `json:"subtotal"`
	Selected  bool           `json:"selected"`
	Status    cartsvc.Status `json:"status"`
}

// CartView is the Cart page: every line, the selection and its totals.
type CartView struct {
	Lines         []LineView `json:"lines"`
	Selected      []int64    `json:"selected"`
	AllSelected   bool       `json:"all_selected"`
	Total         int64      `json:"total"`
	TotalLabel    string     `json:"total_label"`
	QuantityTotal int        `json:"quantity_total"`
}

type ToggleView struct {
	ProductID int64    `json:"product_id"`
	Selected  bool     `json:"selected"`
	Cart      CartView `json:"cart"`
}

type RedirectView struct {
	Redirect string `json:"redirect"`
}

type ProductView struct {
	ProductID   int64  `json:"product_id"`
	Title       string `json:"title"`
	Subtitle    string `json:"subtitle,omitempty"`
	Author      string `json:"author"`
	Publisher   string `json:"publisher"`
	CoverRef    string `json:"cover_ref"`
	Description string `json:"description,omitempty"`
	Pages       int    `json:"pages,omitempty"`
	Language    string `json:"language,omitempty"`
	Stock       int    `json:"stock"`
	UnitPrice   int64  `json:"unit_price"`
	PriceLabel  string `json:"price_label"`
}

func newCartView(snap cartsvc.Snapshot, lang string) CartView {
	lines := make([]LineView, 0, len(snap.Lines))
	for _, line := range snap.Lines {
		lines = append(lines, LineView{
			ProductID: line.ProductID,
			Title:     line.Title,
			Author:    line.Author,
			Publisher: line.Publisher,
			CoverRef:  line.CoverRef,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Subtotal:  line.Subtotal(),
			Selected:  snap.IsSelected(line.ProductID),
			Status:    line.Status,
		})
	}
	selected := snap.Selected
	if selected == nil {
		selected = []int64{}
	}
	return CartView{
		Lines:         lines,
		Selected:      selected,
		AllSelected:   snap.AllSelected(),
		Total:         snap.Total,
		TotalLabel:    format.Points(snap.Total, lang),
		QuantityTotal: snap.QuantityTotal,
	}
}

func newProductView(p backend.Product, lang string) ProductView {
	return ProductView{
		ProductID:   p.ProductID,
		Title:       p.Title,
		Subtitle:    p.Subtitle,
		Author:      p.Author,
		Publisher:   p.Publisher,
		CoverRef:    p.CoverRef,
		Description: p.Description,
		Pages:       p.Pages,
		Language:    p.Language,
		Stock:       p.Stock,
		UnitPrice:   p.UnitPrice,
		PriceLabel:  format.Points(p.UnitPrice, lang),
	}
}
