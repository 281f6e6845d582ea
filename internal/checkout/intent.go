package checkout

import (
	"strconv"

	"github.com/fafportal/checkout/internal/backend"
	"github.com/fafportal/checkout/internal/cart"
	pkgerrors "github.com/fafportal/checkout/pkg/errors"
)

// Kind identifies the purchase entry point.
type Kind string

const (
	KindCart    Kind = "cart"
	KindProduct Kind = "product"
)

func (k Kind) Valid() bool {
	return k == KindCart || k == KindProduct
}

// Line is one priced item of an intent.
type Line struct {
	ProductID int64
	Quantity  int
	UnitPrice int64
	Title     string
	Author    string
	Publisher string
	CoverRef  string
}

func (l Line) Subtotal() int64 {
	return l.UnitPrice * int64(l.Quantity)
}

// Intent describes what is about to be bought, independent of where the purchase started.
type Intent struct {
	Kind        Kind
	ReferenceID string
	Lines       []Line
	TotalAmount int64
}

var errEmptySelection = pkgerrors.New(pkgerrors.CodeValidation, "select at least one product to order")

// FromCart builds a cart checkout intent from the selected lines of snap, in cart order.
func FromCart(snap cart.Snapshot) (Intent, error) {
	selected := snap.SelectedLines()
	if len(selected) == 0 {
		return Intent{}, errEmptySelection
	}
	lines := make([]Line, 0, len(selected))
	for _, l := range selected {
		lines = append(lines, Line{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Title:     l.Title,
			Author:    l.Author,
			Publisher: l.Publisher,
			CoverRef:  l.CoverRef,
		})
	}
	return newIntent(KindCart, CartMarker(snap), lines), nil
}

// FromProduct builds a direct purchase intent for one unit of product.
func FromProduct(product backend.Product) (Intent, error) {
	if product.ProductID <= 0 {
		return Intent{}, pkgerrors.New(pkgerrors.CodeValidation, "product id must be positive")
	}
	line := Line{
		ProductID: product.ProductID,
		Quantity:  1,
		UnitPrice: product.UnitPrice,
		Title:     product.Title,
		Author:    product.Author,
		Publisher: product.Publisher,
		CoverRef:  product.CoverRef,
	}
	return newIntent(KindProduct, strconv.FormatInt(product.ProductID, 10), []Line{line}), nil
}

func newIntent(kind Kind, reference string, lines []Line) Intent {
	var total int64
	for _, line := range lines {
		total += line.Subtotal()
	}
	return Intent{
		Kind:        kind,
		ReferenceID: reference,
		Lines:       lines,
		TotalAmount: total,
	}
}

// Ref is the Purchase page address of the intent.
func (i Intent) Ref() PurchaseRef {
	if i.Kind == KindProduct {
		id, _ := strconv.ParseInt(i.ReferenceID, 10, 64)
		return PurchaseRef{Kind: KindProduct, ProductID: id}
	}
	return PurchaseRef{Kind: KindCart, CartMarker: i.ReferenceID}
}

// Settlement is the Purchase-Complete address of the intent.
func (i Intent) Settlement() Settlement {
	return Settlement{
		TotalAmount: i.TotalAmount,
		Kind:        i.Kind,
		ReferenceID: i.ReferenceID,
	}
}
