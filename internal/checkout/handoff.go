package checkout

import (
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/fafportal/checkout/internal/cart"
	pkgerrors "github.com/fafportal/checkout/pkg/errors"
)

const (
	// MarkerAll addresses every line of the cart.
	MarkerAll = "all"

	PurchasePath         = "/purchase"
	PurchaseCompletePath = "/purchase-complete"

	paramCartID       = "cart_id"
	paramProductID    = "product_id"
	paramTotalAmount  = "totalAmount"
	paramPurchaseKind = "purchaseKind"
	paramReferenceID  = "referenceId"
)

// PurchaseRef addresses the Purchase page: a cart marker or a product id, never both.
type PurchaseRef struct {
	Kind       Kind
	CartMarker string
	ProductID  int64
}

func (r PurchaseRef) Query() url.Values {
	q := url.Values{}
	switch r.Kind {
	case KindProduct:
		q.Set(paramProductID, strconv.FormatInt(r.ProductID, 10))
	default:
		q.Set(paramCartID, r.CartMarker)
	}
	return q
}

// URL returns the Purchase page location, e.g. /purchase?cart_id=all.
func (r PurchaseRef) URL() string {
	return PurchasePath + "?" + r.Query().Encode()
}

// ParsePurchaseRef reads cart_id XOR product_id.
func ParsePurchaseRef(q url.Values) (PurchaseRef, error) {
	cartID := strings.TrimSpace(q.Get(paramCartID))
	productID := strings.TrimSpace(q.Get(paramProductID))

	switch {
	case cartID != "" && productID != "":
		return PurchaseRef{}, pkgerrors.New(pkgerrors.CodeValidation, "cart_id and product_id are mutually exclusive")
	case cartID != "":
		if _, _, err := ParseCartMarker(cartID); err != nil {
			return PurchaseRef{}, err
		}
		return PurchaseRef{Kind: KindCart, CartMarker: cartID}, nil
	case productID != "":
		id, err := strconv.ParseInt(productID, 10, 64)
		if err != nil || id <= 0 {
			return PurchaseRef{}, pkgerrors.New(pkgerrors.CodeValidation, "product_id must be a positive integer")
		}
		return PurchaseRef{Kind: KindProduct, ProductID: id}, nil
	default:
		return PurchaseRef{}, pkgerrors.New(pkgerrors.CodeValidation, "cart_id or product_id is required")
	}
}

// Settlement addresses the Purchase-Complete page.
type Settlement struct {
	TotalAmount int64
	Kind        Kind
	ReferenceID string
}

func (s Settlement) Query() url.Values {
	q := url.Values{}
	q.Set(paramTotalAmount, strconv.FormatInt(s.TotalAmount, 10))
	q.Set(paramPurchaseKind, string(s.Kind))
	q.Set(paramReferenceID, s.ReferenceID)
	return q
}

func (s Settlement) URL() string {
	return PurchaseCompletePath + "?" + s.Query().Encode()
}

// ParseSettlement reads totalAmount, purchaseKind and referenceId.
func ParseSettlement(q url.Values) (Settlement, error) {
	var details = map[string]string{}

	total, err := strconv.ParseInt(strings.TrimSpace(q.Get(paramTotalAmount)), 10, 64)
	if err != nil || total < 0 {
		details[paramTotalAmount] = "must be a non-negative integer"
	}
	kind := Kind(strings.TrimSpace(q.Get(paramPurchaseKind)))
	if !kind.Valid() {
		details[paramPurchaseKind] = "must be cart or product"
	}
	reference := strings.TrimSpace(q.Get(paramReferenceID))
	if reference == "" {
		details[paramReferenceID] = "is required"
	} else if kind == KindProduct {
		if id, err := strconv.ParseInt(reference, 10, 64); err != nil || id <= 0 {
			details[paramReferenceID] = "must be a product id"
		}
	} else if kind == KindCart {
		if _, _, err := ParseCartMarker(reference); err != nil {
			details[paramReferenceID] = "must be a cart marker"
		}
	}

	if len(details) > 0 {
		return Settlement{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid purchase parameters").WithDetails(details)
	}
	return Settlement{TotalAmount: total, Kind: kind, ReferenceID: reference}, nil
}

// CartMarker encodes the selection of snap: "all" when every line is selected, otherwise the
// selected ids joined by commas in cart order.
func CartMarker(snap cart.Snapshot) string {
	if snap.AllSelected() {
		return MarkerAll
	}
	parts := make([]string, 0, len(snap.Selected))
	for _, id := range snap.Selected {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	return strings.Join(parts, ",")
}

// ParseCartMarker decodes a cart marker into either all=true or an explicit id list.
func ParseCartMarker(marker string) (all bool, ids []int64, err error) {
	marker = strings.TrimSpace(marker)
	if strings.EqualFold(marker, MarkerAll) {
		return true, nil, nil
	}
	if marker == "" {
		return false, nil, pkgerrors.New(pkgerrors.CodeValidation, "cart marker is empty")
	}
	for _, part := range strings.Split(marker, ",") {
		id, perr := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if perr != nil || id <= 0 {
			return false, nil, pkgerrors.New(pkgerrors.CodeValidation, "cart marker must be all or product ids").
				WithDetails(map[string]any{"marker": marker})
		}
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	return false, ids, nil
}

// SelectByMarker returns the lines addressed by marker, in cart order.
func SelectByMarker(lines []cart.Line, marker string) ([]cart.Line, error) {
	all, ids, err := ParseCartMarker(marker)
	if err != nil {
		return nil, err
	}
	if all {
		return lines, nil
	}
	out := make([]cart.Line, 0, len(ids))
	for _, line := range lines {
		if slices.Contains(ids, line.ProductID) {
			out = append(out, line)
		}
	}
	return out, nil
}
