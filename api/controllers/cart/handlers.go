package cart

import (
	"context"
	"net/http"

	"github.com/fafportal/checkout/api/middleware"
	"github.com/fafportal/checkout/api/responses"
	"github.com/fafportal/checkout/api/validators"
	"github.com/fafportal/checkout/internal/backend"
	cartsvc "github.com/fafportal/checkout/internal/cart"
	"github.com/fafportal/checkout/internal/checkout"
	pkgerrors "github.com/fafportal/checkout/pkg/errors"
	"github.com/fafportal/checkout/pkg/logger"
)

const productIDParam = "productId"

// Carts resolves the cart store of a portal session.
type Carts interface {
	Get(sessionID string) (*cartsvc.Store, error)
}

// Catalog serves the Product Detail page.
type Catalog interface {
	Product(ctx context.Context, productID int64) (*backend.Product, error)
	BuyNow(ctx context.Context, productID int64) (checkout.Intent, error)
}

// CartFetch refetches the cart and selects every line.
func CartFetch(carts Carts, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, ok := storeFor(w, r, carts, logg)
		if !ok {
			return
		}
		snap := store.Load(r.Context())
		responses.WriteSuccess(w, newCartView(snap, validators.Language(r)))
	}
}

// CartAddItem handles "add to cart" from the Product Detail page.
func CartAddItem(carts Carts, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, ok := storeFor(w, r, carts, logg)
		if !ok {
			return
		}

		var payload AddItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := store.Add(r.Context(), payload.ProductID, payload.quantity()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]any{
			"product_id": payload.ProductID,
			"quantity":   payload.quantity(),
		})
	}
}

func CartIncrement(carts Carts, logg *logger.Logger) http.HandlerFunc {
	return adjustHandler(carts, logg, (*cartsvc.Store).Increment)
}

func CartDecrement(carts Carts, logg *logger.Logger) http.HandlerFunc {
	return adjustHandler(carts, logg, (*cartsvc.Store).Decrement)
}

func adjustHandler(carts Carts, logg *logger.Logger, adjust func(*cartsvc.Store, context.Context, int64) (cartsvc.Line, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, ok := storeFor(w, r, carts, logg)
		if !ok {
			return
		}
		productID, err := validators.ParseProductID(r, productIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if _, err := adjust(store, r.Context(), productID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartView(store.Snapshot(), validators.Language(r)))
	}
}

// CartRemove drops a line optimistically; the backend delete runs in the background.
func CartRemove(carts Carts, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, ok := storeFor(w, r, carts, logg)
		if !ok {
			return
		}
		productID, err := validators.ParseProductID(r, productIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := store.Remove(r.Context(), productID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartView(store.Snapshot(), validators.Language(r)))
	}
}

func CartToggle(carts Carts, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, ok := storeFor(w, r, carts, logg)
		if !ok {
			return
		}
		productID, err := validators.ParseProductID(r, productIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		selected := store.Toggle(productID)
		responses.WriteSuccess(w, ToggleView{
			ProductID: productID,
			Selected:  selected,
			Cart:      newCartView(store.Snapshot(), validators.Language(r)),
		})
	}
}

func CartToggleAll(carts Carts, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, ok := storeFor(w, r, carts, logg)
		if !ok {
			return
		}
		store.ToggleAll()
		responses.WriteSuccess(w, newCartView(store.Snapshot(), validators.Language(r)))
	}
}

// CartCheckout waits for pending quantity writes, then hands the selection to the Purchase page.
func CartCheckout(carts Carts, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, ok := storeFor(w, r, carts, logg)
		if !ok {
			return
		}
		if err := store.Flush(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cart writes still pending"))
			return
		}
		intent, err := checkout.FromCart(store.Snapshot())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, RedirectView{Redirect: intent.Ref().URL()})
	}
}

func ProductDetail(catalog Catalog, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.ParseProductID(r, productIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithProductID(ctx, productID)
		}
		product, err := catalog.Product(ctx, productID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newProductView(*product, validators.Language(r)))
	}
}

// ProductBuyNow starts a direct single-product purchase with quantity 1.
func ProductBuyNow(catalog Catalog, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.ParseProductID(r, productIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		intent, err := catalog.BuyNow(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, RedirectView{Redirect: intent.Ref().URL()})
	}
}

func storeFor(w http.ResponseWriter, r *http.Request, carts Carts, logg *logger.Logger) (*cartsvc.Store, bool) {
	if carts == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart registry unavailable"))
		return nil, false
	}
	store, err := carts.Get(middleware.SessionIDFromContext(r.Context()))
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return nil, false
	}
	return store, true
}
