package purchase

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/fafportal/checkout/api/middleware"
	"github.com/fafportal/checkout/api/responses"
	"github.com/fafportal/checkout/api/validators"
	"github.com/fafportal/checkout/internal/checkout"
	purchasesvc "github.com/fafportal/checkout/internal/purchase"
	pkgerrors "github.com/fafportal/checkout/pkg/errors"
	"github.com/fafportal/checkout/pkg/logger"
)

const idempotencyHeader = "Idempotency-Key"

// Preparer rebuilds the Purchase page from its URL address.
type Preparer interface {
	Prepare(ctx context.Context, ref checkout.PurchaseRef) (*checkout.Page, error)
}

// Settler commits a confirmed purchase.
type Settler interface {
	Settle(ctx context.Context, in purchasesvc.Input) (*purchasesvc.Outcome, error)
}

// PurchaseFetch renders the Purchase page for ?cart_id= or ?product_id= and issues a fresh
// idempotency key for the settlement that may follow.
func PurchaseFetch(svc Preparer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		ref, err := checkout.ParsePurchaseRef(r.URL.Query())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.Prepare(r.Context(), ref)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newPurchaseView(page, uuid.NewString(), validators.Language(r)))
	}
}

// PurchaseComplete settles ?totalAmount&purchaseKind&referenceId once per Idempotency-Key.
// A replayed key answers 200 with the original receipt.
func PurchaseComplete(svc Settler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlement service unavailable"))
			return
		}

		settlement, err := checkout.ParseSettlement(r.URL.Query())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
		if key == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
			return
		}

		outcome, err := svc.Settle(r.Context(), purchasesvc.Input{
			Settlement:     settlement,
			IdempotencyKey: key,
			SessionID:      middleware.SessionIDFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status := http.StatusCreated
		if outcome.Replayed {
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, newReceiptView(outcome, validators.Language(r)))
	}
}
