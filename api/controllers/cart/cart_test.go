package cart

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fafportal/checkout/api/middleware"
	"github.com/fafportal/checkout/internal/backend"
	cartsvc "github.com/fafportal/checkout/internal/cart"
	"github.com/fafportal/checkout/internal/checkout"
	pkgerrors "github.com/fafportal/checkout/pkg/errors"
)

type stubCartBackend struct {
	mu      sync.Mutex
	rows    []backend.CartRow
	added   map[int64]int
	updated map[int64]int
}

func newStubCartBackend(rows ...backend.CartRow) *stubCartBackend {
	return &stubCartBackend{rows: rows, added: map[int64]int{}, updated: map[int64]int{}}
}

func (s *stubCartBackend) ListCart(context.Context) ([]backend.CartRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.rows), nil
}

func (s *stubCartBackend) AddToCart(_ context.Context, productID int64, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.added[productID] += quantity
	return nil
}

func (s *stubCartBackend) SetQuantity(_ context.Context, productID int64, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updated[productID] = quantity
	return nil
}

func (s *stubCartBackend) RemoveLine(context.Context, int64) error {
	return nil
}

type stubCatalog struct {
	product *backend.Product
	err     error
}

func (s *stubCatalog) Product(context.Context, int64) (*backend.Product, error) {
	return s.product, s.err
}

func (s *stubCatalog) BuyNow(context.Context, int64) (checkout.Intent, error) {
	if s.err != nil {
		return checkout.Intent{}, s.err
	}
	return checkout.FromProduct(*s.product)
}

func newTestRouter(t *testing.T, fb *stubCartBackend, catalog Catalog) http.Handler {
	t.Helper()
	registry, err := cartsvc.NewRegistry(cartsvc.RegistryOptions{Backend: fb, WriteTimeout: time.Second})
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Get("/cart", CartFetch(registry, nil))
	r.Post("/cart/items", CartAddItem(registry, nil))
	r.Post("/cart/lines/{productId}/increment", CartIncrement(registry, nil))
	r.Post("/cart/lines/{productId}/decrement", CartDecrement(registry, nil))
	r.Delete("/cart/lines/{productId}", CartRemove(registry, nil))
	r.Post("/cart/lines/{productId}/toggle", CartToggle(registry, nil))
	r.Post("/cart/selection/toggle-all", CartToggleAll(registry, nil))
	r.Post("/cart/checkout", CartCheckout(registry, nil))
	r.Get("/products/{productId}", ProductDetail(catalog, nil))
	r.Post("/products/{productId}/buy-now", ProductBuyNow(catalog, nil))
	return r
}

func serve(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req = req.WithContext(middleware.WithSessionID(req.Context(), "sess-1"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var envelope struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	return envelope.Data
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	return envelope.Error.Code
}

func twoLineCart() *stubCartBackend {
	return newStubCartBackend(
		backend.CartRow{ProductID: 1, Quantity: 2, UnitPrice: 1000, Title: "Intro"},
		backend.CartRow{ProductID: 2, Quantity: 1, UnitPrice: 500, Title: "Workbook"},
	)
}

func TestCartFetchSelectsEveryLine(t *testing.T) {
	h := newTestRouter(t, twoLineCart(), nil)

	rec := serve(t, h, http.MethodGet, "/cart?lang=en", "")
	require.Equal(t, http.StatusOK, rec.Code)

	view := decodeData[CartView](t, rec)
	require.Len(t, view.Lines, 2)
	assert.True(t, view.AllSelected)
	assert.Equal(t, []int64{1, 2}, view.Selected)
	assert.Equal(t, int64(2500), view.Total)
	assert.Equal(t, "2,500 P", view.TotalLabel)
	assert.Equal(t, 3, view.QuantityTotal)
	assert.Equal(t, int64(2000), view.Lines[0].Subtotal)
	assert.Equal(t, cartsvc.StatusSynced, view.Lines[0].Status)
}

func TestCartRequiresSession(t *testing.T) {
	h := newTestRouter(t, twoLineCart(), nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cart", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCartAddItem(t *testing.T) {
	fb := twoLineCart()
	h := newTestRouter(t, fb, nil)

	rec := serve(t, h, http.MethodPost, "/cart/items", `{"product_id":7}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	fb.mu.Lock()
	defer fb.mu.Unlock()
	assert.Equal(t, 1, fb.added[7])
}

func TestCartAddItemValidatesBody(t *testing.T) {
	h := newTestRouter(t, twoLineCart(), nil)

	rec := serve(t, h, http.MethodPost, "/cart/items", `{"product_id":0,"quantity":2}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeValidation), errorCode(t, rec))
}

func TestCartIncrementUpdatesTotals(t *testing.T) {
	h := newTestRouter(t, twoLineCart(), nil)
	serve(t, h, http.MethodGet, "/cart", "")

	rec := serve(t, h, http.MethodPost, "/cart/lines/2/increment", "")
	require.Equal(t, http.StatusOK, rec.Code)

	view := decodeData[CartView](t, rec)
	assert.Equal(t, 2, view.Lines[1].Quantity)
	assert.Equal(t, int64(3000), view.Total)
	assert.Equal(t, 4, view.QuantityTotal)
}

func TestCartDecrementUnknownLine(t *testing.T) {
	h := newTestRouter(t, twoLineCart(), nil)
	serve(t, h, http.MethodGet, "/cart", "")

	rec := serve(t, h, http.MethodPost, "/cart/lines/99/decrement", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCartRejectsMalformedProductID(t *testing.T) {
	h := newTestRouter(t, twoLineCart(), nil)

	rec := serve(t, h, http.MethodPost, "/cart/lines/abc/increment", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCartRemoveDropsLineAndSelection(t *testing.T) {
	h := newTestRouter(t, twoLineCart(), nil)
	serve(t, h, http.MethodGet, "/cart", "")

	rec := serve(t, h, http.MethodDelete, "/cart/lines/1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	view := decodeData[CartView](t, rec)
	require.Len(t, view.Lines, 1)
	assert.Equal(t, []int64{2}, view.Selected)
	assert.Equal(t, int64(500), view.Total)
}

func TestCartToggleAndCheckout(t *testing.T) {
	h := newTestRouter(t, twoLineCart(), nil)
	serve(t, h, http.MethodGet, "/cart", "")

	rec := serve(t, h, http.MethodPost, "/cart/lines/1/toggle", "")
	require.Equal(t, http.StatusOK, rec.Code)
	toggled := decodeData[ToggleView](t, rec)
	assert.False(t, toggled.Selected)
	assert.False(t, toggled.Cart.AllSelected)
	assert.Equal(t, int64(500), toggled.Cart.Total)

	rec = serve(t, h, http.MethodPost, "/cart/checkout", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/purchase?cart_id=2", decodeData[RedirectView](t, rec).Redirect)
}

func TestCartCheckoutAllSelected(t *testing.T) {
	h := newTestRouter(t, twoLineCart(), nil)
	serve(t, h, http.MethodGet, "/cart", "")

	rec := serve(t, h, http.MethodPost, "/cart/checkout", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/purchase?cart_id=all", decodeData[RedirectView](t, rec).Redirect)
}

func TestCartCheckoutRequiresSelection(t *testing.T) {
	h := newTestRouter(t, twoLineCart(), nil)
	serve(t, h, http.MethodGet, "/cart", "")

	rec := serve(t, h, http.MethodPost, "/cart/selection/toggle-all", "")
	require.Equal(t, http.StatusOK, rec.Code)
	view := decodeData[CartView](t, rec)
	assert.Empty(t, view.Selected)
	assert.Zero(t, view.Total)

	rec = serve(t, h, http.MethodPost, "/cart/checkout", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeValidation), errorCode(t, rec))
}

func TestProductDetailAndBuyNow(t *testing.T) {
	catalog := &stubCatalog{product: &backend.Product{ProductID: 9, UnitPrice: 3000, Title: "Grammar", Stock: 4}}
	h := newTestRouter(t, twoLineCart(), catalog)

	rec := serve(t, h, http.MethodGet, "/products/9?lang=en", "")
	require.Equal(t, http.StatusOK, rec.Code)
	view := decodeData[ProductView](t, rec)
	assert.Equal(t, "Grammar", view.Title)
	assert.Equal(t, "3,000 P", view.PriceLabel)

	rec = serve(t, h, http.MethodPost, "/products/9/buy-now", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/purchase?product_id=9", decodeData[RedirectView](t, rec).Redirect)
}

func TestProductDetailNotFound(t *testing.T) {
	catalog := &stubCatalog{err: pkgerrors.New(pkgerrors.CodeNotFound, "product not found")}
	h := newTestRouter(t, twoLineCart(), catalog)

	rec := serve(t, h, http.MethodGet, "/products/404", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
