package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/fafportal/checkout/pkg/errors"
)

const (
	defaultTimeout              = 10 * time.Second
	defaultSessionCookie        = "JSESSIONID"
	idempotencyHeader           = "Idempotency-Key"
	responseBodyReadLimit int64 = 1024
	settlementBodyLimit   int64 = 64 << 10

	pathCartList      = "/api/cart/productsList"
	pathCartAdd       = "/api/cart/add"
	pathCartUpdate    = "/api/cart/update"
	pathCartRemove    = "/api/cart/remove"
	pathProductDetail = "/api/productdetail"
	pathSessionCheck  = "/api/session-check"
	pathSettlement    = "/api/purchase/result"

	statusSuccess = "success"
)

var errBaseURLRequired = errors.New("backend base url is required")

// Client talks to the portal REST backend that owns carts, the catalog, sessions and the points ledger.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	sessionCookie string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithSessionCookie overrides the name of the portal session cookie forwarded on every call.
func WithSessionCookie(name string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			c.sessionCookie = trimmed
		}
	}
}

// WithTimeout sets the timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

// NewClient builds a backend client rooted at baseURL (e.g. http://localhost:8080/FAF).
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errBaseURLRequired
	}

	client := &Client{
		baseURL:       trimmed,
		sessionCookie: defaultSessionCookie,
		httpClient:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// CartRow is one row of the cart listing. Rows may repeat a product id.
type CartRow struct {
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"price"`
	Title     string `json:"product_title"`
	Author    string `json:"writer"`
	Publisher string `json:"publisher"`
	CoverRef  string `json:"product_image"`
}

// Product is the catalog detail of one product: the cart row shape plus extended description fields.
type Product struct {
	ProductID   int64  `json:"product_id"`
	UnitPrice   int64  `json:"price"`
	Title       string `json:"product_title"`
	Subtitle    string `json:"stitle"`
	Author      string `json:"writer"`
	Publisher   string `json:"publisher"`
	CoverRef    string `json:"product_image"`
	Description string `json:"content"`
	Pages       int    `json:"page"`
	Language    string `json:"languages"`
	Stock       int    `json:"stock"`
}

// Session mirrors the session check payload.
type Session struct {
	Authenticated bool
	Nickname      string
	UserType      string
	PointBalance  int64
}

// SettlementRequest carries the hand-off values for one purchase.
type SettlementRequest struct {
	TotalAmount    int64
	PurchaseKind   string
	ReferenceID    string
	IdempotencyKey string
}

// SettlementResult is the backend's authoritative outcome.
type SettlementResult struct {
	Success        bool
	Message        string
	UpdatedBalance int64
}

type statusEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type lineRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  *int  `json:"quantity,omitempty"`
}

// ListCart returns the raw cart rows for the current session, duplicates included.
func (c *Client) ListCart(ctx context.Context) ([]CartRow, error) {
	var env statusEnvelope
	if err := c.doJSON(ctx, http.MethodGet, pathCartList, nil, nil, nil, &env); err != nil {
		return nil, err
	}
	if err := env.check("list cart"); err != nil {
		return nil, err
	}
	rows := []CartRow{}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return rows, nil
	}
	if err := json.Unmarshal(env.Data, &rows); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode cart rows")
	}
	return rows, nil
}

// AddToCart adds quantity units of a product to the session cart.
func (c *Client) AddToCart(ctx context.Context, productID int64, quantity int) error {
	return c.postLine(ctx, pathCartAdd, "add to cart", lineRequest{ProductID: productID, Quantity: &quantity})
}

// SetQuantity writes an absolute quantity for a cart line.
func (c *Client) SetQuantity(ctx context.Context, productID int64, quantity int) error {
	return c.postLine(ctx, pathCartUpdate, "set quantity", lineRequest{ProductID: productID, Quantity: &quantity})
}

// RemoveLine deletes a cart line.
func (c *Client) RemoveLine(ctx context.Context, productID int64) error {
	return c.postLine(ctx, pathCartRemove, "remove cart line", lineRequest{ProductID: productID})
}

// ProductDetail fetches one catalog product.
func (c *Client) ProductDetail(ctx context.Context, productID int64) (*Product, error) {
	if productID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id must be positive")
	}
	var resp struct {
		ProductDetail *Product `json:"productDetail"`
	}
	if err := c.doJSON(ctx, http.MethodPost, pathProductDetail, nil, lineRequest{ProductID: productID}, nil, &resp); err != nil {
		return nil, err
	}
	if resp.ProductDetail == nil || resp.ProductDetail.ProductID == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return resp.ProductDetail, nil
}

// Session returns the authentication state and point balance of the current session.
func (c *Client) Session(ctx context.Context) (*Session, error) {
	var resp struct {
		Success  bool   `json:"success"`
		Nickname string `json:"nickname"`
		UserType string `json:"userType"`
		Point    int64  `json:"point"`
	}
	if err := c.doJSON(ctx, http.MethodGet, pathSessionCheck, nil, nil, nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return &Session{}, nil
	}
	return &Session{
		Authenticated: true,
		Nickname:      resp.Nickname,
		UserType:      resp.UserType,
		PointBalance:  resp.Point,
	}, nil
}

// Settle asks the backend to deduct points for the purchase. A server-reported failure is returned
// as a result with Success=false; only transport and decoding problems are errors.
func (c *Client) Settle(ctx context.Context, req SettlementRequest) (*SettlementResult, error) {
	query := url.Values{}
	query.Set("totalAmount", strconv.FormatInt(req.TotalAmount, 10))
	query.Set("purchaseType", req.PurchaseKind)
	query.Set("purchaseId", req.ReferenceID)

	headers := map[string]string{}
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		headers[idempotencyHeader] = key
	}

	httpReq, err := c.newRequest(ctx, http.MethodGet, pathSettlement, query, nil, headers)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute settlement request")
	}
	defer func() { _ = resp.Body.Close() }()

	var payload struct {
		Success   bool   `json:"success"`
		Message   string `json:"message"`
		UserPoint int64  `json:"userPoint"`
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, settlementBodyLimit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read settlement response")
	}
	decodeErr := json.Unmarshal(body, &payload)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if decodeErr == nil && strings.TrimSpace(payload.Message) != "" {
			return &SettlementResult{Success: false, Message: payload.Message}, nil
		}
		return nil, statusError(resp.StatusCode, body, "settlement request failed")
	}
	if decodeErr != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, decodeErr, "decode settlement response")
	}
	return &SettlementResult{
		Success:        payload.Success,
		Message:        payload.Message,
		UpdatedBalance: payload.UserPoint,
	}, nil
}

func (c *Client) postLine(ctx context.Context, path, action string, payload lineRequest) error {
	if payload.ProductID <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id must be positive")
	}
	var env statusEnvelope
	if err := c.doJSON(ctx, http.MethodPost, path, nil, payload, nil, &env); err != nil {
		return err
	}
	return env.check(action)
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, payload any, headers map[string]string, out any) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "backend client not configured")
	}
	httpReq, err := c.newRequest(ctx, method, path, query, payload, headers)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("execute %s %s", method, path))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return statusError(resp.StatusCode, msg, fmt.Sprintf("%s %s failed", method, path))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("decode %s response", path))
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, payload any, headers map[string]string) (*http.Request, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal backend request")
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build backend request")
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if sessionID := SessionIDFromContext(ctx); sessionID != "" {
		req.AddCookie(&http.Cookie{Name: c.sessionCookie, Value: sessionID})
	}
	return req, nil
}

func (e statusEnvelope) check(action string) error {
	if strings.EqualFold(strings.TrimSpace(e.Status), statusSuccess) {
		return nil
	}
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = action + " rejected"
	}
	return pkgerrors.New(pkgerrors.CodeDependency, msg).WithDetails(map[string]any{"action": action, "status": e.Status})
}

func statusError(status int, body []byte, message string) error {
	cause := fmt.Errorf("status %d: %s", status, strings.TrimSpace(string(body)))
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return pkgerrors.Wrap(pkgerrors.CodeUnauthorized, cause, "portal session rejected")
	case http.StatusNotFound:
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, cause, message)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, cause, message)
}
