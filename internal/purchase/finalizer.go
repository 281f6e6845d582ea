package purchase

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fafportal/checkout/internal/backend"
	"github.com/fafportal/checkout/internal/checkout"
	pkgerrors "github.com/fafportal/checkout/pkg/errors"
	"github.com/fafportal/checkout/pkg/logger"
	"github.com/fafportal/checkout/pkg/metrics"
	pkgredis "github.com/fafportal/checkout/pkg/redis"
)

const (
	defaultIdempotencyTTL = 24 * time.Hour
	defaultLockTTL        = 30 * time.Second

	idempotencyScope = "settlement"
	fallbackMessage  = "payment could not be completed, please try again"

	recordInFlight = "in_flight"
	recordSettled  = "settled"

	outcomeSettled  = "settled"
	outcomeFailed   = "failed"
	outcomeReplayed = "replayed"
	outcomeRejected = "rejected"
)

// Backend is the settlement side of the portal contract.
type Backend interface {
	Session(ctx context.Context) (*backend.Session, error)
	Settle(ctx context.Context, req backend.SettlementRequest) (*backend.SettlementResult, error)
}

// CartDropper forgets a session's local cart after the backend cleared it.
type CartDropper interface {
	Drop(ctx context.Context, sessionID string) error
}

type FinalizerParams struct {
	Backend        Backend
	Records        pkgredis.IdempotencyStore
	Carts          CartDropper
	Logger         *logger.Logger
	Metrics        *metrics.SettlementMetrics
	IdempotencyTTL time.Duration
	LockTTL        time.Duration
	Language       string
}

// Finalizer commits purchases against the points ledger, at most once per idempotency key.
type Finalizer struct {
	backend        Backend
	records        pkgredis.IdempotencyStore
	carts          CartDropper
	logg           *logger.Logger
	metrics        *metrics.SettlementMetrics
	idempotencyTTL time.Duration
	lockTTL        time.Duration
	lang           string
	now            func() time.Time
}

func NewFinalizer(params FinalizerParams) (*Finalizer, error) {
	if params.Backend == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "settlement backend is required")
	}
	if params.Records == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "idempotency store is required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.New(logger.Options{ServiceName: "purchase", Output: io.Discard})
	}
	ttl := params.IdempotencyTTL
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	lockTTL := params.LockTTL
	if lockTTL <= 0 {
		lockTTL = defaultLockTTL
	}
	return &Finalizer{
		backend:        params.Backend,
		records:        params.Records,
		carts:          params.Carts,
		logg:           logg,
		metrics:        params.Metrics,
		idempotencyTTL: ttl,
		lockTTL:        lockTTL,
		lang:           params.Language,
		now:            time.Now,
	}, nil
}

// Input is one confirmed settlement request from the Purchase-Complete page.
type Input struct {
	Settlement     checkout.Settlement
	IdempotencyKey string
	SessionID      string
}

// Outcome is the result of Settle. Replayed is true when the receipt comes from an earlier
// attempt with the same key.
type Outcome struct {
	State    State
	Receipt  Receipt
	Replayed bool
}

type settlementRecord struct {
	State       string   `json:"state"`
	Fingerprint string   `json:"fingerprint"`
	Receipt     *Receipt `json:"receipt,omitempty"`
}

// Settle submits the purchase once. A repeated key returns the stored receipt without
// contacting the backend; a key still in flight is a conflict. Failures clear the key so
// the user can resubmit.
func (f *Finalizer) Settle(ctx context.Context, in Input) (*Outcome, error) {
	key := strings.TrimSpace(in.IdempotencyKey)
	if key == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required")
	}
	if !in.Settlement.Kind.Valid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown purchase kind")
	}

	kind := string(in.Settlement.Kind)
	ctx = f.logg.WithFields(ctx, map[string]any{
		"purchase_kind":   kind,
		"reference_id":    in.Settlement.ReferenceID,
		"idempotency_key": key,
	})
	recordKey := f.records.IdempotencyKey(idempotencyScope, pkgredis.HashID(in.SessionID)+"|"+key)
	fingerprint := fingerprintOf(in.Settlement)

	if outcome, err := f.lookup(ctx, recordKey, fingerprint); outcome != nil || err != nil {
		if outcome != nil {
			f.metrics.IncOutcome(kind, outcomeReplayed)
		}
		return outcome, err
	}

	marker, err := json.Marshal(settlementRecord{State: recordInFlight, Fingerprint: fingerprint})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode settlement marker")
	}
	acquired, err := f.records.SetNX(ctx, recordKey, string(marker), f.lockTTL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire settlement marker")
	}
	if !acquired {
		outcome, err := f.lookup(ctx, recordKey, fingerprint)
		if outcome != nil {
			f.metrics.IncOutcome(kind, outcomeReplayed)
			return outcome, nil
		}
		if err != nil {
			return nil, err
		}
		return nil, inFlightConflict()
	}

	// The attempt must finish even if the caller goes away.
	ctx = context.WithoutCancel(ctx)
	attempt := NewAttempt()
	if err := attempt.Submit(); err != nil {
		return nil, err
	}

	if err := f.recheckBalance(ctx, in.Settlement); err != nil {
		_ = attempt.Fail()
		f.release(ctx, recordKey)
		f.metrics.IncOutcome(kind, outcomeRejected)
		return nil, err
	}

	start := f.now()
	result, err := f.backend.Settle(ctx, backend.SettlementRequest{
		TotalAmount:    in.Settlement.TotalAmount,
		PurchaseKind:   kind,
		ReferenceID:    in.Settlement.ReferenceID,
		IdempotencyKey: key,
	})
	f.metrics.ObserveDuration(kind, f.now().Sub(start))

	if err != nil || result == nil || !result.Success {
		_ = attempt.Fail()
		f.release(ctx, recordKey)
		f.metrics.IncOutcome(kind, outcomeFailed)
		failure := settlementFailure(result, err)
		f.logg.Error(ctx, "purchase.settle.failed", failure)
		return nil, failure
	}

	if err := attempt.Succeed(); err != nil {
		return nil, err
	}
	settledAt := f.now()
	receipt := Receipt{
		OrderNumber:      orderNumber(settledAt),
		TotalAmount:      in.Settlement.TotalAmount,
		PurchaseKind:     in.Settlement.Kind,
		ReferenceID:      in.Settlement.ReferenceID,
		SettledAt:        settledAt,
		RemainingBalance: result.UpdatedBalance,
		IdempotencyKey:   key,
		Message:          result.Message,
	}
	f.metrics.IncOutcome(kind, outcomeSettled)
	f.remember(ctx, recordKey, fingerprint, receipt)

	if in.Settlement.Kind == checkout.KindCart && f.carts != nil && in.SessionID != "" {
		if err := f.carts.Drop(ctx, in.SessionID); err != nil {
			f.logg.Warn(ctx, "purchase.settle.cart_drop_failed")
		}
	}

	f.logg.Info(f.logg.WithField(ctx, "order_number", receipt.OrderNumber), "purchase.settle.completed")
	return &Outcome{State: attempt.State(), Receipt: receipt}, nil
}

func (f *Finalizer) lookup(ctx context.Context, recordKey, fingerprint string) (*Outcome, error) {
	stored, err := f.records.Get(ctx, recordKey)
	if err != nil && !pkgredis.IsNil(err) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check settlement record")
	}
	if stored == "" {
		return nil, nil
	}

	var record settlementRecord
	if err := json.Unmarshal([]byte(stored), &record); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode settlement record")
	}
	if record.Fingerprint != fingerprint {
		return nil, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with a different purchase")
	}
	if record.State == recordSettled && record.Receipt != nil {
		return &Outcome{State: StateSettled, Receipt: *record.Receipt, Replayed: true}, nil
	}
	return nil, inFlightConflict()
}

func (f *Finalizer) recheckBalance(ctx context.Context, s checkout.Settlement) error {
	session, err := f.backend.Session(ctx)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check point balance")
	}
	if !session.Authenticated {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "log in to purchase")
	}
	intent := checkout.Intent{Kind: s.Kind, ReferenceID: s.ReferenceID, TotalAmount: s.TotalAmount}
	balance := checkout.Balance{Available: session.PointBalance}
	decision := checkout.Evaluate(intent, balance, f.lang)
	if decision.Allowed {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict, decision.Message).WithDetails(map[string]any{
		"available": balance.Available,
		"required":  s.TotalAmount,
		"shortfall": decision.Shortfall,
	})
}

func (f *Finalizer) remember(ctx context.Context, recordKey, fingerprint string, receipt Receipt) {
	payload, err := json.Marshal(settlementRecord{State: recordSettled, Fingerprint: fingerprint, Receipt: &receipt})
	if err != nil {
		f.logg.Error(ctx, "purchase.settle.encode_record_failed", err)
		return
	}
	if err := f.records.Set(ctx, recordKey, string(payload), f.idempotencyTTL); err != nil {
		f.logg.Error(ctx, "purchase.settle.persist_record_failed", err)
	}
}

func (f *Finalizer) release(ctx context.Context, recordKey string) {
	if err := f.records.Del(ctx, recordKey); err != nil {
		f.logg.Error(ctx, "purchase.settle.release_marker_failed", err)
	}
}

func settlementFailure(result *backend.SettlementResult, err error) error {
	message := fallbackMessage
	if result != nil && strings.TrimSpace(result.Message) != "" {
		message = result.Message
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeSettlement, err, message)
	}
	return pkgerrors.New(pkgerrors.CodeSettlement, message)
}

func inFlightConflict() error {
	return pkgerrors.New(pkgerrors.CodeConflict, "settlement already in progress")
}

func fingerprintOf(s checkout.Settlement) string {
	return fmt.Sprintf("%s|%s|%d", s.Kind, s.ReferenceID, s.TotalAmount)
}
