package cart

import (
	"context"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/fafportal/checkout/internal/backend"
	pkgerrors "github.com/fafportal/checkout/pkg/errors"
	"github.com/fafportal/checkout/pkg/logger"
	"github.com/fafportal/checkout/pkg/metrics"
	"golang.org/x/sync/singleflight"
)

const (
	defaultWriteTimeout = 10 * time.Second

	opSetQuantity = "set_quantity"
	opRemove      = "remove"
	opAdd         = "add"

	reconcileRefetch = "refetch"
	reconcileRevert  = "revert"
)

// Backend is the slice of the portal cart contract the store depends on.
type Backend interface {
	ListCart(ctx context.Context) ([]backend.CartRow, error)
	AddToCart(ctx context.Context, productID int64, quantity int) error
	SetQuantity(ctx context.Context, productID int64, quantity int) error
	RemoveLine(ctx context.Context, productID int64) error
}

// StoreOptions configures a Store.
type StoreOptions struct {
	Backend      Backend
	Logger       *logger.Logger
	Metrics      *metrics.CartWriteMetrics
	WriteTimeout time.Duration
}

// Store is the local view of one session's cart. Reads are served from memory; quantity and
// delete writes are applied optimistically and sent to the backend on per-product lanes.
type Store struct {
	backend      Backend
	logg         *logger.Logger
	metrics      *metrics.CartWriteMetrics
	writeTimeout time.Duration

	mu        sync.Mutex
	lines     []Line
	selection *Selection
	seq       uint64
	lastUsed  time.Time
	// confirmed is the last quantity the backend acknowledged per product.
	confirmed map[int64]int
	// removals maps a locally removed product to the seq of its removal.
	removals map[int64]uint64

	lanes *writeLanes
	loads singleflight.Group
	now   func() time.Time
}

func NewStore(opts StoreOptions) (*Store, error) {
	if opts.Backend == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "cart backend is required")
	}
	logg := opts.Logger
	if logg == nil {
		logg = logger.New(logger.Options{ServiceName: "cart", Output: io.Discard})
	}
	timeout := opts.WriteTimeout
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}
	return &Store{
		backend:      opts.Backend,
		logg:         logg,
		metrics:      opts.Metrics,
		writeTimeout: timeout,
		selection:    NewSelection(),
		confirmed:    make(map[int64]int),
		removals:     make(map[int64]uint64),
		lanes:        newWriteLanes(),
		now:          time.Now,
		lastUsed:     time.Now(),
	}, nil
}

// Load refetches the cart, merges duplicate rows and selects every line. Pending writes are
// drained first so the listing reflects them. A failed fetch leaves an empty cart apart from
// lines changed while the fetch was in flight.
func (s *Store) Load(ctx context.Context) Snapshot {
	s.touch()
	_, _, _ = s.loads.Do("load", func() (any, error) {
		s.mu.Lock()
		base := s.seq
		s.mu.Unlock()

		if err := s.lanes.wait(ctx); err != nil {
			s.logg.Warn(ctx, "cart.load.flush_interrupted")
		}

		rows, err := s.backend.ListCart(ctx)
		if err != nil {
			s.logg.Error(ctx, "cart.load.failed", err)
			rows = nil
		}
		listed := MergeRows(rows)

		s.mu.Lock()
		s.lines = s.mergeLocked(listed, base)
		s.selection.reset(s.lines)
		s.mu.Unlock()
		return nil, nil
	})
	return s.Snapshot()
}

// mergeLocked replaces the local lines with a listing requested once seq was base. Lines
// changed after base keep their local state and lines removed after base stay removed.
func (s *Store) mergeLocked(listed []Line, base uint64) []Line {
	newer := make(map[int64]Line)
	for _, line := range s.lines {
		if line.Version > base {
			newer[line.ProductID] = line
		}
	}

	confirmed := make(map[int64]int, len(listed))
	out := make([]Line, 0, len(listed)+len(newer))
	keep := func(line Line) {
		if q, ok := s.confirmed[line.ProductID]; ok {
			confirmed[line.ProductID] = q
		}
		out = append(out, line)
		delete(newer, line.ProductID)
	}
	for _, line := range listed {
		if seq, ok := s.removals[line.ProductID]; ok && seq > base {
			confirmed[line.ProductID] = line.Quantity
			if q, ok := s.confirmed[line.ProductID]; ok {
				confirmed[line.ProductID] = q
			}
			continue
		}
		if local, ok := newer[line.ProductID]; ok {
			keep(local)
			continue
		}
		s.seq++
		line.Version = s.seq
		confirmed[line.ProductID] = line.Quantity
		out = append(out, line)
	}
	for _, line := range s.lines {
		if _, ok := newer[line.ProductID]; ok {
			keep(line)
		}
	}
	s.confirmed = confirmed

	for id, seq := range s.removals {
		if seq <= base {
			delete(s.removals, id)
		}
	}
	return out
}

// Add puts quantity units of a product into the backend cart. The local view is unchanged
// until the next Load.
func (s *Store) Add(ctx context.Context, productID int64, quantity int) error {
	s.touch()
	if productID <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id must be positive")
	}
	if quantity < 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	err := s.backend.AddToCart(ctx, productID, quantity)
	s.metrics.ObserveWrite(opAdd, err)
	if err != nil {
		s.logg.Error(s.logg.WithProductID(ctx, productID), "cart.add.failed", err)
		return err
	}
	return nil
}

// Increment raises a line's quantity by one.
func (s *Store) Increment(ctx context.Context, productID int64) (Line, error) {
	return s.adjust(ctx, productID, 1)
}

// Decrement lowers a line's quantity by one. At quantity 1 it is a no-op.
func (s *Store) Decrement(ctx context.Context, productID int64) (Line, error) {
	return s.adjust(ctx, productID, -1)
}

func (s *Store) adjust(ctx context.Context, productID int64, delta int) (Line, error) {
	s.touch()
	s.mu.Lock()
	idx := s.indexLocked(productID)
	if idx < 0 {
		s.mu.Unlock()
		return Line{}, lineNotFound(productID)
	}
	line := &s.lines[idx]
	next := line.Quantity + delta
	if next < 1 {
		next = 1
	}
	if next == line.Quantity {
		out := *line
		s.mu.Unlock()
		return out, nil
	}
	s.seq++
	line.Quantity = next
	line.Version = s.seq
	line.Status = StatusPending
	out := *line
	s.mu.Unlock()

	writeCtx := s.logg.WithProductID(context.WithoutCancel(ctx), productID)
	version := out.Version
	if s.lanes.submit(productID, func() { s.writeQuantity(writeCtx, productID, next, version) }) {
		s.metrics.IncCoalesced()
	}
	return out, nil
}

// Remove drops a line and its selection immediately, then deletes it on the backend. A failed
// delete puts the line back at its old position with status error and the last quantity the
// backend confirmed.
func (s *Store) Remove(ctx context.Context, productID int64) error {
	s.touch()
	s.mu.Lock()
	idx := s.indexLocked(productID)
	if idx < 0 {
		s.mu.Unlock()
		return lineNotFound(productID)
	}
	removed := s.lines[idx]
	wasSelected := s.selection.Has(productID)
	s.lines = slices.Delete(s.lines, idx, idx+1)
	s.selection.remove(productID)
	s.seq++
	removal := s.seq
	s.removals[productID] = removal
	s.mu.Unlock()

	writeCtx := s.logg.WithProductID(context.WithoutCancel(ctx), productID)
	if s.lanes.submit(productID, func() { s.writeRemove(writeCtx, removed, idx, wasSelected, removal) }) {
		s.metrics.IncCoalesced()
	}
	return nil
}

// Toggle flips the selection of a line and reports whether it is now selected. Unknown ids
// are ignored.
func (s *Store) Toggle(productID int64) bool {
	s.touch()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexLocked(productID) < 0 {
		return false
	}
	if s.selection.Has(productID) {
		s.selection.remove(productID)
		return false
	}
	s.selection.add(productID)
	return true
}

// ToggleAll clears the selection when every line is selected, otherwise selects all lines.
func (s *Store) ToggleAll() {
	s.touch()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selection.Len() == len(s.lines) {
		s.selection.clear()
		return
	}
	s.selection.reset(s.lines)
}

func (s *Store) Total() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection.Total(s.lines)
}

func (s *Store) QuantityTotal() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection.QuantityTotal(s.lines)
}

// Flush waits until every queued backend write has completed.
func (s *Store) Flush(ctx context.Context) error {
	return s.lanes.wait(ctx)
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Lines:         slices.Clone(s.lines),
		Selected:      s.selection.ordered(s.lines),
		Total:         s.selection.Total(s.lines),
		QuantityTotal: s.selection.QuantityTotal(s.lines),
	}
}

// LastUsed returns the time of the most recent operation on the store.
func (s *Store) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

func (s *Store) writeQuantity(ctx context.Context, productID int64, quantity int, version uint64) {
	ctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()

	err := s.backend.SetQuantity(ctx, productID, quantity)
	s.metrics.ObserveWrite(opSetQuantity, err)

	s.mu.Lock()
	if err == nil {
		s.confirmed[productID] = quantity
	}
	idx := s.indexLocked(productID)
	current := idx >= 0 && s.lines[idx].Version == version
	if current {
		if err == nil {
			s.lines[idx].Status = StatusSynced
		} else {
			s.lines[idx].Status = StatusError
		}
	}
	s.mu.Unlock()

	if err == nil || !current {
		return
	}
	s.logg.Error(ctx, "cart.set_quantity.failed", err)
	s.reconcileQuantity(ctx, productID, version)
}

// reconcileQuantity adopts the backend quantity for a line whose write failed.
func (s *Store) reconcileQuantity(ctx context.Context, productID int64, version uint64) {
	s.metrics.IncReconcile(reconcileRefetch)
	rows, err := s.backend.ListCart(ctx)
	if err != nil {
		s.logg.Error(ctx, "cart.reconcile.refetch_failed", err)
		return
	}

	var server *Line
	for _, line := range MergeRows(rows) {
		if line.ProductID == productID {
			server = &line
			break
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexLocked(productID)
	if idx < 0 || s.lines[idx].Version != version {
		return
	}
	if server == nil {
		s.lines = slices.Delete(s.lines, idx, idx+1)
		s.selection.remove(productID)
		return
	}
	s.seq++
	s.confirmed[productID] = server.Quantity
	s.lines[idx].Quantity = server.Quantity
	s.lines[idx].Version = s.seq
	s.lines[idx].Status = StatusSynced
}

func (s *Store) writeRemove(ctx context.Context, removed Line, idx int, wasSelected bool, removal uint64) {
	ctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()

	err := s.backend.RemoveLine(ctx, removed.ProductID)
	s.metrics.ObserveWrite(opRemove, err)
	if err == nil {
		return
	}
	s.logg.Error(ctx, "cart.remove.failed", err)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removals[removed.ProductID] != removal || s.indexLocked(removed.ProductID) >= 0 {
		return
	}
	delete(s.removals, removed.ProductID)
	s.metrics.IncReconcile(reconcileRevert)
	s.seq++
	if q, ok := s.confirmed[removed.ProductID]; ok {
		removed.Quantity = q
	}
	removed.Version = s.seq
	removed.Status = StatusError
	if idx > len(s.lines) {
		idx = len(s.lines)
	}
	s.lines = slices.Insert(s.lines, idx, removed)
	if wasSelected {
		s.selection.add(removed.ProductID)
	}
}

func (s *Store) indexLocked(productID int64) int {
	for i := range s.lines {
		if s.lines[i].ProductID == productID {
			return i
		}
	}
	return -1
}

func (s *Store) touch() {
	now := s.now()
	s.mu.Lock()
	s.lastUsed = now
	s.mu.Unlock()
}

func lineNotFound(productID int64) error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "cart line not found").
		WithDetails(map[string]any{"product_id": productID})
}
