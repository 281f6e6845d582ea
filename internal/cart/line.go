package cart

import "github.com/fafportal/checkout/internal/backend"

// Status is the sync state of a line against the backend cart.
type Status string

const (
	StatusSynced  Status = "synced"
	StatusPending Status = "pending"
	StatusError   Status = "error"
)

// Line is one product entry of the cart. At most one line exists per product id.
type Line struct {
	ProductID int64
	Quantity  int
	UnitPrice int64
	Title     string
	Author    string
	Publisher string
	CoverRef  string
	Status    Status
	Version   uint64
}

func (l Line) Subtotal() int64 {
	return l.UnitPrice * int64(l.Quantity)
}

// MergeRows collapses duplicate product rows into one line each, in first-seen order.
// The first row's metadata wins and quantities accumulate.
func MergeRows(rows []backend.CartRow) []Line {
	lines := make([]Line, 0, len(rows))
	index := make(map[int64]int, len(rows))
	for _, row := range rows {
		if row.ProductID <= 0 {
			continue
		}
		if i, ok := index[row.ProductID]; ok {
			lines[i].Quantity += row.Quantity
			continue
		}
		index[row.ProductID] = len(lines)
		lines = append(lines, Line{
			ProductID: row.ProductID,
			Quantity:  row.Quantity,
			UnitPrice: row.UnitPrice,
			Title:     row.Title,
			Author:    row.Author,
			Publisher: row.Publisher,
			CoverRef:  row.CoverRef,
			Status:    StatusSynced,
		})
	}
	for i := range lines {
		if lines[i].Quantity < 1 {
			lines[i].Quantity = 1
		}
	}
	return lines
}

// Snapshot is an immutable view of a store at one point in time.
type Snapshot struct {
	Lines         []Line
	Selected      []int64
	Total         int64
	QuantityTotal int
}

// AllSelected reports whether every line is selected. An empty cart is never fully selected.
func (s Snapshot) AllSelected() bool {
	return len(s.Lines) > 0 && len(s.Selected) == len(s.Lines)
}

func (s Snapshot) IsSelected(productID int64) bool {
	for _, id := range s.Selected {
		if id == productID {
			return true
		}
	}
	return false
}

// SelectedLines returns the selected lines in cart order.
func (s Snapshot) SelectedLines() []Line {
	out := make([]Line, 0, len(s.Selected))
	for _, line := range s.Lines {
		if s.IsSelected(line.ProductID) {
			out = append(out, line)
		}
	}
	return out
}
