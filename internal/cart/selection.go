package cart

// Selection is the set of product ids marked for checkout. It is not safe for concurrent
// use; Store guards it with its own mutex.
type Selection struct {
	ids map[int64]struct{}
}

func NewSelection(ids ...int64) *Selection {
	s := &Selection{ids: make(map[int64]struct{}, len(ids))}
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
	return s
}

func (s *Selection) Has(productID int64) bool {
	_, ok := s.ids[productID]
	return ok
}

func (s *Selection) Len() int {
	return len(s.ids)
}

func (s *Selection) add(productID int64) {
	s.ids[productID] = struct{}{}
}

func (s *Selection) remove(productID int64) {
	delete(s.ids, productID)
}

func (s *Selection) clear() {
	clear(s.ids)
}

// reset replaces the selection with every id of lines.
func (s *Selection) reset(lines []Line) {
	s.clear()
	for _, line := range lines {
		s.ids[line.ProductID] = struct{}{}
	}
}

// retain drops ids that no longer have a line.
func (s *Selection) retain(lines []Line) {
	live := make(map[int64]struct{}, len(lines))
	for _, line := range lines {
		live[line.ProductID] = struct{}{}
	}
	for id := range s.ids {
		if _, ok := live[id]; !ok {
			delete(s.ids, id)
		}
	}
}

// Total sums unitPrice*quantity over the selected lines.
func (s *Selection) Total(lines []Line) int64 {
	var total int64
	for _, line := range lines {
		if s.Has(line.ProductID) {
			total += line.Subtotal()
		}
	}
	return total
}

// QuantityTotal sums quantities over the selected lines.
func (s *Selection) QuantityTotal(lines []Line) int {
	total := 0
	for _, line := range lines {
		if s.Has(line.ProductID) {
			total += line.Quantity
		}
	}
	return total
}

// ordered returns the selected ids in the order lines appear.
func (s *Selection) ordered(lines []Line) []int64 {
	out := make([]int64, 0, len(s.ids))
	for _, line := range lines {
		if s.Has(line.ProductID) {
			out = append(out, line.ProductID)
		}
	}
	return out
}
