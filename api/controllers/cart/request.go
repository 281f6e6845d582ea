package cart

// AddItemRequest is the Product Detail "add to cart" body. Quantity defaults to 1.
type AddItemRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"omitempty,min=1,max=99"`
}

func (r AddItemRequest) quantity() int {
	if r.Quantity < 1 {
		return 1
	}
	return r.Quantity
}
