package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CartItem is one line in a cart, bound to a (product, size, color) triple.
// Price is the unit-price snapshot captured when the line was added; it is a
// pointer so a free item's 0 stays distinct from a line written before
// snapshots existed. The populated ProductData field is filled in for
// responses and never persisted.
type CartItem struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ProductID   primitive.ObjectID `bson:"product" json:"productId"`
	Quantity    int                `bson:"quantity" json:"quantity"`
	Size        string             `bson:"size,omitempty" json:"size,omitempty"`
	Color       string             `bson:"color,omitempty" json:"color,omitempty"`
	Price       *float64           `bson:"price,omitempty" json:"price,omitempty"`
	ProductData *Product           `bson:"-" json:"product,omitempty"`
}

// Cart holds one user's line items. There is at most one cart document per
// user; it is created implicitly on the first add.
type Cart struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID    primitive.ObjectID `bson:"user" json:"user"`
	Items     []CartItem         `bson:"items" json:"items"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// NewCart returns an empty cart for the user. Items is non-nil so an empty
// cart serializes as {"items": []}.
func NewCart(userID primitive.ObjectID) *Cart {
	now := time.Now()
	return &Cart{UserID: userID, Items: []CartItem{}, CreatedAt: now, UpdatedAt: now}
}

// findItem returns the index of the line matching the (product, size, color)
// triple, or -1.
func (c *Cart) findItem(productID primitive.ObjectID, sel VariantSelector) int {
	for i := range c.Items {
		it := &c.Items[i]
		if it.ProductID == productID && it.Size == sel.Size && it.Color == sel.Color {
			return i
		}
	}
	return -1
}

// ItemByID returns the line item with the given subdocument id, or nil.
func (c *Cart) ItemByID(itemID primitive.ObjectID) *CartItem {
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			return &c.Items[i]
		}
	}
	return nil
}

// AddItem applies the add rule against live product data: the stock check
// always considers the post-add total for the (product, size, color) triple,
// and an already-present triple has its quantity incremented and its price
// snapshot refreshed rather than gaining a duplicate line. The cart is left
// untouched on rejection.
func (c *Cart) AddItem(product *Product, quantity int, sel VariantSelector) error {
	if quantity < 1 {
		return &ValidationError{Field: "quantity", Message: "must be at least 1"}
	}

	variant := product.ResolveVariant(sel)
	available := product.EffectiveStock(variant)
	price := product.EffectivePrice(variant)

	if idx := c.findItem(product.ID, sel); idx > -1 {
		newQuantity := c.Items[idx].Quantity + quantity
		if available < newQuantity {
			return &InsufficientStockError{ProductID: product.ID.Hex(), Requested: newQuantity, Available: available}
		}
		c.Items[idx].Quantity = newQuantity
		c.Items[idx].Price = &price
		return nil
	}

	if available < quantity {
		return &InsufficientStockError{ProductID: product.ID.Hex(), Requested: quantity, Available: available}
	}
	c.Items = append(c.Items, CartItem{
		ID:        primitive.NewObjectID(),
		ProductID: product.ID,
		Quantity:  quantity,
		Size:      sel.Size,
		Color:     sel.Color,
		Price:     &price,
	})
	return nil
}

// UpdateItemQuantity sets an existing line to an absolute quantity after
// re-checking stock for that line's variant. Quantity zero is not a removal
// here; callers must use RemoveItem for that.
func (c *Cart) UpdateItemQuantity(itemID primitive.ObjectID, quantity int, product *Product) error {
	if quantity < 1 {
		return &ValidationError{Field: "quantity", Message: "must be at least 1"}
	}
	item := c.ItemByID(itemID)
	if item == nil {
		return ErrNotFound
	}

	variant := product.ResolveVariant(VariantSelector{Size: item.Size, Color: item.Color})
	available := product.EffectiveStock(variant)
	if available < quantity {
		return &InsufficientStockError{ProductID: product.ID.Hex(), Requested: quantity, Available: available}
	}
	item.Quantity = quantity
	return nil
}

// RemoveItem drops the line with the given id. Removing an absent id is a
// no-op, not an error.
func (c *Cart) RemoveItem(itemID primitive.ObjectID) {
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return
		}
	}
}

// Clear drops every line.
func (c *Cart) Clear() {
	c.Items = []CartItem{}
}

// Total sums price × quantity over all lines, using the stored snapshot and
// falling back to the populated product's live price only when a line carries
// no snapshot at all.
func (c *Cart) Total() float64 {
	total := 0.0
	for i := range c.Items {
		it := &c.Items[i]
		var price float64
		switch {
		case it.Price != nil:
			price = *it.Price
		case it.ProductData != nil:
			v := it.ProductData.ResolveVariant(VariantSelector{Size: it.Size, Color: it.Color})
			price = it.ProductData.EffectivePrice(v)
		}
		total += price * float64(it.Quantity)
	}
	return total
}

// Count sums quantities over all lines.
func (c *Cart) Count() int {
	count := 0
	for i := range c.Items {
		count += c.Items[i].Quantity
	}
	return count
}
