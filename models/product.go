package models

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Variant is a purchasable (size, color) configuration of a product with its
// own price, discount and stock. An empty size or color means the variant does
// not carry that dimension.
type Variant struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Size          string             `bson:"size,omitempty" json:"size,omitempty"`
	Color         string             `bson:"color,omitempty" json:"color,omitempty"`
	Price         float64            `bson:"price" json:"price"`
	OriginalPrice float64            `bson:"originalPrice" json:"originalPrice"`
	Discount      int                `bson:"discount" json:"discount"`
	Stock         int                `bson:"stock" json:"stock"`
	SKU           string             `bson:"sku,omitempty" json:"sku,omitempty"`
	IsActive      bool               `bson:"isActive" json:"isActive"`
}

type Image struct {
	URL   string `bson:"url" json:"url"`
	Alt   string `bson:"alt,omitempty" json:"alt,omitempty"`
	Color string `bson:"color,omitempty" json:"color,omitempty"`
}

type Review struct {
	User      primitive.ObjectID `bson:"user" json:"user"`
	Name      string             `bson:"name" json:"name"`
	Rating    int                `bson:"rating" json:"rating"`
	Comment   string             `bson:"comment" json:"comment"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
}

type Product struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name          string             `bson:"name" json:"name"`
	Description   string             `bson:"description" json:"description"`
	Price         float64            `bson:"price" json:"price"`
	OriginalPrice float64            `bson:"originalPrice" json:"originalPrice"`
	Discount      int                `bson:"discount" json:"discount"`
	Category      primitive.ObjectID `bson:"category,omitempty" json:"category,omitempty"`
	Variants      []Variant          `bson:"variants,omitempty" json:"variants,omitempty"`
	Images        []Image            `bson:"images,omitempty" json:"images,omitempty"`
	Stock         int                `bson:"stock" json:"stock"`
	Rating        float64            `bson:"rating" json:"rating"`
	NumReviews    int                `bson:"numReviews" json:"numReviews"`
	Reviews       []Review           `bson:"reviews,omitempty" json:"reviews,omitempty"`
	Tags          []string           `bson:"tags,omitempty" json:"tags,omitempty"`
	IsFeatured    bool               `bson:"isFeatured" json:"isFeatured"`
	IsActive      bool               `bson:"isActive" json:"isActive"`
	CreatedAt     time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// VariantSelector names a requested (size, color) pair. An empty field matches
// a variant that does not carry that dimension.
type VariantSelector struct {
	Size  string
	Color string
}

// ResolveVariant returns the variant matching the selector, or nil when the
// product has no variants or nothing matches. A nil result means the base
// product fields apply.
func (p *Product) ResolveVariant(sel VariantSelector) *Variant {
	for i := range p.Variants {
		v := &p.Variants[i]
		if v.Size == sel.Size && v.Color == sel.Color {
			return v
		}
	}
	return nil
}

// ActiveVariant returns the first variant flagged active, else the first
// variant in declaration order, else nil.
func (p *Product) ActiveVariant() *Variant {
	for i := range p.Variants {
		if p.Variants[i].IsActive {
			return &p.Variants[i]
		}
	}
	if len(p.Variants) > 0 {
		return &p.Variants[0]
	}
	return nil
}

// EffectivePrice is the unit price for a resolved variant, falling back to the
// base product when v is nil.
func (p *Product) EffectivePrice(v *Variant) float64 {
	if v != nil {
		return v.Price
	}
	return p.Price
}

func (p *Product) EffectiveOriginalPrice(v *Variant) float64 {
	if v != nil {
		return v.OriginalPrice
	}
	return p.OriginalPrice
}

func (p *Product) EffectiveDiscount(v *Variant) int {
	if v != nil {
		return v.Discount
	}
	return p.Discount
}

func (p *Product) EffectiveStock(v *Variant) int {
	if v != nil {
		return v.Stock
	}
	return p.Stock
}

// SyncFromVariants copies the active variant's price fields onto the base
// product and sets the base stock to the sum of every variant's stock. It is
// a no-op for a product without variants, and idempotent. Every write path
// must call this before persisting so the denormalized base fields cannot
// drift from the variant list.
func (p *Product) SyncFromVariants() {
	active := p.ActiveVariant()
	if active == nil {
		return
	}
	p.Price = active.Price
	p.OriginalPrice = active.OriginalPrice
	p.Discount = active.Discount

	total := 0
	for i := range p.Variants {
		total += p.Variants[i].Stock
	}
	p.Stock = total
}

// AddReview appends a review, rejecting a second review from the same user,
// and recomputes the numReviews/rating aggregates.
func (p *Product) AddReview(r Review) error {
	if r.Rating < 1 || r.Rating > 5 {
		return &ValidationError{Field: "rating", Message: "must be between 1 and 5"}
	}
	for i := range p.Reviews {
		if p.Reviews[i].User == r.User {
			return ErrDuplicateReview
		}
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	p.Reviews = append(p.Reviews, r)

	sum := 0
	for i := range p.Reviews {
		sum += p.Reviews[i].Rating
	}
	p.NumReviews = len(p.Reviews)
	p.Rating = float64(sum) / float64(len(p.Reviews))
	return nil
}

// Validate checks the product and its variants before a write. Duplicate
// (size, color) pairs are rejected here because the store carries no
// uniqueness index for subdocuments.
func (p *Product) Validate() error {
	if p.Name == "" {
		return &ValidationError{Field: "name", Message: "is required"}
	}
	if p.Price < 0 {
		return &ValidationError{Field: "price", Message: "must not be negative"}
	}
	if p.Discount < 0 || p.Discount > 100 {
		return &ValidationError{Field: "discount", Message: "must be between 0 and 100"}
	}
	if p.Stock < 0 {
		return &ValidationError{Field: "stock", Message: "must not be negative"}
	}
	seen := make(map[VariantSelector]bool, len(p.Variants))
	for i := range p.Variants {
		v := &p.Variants[i]
		if v.Price < 0 {
			return &ValidationError{Field: fmt.Sprintf("variants[%d].price", i), Message: "must not be negative"}
		}
		if v.Discount < 0 || v.Discount > 100 {
			return &ValidationError{Field: fmt.Sprintf("variants[%d].discount", i), Message: "must be between 0 and 100"}
		}
		if v.Stock < 0 {
			return &ValidationError{Field: fmt.Sprintf("variants[%d].stock", i), Message: "must not be negative"}
		}
		key := VariantSelector{Size: v.Size, Color: v.Color}
		if seen[key] {
			return &ValidationError{Field: fmt.Sprintf("variants[%d]", i), Message: "duplicate size/color combination"}
		}
		seen[key] = true
	}
	return nil
}
