package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/craftsmandu/storefront-backend-go/database"
	"github.com/craftsmandu/storefront-backend-go/metrics"
	"github.com/craftsmandu/storefront-backend-go/models"
)

type cartItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	Size      string `json:"size,omitempty"`
	Color     string `json:"color,omitempty"`
}

type mergeCartRequest struct {
	Items []cartItemRequest `json:"items"`
}

// loadCart fetches the user's cart, returning nil (no error) when none exists.
func loadCart(ctx context.Context, userID primitive.ObjectID) (*models.Cart, error) {
	var cart models.Cart
	err := database.DB.Collection("carts").FindOne(ctx, bson.M{"user": userID}).Decode(&cart)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &cart, nil
}

// saveCart writes the whole cart document back, creating it on first write.
// Cart documents race last-write-wins; there is no version token.
func saveCart(ctx context.Context, cart *models.Cart) error {
	cart.UpdatedAt = time.Now()
	_, err := database.DB.Collection("carts").ReplaceOne(
		ctx,
		bson.M{"user": cart.UserID},
		cart,
		options.Replace().SetUpsert(true),
	)
	return err
}

func fetchProduct(ctx context.Context, id primitive.ObjectID) (*models.Product, error) {
	var product models.Product
	err := database.DB.Collection("products").FindOne(ctx, bson.M{"_id": id}).Decode(&product)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &product, nil
}

// populateCart attaches product documents to each line for the response, the
// way the cart was served to the storefront with items.product populated.
func populateCart(ctx context.Context, cart *models.Cart) {
	ids := make([]primitive.ObjectID, 0, len(cart.Items))
	for i := range cart.Items {
		ids = append(ids, cart.Items[i].ProductID)
	}
	if len(ids) == 0 {
		return
	}

	cursor, err := database.DB.Collection("products").Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		log.Println("cart: failed to populate products:", err)
		return
	}
	defer cursor.Close(ctx)

	byID := make(map[primitive.ObjectID]*models.Product, len(ids))
	for cursor.Next(ctx) {
		var product models.Product
		if err := cursor.Decode(&product); err != nil {
			continue
		}
		p := product
		byID[p.ID] = &p
	}
	for i := range cart.Items {
		cart.Items[i].ProductData = byID[cart.Items[i].ProductID]
	}
}

func cartErrorResponse(c echo.Context, operation string, err error) error {
	var stockErr *models.InsufficientStockError
	var valErr *models.ValidationError
	switch {
	case errors.As(err, &stockErr):
		metrics.CartMutations.WithLabelValues(operation, "rejected").Inc()
		metrics.StockRejections.Inc()
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Insufficient stock"})
	case errors.As(err, &valErr):
		metrics.CartMutations.WithLabelValues(operation, "rejected").Inc()
		return c.JSON(http.StatusBadRequest, map[string]string{"error": valErr.Error()})
	case errors.Is(err, models.ErrNotFound):
		metrics.CartMutations.WithLabelValues(operation, "rejected").Inc()
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Not found"})
	default:
		metrics.CartMutations.WithLabelValues(operation, "error").Inc()
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

// GetCart returns the user's cart, or an empty cart when none exists yet.
func GetCart(c echo.Context) error {
	userID := c.Get("userID").(primitive.ObjectID)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	cart, err := loadCart(ctx, userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to fetch cart"})
	}
	if cart == nil {
		cart = models.NewCart(userID)
	}

	populateCart(ctx, cart)
	return c.JSON(http.StatusOK, cart)
}

// AddToCart adds a (product, size, color) line or increments an existing one,
// validating stock against the post-add total.
func AddToCart(c echo.Context) error {
	userID := c.Get("userID").(primitive.ObjectID)

	var req cartItemRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	productID, err := primitive.ObjectIDFromHex(req.ProductID)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid product ID"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	product, err := fetchProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "Product not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to fetch product"})
	}

	cart, err := loadCart(ctx, userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to fetch cart"})
	}
	if cart == nil {
		cart = models.NewCart(userID)
	}

	sel := models.VariantSelector{Size: req.Size, Color: req.Color}
	if err := cart.AddItem(product, req.Quantity, sel); err != nil {
		return cartErrorResponse(c, "add", err)
	}

	if err := saveCart(ctx, cart); err != nil {
		return cartErrorResponse(c, "add", err)
	}

	metrics.CartMutations.WithLabelValues("add", "ok").Inc()
	populateCart(ctx, cart)
	return c.JSON(http.StatusOK, cart)
}

// MergeCart folds a guest cart into the user's existing server cart. Each
// entry goes through the same per-triple add rule; entries whose product is
// gone or whose stock cannot cover the combined quantity are skipped so one
// stale guest line cannot sink the whole merge. A database failure while
// looking a product up is not a stale line and fails the request, since the
// client discards its guest copy on a reported success.
func MergeCart(c echo.Context) error {
	userID := c.Get("userID").(primitive.ObjectID)

	var req mergeCartRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	cart, err := loadCart(ctx, userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to fetch cart"})
	}
	if cart == nil {
		cart = models.NewCart(userID)
	}

	for _, item := range req.Items {
		productID, err := primitive.ObjectIDFromHex(item.ProductID)
		if err != nil {
			continue
		}
		quantity := item.Quantity
		if quantity == 0 {
			quantity = 1
		}
		product, err := fetchProduct(ctx, productID)
		if errors.Is(err, models.ErrNotFound) {
			log.Println("cart merge: skipping vanished product", item.ProductID)
			continue
		}
		if err != nil {
			return cartErrorResponse(c, "merge", err)
		}
		sel := models.VariantSelector{Size: item.Size, Color: item.Color}
		if err := cart.AddItem(product, quantity, sel); err != nil {
			log.Println("cart merge: skipping item for product", item.ProductID, ":", err)
		}
	}

	if err := saveCart(ctx, cart); err != nil {
		return cartErrorResponse(c, "merge", err)
	}

	metrics.CartMutations.WithLabelValues("merge", "ok").Inc()
	populateCart(ctx, cart)
	return c.JSON(http.StatusOK, cart)
}

// UpdateCartItem sets an absolute quantity on one line after re-checking the
// line's variant stock.
func UpdateCartItem(c echo.Context) error {
	userID := c.Get("userID").(primitive.ObjectID)

	itemID, err := primitive.ObjectIDFromHex(c.Param("itemId"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid item ID"})
	}

	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if req.Quantity < 1 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Quantity must be at least 1"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	cart, err := loadCart(ctx, userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to fetch cart"})
	}
	if cart == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Cart not found"})
	}

	item := cart.ItemByID(itemID)
	if item == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Item not found in cart"})
	}

	product, err := fetchProduct(ctx, item.ProductID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "Product not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to fetch product"})
	}

	if err := cart.UpdateItemQuantity(itemID, req.Quantity, product); err != nil {
		return cartErrorResponse(c, "update", err)
	}

	if err := saveCart(ctx, cart); err != nil {
		return cartErrorResponse(c, "update", err)
	}

	metrics.CartMutations.WithLabelValues("update", "ok").Inc()
	populateCart(ctx, cart)
	return c.JSON(http.StatusOK, cart)
}

// RemoveFromCart deletes one line. Removing an id that is no longer present
// succeeds, so a retried delete stays idempotent.
func RemoveFromCart(c echo.Context) error {
	userID := c.Get("userID").(primitive.ObjectID)

	itemID, err := primitive.ObjectIDFromHex(c.Param("itemId"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid item ID"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	cart, err := loadCart(ctx, userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to fetch cart"})
	}
	if cart == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Cart not found"})
	}

	cart.RemoveItem(itemID)

	if err := saveCart(ctx, cart); err != nil {
		return cartErrorResponse(c, "remove", err)
	}

	metrics.CartMutations.WithLabelValues("remove", "ok").Inc()
	populateCart(ctx, cart)
	return c.JSON(http.StatusOK, cart)
}

// ClearCart empties the cart. A user with no cart document is already clear,
// so this always succeeds.
func ClearCart(c echo.Context) error {
	userID := c.Get("userID").(primitive.ObjectID)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	cart, err := loadCart(ctx, userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to fetch cart"})
	}
	if cart == nil {
		return c.JSON(http.StatusOK, models.NewCart(userID))
	}

	cart.Clear()
	if err := saveCart(ctx, cart); err != nil {
		return cartErrorResponse(c, "clear", err)
	}

	metrics.CartMutations.WithLabelValues("clear", "ok").Inc()
	return c.JSON(http.StatusOK, cart)
}
