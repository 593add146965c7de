package handlers

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/craftsmandu/storefront-backend-go/database"
	"github.com/craftsmandu/storefront-backend-go/metrics"
	"github.com/craftsmandu/storefront-backend-go/models"
)

// GetProducts lists active products with the storefront's filter, sort and
// pagination query parameters.
func GetProducts(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	query := bson.M{"isActive": true}

	if category := c.QueryParam("category"); category != "" && category != "all" {
		categoryID, err := primitive.ObjectIDFromHex(category)
		if err == nil {
			query["category"] = categoryID
		} else {
			// Unknown category names match nothing rather than everything.
			query["category"] = primitive.NewObjectID()
		}
	}

	priceFilter := bson.M{}
	if min := c.QueryParam("minPrice"); min != "" {
		if v, err := strconv.ParseFloat(min, 64); err == nil {
			priceFilter["$gte"] = v
		}
	}
	if max := c.QueryParam("maxPrice"); max != "" {
		if v, err := strconv.ParseFloat(max, 64); err == nil {
			priceFilter["$lte"] = v
		}
	}
	if len(priceFilter) > 0 {
		query["price"] = priceFilter
	}

	if rating := c.QueryParam("rating"); rating != "" {
		if v, err := strconv.ParseFloat(rating, 64); err == nil {
			query["rating"] = bson.M{"$gte": v}
		}
	}

	if search := c.QueryParam("search"); search != "" {
		pattern := primitive.Regex{Pattern: search, Options: "i"}
		query["$or"] = bson.A{
			bson.M{"name": pattern},
			bson.M{"description": pattern},
			bson.M{"tags": pattern},
		}
	}

	sortBy := bson.D{{Key: "createdAt", Value: -1}}
	switch c.QueryParam("sort") {
	case "price-low":
		sortBy = bson.D{{Key: "price", Value: 1}}
	case "price-high":
		sortBy = bson.D{{Key: "price", Value: -1}}
	case "rating":
		sortBy = bson.D{{Key: "rating", Value: -1}}
	case "newest":
		sortBy = bson.D{{Key: "createdAt", Value: -1}}
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit < 1 {
		limit = 12
	}

	collection := database.DB.Collection("products")
	total, err := collection.CountDocuments(ctx, query)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to fetch products"})
	}

	opts := options.Find().
		SetSort(sortBy).
		SetSkip(int64((page - 1) * limit)).
		SetLimit(int64(limit))

	cursor, err := collection.Find(ctx, query, opts)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to fetch products"})
	}
	defer cursor.Close(ctx)

	products := []models.Product{}
	if err := cursor.All(ctx, &products); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to decode products"})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"products": products,
		"page":     page,
		"pages":    int(math.Ceil(float64(total) / float64(limit))),
		"total":    total,
	})
}

// GetProduct returns a single product with its variants, images and reviews.
func GetProduct(c echo.Context) error {
	productID, err := primitive.ObjectIDFromHex(c.Param("id"))
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

	return c.JSON(http.StatusOK, product)
}

// CreateProduct validates and persists a new product, running variant sync so
// the base price/stock fields always reflect the variant list.
func CreateProduct(c echo.Context) error {
	product := models.Product{IsActive: true}
	if err := c.Bind(&product); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	if err := product.Validate(); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	product.SyncFromVariants()

	product.ID = primitive.NewObjectID()
	product.CreatedAt = time.Now()
	product.UpdatedAt = time.Now()

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	if _, err := database.DB.Collection("products").InsertOne(ctx, product); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to create product"})
	}

	metrics.ProductWrites.WithLabelValues("create").Inc()
	return c.JSON(http.StatusCreated, product)
}

// UpdateProduct applies the request body over the stored document, then
// re-validates and re-runs variant sync before writing back. Binding into the
// loaded document keeps fields the request does not mention.
func UpdateProduct(c echo.Context) error {
	productID, err := primitive.ObjectIDFromHex(c.Param("id"))
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

	if err := c.Bind(product); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	product.ID = productID

	if err := product.Validate(); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	product.SyncFromVariants()
	product.UpdatedAt = time.Now()

	if _, err := database.DB.Collection("products").ReplaceOne(ctx, bson.M{"_id": productID}, product); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to update product"})
	}

	metrics.ProductWrites.WithLabelValues("update").Inc()
	return c.JSON(http.StatusOK, product)
}

// DeleteProduct hard-deletes a product. Soft removal goes through
// isActive=false on the update path instead.
func DeleteProduct(c echo.Context) error {
	productID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid product ID"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	result, err := database.DB.Collection("products").DeleteOne(ctx, bson.M{"_id": productID})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to delete product"})
	}
	if result.DeletedCount == 0 {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Product not found"})
	}

	metrics.ProductWrites.WithLabelValues("delete").Inc()
	return c.JSON(http.StatusOK, map[string]string{"message": "Product removed"})
}

// CreateProductReview appends a review for the authenticated user and
// recomputes the rating aggregates.
func CreateProductReview(c echo.Context) error {
	userID := c.Get("userID").(primitive.ObjectID)

	productID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid product ID"})
	}

	var req struct {
		Name    string `json:"name"`
		Rating  int    `json:"rating"`
		Comment string `json:"comment"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
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

	review := models.Review{
		User:    userID,
		Name:    req.Name,
		Rating:  req.Rating,
		Comment: req.Comment,
	}
	if err := product.AddReview(review); err != nil {
		if errors.Is(err, models.ErrDuplicateReview) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Product already reviewed"})
		}
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	product.UpdatedAt = time.Now()

	if _, err := database.DB.Collection("products").ReplaceOne(ctx, bson.M{"_id": productID}, product); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to save review"})
	}

	return c.JSON(http.StatusCreated, map[string]string{"message": "Review added"})
}
