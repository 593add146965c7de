package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/craftsmandu/storefront-backend-go/handlers"
	customMiddleware "github.com/craftsmandu/storefront-backend-go/middleware"
)

func SetupRoutes(e *echo.Echo) {
	// Public catalog reads
	e.GET("/api/products", handlers.GetProducts)
	e.GET("/api/products/:id", handlers.GetProduct)

	// Authenticated API
	api := e.Group("/api")
	api.Use(customMiddleware.AuthMiddleware)

	// Product writes (admin tooling); both paths run variant sync
	api.POST("/products", handlers.CreateProduct)
	api.PUT("/products/:id", handlers.UpdateProduct)
	api.DELETE("/products/:id", handlers.DeleteProduct)
	api.POST("/products/:id/reviews", handlers.CreateProductReview)

	// Cart
	api.GET("/cart", handlers.GetCart)
	api.POST("/cart", handlers.AddToCart)
	api.POST("/cart/merge", handlers.MergeCart)
	api.PUT("/cart/:itemId", handlers.UpdateCartItem)
	api.DELETE("/cart/:itemId", handlers.RemoveFromCart)
	api.DELETE("/cart", handlers.ClearCart)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
}
