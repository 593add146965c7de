package main

import (
	"log"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/craftsmandu/storefront-backend-go/config"
	"github.com/craftsmandu/storefront-backend-go/database"
	"github.com/craftsmandu/storefront-backend-go/routes"
)

func main() {
	config.LoadEnv()

	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	if err := database.ConnectDB(); err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	routes.SetupRoutes(e)

	port := config.GetEnv("PORT", "3000")
	e.Logger.Fatal(e.Start(":" + port))
}
