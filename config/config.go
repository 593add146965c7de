package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

// LoadEnv reads a .env file into the process environment. Missing files are
// fine in production where the environment is injected directly.
func LoadEnv() {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("No .env file loaded:", err)
	}
}

// GetEnv returns the variable's value, or fallback when unset.
func GetEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
