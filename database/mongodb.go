package database

import (
	"context"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/craftsmandu/storefront-backend-go/config"
)

var DB *mongo.Database

// ConnectDB dials MongoDB using MONGODB_URI and keeps the database handle in
// the package-level DB.
func ConnectDB() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	uri := config.GetEnv("MONGODB_URI", "mongodb://localhost:27017")
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return err
	}

	if err := client.Ping(ctx, nil); err != nil {
		return err
	}

	DB = client.Database(config.GetEnv("MONGODB_DB", "storefront"))
	log.Println("Connected to MongoDB")
	return nil
}
