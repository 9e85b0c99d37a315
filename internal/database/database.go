package database

import (
	"context"
	"log"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var Client *mongo.Client

// tenantDBPrefix namespaces tenant databases on the shared cluster.
const tenantDBPrefix = "warden_"

var tenantIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,31}$`)

func Connect(mongoURI string) error {
	// Use a longer timeout for Atlas connections
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	clientOptions := options.Client().ApplyURI(mongoURI)
	clientOptions.SetServerSelectionTimeout(10 * time.Second)

	log.Printf("Attempting to connect to MongoDB...")
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return err
	}

	// Ping the cluster with a separate context
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer pingCancel()

	if err := client.Ping(pingCtx, nil); err != nil {
		client.Disconnect(context.Background())
		return err
	}

	Client = client
	log.Println("✅ Connected to MongoDB")
	return nil
}

func Disconnect() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return Client.Disconnect(ctx)
}

// ValidTenantID reports whether id is an acceptable tenant identifier
// (lowercase alphanumerics, dashes, underscores; at most 32 characters).
func ValidTenantID(id string) bool {
	return tenantIDPattern.MatchString(id)
}

// Tenant returns the isolated database for one tenant. Callers must have
// checked the id with ValidTenantID first.
func Tenant(tenantID string) *mongo.Database {
	return Client.Database(tenantDBPrefix + tenantID)
}
