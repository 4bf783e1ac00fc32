package db

import (
	"context"
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"

	"github.com/confide-ai/confide-backend/internal/logger"
	"github.com/confide-ai/confide-backend/internal/utils"
)

const (
	// QdrantCollection holds one point per indexed message.
	QdrantCollection = "messages"
	// QdrantDimension is fixed to the embedding provider's output size.
	QdrantDimension = 1536
)

// NewQdrantClient connects to Qdrant and makes sure the message collection
// exists with the expected dimension and dot-product metric.
func NewQdrantClient(log *logger.Logger, host string, port int) (*qdrant.Client, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.CollectionExists(ctx, QdrantCollection)
	if err != nil {
		return nil, fmt.Errorf("failed to check Qdrant collection: %w", err)
	}
	if !exists {
		err = client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: QdrantCollection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     QdrantDimension,
				Distance: qdrant.Distance_Dot,
			}),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Qdrant collection: %w", err)
		}
	}
	log.Info("Connected to Qdrant", "host", host, "port", port, "collection", QdrantCollection)
	return client, nil
}

// QdrantAddress reads the Qdrant endpoint from the environment.
func QdrantAddress(log *logger.Logger) (string, int) {
	host := utils.GetEnv("QDRANT_HOST", "localhost", log)
	port := utils.GetEnvAsInt("QDRANT_PORT", 6334, log)
	return host, port
}
