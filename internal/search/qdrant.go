package search

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/confide-ai/confide-backend/internal/logger"
	"github.com/confide-ai/confide-backend/internal/types"
)

// QdrantVectors implements VectorStore on a Qdrant collection.
type QdrantVectors struct {
	log        *logger.Logger
	client     *qdrant.Client
	collection string
	dimension  int
}

func NewQdrantVectors(log *logger.Logger, client *qdrant.Client, collection string, dimension int) *QdrantVectors {
	return &QdrantVectors{
		log:        log.With("service", "QdrantVectors"),
		client:     client,
		collection: collection,
		dimension:  dimension,
	}
}

func (qv *QdrantVectors) Upsert(ctx context.Context, id uuid.UUID, vector []float32, payload types.IndexMessage) error {
	_, err := qv.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: qv.collection,
		Wait:           qdrant.PtrOf(true),
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewIDUUID(id.String()),
				Vectors: qdrant.NewVectors(vector...),
				Payload: qdrant.NewValueMap(map[string]any{
					"id":              payload.ID.String(),
					"conversation_id": payload.ConversationID.String(),
				}),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upsert point: %w", err)
	}
	return nil
}

func (qv *QdrantVectors) Query(ctx context.Context, vector []float32, conversationIDs []uuid.UUID, limit uint64) ([]Scored, error) {
	ids := make([]string, 0, len(conversationIDs))
	for _, id := range conversationIDs {
		ids = append(ids, id.String())
	}
	points, err := qv.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: qv.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(limit),
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatchKeywords("conversation_id", ids...),
			},
		},
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query collection: %w", err)
	}

	scored := make([]Scored, 0, len(points))
	for _, point := range points {
		index, err := parsePayload(point.Payload)
		if err != nil {
			qv.log.Warn("Dropping hit with malformed payload", "error", err)
			continue
		}
		scored = append(scored, Scored{Index: index, Score: point.Score})
	}
	return scored, nil
}

func (qv *QdrantVectors) Count(ctx context.Context) (uint64, error) {
	count, err := qv.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: qv.collection,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count points: %w", err)
	}
	return count, nil
}

// Readiness round-trips a throwaway point through the collection.
func (qv *QdrantVectors) Readiness(ctx context.Context) error {
	id := uuid.New()
	probe := types.IndexMessage{ID: id, ConversationID: id}
	if err := qv.Upsert(ctx, id, make([]float32, qv.dimension), probe); err != nil {
		return err
	}
	points, err := qv.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: qv.collection,
		Ids:            []*qdrant.PointId{qdrant.NewIDUUID(id.String())},
	})
	if err != nil {
		return err
	}
	if len(points) == 0 {
		return fmt.Errorf("probe point %s not retrievable", id)
	}
	_, err = qv.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: qv.collection,
		Points:         qdrant.NewPointsSelector(qdrant.NewIDUUID(id.String())),
	})
	return err
}

func parsePayload(payload map[string]*qdrant.Value) (types.IndexMessage, error) {
	id, err := uuid.Parse(payload["id"].GetStringValue())
	if err != nil {
		return types.IndexMessage{}, fmt.Errorf("bad message id: %w", err)
	}
	conversationID, err := uuid.Parse(payload["conversation_id"].GetStringValue())
	if err != nil {
		return types.IndexMessage{}, fmt.Errorf("bad conversation id: %w", err)
	}
	return types.IndexMessage{ID: id, ConversationID: conversationID}, nil
}
