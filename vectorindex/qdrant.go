package vectorindex

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantConfig configures the production Vector Index Client backend.
type QdrantConfig struct {
	URL            string
	CollectionName string
	Dim            int
}

// Qdrant is the production Vector Index Client backend: conversation
// isolation is implemented as a payload filter on conversation_id rather
// than one collection per conversation, since collections are
// comparatively expensive to create and tear down per spec.md §4.3's
// drop() lifecycle.
type Qdrant struct {
	collection   string
	client       *qdrant.Client
	pointsClient qdrant.PointsClient
}

// NewQdrant connects to a Qdrant instance and ensures the collection exists.
func NewQdrant(cfg QdrantConfig) (*Qdrant, error) {
	parsed, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: invalid Qdrant URL: %w", err)
	}

	host := parsed.Hostname()
	port := 6334
	if p := parsed.Port(); p != "" {
		if httpPort, err := strconv.Atoi(p); err == nil {
			port = httpPort + 1
		}
	}

	client, err := qdrant.NewClient(&qdrant.Config{Host: host, Port: port})
	if err != nil {
		return nil, fmt.Errorf("vectorindex: creating Qdrant client: %w", err)
	}

	q := &Qdrant{
		collection:   cfg.CollectionName,
		client:       client,
		pointsClient: client.GetPointsClient(),
	}
	if err := q.ensureCollection(context.Background(), cfg.Dim); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *Qdrant) ensureCollection(ctx context.Context, dim int) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("vectorindex: checking collection: %w", err)
	}
	if exists {
		return nil
	}
	return q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

func (q *Qdrant) Upsert(ctx context.Context, conversationID string, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for _, c := range chunks {
		payload := map[string]any{
			"conversation_id": conversationID,
			"chunk_id":        c.ChunkID,
			"line_first":      int64(c.LineFirst),
			"line_last":       int64(c.LineLast),
			"content":         c.Text,
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDNum(pointID(conversationID, c.ChunkID)),
			Vectors: qdrant.NewVectors(c.Embedding...),
			Payload: qdrant.NewValueMap(payload),
		})
	}
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("vectorindex: upserting to Qdrant: %w", err)
	}
	return nil
}

func (q *Qdrant) Query(ctx context.Context, conversationID string, embedding []float32, k int) ([]Result, error) {
	if k <= 0 {
		k = 10
	}
	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch("conversation_id", conversationID),
		},
	}

	resp, err := q.pointsClient.Search(ctx, &qdrant.SearchPoints{
		CollectionName: q.collection,
		Vector:         embedding,
		Limit:          uint64(k),
		Filter:         filter,
		WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("vectorindex: searching Qdrant: %w", err)
	}

	results := make([]Result, 0, len(resp.GetResult()))
	for _, point := range resp.GetResult() {
		payload := point.GetPayload()
		r := Result{Score: float64(point.GetScore())}
		if v, ok := payload["chunk_id"]; ok {
			r.ChunkID = v.GetStringValue()
		}
		if v, ok := payload["content"]; ok {
			r.Text = v.GetStringValue()
		}
		if v, ok := payload["line_first"]; ok {
			r.LineFirst = int(v.GetIntegerValue())
		}
		if v, ok := payload["line_last"]; ok {
			r.LineLast = int(v.GetIntegerValue())
		}
		results = append(results, r)
	}
	// Qdrant orders by score only; break equal-score ties by lower LineFirst.
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j].Score == results[j-1].Score && results[j].LineFirst < results[j-1].LineFirst; j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
	return results, nil
}

func (q *Qdrant) Drop(ctx context.Context, conversationID string) error {
	_, err := q.pointsClient.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: &qdrant.Filter{
					Must: []*qdrant.Condition{qdrant.NewMatch("conversation_id", conversationID)},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("vectorindex: dropping conversation from Qdrant: %w", err)
	}
	return nil
}

func (q *Qdrant) Close() error {
	return q.client.Close()
}

// pointID derives a stable numeric point id from the conversation and
// chunk identifiers so re-indexing the same chunk_id is idempotent.
func pointID(conversationID, chunkID string) uint64 {
	var h uint64 = 14695981039346656037
	for _, b := range []byte(conversationID + "|" + chunkID) {
		h ^= uint64(b)
		h *= 1099511628211
	}
	return h
}
