package vectorstore

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/qdrant/go-client/qdrant"

	"finrag/internal/contextutil"
)

// QdrantIndex implements VectorIndex against a Qdrant collection. The
// collection uses Euclid distance so hit scores can be normalized with the
// same 1/(1+distance) mapping as the flat backend, keeping the two backends
// interchangeable to callers.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	dim        int
}

// NewQdrantIndex creates a Qdrant-backed index. urlStr should be in the
// format "http://host:port" (e.g. "http://localhost:6333"); the gRPC port is
// derived from the HTTP port.
func NewQdrantIndex(urlStr, collection string, dim int) (*QdrantIndex, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("invalid Qdrant URL: %w", err)
	}

	host := parsedURL.Hostname()
	if host == "" {
		host = "localhost"
	}

	port := 6334 // default gRPC port
	if parsedURL.Port() != "" {
		httpPort, err := strconv.Atoi(parsedURL.Port())
		if err == nil {
			// gRPC port is typically HTTP port + 1
			port = httpPort + 1
		}
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Qdrant client: %w", err)
	}

	return &QdrantIndex{
		client:     client,
		collection: collection,
		dim:        dim,
	}, nil
}

// EnsureCollection creates the collection if it does not exist and validates
// the vector size if it does.
func (s *QdrantIndex) EnsureCollection(ctx context.Context) error {
	logger := contextutil.LoggerFromContext(ctx)

	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}

	if !exists {
		logger.InfoContext(ctx, "creating collection", "collection", s.collection, "vector_size", s.dim)
		err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(s.dim),
				Distance: qdrant.Distance_Euclid,
			}),
		})
		if err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}
		return nil
	}

	info, err := s.client.GetCollectionInfo(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to get collection info: %w", err)
	}

	config := info.Config
	if config == nil || config.Params == nil {
		return fmt.Errorf("collection config is invalid")
	}
	vectorsConfig := config.Params.GetVectorsConfig()
	if vectorsConfig == nil {
		return fmt.Errorf("collection vectors config is invalid")
	}
	params := vectorsConfig.GetParams()
	if params == nil {
		return fmt.Errorf("collection vector params are invalid")
	}

	if int(params.Size) != s.dim {
		return fmt.Errorf("%w: collection vector size %d, configured %d", ErrDimensionMismatch, params.Size, s.dim)
	}

	logger.InfoContext(ctx, "collection validated", "collection", s.collection, "vector_size", s.dim)
	return nil
}

// Add upserts records as points keyed by chunk ID, with the document ID
// carried in the payload for filtering and removal.
func (s *QdrantIndex) Add(ctx context.Context, recs []Record) error {
	logger := contextutil.LoggerFromContext(ctx)

	if len(recs) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(recs))
	for i, rec := range recs {
		if len(rec.Vec) != s.dim {
			return fmt.Errorf("%w: record %d has dimension %d, index expects %d", ErrDimensionMismatch, i, len(rec.Vec), s.dim)
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(rec.ChunkID),
			Vectors: qdrant.NewVectors(rec.Vec...),
			Payload: qdrant.NewValueMap(map[string]any{
				"document_id": rec.DocumentID,
			}),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to upsert points", "collection", s.collection, "count", len(recs), "error", err)
		return fmt.Errorf("failed to upsert points: %w", err)
	}

	logger.InfoContext(ctx, "upserted points", "collection", s.collection, "count", len(recs))
	return nil
}

// Remove deletes every point whose payload matches the document ID.
func (s *QdrantIndex) Remove(ctx context.Context, documentID string) error {
	logger := contextutil.LoggerFromContext(ctx)

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("document_id", documentID),
			},
		}),
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to delete points", "collection", s.collection, "document_id", documentID, "error", err)
		return fmt.Errorf("failed to delete points: %w", err)
	}

	logger.InfoContext(ctx, "deleted points", "collection", s.collection, "document_id", documentID)
	return nil
}

// Search queries the collection and normalizes Euclid distances to the
// shared 1/(1+distance) similarity. Document filters become a Should clause
// over document_id payload values.
func (s *QdrantIndex) Search(ctx context.Context, query []float32, k int, filter map[string]struct{}) ([]Hit, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if k <= 0 {
		return nil, fmt.Errorf("k must be greater than 0")
	}
	if len(query) != s.dim {
		return nil, fmt.Errorf("%w: query has dimension %d, index expects %d", ErrDimensionMismatch, len(query), s.dim)
	}

	var qdrantFilter *qdrant.Filter
	if len(filter) > 0 {
		should := make([]*qdrant.Condition, 0, len(filter))
		for docID := range filter {
			should = append(should, qdrant.NewMatch("document_id", docID))
		}
		qdrantFilter = &qdrant.Filter{Should: should}
	}

	limit := uint64(k)
	queryReq := &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if qdrantFilter != nil {
		queryReq.Filter = qdrantFilter
	}

	scoredPoints, err := s.client.Query(ctx, queryReq)
	if err != nil {
		logger.ErrorContext(ctx, "failed to search points", "collection", s.collection, "k", k, "error", err)
		return nil, fmt.Errorf("failed to search points: %w", err)
	}

	hits := make([]Hit, 0, len(scoredPoints))
	for _, point := range scoredPoints {
		chunkID := ""
		if point.Id != nil {
			chunkID = point.Id.GetUuid()
		}

		documentID := ""
		if point.Payload != nil {
			if v, ok := point.Payload["document_id"]; ok && v != nil {
				documentID = v.GetStringValue()
			}
		}

		hits = append(hits, Hit{
			ChunkID:    chunkID,
			DocumentID: documentID,
			Similarity: 1.0 / (1.0 + float64(point.Score)),
		})
	}

	logger.InfoContext(ctx, "search completed", "collection", s.collection, "k", k, "results", len(hits))

	if len(filter) > 0 && len(hits) < k {
		return hits, fmt.Errorf("%w: wanted %d, found %d", ErrInsufficientCandidates, k, len(hits))
	}
	return hits, nil
}

// Count returns the number of points in the collection.
func (s *QdrantIndex) Count(ctx context.Context) (int, error) {
	info, err := s.client.GetCollectionInfo(ctx, s.collection)
	if err != nil {
		return 0, fmt.Errorf("failed to get collection info: %w", err)
	}
	if info.PointsCount == nil {
		return 0, nil
	}
	return int(*info.PointsCount), nil
}
