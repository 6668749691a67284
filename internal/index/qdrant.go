package index

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// chunkIDNamespace derives deterministic Qdrant point UUIDs from chunk
// IDs, which are not themselves valid point identifiers.
var chunkIDNamespace = uuid.MustParse("3f2d9a54-7c1e-4b8f-9b6a-2e5d8c4f1a07")

// QdrantBackendConfig holds configuration for the Qdrant gRPC backend.
type QdrantBackendConfig struct {
	// Host is the Qdrant server hostname or IP address.
	Host string `koanf:"host"`

	// Port is the Qdrant gRPC port (6334 by default, not the REST port).
	Port int `koanf:"port"`

	// Collection is the collection holding the chunk vectors.
	Collection string `koanf:"collection"`

	// VectorSize is the embedding dimensionality. Must match the
	// embedder's output.
	VectorSize uint64 `koanf:"vector_size"`

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool `koanf:"use_tls"`
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantBackendConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
}

// Validate validates the configuration.
func (c QdrantBackendConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid qdrant port %d", ErrInvalidConfig, c.Port)
	}
	if c.Collection == "" {
		return fmt.Errorf("%w: collection required", ErrInvalidConfig)
	}
	if c.VectorSize == 0 {
		return fmt.Errorf("%w: vector size required", ErrInvalidConfig)
	}
	return nil
}

// qdrantStore implements Store against an external Qdrant instance over
// gRPC. Cosine distance is fixed at collection creation, matching the
// metric the rest of the pipeline assumes.
type qdrantStore struct {
	client *qdrant.Client
	config QdrantBackendConfig
	logger *zap.Logger
}

func newQdrantStore(ctx context.Context, cfg QdrantBackendConfig, logger *zap.Logger) (*qdrantStore, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		UseTLS: cfg.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(50 * 1024 * 1024)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	s := &qdrantStore{client: client, config: cfg, logger: logger}
	if err := s.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.Info("qdrant index opened",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("collection", cfg.Collection),
	)
	return s, nil
}

func (s *qdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.config.Collection)
	if err != nil {
		return fmt.Errorf("%w: checking collection: %v", ErrBackendUnavailable, err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.config.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.config.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil && status.Code(err) != grpccodes.AlreadyExists {
		return fmt.Errorf("creating collection %s: %w", s.config.Collection, err)
	}
	return nil
}

func pointID(chunkID string) *qdrant.PointId {
	return qdrant.NewIDUUID(uuid.NewSHA1(chunkIDNamespace, []byte(chunkID)).String())
}

func (s *qdrantStore) Add(ctx context.Context, items []Item) error {
	if len(items) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, len(items))
	for i, item := range items {
		payload := map[string]any{
			"chunk_id": item.ID,
			"content":  item.Text,
		}
		for k, v := range item.Metadata {
			payload[k] = v
		}
		points[i] = &qdrant.PointStruct{
			Id:      pointID(item.ID),
			Vectors: qdrant.NewVectors(item.Vector...),
			Payload: qdrant.NewValueMap(payload),
		}
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.config.Collection,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("upserting points: %w", err)
	}
	return nil
}

func (s *qdrantStore) Query(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.config.Collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("querying collection: %w", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, point := range results {
		hit := Hit{Score: point.Score, Metadata: make(map[string]string)}
		for key, value := range point.Payload {
			str := value.GetStringValue()
			switch key {
			case "chunk_id":
				hit.ID = str
			case "content":
				hit.Text = str
			default:
				hit.Metadata[key] = str
			}
		}
		if hit.ID == "" {
			// Point written by something other than this indexer.
			continue
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func (s *qdrantStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = pointID(id)
	}

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.config.Collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{Ids: pointIDs},
			},
		},
		Wait: qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("deleting points: %w", err)
	}
	return nil
}

func (s *qdrantStore) Count(ctx context.Context) (int, error) {
	info, err := s.client.GetCollectionInfo(ctx, s.config.Collection)
	if err != nil {
		return 0, fmt.Errorf("%w: collection info: %v", ErrBackendUnavailable, err)
	}
	return int(info.GetPointsCount()), nil
}

func (s *qdrantStore) Close() error {
	return s.client.Close()
}

var _ Store = (*qdrantStore)(nil)
