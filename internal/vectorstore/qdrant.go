package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// QdrantConfig holds configuration for the Qdrant gRPC client.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	Host string

	// Port is the Qdrant gRPC port (6334), NOT the HTTP REST port.
	Port int

	// UseTLS enables TLS encryption for the gRPC connection.
	UseTLS bool

	// VectorSize is the dimensionality of embeddings. Must match the
	// embedding provider's output dimension.
	VectorSize int

	// MaxRetries is the retry budget for transient gRPC failures.
	MaxRetries int

	// MaxMessageSize is the maximum gRPC message size in bytes.
	MaxMessageSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 16 * 1024 * 1024
	}
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size required", ErrInvalidConfig)
	}
	return nil
}

// isTransient reports whether a gRPC error should be retried.
func isTransient(err error) bool {
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// QdrantStore is the remote Store implementation using Qdrant's native
// gRPC client. Binary protobuf transport avoids the HTTP payload limits
// of the REST layer.
type QdrantStore struct {
	client *qdrant.Client
	config QdrantConfig
	logger *zap.Logger

	// collections caches collection existence to avoid repeated checks.
	collections sync.Map
}

// NewQdrantStore creates a QdrantStore and verifies connectivity.
func NewQdrantStore(config QdrantConfig, logger *zap.Logger) (*QdrantStore, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	store := &QdrantStore{
		client: client,
		config: config,
		logger: logger,
	}

	logger.Info("qdrant store initialized",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.Int("vector_size", config.VectorSize))

	return store, nil
}

// retry runs op with exponential backoff on transient gRPC failures.
func (s *QdrantStore) retry(ctx context.Context, name string, op func() error) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if err := op(); err != nil {
			if !isTransient(err) {
				return struct{}{}, backoff.Permanent(err)
			}
			return struct{}{}, err
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(uint(s.config.MaxRetries)),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// EnsureCollection creates the collection if it does not exist.
func (s *QdrantStore) EnsureCollection(ctx context.Context, collection string, vectorSize int) error {
	if err := ValidateCollectionName(collection); err != nil {
		return err
	}
	if _, ok := s.collections.Load(collection); ok {
		return nil
	}
	if vectorSize == 0 {
		vectorSize = s.config.VectorSize
	}

	exists := false
	err := s.retry(ctx, "collection_exists", func() error {
		_, err := s.client.GetCollectionInfo(ctx, collection)
		if err != nil {
			if st, ok := status.FromError(err); ok && st.Code() == grpccodes.NotFound {
				return nil
			}
			return err
		}
		exists = true
		return nil
	})
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", collection, err)
	}

	if !exists {
		err = s.retry(ctx, "create_collection", func() error {
			return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
				CollectionName: collection,
				VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
					Size:     uint64(vectorSize),
					Distance: qdrant.Distance_Cosine,
				}),
			})
		})
		if err != nil {
			return fmt.Errorf("creating collection %s: %w", collection, err)
		}
		s.logger.Info("created qdrant collection",
			zap.String("collection", collection),
			zap.Int("vector_size", vectorSize))
	}

	s.collections.Store(collection, true)
	return nil
}

// Upsert inserts or replaces records.
func (s *QdrantStore) Upsert(ctx context.Context, collection string, recs []Record) error {
	if len(recs) == 0 {
		return ErrEmptyRecords
	}
	if err := s.EnsureCollection(ctx, collection, s.config.VectorSize); err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, len(recs))
	for i, rec := range recs {
		payload := payloadFromMeta(rec.Meta)
		payload["content"] = qdrant.NewValueString(rec.Content)
		payload["id"] = qdrant.NewValueString(rec.ID)

		// Qdrant point IDs must be UUIDs; the caller's ID is preserved
		// in the payload for retrieval.
		pointID := rec.ID
		if _, err := uuid.Parse(pointID); err != nil {
			pointID = uuid.NewSHA1(uuid.NameSpaceOID, []byte(rec.ID)).String()
		}

		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pointID),
			Vectors: qdrant.NewVectors(rec.Embedding...),
			Payload: payload,
		}
	}

	err := s.retry(ctx, "upsert", func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: collection,
			Points:         points,
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("upserting %d points to %s: %w", len(points), collection, err)
	}
	return nil
}

// QueryEmbedding performs similarity search, best first.
func (s *QdrantStore) QueryEmbedding(ctx context.Context, collection string, embedding []float32, k int, f Filter) ([]Hit, error) {
	if err := ValidateCollectionName(collection); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	query := &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(embedding...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
		Filter:         filterToQdrant(f),
	}
	if f.MinScore > 0 {
		query.ScoreThreshold = qdrant.PtrOf(f.MinScore)
	}

	var points []*qdrant.ScoredPoint
	err := s.retry(ctx, "query", func() error {
		res, err := s.client.Query(ctx, query)
		if err != nil {
			return err
		}
		points = res
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("querying collection %s: %w", collection, err)
	}

	hits := make([]Hit, len(points))
	for i, p := range points {
		hits[i] = hitFromPayload(p.Payload, p.Score)
	}
	return hits, nil
}

// QueryMeta returns records matching the filter, most recent first.
func (s *QdrantStore) QueryMeta(ctx context.Context, collection string, f Filter, limit int) ([]Hit, error) {
	if err := ValidateCollectionName(collection); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	var points []*qdrant.RetrievedPoint
	err := s.retry(ctx, "scroll", func() error {
		res, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: collection,
			Filter:         filterToQdrant(f),
			Limit:          qdrant.PtrOf(uint32(limit)),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return err
		}
		points = res
		return nil
	})
	if err != nil {
		if st, ok := status.FromError(err); ok && st.Code() == grpccodes.NotFound {
			return nil, ErrCollectionNotFound
		}
		return nil, fmt.Errorf("scrolling collection %s: %w", collection, err)
	}

	hits := make([]Hit, len(points))
	for i, p := range points {
		hits[i] = hitFromPayload(p.Payload, 0)
	}
	sort.Slice(hits, func(i, j int) bool {
		return hits[i].CreatedAt().After(hits[j].CreatedAt())
	})
	return hits, nil
}

// Healthy probes the Qdrant server.
func (s *QdrantStore) Healthy(ctx context.Context) error {
	_, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	return nil
}

// Close closes the gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// filterToQdrant converts a Filter to qdrant payload conditions.
func filterToQdrant(f Filter) *qdrant.Filter {
	var conditions []*qdrant.Condition

	for key, value := range f.Match {
		conditions = append(conditions, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: key,
					Match: &qdrant.Match{
						MatchValue: &qdrant.Match_Keyword{Keyword: value},
					},
				},
			},
		})
	}
	for key, values := range f.MatchAny {
		if len(values) == 0 {
			continue
		}
		conditions = append(conditions, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: key,
					Match: &qdrant.Match{
						MatchValue: &qdrant.Match_Keywords{
							Keywords: &qdrant.RepeatedStrings{Strings: values},
						},
					},
				},
			},
		})
	}
	if !f.CreatedAfter.IsZero() {
		conditions = append(conditions, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key:   MetaCreatedAt,
					Range: &qdrant.Range{Gte: qdrant.PtrOf(float64(f.CreatedAfter.Unix()))},
				},
			},
		})
	}
	if f.MinConfidence > 0 {
		conditions = append(conditions, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key:   MetaConfidence,
					Range: &qdrant.Range{Gte: qdrant.PtrOf(f.MinConfidence)},
				},
			},
		})
	}

	if len(conditions) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: conditions}
}

// payloadFromMeta converts record metadata to qdrant payload values.
func payloadFromMeta(meta map[string]any) map[string]*qdrant.Value {
	payload := make(map[string]*qdrant.Value, len(meta)+2)
	for k, v := range meta {
		switch val := v.(type) {
		case string:
			payload[k] = qdrant.NewValueString(val)
		case int:
			payload[k] = qdrant.NewValueInt(int64(val))
		case int64:
			payload[k] = qdrant.NewValueInt(val)
		case float64:
			payload[k] = qdrant.NewValueDouble(val)
		case bool:
			payload[k] = qdrant.NewValueBool(val)
		case []string:
			items := make([]*qdrant.Value, len(val))
			for i, s := range val {
				items[i] = qdrant.NewValueString(s)
			}
			payload[k] = &qdrant.Value{
				Kind: &qdrant.Value_ListValue{ListValue: &qdrant.ListValue{Values: items}},
			}
		}
	}
	return payload
}

// hitFromPayload converts a qdrant payload back into a Hit.
func hitFromPayload(payload map[string]*qdrant.Value, score float32) Hit {
	hit := Hit{Score: score, Meta: make(map[string]any, len(payload))}
	for k, v := range payload {
		switch val := v.Kind.(type) {
		case *qdrant.Value_StringValue:
			switch k {
			case "content":
				hit.Content = val.StringValue
			case "id":
				hit.ID = val.StringValue
			default:
				hit.Meta[k] = val.StringValue
			}
		case *qdrant.Value_IntegerValue:
			hit.Meta[k] = val.IntegerValue
		case *qdrant.Value_DoubleValue:
			hit.Meta[k] = val.DoubleValue
		case *qdrant.Value_BoolValue:
			hit.Meta[k] = val.BoolValue
		case *qdrant.Value_ListValue:
			items := make([]string, 0, len(val.ListValue.GetValues()))
			for _, item := range val.ListValue.GetValues() {
				if s, ok := item.Kind.(*qdrant.Value_StringValue); ok {
					items = append(items, s.StringValue)
				}
			}
			hit.Meta[k] = items
		}
	}
	return hit
}

// Ensure QdrantStore implements Store.
var _ Store = (*QdrantStore)(nil)
