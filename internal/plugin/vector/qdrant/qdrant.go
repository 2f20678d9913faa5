package qdrant

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"github.com/voice-engine-studio/memory-service/internal/config"
	registrymigrate "github.com/voice-engine-studio/memory-service/internal/registry/migrate"
	registryvector "github.com/voice-engine-studio/memory-service/internal/registry/vector"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// qdrantMigrator prepares the memory collection before the index is used.
type qdrantMigrator struct{}

func (m *qdrantMigrator) Name() string { return "qdrant" }
func (m *qdrantMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.VectorType != "qdrant" || !cfg.VectorMigrateAtStart {
		return nil
	}

	log.Info("Running migration", "name", m.Name())
	migrateCtx, cancel := context.WithTimeout(ctx, cfg.QdrantStartupTimeout)
	defer cancel()

	conn, err := grpc.NewClient(cfg.QdrantAddress(), dialOptions(cfg)...)
	if err != nil {
		return fmt.Errorf("qdrant migrate: connect: %w", err)
	}
	defer conn.Close()

	return ensureCollection(migrateCtx, conn, effectiveCollectionName(cfg), effectiveEmbeddingDimension(cfg))
}

// ensureCollection creates the cosine collection and its user_id payload
// index when the collection does not exist yet.
func ensureCollection(ctx context.Context, conn *grpc.ClientConn, name string, size uint64) error {
	collections := pb.NewCollectionsClient(conn)
	if _, err := collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: name}); err == nil {
		return nil
	}

	_, err := collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     size,
					Distance: pb.Distance_Cosine,
				},
			},
		},
		HnswConfig: &pb.HnswConfigDiff{
			M:                 newUint64(16),
			EfConstruct:       newUint64(64),
			FullScanThreshold: newUint64(10000),
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant migrate: create collection: %w", err)
	}

	wait := true
	_, err = pb.NewPointsClient(conn).CreateFieldIndex(ctx, &pb.CreateFieldIndexCollection{
		CollectionName: name,
		Wait:           &wait,
		FieldName:      "user_id",
		FieldType:      pb.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil {
		return fmt.Errorf("qdrant migrate: index user_id: %w", err)
	}
	log.Info("Created Qdrant collection", "name", name, "dimension", size)
	return nil
}

func init() {
	registryvector.Register(registryvector.Plugin{
		Name:   "qdrant",
		Loader: load,
	})
	registrymigrate.Register(registrymigrate.Plugin{Order: 200, Migrator: &qdrantMigrator{}})
}

func load(ctx context.Context) (registryvector.VectorIndex, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil {
		return nil, fmt.Errorf("qdrant: missing config in context")
	}
	conn, err := grpc.NewClient(cfg.QdrantAddress(), dialOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("qdrant: connect: %w", err)
	}
	return &Index{
		points:         pb.NewPointsClient(conn),
		conn:           conn,
		collectionName: effectiveCollectionName(cfg),
	}, nil
}

type Index struct {
	points         pb.PointsClient
	conn           *grpc.ClientConn
	collectionName string
}

func (s *Index) IsEnabled() bool { return true }
func (s *Index) Name() string    { return "qdrant" }

func userFilter(userID string) *pb.Filter {
	return &pb.Filter{
		Must: []*pb.Condition{
			{
				ConditionOneOf: &pb.Condition_Field{
					Field: &pb.FieldCondition{
						Key: "user_id",
						Match: &pb.Match{
							MatchValue: &pb.Match_Keyword{Keyword: userID},
						},
					},
				},
			},
		},
	}
}

func (s *Index) Search(ctx context.Context, userID string, embedding []float32, limit int) ([]registryvector.SearchResult, error) {
	if limit <= 0 {
		return nil, nil
	}
	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: s.collectionName,
		Vector:         embedding,
		Limit:          uint64(limit),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		Filter:         userFilter(userID),
	})
	if err != nil {
		return nil, err
	}

	results := make([]registryvector.SearchResult, 0, len(resp.GetResult()))
	for _, pt := range resp.GetResult() {
		v, ok := pt.GetPayload()["memory_id"]
		if !ok {
			continue
		}
		id, err := uuid.Parse(v.GetStringValue())
		if err != nil {
			continue
		}
		results = append(results, registryvector.SearchResult{MemoryID: id, Score: float64(pt.GetScore())})
	}
	return results, nil
}

func (s *Index) Upsert(ctx context.Context, entries []registryvector.UpsertRequest) error {
	if len(entries) == 0 {
		return nil
	}
	points := make([]*pb.PointStruct, len(entries))
	for i, e := range entries {
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: e.MemoryID.String()}},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: e.Embedding},
				},
			},
			Payload: map[string]*pb.Value{
				"memory_id": {Kind: &pb.Value_StringValue{StringValue: e.MemoryID.String()}},
				"user_id":   {Kind: &pb.Value_StringValue{StringValue: e.UserID}},
				"model":     {Kind: &pb.Value_StringValue{StringValue: e.ModelName}},
			},
		}
	}
	wait := true
	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collectionName,
		Wait:           &wait,
		Points:         points,
	})
	return err
}

// Delete removes the point only when it belongs to userID.
func (s *Index) Delete(ctx context.Context, userID string, memoryID uuid.UUID) error {
	filter := userFilter(userID)
	filter.Must = append(filter.Must, &pb.Condition{
		ConditionOneOf: &pb.Condition_HasId{
			HasId: &pb.HasIdCondition{
				HasId: []*pb.PointId{{PointIdOptions: &pb.PointId_Uuid{Uuid: memoryID.String()}}},
			},
		},
	})
	wait := true
	_, err := s.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: s.collectionName,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{Filter: filter},
		},
	})
	return err
}

func newUint64(v uint64) *uint64 {
	return &v
}

func dialOptions(cfg *config.Config) []grpc.DialOption {
	opts := make([]grpc.DialOption, 0, 2)
	if cfg.QdrantUseTLS {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(nil)))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	if strings.TrimSpace(cfg.QdrantAPIKey) != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(apiKeyCredentials{
			apiKey:     cfg.QdrantAPIKey,
			requireTLS: cfg.QdrantUseTLS,
		}))
	}
	return opts
}

type apiKeyCredentials struct {
	apiKey     string
	requireTLS bool
}

func (a apiKeyCredentials) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"api-key": a.apiKey}, nil
}

func (a apiKeyCredentials) RequireTransportSecurity() bool {
	return a.requireTLS
}

func effectiveEmbeddingDimension(cfg *config.Config) uint64 {
	if cfg == nil {
		return 1536
	}
	if cfg.OpenAIDimensions > 0 {
		return uint64(cfg.OpenAIDimensions)
	}
	if strings.EqualFold(strings.TrimSpace(cfg.EmbedType), "local") {
		return 256
	}
	return 1536
}

func effectiveCollectionName(cfg *config.Config) string {
	if cfg == nil {
		return "memory-service_text-embedding-3-small-1536"
	}
	if name := strings.TrimSpace(cfg.QdrantCollectionName); name != "" {
		return name
	}
	prefix := strings.TrimSpace(cfg.QdrantCollectionPrefix)
	if prefix == "" {
		prefix = "memory-service"
	}
	model := "text-embedding-3-small"
	switch strings.ToLower(strings.TrimSpace(cfg.EmbedType)) {
	case "local":
		model = "hashed-bigram-v1"
	case "openai":
		if custom := strings.TrimSpace(cfg.OpenAIModelName); custom != "" {
			model = custom
		}
	}
	model = strings.NewReplacer("/", "-", " ", "-", "_", "-").Replace(strings.ToLower(model))
	return fmt.Sprintf("%s_%s-%d", prefix, model, effectiveEmbeddingDimension(cfg))
}
