package repository

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"github.com/timmy/gymflow/internal/domain"
	"github.com/timmy/gymflow/internal/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

// classPointNamespace derives stable Qdrant point IDs from class IDs, which
// are not required to be UUIDs.
var classPointNamespace = uuid.MustParse("5f0b6f58-0d4c-4c2e-9a57-6c1f3f1e2a10")

// QdrantConnectionConfig holds configuration for Qdrant connection
type QdrantConnectionConfig struct {
	Host            string
	Port            int
	Collection      string
	APIKey          string // Qdrant Cloud API Key (enables TLS automatically)
	UseTLS          bool   // Explicitly enable TLS without API Key
	VectorDimension int
	Timeout         time.Duration
}

// apiKeyInterceptor creates a unary interceptor that adds API key to metadata
func apiKeyInterceptor(apiKey string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", apiKey)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// QdrantIndex mirrors class embeddings into a Qdrant collection and serves
// vector search from it.
type QdrantIndex struct {
	conn            *grpc.ClientConn
	pointsClient    pb.PointsClient
	collectClient   pb.CollectionsClient
	collectionName  string
	vectorDimension int
	timeout         time.Duration
}

// NewQdrantIndex connects to Qdrant.
// Supports both local Qdrant (insecure) and Qdrant Cloud (TLS + API Key)
func NewQdrantIndex(cfg *QdrantConnectionConfig) (*QdrantIndex, error) {
	if cfg.VectorDimension <= 0 {
		return nil, fmt.Errorf("qdrant: vector dimension must be positive")
	}
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	var opts []grpc.DialOption
	if cfg.UseTLS || cfg.APIKey != "" {
		creds := credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS13})
		opts = append(opts, grpc.WithTransportCredentials(creds))
		if cfg.APIKey != "" {
			opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)))
		}
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	return &QdrantIndex{
		conn:            conn,
		pointsClient:    pb.NewPointsClient(conn),
		collectClient:   pb.NewCollectionsClient(conn),
		collectionName:  cfg.Collection,
		vectorDimension: cfg.VectorDimension,
		timeout:         cfg.Timeout,
	}, nil
}

// Name returns the backend name.
func (q *QdrantIndex) Name() string {
	return "qdrant"
}

// Close closes the gRPC connection
func (q *QdrantIndex) Close() error {
	return q.conn.Close()
}

// EnsureCollection creates the collection if it doesn't exist and checks the
// vector size of an existing one.
func (q *QdrantIndex) EnsureCollection(ctx context.Context) error {
	info, err := q.collectClient.Get(ctx, &pb.GetCollectionInfoRequest{
		CollectionName: q.collectionName,
	})
	if err == nil {
		if size, ok := collectionVectorSize(info.GetResult()); ok && size != uint64(q.vectorDimension) {
			return fmt.Errorf("collection %s has vector size %d, expected %d", q.collectionName, size, q.vectorDimension)
		}
		return nil
	}

	_, err = q.collectClient.Create(ctx, &pb.CreateCollection{
		CollectionName: q.collectionName,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(q.vectorDimension),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

func collectionVectorSize(info *pb.CollectionInfo) (uint64, bool) {
	vectors := info.GetConfig().GetParams().GetVectorsConfig()
	if vectors == nil {
		return 0, false
	}
	if single := vectors.GetParams(); single != nil && single.GetSize() > 0 {
		return single.GetSize(), true
	}
	for _, params := range vectors.GetParamsMap().GetMap() {
		if params.GetSize() > 0 {
			return params.GetSize(), true
		}
	}
	return 0, false
}

// ClassPointID returns the Qdrant point ID used for a class.
func ClassPointID(classID string) string {
	return uuid.NewSHA1(classPointNamespace, []byte(classID)).String()
}

// Upsert stores a class embedding with its class_id, category and active
// payload.
func (q *QdrantIndex) Upsert(ctx context.Context, class *domain.Class, embedding []float32) error {
	if len(embedding) != q.vectorDimension {
		return fmt.Errorf("qdrant upsert %s: embedding has %d dimensions, expected %d",
			class.ID, len(embedding), q.vectorDimension)
	}

	point := &pb.PointStruct{
		Id: &pb.PointId{
			PointIdOptions: &pb.PointId_Uuid{Uuid: ClassPointID(class.ID)},
		},
		Vectors: &pb.Vectors{
			VectorsOptions: &pb.Vectors_Vector{
				Vector: &pb.Vector{Data: embedding},
			},
		},
		Payload: map[string]*pb.Value{
			"class_id": {Kind: &pb.Value_StringValue{StringValue: class.ID}},
			"category": {Kind: &pb.Value_StringValue{StringValue: string(class.Category)}},
			"active":   {Kind: &pb.Value_BoolValue{BoolValue: class.Active}},
		},
	}

	_, err := q.pointsClient.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: q.collectionName,
		Points:         []*pb.PointStruct{point},
	})
	if err != nil {
		return fmt.Errorf("failed to upsert point: %w", err)
	}
	return nil
}

// Search returns the k active classes closest to query.
func (q *QdrantIndex) Search(ctx context.Context, query []float32, k int) []VectorMatch {
	if len(query) == 0 || k <= 0 {
		return []VectorMatch{}
	}
	if len(query) != q.vectorDimension {
		logger.With(logger.Fields{
			"expected": q.vectorDimension,
			"actual":   len(query),
		}).Warn(ctx, "Vector search skipped: query dimension mismatch")
		return []VectorMatch{}
	}

	if q.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}

	resp, err := q.pointsClient.Search(ctx, &pb.SearchPoints{
		CollectionName: q.collectionName,
		Vector:         query,
		Limit:          uint64(k),
		Filter:         activeOnlyFilter(),
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		logger.With(logger.Fields{
			logger.FieldStage: "vector_search",
			"error":           err.Error(),
		}).Warn(ctx, "Qdrant search failed, returning no matches")
		return []VectorMatch{}
	}

	matches := make([]VectorMatch, 0, len(resp.Result))
	for _, scored := range resp.Result {
		classID := scored.GetPayload()["class_id"].GetStringValue()
		if classID == "" {
			continue
		}
		matches = append(matches, VectorMatch{
			ClassID:    classID,
			Similarity: float64(scored.Score),
		})
	}
	return matches
}

func activeOnlyFilter() *pb.Filter {
	return &pb.Filter{
		Must: []*pb.Condition{
			{
				ConditionOneOf: &pb.Condition_Field{
					Field: &pb.FieldCondition{
						Key: "active",
						Match: &pb.Match{
							MatchValue: &pb.Match_Boolean{Boolean: true},
						},
					},
				},
			},
		},
	}
}
