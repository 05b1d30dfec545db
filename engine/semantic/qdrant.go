package semantic

import (
	"context"
	"fmt"
	"sync"

	"github.com/WessleyAI/docqa/engine/domain"
	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// Payload fields of a Qdrant point.
const (
	fieldText       = "text"
	fieldSourceFile = "source_file"
	fieldTimestamp  = "timestamp_ms"
)

// PointsAPI is the subset of the Qdrant points service the store uses.
type PointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
}

// CollectionsAPI is the subset of the Qdrant collections service the store uses.
type CollectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	Get(ctx context.Context, in *pb.GetCollectionInfoRequest, opts ...grpc.CallOption) (*pb.GetCollectionInfoResponse, error)
}

// VectorStore is a Collection backed by Qdrant over gRPC.
type VectorStore struct {
	conn        *grpc.ClientConn
	points      PointsAPI
	collections CollectionsAPI
	collection  string

	mu  sync.Mutex
	dim int
}

var _ Collection = (*VectorStore)(nil)

// New creates a VectorStore connected to Qdrant at the given gRPC address.
func New(addr, collection string) (*VectorStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	return &VectorStore{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}, nil
}

// NewWithClients builds a VectorStore over existing clients.
func NewWithClients(points PointsAPI, collections CollectionsAPI, collection string) *VectorStore {
	return &VectorStore{points: points, collections: collections, collection: collection}
}

// Close closes the underlying gRPC connection, if any.
func (v *VectorStore) Close() error {
	if v.conn == nil {
		return nil
	}
	return v.conn.Close()
}

// EnsureCollection creates the collection with cosine distance if missing.
func (v *VectorStore) EnsureCollection(ctx context.Context, dims int) error {
	if dims <= 0 {
		return fmt.Errorf("semantic: ensure collection %s: dimension must be positive, got %d", v.collection, dims)
	}
	list, err := v.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("semantic: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == v.collection {
			return nil
		}
	}

	_, err = v.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: v.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: create collection %s: %w", v.collection, err)
	}
	v.mu.Lock()
	v.dim = dims
	v.mu.Unlock()
	return nil
}

// Dimension reads the vector size from the collection info. A missing
// collection reports 0.
func (v *VectorStore) Dimension(ctx context.Context) (int, error) {
	v.mu.Lock()
	dim := v.dim
	v.mu.Unlock()
	if dim > 0 {
		return dim, nil
	}

	info, err := v.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: v.collection})
	if status.Code(err) == codes.NotFound {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("semantic: collection info %s: %w", v.collection, err)
	}
	size := int(info.GetResult().GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize())
	if size > 0 {
		v.mu.Lock()
		v.dim = size
		v.mu.Unlock()
	}
	return size, nil
}

// Append stores rec as a new point with a random id.
func (v *VectorStore) Append(ctx context.Context, rec domain.IndexRecord) error {
	point := &pb.PointStruct{
		Id: &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: uuid.NewString()}},
		Vectors: &pb.Vectors{
			VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: rec.Vector}},
		},
		Payload: map[string]*pb.Value{
			fieldText:       {Kind: &pb.Value_StringValue{StringValue: rec.Text}},
			fieldSourceFile: {Kind: &pb.Value_StringValue{StringValue: rec.SourceFile}},
			fieldTimestamp:  {Kind: &pb.Value_IntegerValue{IntegerValue: rec.TimestampMs}},
		},
	}

	wait := true
	_, err := v.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: v.collection,
		Wait:           &wait,
		Points:         []*pb.PointStruct{point},
	})
	if err != nil {
		return fmt.Errorf("semantic: append %s: %w", rec.SourceFile, err)
	}
	return nil
}

// Query runs a k-NN search and decodes the payloads back into records.
// Returned records carry no vector.
func (v *VectorStore) Query(ctx context.Context, vector []float32, k int) ([]domain.Hit, error) {
	if k <= 0 {
		return []domain.Hit{}, nil
	}
	resp, err := v.points.Search(ctx, &pb.SearchPoints{
		CollectionName: v.collection,
		Vector:         vector,
		Limit:          uint64(k),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("semantic: search: %w", err)
	}

	hits := make([]domain.Hit, 0, len(resp.GetResult()))
	for _, r := range resp.GetResult() {
		p := r.GetPayload()
		hits = append(hits, domain.Hit{
			Score: r.GetScore(),
			Record: domain.IndexRecord{
				Text:        p[fieldText].GetStringValue(),
				SourceFile:  p[fieldSourceFile].GetStringValue(),
				TimestampMs: p[fieldTimestamp].GetIntegerValue(),
			},
		})
	}
	return hits, nil
}
