package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/matzehuels/canvasgraph/pkg/canvas"
	"github.com/matzehuels/canvasgraph/pkg/graph"
)

// CollectionCanvases holds one document per canvas.
const CollectionCanvases = "canvases"

// MongoConfig addresses the database.
type MongoConfig struct {
	URI      string
	Database string
}

// MongoStore persists snapshots in MongoDB, one document per canvas keyed
// by canvas id.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	owned  bool
}

type canvasDocument struct {
	ID        string        `bson:"_id"`
	Version   uint64        `bson:"version"`
	Nodes     []canvas.Node `bson:"nodes"`
	Edges     []canvas.Edge `bson:"edges"`
	UpdatedAt time.Time     `bson:"updatedAt"`
}

// NewMongoStore connects and pings the server.
func NewMongoStore(ctx context.Context, cfg MongoConfig) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	s := NewMongoStoreFromDatabase(client.Database(cfg.Database))
	s.owned = true
	return s, nil
}

// NewMongoStoreFromDatabase uses an existing connection. Close leaves the
// client connected.
func NewMongoStoreFromDatabase(db *mongo.Database) *MongoStore {
	return &MongoStore{client: db.Client(), coll: db.Collection(CollectionCanvases)}
}

func (s *MongoStore) Load(ctx context.Context, canvasID string) (graph.Snapshot, error) {
	var doc canvasDocument
	err := s.coll.FindOne(ctx, bson.M{"_id": canvasID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return graph.Snapshot{}, ErrNotFound
	}
	if err != nil {
		return graph.Snapshot{}, fmt.Errorf("load canvas %s: %w", canvasID, err)
	}
	return graph.Snapshot{CanvasID: doc.ID, Version: doc.Version, Nodes: doc.Nodes, Edges: doc.Edges}, nil
}

func (s *MongoStore) Save(ctx context.Context, snap graph.Snapshot) error {
	if err := checkID(snap.CanvasID); err != nil {
		return err
	}
	doc := canvasDocument{
		ID:        snap.CanvasID,
		Version:   snap.Version,
		Nodes:     snap.Nodes,
		Edges:     snap.Edges,
		UpdatedAt: time.Now().UTC(),
	}
	if doc.Nodes == nil {
		doc.Nodes = []canvas.Node{}
	}
	if doc.Edges == nil {
		doc.Edges = []canvas.Edge{}
	}
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": snap.CanvasID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save canvas %s: %w", snap.CanvasID, err)
	}
	return nil
}

func (s *MongoStore) Delete(ctx context.Context, canvasID string) error {
	if _, err := s.coll.DeleteOne(ctx, bson.M{"_id": canvasID}); err != nil {
		return fmt.Errorf("delete canvas %s: %w", canvasID, err)
	}
	return nil
}

func (s *MongoStore) Close() error {
	if !s.owned {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

var _ Store = (*MongoStore)(nil)
