package storage

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStorage implements Storage using MongoDB, for deployments that
// already centralize their document stores there instead of a
// relational database.
type MongoStorage struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoStorage connects to MongoDB and ensures the effect_runs
// collection has its lookup indexes.
func NewMongoStorage(cfg Config) (*MongoStorage, error) {
	uri := fmt.Sprintf("mongodb://%s:%d", cfg.Host, cfg.Port)
	if cfg.User != "" {
		uri = fmt.Sprintf("mongodb://%s:%s@%s:%d", cfg.User, cfg.Password, cfg.Host, cfg.Port)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	dbName := cfg.DBName
	if dbName == "" {
		dbName = "ambientled"
	}
	coll := client.Database(dbName).Collection("effect_runs")

	if _, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "instance", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
	}); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	return &MongoStorage{client: client, coll: coll}, nil
}

// SaveRun upserts a run into the collection, keyed by its id.
func (s *MongoStorage) SaveRun(run *EffectRun) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": run.ID}, toDocument(run), options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by id.
func (s *MongoStorage) GetRun(id string) (*EffectRun, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var doc runDocument
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("run not found: %s", id)
		}
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	return doc.toRun(), nil
}

// ListRuns returns every recorded run, most recently started first.
func (s *MongoStorage) ListRuns() ([]*EffectRun, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cur, err := s.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "started_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer cur.Close(ctx)

	runs := []*EffectRun{}
	for cur.Next(ctx) {
		var doc runDocument
		if err := cur.Decode(&doc); err != nil {
			continue
		}
		runs = append(runs, doc.toRun())
	}
	return runs, nil
}

// DeleteRun removes a run by id.
func (s *MongoStorage) DeleteRun(id string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("run not found: %s", id)
	}
	return nil
}

// UpdateRun updates an existing run.
func (s *MongoStorage) UpdateRun(run *EffectRun) error {
	return s.SaveRun(run)
}

// Close disconnects the Mongo client.
func (s *MongoStorage) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// runDocument mirrors EffectRun with a Mongo-friendly _id field.
type runDocument struct {
	ID          string                 `bson:"_id"`
	Instance    string                 `bson:"instance"`
	Effect      string                 `bson:"effect"`
	Priority    int                    `bson:"priority"`
	Args        map[string]interface{} `bson:"args"`
	Status      RunStatus              `bson:"status"`
	Error       string                 `bson:"error,omitempty"`
	StartedAt   time.Time              `bson:"started_at"`
	CompletedAt time.Time              `bson:"completed_at,omitempty"`
}

func toDocument(run *EffectRun) runDocument {
	return runDocument{
		ID: run.ID, Instance: run.Instance, Effect: run.Effect, Priority: run.Priority,
		Args: run.Args, Status: run.Status, Error: run.Error,
		StartedAt: run.StartedAt, CompletedAt: run.CompletedAt,
	}
}

func (d runDocument) toRun() *EffectRun {
	return &EffectRun{
		ID: d.ID, Instance: d.Instance, Effect: d.Effect, Priority: d.Priority,
		Args: d.Args, Status: d.Status, Error: d.Error,
		StartedAt: d.StartedAt, CompletedAt: d.CompletedAt,
	}
}
