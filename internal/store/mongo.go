package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/rezonia/nfe-conferencia/internal/model"
)

const (
	defaultMongoDatabase = "nfe_conferencia"
	rowsCollection       = "conferencias"
)

// Mongo stores rows as documents keyed by polo
type Mongo struct {
	mc   *mongo.Client
	rows *mongo.Collection
}

type mongoRow struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Row       model.Row          `bson:",inline"`
	CreatedAt time.Time          `bson:"criado_em"`
}

// NewMongo connects to MongoDB and prepares the rows collection
func NewMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	if uri == "" {
		return nil, fmt.Errorf("store: mongo uri is required")
	}
	if database == "" {
		database = defaultMongoDatabase
	}

	mc, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("store: mongo connect: %w", err)
	}
	if err := mc.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("store: mongo ping: %w", err)
	}

	m := &Mongo{mc: mc, rows: mc.Database(database).Collection(rowsCollection)}
	if err := m.ensureIndices(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Mongo) ensureIndices(ctx context.Context) error {
	_, err := m.rows.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "polo", Value: 1}, {Key: "_id", Value: 1}}},
		{Keys: bson.D{{Key: "chave_acesso", Value: 1}}},
		{Keys: bson.D{{Key: "conferencia_id", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("store: mongo indices: %w", err)
	}
	return nil
}

// Append inserts rows in one batch
func (m *Mongo) Append(ctx context.Context, polo string, rows []model.Row) error {
	if polo == "" {
		return ErrNoPolo
	}
	if len(rows) == 0 {
		return nil
	}

	now := time.Now().UTC()
	docs := make([]interface{}, 0, len(rows))
	for _, r := range rows {
		r.Polo = polo
		docs = append(docs, mongoRow{Row: r, CreatedAt: now})
	}
	// Ordered inserts keep ObjectIDs increasing within the batch
	if _, err := m.rows.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true)); err != nil {
		return fmt.Errorf("store: mongo insert: %w", err)
	}
	return nil
}

// LoadAll returns the rows of polo sorted by insertion
func (m *Mongo) LoadAll(ctx context.Context, polo string) ([]model.Row, error) {
	if polo == "" {
		return nil, ErrNoPolo
	}

	cur, err := m.rows.Find(ctx, bson.M{"polo": polo}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("store: mongo find: %w", err)
	}
	defer cur.Close(ctx)

	var docs []mongoRow
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("store: mongo decode: %w", err)
	}

	rows := make([]model.Row, 0, len(docs))
	for _, d := range docs {
		rows = append(rows, d.Row)
	}
	return rows, nil
}

// Close disconnects the client
func (m *Mongo) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.mc.Disconnect(ctx)
}
