package legacy

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Collection names in the legacy database
const (
	BatchesCollection = "batches"
	UsersCollection   = "users"
	VideosCollection  = "classroomVideos"
)

// MongoReader reads the legacy collections from MongoDB
type MongoReader struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ Reader = (*MongoReader)(nil)

// ConnectMongo opens a read-only session against the legacy database.
func ConnectMongo(ctx context.Context, uri, database string) (*MongoReader, error) {
	if uri == "" || database == "" {
		return nil, fmt.Errorf("legacy mongo uri and database are required")
	}
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to legacy mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping legacy mongo: %w", err)
	}
	return &MongoReader{client: client, db: client.Database(database)}, nil
}

// Close disconnects from MongoDB
func (m *MongoReader) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func (m *MongoReader) ListBatches(ctx context.Context) ([]Batch, error) {
	docs, err := m.findAll(ctx, BatchesCollection)
	if err != nil {
		return nil, err
	}
	out := make([]Batch, 0, len(docs))
	for _, d := range docs {
		out = append(out, BatchFromDocument("", d))
	}
	return out, nil
}

func (m *MongoReader) ListUsers(ctx context.Context) ([]User, error) {
	docs, err := m.findAll(ctx, UsersCollection)
	if err != nil {
		return nil, err
	}
	out := make([]User, 0, len(docs))
	for _, d := range docs {
		out = append(out, UserFromDocument("", d))
	}
	return out, nil
}

func (m *MongoReader) ListVideos(ctx context.Context) ([]Video, error) {
	docs, err := m.findAll(ctx, VideosCollection)
	if err != nil {
		return nil, err
	}
	out := make([]Video, 0, len(docs))
	for _, d := range docs {
		out = append(out, VideoFromDocument("", d))
	}
	return out, nil
}

// findAll returns every document of a collection ordered by _id.
func (m *MongoReader) findAll(ctx context.Context, collection string) ([]Document, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := m.db.Collection(collection).Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", collection, err)
	}
	defer cursor.Close(ctx)

	var raw []bson.M
	if err := cursor.All(ctx, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", collection, err)
	}
	docs := make([]Document, 0, len(raw))
	for _, r := range raw {
		docs = append(docs, FromBSON(r))
	}
	return docs, nil
}

// FromBSON converts a decoded BSON document into a Document of plain Go values.
func FromBSON(m bson.M) Document {
	doc := make(Document, len(m))
	for k, v := range m {
		doc[k] = plainValue(v)
	}
	return doc
}

func plainValue(v any) any {
	switch t := v.(type) {
	case bson.ObjectID:
		return t.Hex()
	case bson.DateTime:
		return t.Time().UTC()
	case bson.Timestamp:
		return int64(t.T)
	case bson.M:
		return map[string]any(FromBSON(t))
	case bson.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = plainValue(e.Value)
		}
		return m
	case bson.A:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = plainValue(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = plainValue(item)
		}
		return out
	case int32:
		return int64(t)
	default:
		return v
	}
}
