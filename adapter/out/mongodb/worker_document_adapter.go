package mongodb

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"calsync_server/core/port/out"
)

const collectionDocuments = "documents"

// documentModel stores one JSON document. _id is "bucket:key".
type documentModel struct {
	ID        string    `bson:"_id"`
	Bucket    string    `bson:"bucket"`
	Key       string    `bson:"key"`
	Body      []byte    `bson:"body"`
	Version   int64     `bson:"version"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// DocumentAdapter implements out.DocumentStore on a Mongo collection with an
// integer version counter per document.
type DocumentAdapter struct {
	collection *mongo.Collection
}

func NewDocumentAdapter(db *mongo.Database) *DocumentAdapter {
	return &DocumentAdapter{collection: db.Collection(collectionDocuments)}
}

var _ out.DocumentStore = (*DocumentAdapter)(nil)

// EnsureIndexes creates the listing index.
func (a *DocumentAdapter) EnsureIndexes(ctx context.Context) error {
	_, err := a.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "bucket", Value: 1}, {Key: "key", Value: 1}},
	})
	return err
}

func documentID(bucket, key string) string { return bucket + ":" + key }

func (a *DocumentAdapter) Get(ctx context.Context, bucket, key string) (*out.Document, error) {
	var doc documentModel
	err := a.collection.FindOne(ctx, bson.M{"_id": documentID(bucket, key)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, out.ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find document: %w", err)
	}
	return &out.Document{Body: doc.Body, Version: strconv.FormatInt(doc.Version, 10)}, nil
}

func (a *DocumentAdapter) Put(ctx context.Context, bucket, key string, body []byte, cond out.WriteCondition) (string, error) {
	id := documentID(bucket, key)
	now := time.Now()

	if cond.IfAbsent {
		_, err := a.collection.InsertOne(ctx, documentModel{
			ID: id, Bucket: bucket, Key: key, Body: body, Version: 1, UpdatedAt: now,
		})
		if mongo.IsDuplicateKeyError(err) {
			return "", out.ErrVersionConflict
		}
		if err != nil {
			return "", fmt.Errorf("insert document: %w", err)
		}
		return "1", nil
	}

	filter := bson.M{"_id": id}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	if cond.IfVersion != "" {
		v, err := strconv.ParseInt(cond.IfVersion, 10, 64)
		if err != nil {
			return "", out.ErrVersionConflict
		}
		filter["version"] = v
	} else {
		opts.SetUpsert(true)
	}

	update := bson.M{
		"$set": bson.M{"bucket": bucket, "key": key, "body": body, "updated_at": now},
		"$inc": bson.M{"version": int64(1)},
	}

	var doc documentModel
	err := a.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", out.ErrVersionConflict
	}
	if err != nil {
		return "", fmt.Errorf("update document: %w", err)
	}
	return strconv.FormatInt(doc.Version, 10), nil
}

func (a *DocumentAdapter) Exists(ctx context.Context, bucket, key string) (bool, error) {
	n, err := a.collection.CountDocuments(ctx, bson.M{"_id": documentID(bucket, key)}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("count documents: %w", err)
	}
	return n > 0, nil
}

func (a *DocumentAdapter) ListChildKeys(ctx context.Context, bucket, prefix string) ([]string, error) {
	filter := bson.M{
		"bucket": bucket,
		"key":    bson.M{"$regex": "^" + regexp.QuoteMeta(prefix)},
	}
	cursor, err := a.collection.Find(ctx, filter, options.Find().SetProjection(bson.M{"key": 1}))
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer cursor.Close(ctx)

	seen := make(map[string]struct{})
	for cursor.Next(ctx) {
		var doc struct {
			Key string `bson:"key"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode document key: %w", err)
		}
		rest := strings.TrimPrefix(doc.Key, prefix)
		if idx := strings.Index(rest, "/"); idx > 0 {
			seen[prefix+rest[:idx+1]] = struct{}{}
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
