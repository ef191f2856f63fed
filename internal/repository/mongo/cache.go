package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/brabijan/webshare-arr-connector/internal/domain"
)

// CacheRepository persists search cache entries in the search_cache
// collection. Expiry is interpreted by the caller; documents leave the
// collection only through DeleteExpired.
type CacheRepository struct {
	collection *mongo.Collection
}

type cacheDoc struct {
	Key        string         `bson:"_id"`
	Results    []candidateDoc `bson:"results"`
	CreatedAt  int64          `bson:"createdAt"`
	TTLSeconds int64          `bson:"ttlSeconds"`
	ExpiresAt  int64          `bson:"expiresAt"`
}

func NewCacheRepository(client *mongo.Client, dbName string) *CacheRepository {
	return &CacheRepository{collection: client.Database(dbName).Collection(cacheCollection)}
}

func (r *CacheRepository) EnsureIndexes(ctx context.Context) error {
	if r == nil || r.collection == nil {
		return nil
	}
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "expiresAt", Value: 1}}},
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
	}
	_, err := r.collection.Indexes().CreateMany(ctx, models)
	return err
}

func (r *CacheRepository) Get(ctx context.Context, key string) (domain.CacheEntry, error) {
	var doc cacheDoc
	if err := r.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.CacheEntry{}, domain.ErrNotFound
		}
		return domain.CacheEntry{}, err
	}
	return fromCacheDoc(doc), nil
}

func (r *CacheRepository) Put(ctx context.Context, entry domain.CacheEntry) error {
	doc := toCacheDoc(entry)
	opts := options.Replace().SetUpsert(true)
	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": doc.Key}, doc, opts)
	return err
}

func (r *CacheRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.collection.DeleteMany(ctx, bson.M{"expiresAt": bson.M{"$lte": now.Unix()}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func toCacheDoc(entry domain.CacheEntry) cacheDoc {
	results := make([]candidateDoc, 0, len(entry.Results))
	for _, candidate := range entry.Results {
		results = append(results, toCandidateDoc(candidate))
	}
	return cacheDoc{
		Key:        entry.Key,
		Results:    results,
		CreatedAt:  entry.CreatedAt.Unix(),
		TTLSeconds: int64(entry.TTL / time.Second),
		ExpiresAt:  entry.CreatedAt.Add(entry.TTL).Unix(),
	}
}

func fromCacheDoc(doc cacheDoc) domain.CacheEntry {
	results := make([]domain.RawCandidate, 0, len(doc.Results))
	for _, candidate := range doc.Results {
		results = append(results, fromCandidateDoc(candidate))
	}
	return domain.CacheEntry{
		Key:       doc.Key,
		Results:   results,
		CreatedAt: timeFromUnix(doc.CreatedAt),
		TTL:       time.Duration(doc.TTLSeconds) * time.Second,
	}
}
