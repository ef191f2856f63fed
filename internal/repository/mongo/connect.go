// Package mongo holds the MongoDB-backed repositories: search cache,
// pending confirmations and download history.
package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	cacheCollection   = "search_cache"
	pendingCollection = "pending_confirmations"
	historyCollection = "download_history"
)

func Connect(ctx context.Context, uri string, extra ...*options.ClientOptions) (*mongo.Client, error) {
	opts := append([]*options.ClientOptions{options.Client().ApplyURI(uri)}, extra...)
	client, err := mongo.Connect(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// EnsureIndexes creates the indexes all three repositories rely on.
func EnsureIndexes(ctx context.Context, repos ...interface {
	EnsureIndexes(ctx context.Context) error
}) error {
	for _, repo := range repos {
		if err := repo.EnsureIndexes(ctx); err != nil {
			return err
		}
	}
	return nil
}
