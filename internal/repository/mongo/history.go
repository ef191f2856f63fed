package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/brabijan/webshare-arr-connector/internal/domain"
)

// HistoryRepository persists the append-only download ledger. Records are
// inserted once and removed only by the retention sweep.
type HistoryRepository struct {
	collection *mongo.Collection
}

type historyDoc struct {
	ID          string    `bson:"_id"`
	QueryKey    string    `bson:"queryKey"`
	Chosen      scoredDoc `bson:"chosen"`
	Outcome     string    `bson:"outcome"`
	PackageID   string    `bson:"packageId,omitempty"`
	Error       string    `bson:"error,omitempty"`
	CompletedAt int64     `bson:"completedAt"`
}

func NewHistoryRepository(client *mongo.Client, dbName string) *HistoryRepository {
	return &HistoryRepository{collection: client.Database(dbName).Collection(historyCollection)}
}

func (r *HistoryRepository) EnsureIndexes(ctx context.Context) error {
	if r == nil || r.collection == nil {
		return nil
	}
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "queryKey", Value: 1}}},
		{Keys: bson.D{{Key: "outcome", Value: 1}}},
		{Keys: bson.D{{Key: "completedAt", Value: -1}}},
	}
	_, err := r.collection.Indexes().CreateMany(ctx, models)
	return err
}

func (r *HistoryRepository) Append(ctx context.Context, record domain.HistoryRecord) error {
	_, err := r.collection.InsertOne(ctx, toHistoryDoc(record))
	return err
}

func (r *HistoryRepository) List(ctx context.Context, filter domain.HistoryFilter) ([]domain.HistoryRecord, error) {
	query := bson.M{}
	if filter.QueryKey != "" {
		query["queryKey"] = filter.QueryKey
	}
	if filter.Outcome != "" {
		query["outcome"] = string(filter.Outcome)
	}

	opts := options.Find().SetSort(bson.D{{Key: "completedAt", Value: -1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []historyDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	records := make([]domain.HistoryRecord, 0, len(docs))
	for _, doc := range docs {
		records = append(records, fromHistoryDoc(doc))
	}
	return records, nil
}

func (r *HistoryRepository) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.collection.DeleteMany(ctx, bson.M{"completedAt": bson.M{"$lt": cutoff.Unix()}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func toHistoryDoc(record domain.HistoryRecord) historyDoc {
	return historyDoc{
		ID:          record.ID,
		QueryKey:    record.QueryKey,
		Chosen:      toScoredDoc(record.Chosen),
		Outcome:     string(record.Outcome),
		PackageID:   record.PackageID,
		Error:       record.Error,
		CompletedAt: record.CompletedAt.Unix(),
	}
}

func fromHistoryDoc(doc historyDoc) domain.HistoryRecord {
	return domain.HistoryRecord{
		ID:          doc.ID,
		QueryKey:    doc.QueryKey,
		Chosen:      fromScoredDoc(doc.Chosen),
		Outcome:     domain.HistoryOutcome(doc.Outcome),
		PackageID:   doc.PackageID,
		Error:       doc.Error,
		CompletedAt: timeFromUnix(doc.CompletedAt),
	}
}
