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

// PendingRepository persists pending confirmations. The Open->Confirmed
// transition runs as a single FindOneAndUpdate filtered on state, so it is
// atomic at the document level; a losing concurrent confirm never modifies
// anything.
type PendingRepository struct {
	collection *mongo.Collection
}

type pendingDoc struct {
	ID            string      `bson:"_id"`
	Query         queryDoc    `bson:"query"`
	Candidates    []scoredDoc `bson:"candidates"`
	State         string      `bson:"state"`
	SelectedIndex int         `bson:"selectedIndex"`
	CreatedAt     int64       `bson:"createdAt"`
	ConfirmedAt   *int64      `bson:"confirmedAt,omitempty"`
}

func NewPendingRepository(client *mongo.Client, dbName string) *PendingRepository {
	return &PendingRepository{collection: client.Database(dbName).Collection(pendingCollection)}
}

func (r *PendingRepository) EnsureIndexes(ctx context.Context) error {
	if r == nil || r.collection == nil {
		return nil
	}
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "state", Value: 1}, {Key: "createdAt", Value: -1}}},
	}
	_, err := r.collection.Indexes().CreateMany(ctx, models)
	return err
}

func (r *PendingRepository) Create(ctx context.Context, pending domain.PendingConfirmation) error {
	_, err := r.collection.InsertOne(ctx, toPendingDoc(pending))
	return err
}

func (r *PendingRepository) Get(ctx context.Context, id string) (domain.PendingConfirmation, error) {
	var doc pendingDoc
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.PendingConfirmation{}, domain.ErrNotFound
		}
		return domain.PendingConfirmation{}, err
	}
	return fromPendingDoc(doc), nil
}

func (r *PendingRepository) ListOpen(ctx context.Context) ([]domain.PendingConfirmation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := r.collection.Find(ctx, bson.M{"state": string(domain.PendingOpen)}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []pendingDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	pendings := make([]domain.PendingConfirmation, 0, len(docs))
	for _, doc := range docs {
		pendings = append(pendings, fromPendingDoc(doc))
	}
	return pendings, nil
}

func (r *PendingRepository) ConfirmOpen(ctx context.Context, id string, index int, at time.Time) (domain.PendingConfirmation, error) {
	filter := bson.M{"_id": id, "state": string(domain.PendingOpen)}
	update := bson.M{"$set": bson.M{
		"state":         string(domain.PendingConfirmed),
		"selectedIndex": index,
		"confirmedAt":   at.Unix(),
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc pendingDoc
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err == nil {
		return fromPendingDoc(doc), nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return domain.PendingConfirmation{}, err
	}

	// No open document matched: either the id is unknown or the record was
	// already decided.
	if _, getErr := r.Get(ctx, id); getErr != nil {
		return domain.PendingConfirmation{}, getErr
	}
	return domain.PendingConfirmation{}, domain.ErrConfirmationConflict
}

func (r *PendingRepository) ExpireOpenBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.collection.UpdateMany(ctx,
		bson.M{"state": string(domain.PendingOpen), "createdAt": bson.M{"$lt": cutoff.Unix()}},
		bson.M{"$set": bson.M{"state": string(domain.PendingExpired)}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func toPendingDoc(pending domain.PendingConfirmation) pendingDoc {
	candidates := make([]scoredDoc, 0, len(pending.Candidates))
	for _, candidate := range pending.Candidates {
		candidates = append(candidates, toScoredDoc(candidate))
	}
	doc := pendingDoc{
		ID:            pending.ID,
		Query:         toQueryDoc(pending.Query),
		Candidates:    candidates,
		State:         string(pending.State),
		SelectedIndex: pending.SelectedIndex,
		CreatedAt:     pending.CreatedAt.Unix(),
	}
	if pending.ConfirmedAt != nil {
		value := pending.ConfirmedAt.Unix()
		doc.ConfirmedAt = &value
	}
	return doc
}

func fromPendingDoc(doc pendingDoc) domain.PendingConfirmation {
	candidates := make([]domain.ScoredCandidate, 0, len(doc.Candidates))
	for _, candidate := range doc.Candidates {
		candidates = append(candidates, fromScoredDoc(candidate))
	}
	pending := domain.PendingConfirmation{
		ID:            doc.ID,
		Query:         fromQueryDoc(doc.Query),
		Candidates:    candidates,
		State:         domain.PendingState(doc.State),
		SelectedIndex: doc.SelectedIndex,
		CreatedAt:     timeFromUnix(doc.CreatedAt),
	}
	if doc.ConfirmedAt != nil {
		value := timeFromUnix(*doc.ConfirmedAt)
		pending.ConfirmedAt = &value
	}
	return pending
}
