package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Protocol-Lattice/engram/pkg/memory/model"
)

// MongoBackend implements Backend on MongoDB. Entry ids come from a counter
// collection so insertion order stays encoded in the id.
type MongoBackend struct {
	client            *mongo.Client
	entries           *mongo.Collection
	requests          *mongo.Collection
	counterCollection *mongo.Collection
}

const mongoCloseTimeout = 5 * time.Second

func NewMongoBackend(ctx context.Context, uri, database string) (*MongoBackend, error) {
	if uri == "" {
		return nil, errors.New("mongo uri is required")
	}
	if database == "" {
		return nil, errors.New("mongo database name is required")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	db := client.Database(database)
	return &MongoBackend{
		client:            client,
		entries:           db.Collection("memory_entries"),
		requests:          db.Collection("deletion_requests"),
		counterCollection: db.Collection("counters"),
	}, nil
}

func (mb *MongoBackend) PutEntry(ctx context.Context, entry model.VectorEntry) (model.VectorEntry, error) {
	if mb == nil || mb.entries == nil {
		return entry, nil
	}
	if entry.ID == 0 {
		id, err := mb.nextID(ctx)
		if err != nil {
			return model.VectorEntry{}, err
		}
		entry.ID = id
		if _, err := mb.entries.InsertOne(ctx, entryDocument(entry)); err != nil {
			return model.VectorEntry{}, err
		}
		return entry, nil
	}
	res, err := mb.entries.ReplaceOne(ctx, bson.M{"_id": entry.ID}, entryDocument(entry))
	if err != nil {
		return model.VectorEntry{}, err
	}
	if res.MatchedCount == 0 {
		return model.VectorEntry{}, fmt.Errorf("put entry %d: %w", entry.ID, model.ErrNotFound)
	}
	return entry, nil
}

func (mb *MongoBackend) GetEntry(ctx context.Context, id int64) (model.VectorEntry, error) {
	if mb == nil || mb.entries == nil {
		return model.VectorEntry{}, fmt.Errorf("entry %d: %w", id, model.ErrNotFound)
	}
	var doc mongoEntryDocument
	err := mb.entries.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.VectorEntry{}, fmt.Errorf("entry %d: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return model.VectorEntry{}, err
	}
	return doc.toEntry(), nil
}

func (mb *MongoBackend) DeleteEntries(ctx context.Context, ids []int64) (int, error) {
	if mb == nil || mb.entries == nil || len(ids) == 0 {
		return 0, nil
	}
	res, err := mb.entries.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return 0, err
	}
	return int(res.DeletedCount), nil
}

func (mb *MongoBackend) ScanEntries(ctx context.Context, q EntryQuery) ([]model.VectorEntry, error) {
	if mb == nil || mb.entries == nil {
		return nil, nil
	}
	filter := bson.M{}
	if q.UserID != "" {
		filter["user_id"] = q.UserID
	}
	if q.Namespace != "" {
		filter["namespace"] = string(q.Namespace)
	}
	if q.ContentHash != "" {
		filter["content_hash"] = q.ContentHash
	}
	if q.Marked != nil {
		filter["marked_for_deletion"] = *q.Marked
	}
	if !q.DueBefore.IsZero() {
		filter["scheduled_deletion_at"] = bson.M{"$ne": nil, "$lte": q.DueBefore}
	}
	created := bson.M{}
	if !q.CreatedAfter.IsZero() {
		created["$gte"] = q.CreatedAfter
	}
	if !q.CreatedBefore.IsZero() {
		created["$lte"] = q.CreatedBefore
	}
	if len(created) > 0 {
		filter["created_at"] = created
	}
	if q.AfterID != 0 {
		filter["_id"] = bson.M{"$gt": q.AfterID}
	}
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	cursor, err := mb.entries.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var out []model.VectorEntry
	for cursor.Next(ctx) {
		var doc mongoEntryDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toEntry())
	}
	return out, cursor.Err()
}

func (mb *MongoBackend) CountEntries(ctx context.Context, userID string, ns model.Namespace) (int, error) {
	if mb == nil || mb.entries == nil {
		return 0, nil
	}
	filter := bson.M{}
	if userID != "" {
		filter["user_id"] = userID
	}
	if ns != "" {
		filter["namespace"] = string(ns)
	}
	count, err := mb.entries.CountDocuments(ctx, filter)
	return int(count), err
}

func (mb *MongoBackend) PutRequest(ctx context.Context, req model.DeletionRequest) error {
	if mb == nil || mb.requests == nil {
		return nil
	}
	opts := options.Replace().SetUpsert(true)
	_, err := mb.requests.ReplaceOne(ctx, bson.M{"_id": req.ID}, requestDocument(req), opts)
	return err
}

func (mb *MongoBackend) GetRequest(ctx context.Context, id string) (model.DeletionRequest, error) {
	if mb == nil || mb.requests == nil {
		return model.DeletionRequest{}, fmt.Errorf("deletion request %s: %w", id, model.ErrNotFound)
	}
	var doc mongoRequestDocument
	err := mb.requests.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.DeletionRequest{}, fmt.Errorf("deletion request %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return model.DeletionRequest{}, err
	}
	return doc.toRequest(), nil
}

func (mb *MongoBackend) ScanRequests(ctx context.Context, q RequestQuery) ([]model.DeletionRequest, error) {
	if mb == nil || mb.requests == nil {
		return nil, nil
	}
	filter := bson.M{}
	if q.UserID != "" {
		filter["user_id"] = q.UserID
	}
	if q.Status != "" {
		filter["status"] = string(q.Status)
	}
	if !q.DueBefore.IsZero() {
		filter["scheduled_for"] = bson.M{"$lte": q.DueBefore}
	}
	opts := options.Find().SetSort(bson.D{{Key: "requested_at", Value: 1}})
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	cursor, err := mb.requests.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var out []model.DeletionRequest
	for cursor.Next(ctx) {
		var doc mongoRequestDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toRequest())
	}
	return out, cursor.Err()
}

// CreateSchema ensures the collections carry the indexes the scan predicates
// rely on and initializes the counter collection.
func (mb *MongoBackend) CreateSchema(ctx context.Context) error {
	if mb == nil || mb.entries == nil {
		return nil
	}
	entryIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "namespace", Value: 1}, {Key: "content_hash", Value: 1}},
			Options: options.Index().SetName("dedup_triple").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "namespace", Value: 1}, {Key: "_id", Value: 1}},
			Options: options.Index().SetName("owner_scan"),
		},
		{
			Keys:    bson.D{{Key: "marked_for_deletion", Value: 1}, {Key: "scheduled_deletion_at", Value: 1}},
			Options: options.Index().SetName("purge_due"),
		},
	}
	if _, err := mb.entries.Indexes().CreateMany(ctx, entryIndexes); err != nil {
		return err
	}
	if mb.requests != nil {
		_, err := mb.requests.Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "scheduled_for", Value: 1}},
			Options: options.Index().SetName("request_due"),
		})
		if err != nil {
			return err
		}
	}
	if mb.counterCollection != nil {
		_, err := mb.counterCollection.Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    bson.D{{Key: "_id", Value: 1}},
			Options: options.Index().SetName("counter_id").SetUnique(true),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (mb *MongoBackend) nextID(ctx context.Context) (int64, error) {
	if mb.counterCollection == nil {
		return 0, errors.New("mongo counter collection is not configured")
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	res := mb.counterCollection.FindOneAndUpdate(ctx, bson.M{"_id": mb.entries.Name()},
		bson.M{"$inc": bson.M{"seq": 1}}, opts)
	if res.Err() != nil {
		return 0, res.Err()
	}
	var doc struct {
		Seq int64 `bson:"seq"`
	}
	if err := res.Decode(&doc); err != nil {
		return 0, err
	}
	return doc.Seq, nil
}

// Close releases the underlying MongoDB client.
func (mb *MongoBackend) Close() error {
	if mb == nil || mb.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), mongoCloseTimeout)
	defer cancel()
	return mb.client.Disconnect(ctx)
}

type mongoEntryDocument struct {
	ID                  int64               `bson:"_id"`
	UserID              string              `bson:"user_id"`
	Namespace           string              `bson:"namespace"`
	Content             string              `bson:"content"`
	ContentHash         string              `bson:"content_hash"`
	Embedding           []float64           `bson:"embedding"`
	Metadata            model.EntryMetadata `bson:"metadata"`
	CreatedAt           time.Time           `bson:"created_at"`
	LastAccessedAt      time.Time           `bson:"last_accessed_at"`
	AccessCount         int                 `bson:"access_count"`
	Confidence          float64             `bson:"confidence"`
	MarkedForDeletion   bool                `bson:"marked_for_deletion"`
	ScheduledDeletionAt *time.Time          `bson:"scheduled_deletion_at,omitempty"`
}

func entryDocument(entry model.VectorEntry) mongoEntryDocument {
	doc := mongoEntryDocument{
		ID:                entry.ID,
		UserID:            entry.UserID,
		Namespace:         string(entry.Namespace),
		Content:           entry.Content,
		ContentHash:       entry.ContentHash,
		Embedding:         float64Embedding(entry.Embedding),
		Metadata:          entry.Metadata,
		CreatedAt:         entry.CreatedAt,
		LastAccessedAt:    entry.LastAccessedAt,
		AccessCount:       entry.AccessCount,
		Confidence:        entry.Confidence,
		MarkedForDeletion: entry.MarkedForDeletion,
	}
	if !entry.ScheduledDeletionAt.IsZero() {
		scheduled := entry.ScheduledDeletionAt
		doc.ScheduledDeletionAt = &scheduled
	}
	return doc
}

func (doc mongoEntryDocument) toEntry() model.VectorEntry {
	entry := model.VectorEntry{
		ID:                doc.ID,
		UserID:            doc.UserID,
		Namespace:         model.Namespace(doc.Namespace),
		Content:           doc.Content,
		ContentHash:       doc.ContentHash,
		Embedding:         float32Embedding(doc.Embedding),
		Metadata:          doc.Metadata,
		CreatedAt:         doc.CreatedAt,
		LastAccessedAt:    doc.LastAccessedAt,
		AccessCount:       doc.AccessCount,
		Confidence:        doc.Confidence,
		MarkedForDeletion: doc.MarkedForDeletion,
	}
	if doc.ScheduledDeletionAt != nil {
		entry.ScheduledDeletionAt = *doc.ScheduledDeletionAt
	}
	return entry
}

type mongoRequestDocument struct {
	ID           string     `bson:"_id"`
	UserID       string     `bson:"user_id"`
	RequestType  string     `bson:"request_type"`
	Namespaces   []string   `bson:"namespaces,omitempty"`
	VectorIDs    []int64    `bson:"vector_ids,omitempty"`
	RequestedAt  time.Time  `bson:"requested_at"`
	ScheduledFor time.Time  `bson:"scheduled_for"`
	Status       string     `bson:"status"`
	CompletedAt  *time.Time `bson:"completed_at,omitempty"`
	ItemsDeleted int        `bson:"items_deleted"`
	Error        string     `bson:"error,omitempty"`
}

func requestDocument(req model.DeletionRequest) mongoRequestDocument {
	doc := mongoRequestDocument{
		ID:           req.ID,
		UserID:       req.UserID,
		RequestType:  string(req.Scope.Type),
		VectorIDs:    req.Scope.VectorIDs,
		RequestedAt:  req.RequestedAt,
		ScheduledFor: req.ScheduledFor,
		Status:       string(req.Status),
		ItemsDeleted: req.ItemsDeleted,
		Error:        req.Error,
	}
	for _, ns := range req.Scope.Namespaces {
		doc.Namespaces = append(doc.Namespaces, string(ns))
	}
	if !req.CompletedAt.IsZero() {
		completed := req.CompletedAt
		doc.CompletedAt = &completed
	}
	return doc
}

func (doc mongoRequestDocument) toRequest() model.DeletionRequest {
	req := model.DeletionRequest{
		ID:           doc.ID,
		UserID:       doc.UserID,
		RequestedAt:  doc.RequestedAt,
		ScheduledFor: doc.ScheduledFor,
		Status:       model.DeletionStatus(doc.Status),
		ItemsDeleted: doc.ItemsDeleted,
		Error:        doc.Error,
	}
	req.Scope.Type = model.DeletionType(doc.RequestType)
	req.Scope.VectorIDs = doc.VectorIDs
	for _, ns := range doc.Namespaces {
		req.Scope.Namespaces = append(req.Scope.Namespaces, model.Namespace(ns))
	}
	if doc.CompletedAt != nil {
		req.CompletedAt = *doc.CompletedAt
	}
	return req
}

func float64Embedding(vec []float32) []float64 {
	if len(vec) == 0 {
		return nil
	}
	out := make([]float64, len(vec))
	for i, v := range vec {
		out[i] = float64(v)
	}
	return out
}

func float32Embedding(vec []float64) []float32 {
	if len(vec) == 0 {
		return nil
	}
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(v)
	}
	return out
}
