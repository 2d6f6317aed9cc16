package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Protocol-Lattice/engram/pkg/memory/model"
)

// PostgresBackend implements Backend using Postgres + pgvector.
type PostgresBackend struct {
	DB *pgxpool.Pool
}

// NewPostgresBackend connects to Postgres and returns a Postgres-backed
// Backend implementation.
func NewPostgresBackend(ctx context.Context, connStr string) (*PostgresBackend, error) {
	db, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	return &PostgresBackend{DB: db}, nil
}

const postgresSchema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS memory_entries (
    id BIGSERIAL PRIMARY KEY,
    user_id TEXT NOT NULL,
    namespace TEXT NOT NULL,
    content TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    embedding vector(1536),
    metadata JSONB,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    last_accessed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    access_count INTEGER NOT NULL DEFAULT 1,
    confidence DOUBLE PRECISION NOT NULL DEFAULT 0.5,
    marked_for_deletion BOOLEAN NOT NULL DEFAULT FALSE,
    scheduled_deletion_at TIMESTAMPTZ
);

CREATE UNIQUE INDEX IF NOT EXISTS memory_entries_dedup_idx
    ON memory_entries (user_id, namespace, content_hash);
CREATE INDEX IF NOT EXISTS memory_entries_owner_idx
    ON memory_entries (user_id, namespace, id);
CREATE INDEX IF NOT EXISTS memory_entries_purge_idx
    ON memory_entries (marked_for_deletion, scheduled_deletion_at);

CREATE TABLE IF NOT EXISTS deletion_requests (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    request_type TEXT NOT NULL,
    namespaces TEXT[],
    vector_ids BIGINT[],
    requested_at TIMESTAMPTZ NOT NULL,
    scheduled_for TIMESTAMPTZ NOT NULL,
    status TEXT NOT NULL,
    completed_at TIMESTAMPTZ,
    items_deleted INTEGER NOT NULL DEFAULT 0,
    error TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS deletion_requests_due_idx
    ON deletion_requests (status, scheduled_for);
`

// CreateSchema ensures the pgvector extension, tables and indexes exist.
func (pb *PostgresBackend) CreateSchema(ctx context.Context) error {
	if pb == nil || pb.DB == nil {
		return nil
	}
	if _, err := pb.DB.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

func (pb *PostgresBackend) PutEntry(ctx context.Context, entry model.VectorEntry) (model.VectorEntry, error) {
	if pb == nil || pb.DB == nil {
		return entry, nil
	}
	metadataJSON, _ := json.Marshal(entry.Metadata)
	if entry.ID == 0 {
		err := pb.DB.QueryRow(ctx, `
                INSERT INTO memory_entries
                        (user_id, namespace, content, content_hash, embedding, metadata,
                         created_at, last_accessed_at, access_count, confidence,
                         marked_for_deletion, scheduled_deletion_at)
                VALUES ($1, $2, $3, $4, $5::vector, $6::jsonb, $7, $8, $9, $10, $11, $12)
                RETURNING id;
        `, entry.UserID, entry.Namespace, entry.Content, entry.ContentHash,
			vectorLiteral(entry.Embedding), metadataJSON,
			entry.CreatedAt, entry.LastAccessedAt, entry.AccessCount, entry.Confidence,
			entry.MarkedForDeletion, nullableTime(entry.ScheduledDeletionAt)).Scan(&entry.ID)
		if err != nil {
			return model.VectorEntry{}, err
		}
		return entry, nil
	}
	tag, err := pb.DB.Exec(ctx, `
                UPDATE memory_entries
                SET content = $2, content_hash = $3, embedding = $4::vector, metadata = $5::jsonb,
                    last_accessed_at = $6, access_count = $7, confidence = $8,
                    marked_for_deletion = $9, scheduled_deletion_at = $10
                WHERE id = $1
        `, entry.ID, entry.Content, entry.ContentHash, vectorLiteral(entry.Embedding), metadataJSON,
		entry.LastAccessedAt, entry.AccessCount, entry.Confidence,
		entry.MarkedForDeletion, nullableTime(entry.ScheduledDeletionAt))
	if err != nil {
		return model.VectorEntry{}, err
	}
	if tag.RowsAffected() == 0 {
		return model.VectorEntry{}, fmt.Errorf("put entry %d: %w", entry.ID, model.ErrNotFound)
	}
	return entry, nil
}

const entryColumns = `id, user_id, namespace, content, content_hash, embedding::text,
        metadata::text, created_at, last_accessed_at, access_count, confidence,
        marked_for_deletion, scheduled_deletion_at`

func (pb *PostgresBackend) GetEntry(ctx context.Context, id int64) (model.VectorEntry, error) {
	if pb == nil || pb.DB == nil {
		return model.VectorEntry{}, fmt.Errorf("entry %d: %w", id, model.ErrNotFound)
	}
	row := pb.DB.QueryRow(ctx, `SELECT `+entryColumns+` FROM memory_entries WHERE id = $1`, id)
	entry, err := scanEntryRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.VectorEntry{}, fmt.Errorf("entry %d: %w", id, model.ErrNotFound)
	}
	return entry, err
}

func (pb *PostgresBackend) DeleteEntries(ctx context.Context, ids []int64) (int, error) {
	if pb == nil || pb.DB == nil || len(ids) == 0 {
		return 0, nil
	}
	tag, err := pb.DB.Exec(ctx, `DELETE FROM memory_entries WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (pb *PostgresBackend) ScanEntries(ctx context.Context, q EntryQuery) ([]model.VectorEntry, error) {
	if pb == nil || pb.DB == nil {
		return nil, nil
	}
	conditions := make([]string, 0, 8)
	args := make([]any, 0, 8)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if q.UserID != "" {
		conditions = append(conditions, "user_id = "+arg(q.UserID))
	}
	if q.Namespace != "" {
		conditions = append(conditions, "namespace = "+arg(string(q.Namespace)))
	}
	if q.ContentHash != "" {
		conditions = append(conditions, "content_hash = "+arg(q.ContentHash))
	}
	if q.Marked != nil {
		conditions = append(conditions, "marked_for_deletion = "+arg(*q.Marked))
	}
	if !q.DueBefore.IsZero() {
		conditions = append(conditions, "scheduled_deletion_at IS NOT NULL AND scheduled_deletion_at <= "+arg(q.DueBefore))
	}
	if !q.CreatedAfter.IsZero() {
		conditions = append(conditions, "created_at >= "+arg(q.CreatedAfter))
	}
	if !q.CreatedBefore.IsZero() {
		conditions = append(conditions, "created_at <= "+arg(q.CreatedBefore))
	}
	if q.AfterID != 0 {
		conditions = append(conditions, "id > "+arg(q.AfterID))
	}
	query := `SELECT ` + entryColumns + ` FROM memory_entries`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY id ASC"
	if q.Limit > 0 {
		query += " LIMIT " + arg(q.Limit)
	}
	rows, err := pb.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.VectorEntry
	for rows.Next() {
		entry, err := scanEntryRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (pb *PostgresBackend) CountEntries(ctx context.Context, userID string, ns model.Namespace) (int, error) {
	if pb == nil || pb.DB == nil {
		return 0, nil
	}
	var count int
	err := pb.DB.QueryRow(ctx, `
                SELECT COUNT(*) FROM memory_entries
                WHERE ($1 = '' OR user_id = $1) AND ($2 = '' OR namespace = $2)
        `, userID, string(ns)).Scan(&count)
	return count, err
}

func (pb *PostgresBackend) PutRequest(ctx context.Context, req model.DeletionRequest) error {
	if pb == nil || pb.DB == nil {
		return nil
	}
	namespaces := make([]string, len(req.Scope.Namespaces))
	for i, ns := range req.Scope.Namespaces {
		namespaces[i] = string(ns)
	}
	_, err := pb.DB.Exec(ctx, `
                INSERT INTO deletion_requests
                        (id, user_id, request_type, namespaces, vector_ids, requested_at,
                         scheduled_for, status, completed_at, items_deleted, error)
                VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
                ON CONFLICT (id) DO UPDATE SET
                        status = EXCLUDED.status,
                        completed_at = EXCLUDED.completed_at,
                        items_deleted = EXCLUDED.items_deleted,
                        error = EXCLUDED.error
        `, req.ID, req.UserID, string(req.Scope.Type), namespaces, req.Scope.VectorIDs,
		req.RequestedAt, req.ScheduledFor, string(req.Status),
		nullableTime(req.CompletedAt), req.ItemsDeleted, req.Error)
	return err
}

const requestColumns = `id, user_id, request_type, namespaces, vector_ids, requested_at,
        scheduled_for, status, completed_at, items_deleted, error`

func (pb *PostgresBackend) GetRequest(ctx context.Context, id string) (model.DeletionRequest, error) {
	if pb == nil || pb.DB == nil {
		return model.DeletionRequest{}, fmt.Errorf("deletion request %s: %w", id, model.ErrNotFound)
	}
	row := pb.DB.QueryRow(ctx, `SELECT `+requestColumns+` FROM deletion_requests WHERE id = $1`, id)
	req, err := scanRequestRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.DeletionRequest{}, fmt.Errorf("deletion request %s: %w", id, model.ErrNotFound)
	}
	return req, err
}

func (pb *PostgresBackend) ScanRequests(ctx context.Context, q RequestQuery) ([]model.DeletionRequest, error) {
	if pb == nil || pb.DB == nil {
		return nil, nil
	}
	conditions := make([]string, 0, 4)
	args := make([]any, 0, 4)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if q.UserID != "" {
		conditions = append(conditions, "user_id = "+arg(q.UserID))
	}
	if q.Status != "" {
		conditions = append(conditions, "status = "+arg(string(q.Status)))
	}
	if !q.DueBefore.IsZero() {
		conditions = append(conditions, "scheduled_for <= "+arg(q.DueBefore))
	}
	query := `SELECT ` + requestColumns + ` FROM deletion_requests`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY requested_at ASC"
	if q.Limit > 0 {
		query += " LIMIT " + arg(q.Limit)
	}
	rows, err := pb.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.DeletionRequest
	for rows.Next() {
		req, err := scanRequestRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// Close releases the underlying connection pool.
func (pb *PostgresBackend) Close() error {
	if pb == nil || pb.DB == nil {
		return nil
	}
	pb.DB.Close()
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntryRow(row rowScanner) (model.VectorEntry, error) {
	var entry model.VectorEntry
	var embeddingText, metadataText string
	var scheduled *time.Time
	if err := row.Scan(&entry.ID, &entry.UserID, &entry.Namespace, &entry.Content,
		&entry.ContentHash, &embeddingText, &metadataText, &entry.CreatedAt,
		&entry.LastAccessedAt, &entry.AccessCount, &entry.Confidence,
		&entry.MarkedForDeletion, &scheduled); err != nil {
		return model.VectorEntry{}, err
	}
	entry.Embedding = parseVector(embeddingText)
	if metadataText != "" {
		_ = json.Unmarshal([]byte(metadataText), &entry.Metadata)
	}
	if scheduled != nil {
		entry.ScheduledDeletionAt = *scheduled
	}
	return entry, nil
}

func scanRequestRow(row rowScanner) (model.DeletionRequest, error) {
	var req model.DeletionRequest
	var requestType string
	var namespaces []string
	var completed *time.Time
	if err := row.Scan(&req.ID, &req.UserID, &requestType, &namespaces,
		&req.Scope.VectorIDs, &req.RequestedAt, &req.ScheduledFor, &req.Status,
		&completed, &req.ItemsDeleted, &req.Error); err != nil {
		return model.DeletionRequest{}, err
	}
	req.Scope.Type = model.DeletionType(requestType)
	for _, ns := range namespaces {
		req.Scope.Namespaces = append(req.Scope.Namespaces, model.Namespace(ns))
	}
	if completed != nil {
		req.CompletedAt = *completed
	}
	return req, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func vectorLiteral(vec []float32) string {
	jsonEmbed, _ := json.Marshal(vec)
	return fmt.Sprintf("[%s]", strings.Trim(string(jsonEmbed), "[]"))
}

func parseVector(text string) []float32 {
	text = strings.Trim(text, "[]")
	if strings.TrimSpace(text) == "" {
		return nil
	}
	parts := strings.Split(text, ",")
	vec := make([]float32, 0, len(parts))
	for _, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			continue
		}
		vec = append(vec, float32(f))
	}
	return vec
}
