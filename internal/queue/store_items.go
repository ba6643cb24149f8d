package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// NewItem inserts a pending queue item for a staged document copy.
// Exactly one row is created per call; the queue never merges enqueues.
func (s *Store) NewItem(ctx context.Context, sourcePath, originalName string, meta Metadata) (*Item, error) {
	if sourcePath == "" {
		return nil, errors.New("source path is required")
	}

	metadataJSON, err := meta.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}

	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO queue_items (
            source_path, original_name, metadata_json, status, attempt_count,
            created_at, updated_at
        ) VALUES (?, ?, ?, ?, 0, ?, ?)`,
		sourcePath,
		nullableString(originalName),
		metadataJSON,
		StatusPending,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert item: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return s.GetByID(ctx, id)
}

// GetByID fetches a queue item by identifier. Returns nil when absent.
func (s *Store) GetByID(ctx context.Context, id int64) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM queue_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// Update persists changes to an existing queue item.
func (s *Store) Update(ctx context.Context, item *Item) error {
	if item == nil {
		return errors.New("item is nil")
	}
	item.UpdatedAt = time.Now().UTC()
	_, err := s.execWithRetry(
		ctx,
		`UPDATE queue_items
         SET source_path = ?, original_name = ?, metadata_json = ?, status = ?,
             attempt_count = ?, updated_at = ?, last_attempt_at = ?, not_before = ?,
             remote_task_ref = ?, last_error_kind = ?, last_error_message = ?,
             last_heartbeat = ?
         WHERE id = ?`,
		item.SourcePath,
		nullableString(item.OriginalName),
		nullableString(item.MetadataJSON),
		item.Status,
		item.AttemptCount,
		item.UpdatedAt.Format(time.RFC3339Nano),
		nullableTime(item.LastAttemptAt),
		nullableTime(item.NotBefore),
		nullableString(item.RemoteTaskRef),
		nullableString(item.LastErrorKind),
		nullableString(item.LastErrorMessage),
		nullableTime(item.LastHeartbeat),
		item.ID,
	)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// List returns queue items filtered by status set (or all items when no status is provided),
// ordered by creation time.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Item, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + itemColumns + ` FROM queue_items`
	orderClause := ` ORDER BY created_at, id`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		query := baseQuery + ` WHERE status IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list queue items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// NextPending returns the oldest pending item whose backoff delay has elapsed.
// Items in backoff yield to newer arrivals until their not_before passes.
func (s *Store) NextPending(ctx context.Context, now time.Time) (*Item, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+itemColumns+` FROM queue_items
         WHERE status = ? AND (not_before IS NULL OR not_before <= ?)
         ORDER BY created_at, id LIMIT 1`,
		StatusPending,
		now.UTC().Format(time.RFC3339Nano),
	)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next pending: %w", err)
	}
	return item, nil
}

// NextBackoffDeadline returns the earliest not_before among pending items, if any.
func (s *Store) NextBackoffDeadline(ctx context.Context) (*time.Time, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT MIN(not_before) FROM queue_items WHERE status = ? AND not_before IS NOT NULL`,
		StatusPending,
	)
	var raw sql.NullString
	if err := row.Scan(&raw); err != nil {
		return nil, fmt.Errorf("next backoff deadline: %w", err)
	}
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	deadline, err := parseTimeString(raw.String)
	if err != nil {
		return nil, fmt.Errorf("parse backoff deadline: %w", err)
	}
	return &deadline, nil
}

// Remove deletes an item by identifier.
func (s *Store) Remove(ctx context.Context, id int64) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM queue_items WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

const itemColumns = "id, source_path, original_name, metadata_json, status, attempt_count, created_at, updated_at, last_attempt_at, not_before, remote_task_ref, last_error_kind, last_error_message, last_heartbeat"

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		id            int64
		sourcePath    string
		originalName  sql.NullString
		metadata      sql.NullString
		statusStr     string
		attemptCount  int
		createdRaw    sql.NullString
		updatedRaw    sql.NullString
		lastAttempt   sql.NullString
		notBefore     sql.NullString
		remoteTaskRef sql.NullString
		errorKind     sql.NullString
		errorMessage  sql.NullString
		heartbeatRaw  sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&sourcePath,
		&originalName,
		&metadata,
		&statusStr,
		&attemptCount,
		&createdRaw,
		&updatedRaw,
		&lastAttempt,
		&notBefore,
		&remoteTaskRef,
		&errorKind,
		&errorMessage,
		&heartbeatRaw,
	); err != nil {
		return nil, err
	}

	item := &Item{
		ID:               id,
		SourcePath:       sourcePath,
		OriginalName:     originalName.String,
		MetadataJSON:     metadata.String,
		Status:           Status(statusStr),
		AttemptCount:     attemptCount,
		RemoteTaskRef:    remoteTaskRef.String,
		LastErrorKind:    errorKind.String,
		LastErrorMessage: errorMessage.String,
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		item.UpdatedAt = updated
	}
	if lastAttempt.Valid {
		if t, err := parseTimeString(lastAttempt.String); err == nil {
			item.LastAttemptAt = &t
		}
	}
	if notBefore.Valid {
		if t, err := parseTimeString(notBefore.String); err == nil {
			item.NotBefore = &t
		}
	}
	if heartbeatRaw.Valid {
		if t, err := parseTimeString(heartbeatRaw.String); err == nil {
			item.LastHeartbeat = &t
		}
	}
	return item, nil
}
