package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"granth/internal/config"
)

// Store manages ledger persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the ledger database and applies migrations.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.Paths.LedgerPath
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("ensure ledger directory: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the ledger database location.
func (s *Store) Path() string {
	return s.path
}

// UpsertDiscovered merges one catalog entry into the ledger. New keys are
// inserted at the discovered checkpoint. Known keys get refreshed source
// metadata only; pipeline state, attempts, artifacts, and transliterations
// are preserved. Returns the stored document and whether it was newly
// inserted.
func (s *Store) UpsertDiscovered(ctx context.Context, key, title, author, url string) (*Document, bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, false, errors.New("document key is empty")
	}

	existing, err := s.GetByKey(ctx, key)
	if err != nil {
		return nil, false, err
	}
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	if existing != nil {
		_, err := s.db.ExecContext(
			ctx,
			`UPDATE documents SET source_title = ?, source_author = ?, source_url = ?, updated_at = ? WHERE doc_key = ?`,
			nullableString(title),
			nullableString(author),
			nullableString(url),
			timestamp,
			key,
		)
		if err != nil {
			return nil, false, fmt.Errorf("refresh document: %w", err)
		}
		doc, err := s.GetByKey(ctx, key)
		return doc, false, err
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO documents (
            doc_key, source_title, source_author, source_url, status,
            needs_attention, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, 0, ?, ?)`,
		key,
		nullableString(title),
		nullableString(author),
		nullableString(url),
		StatusDiscovered,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert document: %w", err)
	}
	doc, err := s.GetByKey(ctx, key)
	return doc, true, err
}

// GetByID fetches a document by row identifier.
func (s *Store) GetByID(ctx context.Context, id int64) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

// GetByKey fetches a document by catalog key.
func (s *Store) GetByKey(ctx context.Context, key string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE doc_key = ?`, key)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get document by key: %w", err)
	}
	return doc, nil
}

// Update persists the full document row. Every stage transition goes
// through here so the stored record is always a complete snapshot.
func (s *Store) Update(ctx context.Context, doc *Document) error {
	if doc == nil {
		return errors.New("document is nil")
	}
	attemptsJSON, err := marshalAttempts(doc.Attempts)
	if err != nil {
		return err
	}
	doc.UpdatedAt = time.Now().UTC()
	_, err = s.db.ExecContext(
		ctx,
		`UPDATE documents
         SET source_title = ?, source_author = ?, source_url = ?,
             translit_title = ?, translit_author = ?, status = ?,
             failed_stage = ?, attempts_json = ?, last_error = ?,
             needs_attention = ?, attention_reason = ?,
             raw_file = ?, recognized_file = ?, converted_file = ?, delivered_file = ?,
             checksum = ?, updated_at = ?
         WHERE id = ?`,
		nullableString(doc.SourceTitle),
		nullableString(doc.SourceAuthor),
		nullableString(doc.SourceURL),
		nullableString(doc.TranslitTitle),
		nullableString(doc.TranslitAuthor),
		doc.Status,
		nullableString(doc.FailedStage),
		nullableString(attemptsJSON),
		nullableString(doc.LastError),
		boolToInt(doc.NeedsAttention),
		nullableString(doc.AttentionReason),
		nullableString(doc.RawFile),
		nullableString(doc.RecognizedFile),
		nullableString(doc.ConvertedFile),
		nullableString(doc.DeliveredFile),
		nullableString(doc.Checksum),
		doc.UpdatedAt.Format(time.RFC3339Nano),
		doc.ID,
	)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	return nil
}

// List returns documents filtered by status set (or all documents when no
// status is provided), ordered by catalog key.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Document, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + documentColumns + ` FROM documents`
	orderClause := ` ORDER BY doc_key`

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
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	return collectDocuments(rows)
}

// ListEligible returns undelivered documents that are not parked for
// attention, ordered by catalog key. limit <= 0 means no limit.
func (s *Store) ListEligible(ctx context.Context, limit int) ([]*Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents
        WHERE status != ? AND needs_attention = 0 ORDER BY doc_key`
	args := []any{StatusDelivered}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list eligible documents: %w", err)
	}
	defer rows.Close()

	return collectDocuments(rows)
}

// ListAttention returns documents parked for operator review.
func (s *Store) ListAttention(ctx context.Context) ([]*Document, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE needs_attention = 1 ORDER BY doc_key`)
	if err != nil {
		return nil, fmt.Errorf("list attention documents: %w", err)
	}
	defer rows.Close()

	return collectDocuments(rows)
}

// RetryFailed clears error state so failed documents become eligible again.
// With no ids, every document carrying failure state is reset.
func (s *Store) RetryFailed(ctx context.Context, ids ...int64) (int64, error) {
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	if len(ids) == 0 {
		res, err := s.db.ExecContext(
			ctx,
			`UPDATE documents
            SET failed_stage = NULL, attempts_json = NULL, last_error = NULL,
                needs_attention = 0, attention_reason = NULL, updated_at = ?
            WHERE failed_stage IS NOT NULL OR needs_attention = 1`,
			timestamp,
		)
		if err != nil {
			return 0, fmt.Errorf("retry failed documents: %w", err)
		}
		return res.RowsAffected()
	}

	placeholders := makePlaceholders(len(ids))
	args := make([]any, 0, len(ids)+1)
	args = append(args, timestamp)
	for _, id := range ids {
		args = append(args, id)
	}
	query := `UPDATE documents
        SET failed_stage = NULL, attempts_json = NULL, last_error = NULL,
            needs_attention = 0, attention_reason = NULL, updated_at = ?
        WHERE id IN (` + placeholders + `)`
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry selected documents: %w", err)
	}
	return res.RowsAffected()
}

// Remove deletes a document by identifier.
func (s *Store) Remove(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// Clear removes all documents from the ledger.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents`)
	if err != nil {
		return 0, fmt.Errorf("clear ledger: %w", err)
	}
	return res.RowsAffected()
}

// ClearDelivered removes only delivered documents from the ledger.
func (s *Store) ClearDelivered(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE status = ?`, StatusDelivered)
	if err != nil {
		return 0, fmt.Errorf("clear delivered: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns a count of documents grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM documents GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("ledger stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

const lastScanKey = "last_scan"

// SetLastScan records when the catalog was last scanned.
func (s *Store) SetLastScan(ctx context.Context, at time.Time) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO ledger_meta (meta_key, meta_value) VALUES (?, ?)
         ON CONFLICT(meta_key) DO UPDATE SET meta_value = excluded.meta_value`,
		lastScanKey,
		at.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("set last scan: %w", err)
	}
	return nil
}

// LastScan returns the recorded catalog scan time, or zero when never scanned.
func (s *Store) LastScan(ctx context.Context) (time.Time, error) {
	row := s.db.QueryRowContext(ctx, `SELECT meta_value FROM ledger_meta WHERE meta_key = ?`, lastScanKey)
	var raw string
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("get last scan: %w", err)
	}
	return parseTimeString(raw)
}

const documentColumns = "id, doc_key, source_title, source_author, source_url, translit_title, translit_author, status, failed_stage, attempts_json, last_error, needs_attention, attention_reason, raw_file, recognized_file, converted_file, delivered_file, checksum, created_at, updated_at"

func collectDocuments(rows *sql.Rows) ([]*Document, error) {
	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func scanDocument(scanner interface{ Scan(dest ...any) error }) (*Document, error) {
	var (
		id              int64
		key             string
		sourceTitle     sql.NullString
		sourceAuthor    sql.NullString
		sourceURL       sql.NullString
		translitTitle   sql.NullString
		translitAuthor  sql.NullString
		statusStr       string
		failedStage     sql.NullString
		attemptsRaw     sql.NullString
		lastError       sql.NullString
		needsAttention  sql.NullInt64
		attentionReason sql.NullString
		rawFile         sql.NullString
		recognizedFile  sql.NullString
		convertedFile   sql.NullString
		deliveredFile   sql.NullString
		checksum        sql.NullString
		createdRaw      sql.NullString
		updatedRaw      sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&key,
		&sourceTitle,
		&sourceAuthor,
		&sourceURL,
		&translitTitle,
		&translitAuthor,
		&statusStr,
		&failedStage,
		&attemptsRaw,
		&lastError,
		&needsAttention,
		&attentionReason,
		&rawFile,
		&recognizedFile,
		&convertedFile,
		&deliveredFile,
		&checksum,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	doc := &Document{
		ID:              id,
		Key:             key,
		SourceTitle:     sourceTitle.String,
		SourceAuthor:    sourceAuthor.String,
		SourceURL:       sourceURL.String,
		TranslitTitle:   translitTitle.String,
		TranslitAuthor:  translitAuthor.String,
		Status:          Status(statusStr),
		FailedStage:     failedStage.String,
		LastError:       lastError.String,
		AttentionReason: attentionReason.String,
		RawFile:         rawFile.String,
		RecognizedFile:  recognizedFile.String,
		ConvertedFile:   convertedFile.String,
		DeliveredFile:   deliveredFile.String,
		Checksum:        checksum.String,
	}
	if needsAttention.Valid {
		doc.NeedsAttention = needsAttention.Int64 != 0
	}
	if attemptsRaw.Valid && attemptsRaw.String != "" {
		attempts := make(map[string]int)
		if err := json.Unmarshal([]byte(attemptsRaw.String), &attempts); err != nil {
			return nil, fmt.Errorf("decode attempts for %s: %w", key, err)
		}
		doc.Attempts = attempts
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		doc.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		doc.UpdatedAt = updated
	}
	return doc, nil
}

func marshalAttempts(attempts map[string]int) (string, error) {
	if len(attempts) == 0 {
		return "", nil
	}
	data, err := json.Marshal(attempts)
	if err != nil {
		return "", fmt.Errorf("encode attempts: %w", err)
	}
	return string(data), nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", count), ", ")
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
