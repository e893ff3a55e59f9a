package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"chatsync/pkg/types"
)

// DefaultHistoryLimit caps snapshot size so a crowded room cannot make the
// initial history push unbounded.
const DefaultHistoryLimit = 500

// DefaultEditCooldown is the minimum gap between successive edits of one
// message.
const DefaultEditCooldown = 5 * time.Minute

const writeRetryDelay = time.Second

// Options tunes store behavior; zero values fall back to the defaults above.
type Options struct {
	HistoryLimit int
	EditCooldown time.Duration
}

// Store is the durable append-only message log. All mutations funnel through
// a single writer goroutine, which both suits SQLite and serializes
// concurrent edit/delete/read-receipt operations on the same message id.
// Reads run concurrently against the connection pool.
type Store struct {
	db           *sql.DB
	writeCh      chan writeOp
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
	historyLimit int
	editCooldown time.Duration
}

type writeOp struct {
	operation func(db *sql.DB) error
	result    chan error
}

// Open opens or creates the message log at path.
func Open(path string, opts Options) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)

	if err := applyPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := applySchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{
		db:           db,
		writeCh:      make(chan writeOp, 100),
		shutdown:     make(chan struct{}),
		historyLimit: opts.HistoryLimit,
		editCooldown: opts.EditCooldown,
	}
	if s.historyLimit <= 0 {
		s.historyLimit = DefaultHistoryLimit
	}
	if s.editCooldown <= 0 {
		s.editCooldown = DefaultEditCooldown
	}

	s.wg.Add(1)
	go s.writeLoop()

	return s, nil
}

// writeLoop processes all write operations in a single goroutine. A failed
// write is retried exactly once before the error is reported to the caller.
func (s *Store) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case op := <-s.writeCh:
			err := op.operation(s.db)
			if err != nil {
				log.Printf("store: write failed, retrying: %v", err)
				time.Sleep(writeRetryDelay)
				err = op.operation(s.db)
				if err != nil {
					log.Printf("store: write failed after retry: %v", err)
				}
			}
			op.result <- err

		case <-s.shutdown:
			return
		}
	}
}

// executeWrite queues a write operation and waits for completion.
func (s *Store) executeWrite(operation func(db *sql.DB) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	s.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case s.writeCh <- writeOp{operation: operation, result: result}:
		return <-result
	case <-time.After(30 * time.Second):
		return ErrWriteTimeout
	case <-s.shutdown:
		return ErrShuttingDown
	}
}

// Append creates and persists a new non-deleted message. The author defaults
// to Anonymous after sanitization and the timestamp to the server clock.
func (s *Store) Append(ctx context.Context, author, body string, ts time.Time) (*types.Message, error) {
	if ts.IsZero() {
		ts = time.Now()
	}

	msg := &types.Message{
		ID:        uuid.NewString(),
		Author:    types.SanitizeName(author),
		Body:      types.SanitizeBody(body),
		CreatedAt: ts.UTC(),
		ReadBy:    []string{},
	}

	err := s.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO messages (id, author, body, created_at, deleted, edited, last_edit_at, read_by)
			VALUES (?, ?, ?, ?, 0, 0, NULL, '[]')`,
			msg.ID, msg.Author, msg.Body, msg.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return msg, nil
}

// ListActive returns up to limit non-deleted messages in createdAt order,
// insertion order breaking ties. The limit is clamped to the snapshot cap.
func (s *Store) ListActive(ctx context.Context, limit int) ([]*types.Message, error) {
	if limit <= 0 || limit > s.historyLimit {
		limit = s.historyLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, author, body, created_at, deleted, edited, last_edit_at, read_by
		FROM messages
		WHERE deleted = 0
		ORDER BY created_at ASC, seq ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query active messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	messages := make([]*types.Message, 0, limit)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}

	return messages, nil
}

// GetByID looks up a message by id, tombstones included. Soft-deleted
// records stay reachable here for audit even though snapshots exclude them.
func (s *Store) GetByID(ctx context.Context, id string) (*types.Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, author, body, created_at, deleted, edited, last_edit_at, read_by
		FROM messages
		WHERE id = ?`, id)

	msg, err := scanMessage(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return msg, nil
}

// SoftDelete tombstones a message. Only the stored author may delete;
// an already-deleted id behaves as absent.
func (s *Store) SoftDelete(ctx context.Context, id, requester string) (Outcome, error) {
	outcome := NotFound

	err := s.executeWrite(func(db *sql.DB) error {
		var author string
		var deleted bool
		err := db.QueryRowContext(ctx,
			`SELECT author, deleted FROM messages WHERE id = ?`, id,
		).Scan(&author, &deleted)
		if err == sql.ErrNoRows {
			outcome = NotFound
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to load message %s: %w", id, err)
		}
		if deleted {
			outcome = NotFound
			return nil
		}
		if author != requester {
			outcome = Denied
			return nil
		}

		if _, err := db.ExecContext(ctx,
			`UPDATE messages SET deleted = 1 WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to tombstone message %s: %w", id, err)
		}
		outcome = Applied
		return nil
	})

	return outcome, err
}

// Edit replaces a message body. Denied for non-authors, rate-limited inside
// the cool-down window measured from the previous edit. On success the
// returned message reflects the stored state, lastEditAt set to now.
func (s *Store) Edit(ctx context.Context, id, requester, newBody string, now time.Time) (Outcome, *types.Message, error) {
	outcome := NotFound
	var updated *types.Message

	err := s.executeWrite(func(db *sql.DB) error {
		row := db.QueryRowContext(ctx, `
			SELECT id, author, body, created_at, deleted, edited, last_edit_at, read_by
			FROM messages
			WHERE id = ?`, id)

		msg, err := scanMessage(row)
		if err == sql.ErrNoRows {
			outcome = NotFound
			return nil
		}
		if err != nil {
			return err
		}
		if msg.Deleted {
			outcome = NotFound
			return nil
		}
		if msg.Author != requester {
			outcome = Denied
			return nil
		}
		if msg.LastEditAt != nil && now.Sub(*msg.LastEditAt) < s.editCooldown {
			outcome = RateLimited
			return nil
		}

		editAt := now.UTC()
		body := types.SanitizeBody(newBody)
		if _, err := db.ExecContext(ctx, `
			UPDATE messages SET body = ?, edited = 1, last_edit_at = ? WHERE id = ?`,
			body, editAt, id); err != nil {
			return fmt.Errorf("failed to edit message %s: %w", id, err)
		}

		msg.Body = body
		msg.Edited = true
		msg.LastEditAt = &editAt
		updated = msg
		outcome = Applied
		return nil
	})

	return outcome, updated, err
}

// MarkRead records a read receipt. Idempotent: a reader appears in the set
// at most once, and a repeat call reports AlreadyRead without a write.
func (s *Store) MarkRead(ctx context.Context, id, reader string) (Outcome, error) {
	outcome := NotFound

	err := s.executeWrite(func(db *sql.DB) error {
		var readByJSON string
		var deleted bool
		err := db.QueryRowContext(ctx,
			`SELECT read_by, deleted FROM messages WHERE id = ?`, id,
		).Scan(&readByJSON, &deleted)
		if err == sql.ErrNoRows {
			outcome = NotFound
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to load message %s: %w", id, err)
		}
		if deleted {
			outcome = NotFound
			return nil
		}

		var readBy []string
		if err := json.Unmarshal([]byte(readByJSON), &readBy); err != nil {
			return fmt.Errorf("failed to unmarshal read receipts: %w", err)
		}
		for _, r := range readBy {
			if r == reader {
				outcome = AlreadyRead
				return nil
			}
		}

		readBy = append(readBy, reader)
		data, err := json.Marshal(readBy)
		if err != nil {
			return fmt.Errorf("failed to marshal read receipts: %w", err)
		}
		if _, err := db.ExecContext(ctx,
			`UPDATE messages SET read_by = ? WHERE id = ?`, string(data), id); err != nil {
			return fmt.Errorf("failed to store read receipt for %s: %w", id, err)
		}
		outcome = Applied
		return nil
	})

	return outcome, err
}

// CountAll returns the total number of records, tombstones included.
func (s *Store) CountAll(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

// Ping validates storage connectivity for health checks.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// Close shuts down the writer goroutine and the database.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.shutdown)
	s.wg.Wait()

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (*types.Message, error) {
	var msg types.Message
	var lastEdit sql.NullTime
	var readByJSON string

	err := row.Scan(
		&msg.ID,
		&msg.Author,
		&msg.Body,
		&msg.CreatedAt,
		&msg.Deleted,
		&msg.Edited,
		&lastEdit,
		&readByJSON,
	)
	if err != nil {
		return nil, err
	}

	if lastEdit.Valid {
		t := lastEdit.Time
		msg.LastEditAt = &t
	}
	if err := json.Unmarshal([]byte(readByJSON), &msg.ReadBy); err != nil {
		return nil, fmt.Errorf("failed to unmarshal read receipts: %w", err)
	}
	if msg.ReadBy == nil {
		msg.ReadBy = []string{}
	}

	return &msg, nil
}
