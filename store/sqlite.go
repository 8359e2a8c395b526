package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// SQLite driver registration.
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"stallbot/core"
	"stallbot/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	user_id TEXT PRIMARY KEY,
	first_seen TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	last_seen TIMESTAMP
);
CREATE TABLE IF NOT EXISTS items (
	item_id TEXT PRIMARY KEY,
	title TEXT,
	price TEXT NOT NULL,
	description TEXT,
	last_updated TIMESTAMP
);
CREATE TABLE IF NOT EXISTS conversations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	buyer_id TEXT NOT NULL,
	item_id TEXT NOT NULL,
	start_time TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	last_update TIMESTAMP,
	bargain_count INTEGER DEFAULT 0,
	status TEXT DEFAULT 'active',
	UNIQUE (buyer_id, item_id)
);
CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id INTEGER NOT NULL,
	message_id TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	timestamp TIMESTAMP,
	intent TEXT,
	FOREIGN KEY (conversation_id) REFERENCES conversations (id)
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages (conversation_id, id);
CREATE TABLE IF NOT EXISTS handover_modes (
	buyer_id TEXT PRIMARY KEY,
	mode TEXT NOT NULL,
	toggled_at TIMESTAMP
);
`

// SQLiteOptions configure the durable store.
type SQLiteOptions struct {
	// MaxHistory bounds retained messages per conversation; older rows are
	// deleted on append. Zero disables trimming.
	MaxHistory int
	Logger     logging.Logger
}

// SQLite is the durable ContextStore. Every Append commits before returning,
// satisfying the write-before-ack contract; reachability failures are
// surfaced as core.ErrStoreUnavailable so the router aborts the turn instead
// of fabricating a reply.
type SQLite struct {
	db         *sql.DB
	maxHistory int
	logger     logging.Logger
}

// NewSQLite opens (creating directories and schema as needed) a store at path.
func NewSQLite(path string, optFns ...func(o *SQLiteOptions)) (*SQLite, error) {
	opts := SQLiteOptions{MaxHistory: 100, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}

	opts.Logger.Info("sqlite context store ready path=%s", path)
	return &SQLite{db: db, maxHistory: opts.MaxHistory, logger: opts.Logger}, nil
}

// Close releases the underlying database handle.
func (s *SQLite) Close() error { return s.db.Close() }

func storeErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
}

// Append durably persists a message, creating the conversation row on first
// use and trimming retention beyond the configured maximum.
func (s *SQLite) Append(ctx context.Context, key core.ConversationKey, msg core.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr(err)
	}
	defer tx.Rollback()

	now := time.Now()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO users (user_id, last_seen) VALUES (?, ?)
		ON CONFLICT (user_id) DO UPDATE SET last_seen = excluded.last_seen`,
		key.BuyerID, now); err != nil {
		return storeErr(err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO conversations (buyer_id, item_id, last_update) VALUES (?, ?, ?)
		ON CONFLICT (buyer_id, item_id) DO UPDATE SET last_update = excluded.last_update`,
		key.BuyerID, key.ItemID, now); err != nil {
		return storeErr(err)
	}

	var convID int64
	if err := tx.QueryRowContext(ctx,
		`SELECT id FROM conversations WHERE buyer_id = ? AND item_id = ?`,
		key.BuyerID, key.ItemID).Scan(&convID); err != nil {
		return storeErr(err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (conversation_id, message_id, role, content, timestamp, intent)
		VALUES (?, ?, ?, ?, ?, ?)`,
		convID, msg.ID, string(msg.Role), msg.Content, msg.Timestamp, string(msg.Intent)); err != nil {
		return storeErr(err)
	}

	if s.maxHistory > 0 {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM messages WHERE conversation_id = ? AND id NOT IN (
				SELECT id FROM messages WHERE conversation_id = ?
				ORDER BY id DESC LIMIT ?)`,
			convID, convID, s.maxHistory); err != nil {
			return storeErr(err)
		}
	}

	return storeErr(tx.Commit())
}

func (s *SQLite) conversationID(ctx context.Context, key core.ConversationKey) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM conversations WHERE buyer_id = ? AND item_id = ?`,
		key.BuyerID, key.ItemID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, core.ErrConversationNotFound
	}
	if err != nil {
		return 0, storeErr(err)
	}
	return id, nil
}

func (s *SQLite) messagesFor(ctx context.Context, convID int64) ([]core.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, role, content, timestamp, intent
		FROM messages WHERE conversation_id = ? ORDER BY id ASC`, convID)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	var msgs []core.Message
	for rows.Next() {
		var m core.Message
		var role, intent string
		var ts sql.NullTime
		if err := rows.Scan(&m.ID, &role, &m.Content, &ts, &intent); err != nil {
			return nil, storeErr(err)
		}
		m.Role = core.Role(role)
		m.Intent = core.Intent(intent)
		if ts.Valid {
			m.Timestamp = ts.Time
		}
		msgs = append(msgs, m)
	}
	return msgs, storeErr(rows.Err())
}

// History returns the budget-trimmed suffix of the conversation log.
func (s *SQLite) History(ctx context.Context, key core.ConversationKey, budget core.HistoryBudget) ([]core.Message, error) {
	convID, err := s.conversationID(ctx, key)
	if errors.Is(err, core.ErrConversationNotFound) {
		return []core.Message{}, nil
	}
	if err != nil {
		return nil, err
	}
	msgs, err := s.messagesFor(ctx, convID)
	if err != nil {
		return nil, err
	}
	return budget.Trim(msgs), nil
}

// SaveItem upserts the immutable item snapshot.
func (s *SQLite) SaveItem(ctx context.Context, item core.Item) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO items (item_id, title, price, description, last_updated)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (item_id) DO UPDATE SET
			title = excluded.title, price = excluded.price,
			description = excluded.description, last_updated = excluded.last_updated`,
		item.ID, item.Title, item.Price.String(), item.Description, time.Now())
	return storeErr(err)
}

// ItemSnapshot returns the item a conversation is about.
func (s *SQLite) ItemSnapshot(ctx context.Context, key core.ConversationKey) (core.Item, error) {
	var item core.Item
	var price string
	var updated sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT item_id, title, price, description, last_updated FROM items WHERE item_id = ?`,
		key.ItemID).Scan(&item.ID, &item.Title, &price, &item.Description, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Item{}, core.ErrItemNotFound
	}
	if err != nil {
		return core.Item{}, storeErr(err)
	}
	item.Price, err = decimal.NewFromString(price)
	if err != nil {
		return core.Item{}, fmt.Errorf("corrupt price for item %s: %w", key.ItemID, err)
	}
	if updated.Valid {
		item.FetchedAt = updated.Time
	}
	return item, nil
}

// IncrementBargainCount bumps the conversation's price-turn counter.
func (s *SQLite) IncrementBargainCount(ctx context.Context, key core.ConversationKey) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET bargain_count = bargain_count + 1, last_update = ?
		WHERE buyer_id = ? AND item_id = ?`,
		time.Now(), key.BuyerID, key.ItemID)
	if err != nil {
		return storeErr(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.ErrConversationNotFound
	}
	return nil
}

// SetStatus updates the conversation lifecycle marker.
func (s *SQLite) SetStatus(ctx context.Context, key core.ConversationKey, status core.ConversationStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET status = ?, last_update = ?
		WHERE buyer_id = ? AND item_id = ?`,
		string(status), time.Now(), key.BuyerID, key.ItemID)
	if err != nil {
		return storeErr(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.ErrConversationNotFound
	}
	return nil
}

// ListConversations returns summaries ordered by last update, newest first.
func (s *SQLite) ListConversations(ctx context.Context, limit, offset int) ([]core.ConversationSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.buyer_id, c.item_id, c.bargain_count, c.status, c.start_time, c.last_update,
			(SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id)
		FROM conversations c
		ORDER BY c.last_update DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	var out []core.ConversationSummary
	for rows.Next() {
		var cs core.ConversationSummary
		var status string
		var started, updated sql.NullTime
		if err := rows.Scan(&cs.Key.BuyerID, &cs.Key.ItemID, &cs.BargainCount, &status,
			&started, &updated, &cs.MessageCount); err != nil {
			return nil, storeErr(err)
		}
		cs.Status = core.ConversationStatus(status)
		if started.Valid {
			cs.Created = started.Time
		}
		if updated.Valid {
			cs.Updated = updated.Time
		}
		out = append(out, cs)
	}
	return out, storeErr(rows.Err())
}

// FullHistory returns the complete untrimmed log for one conversation.
func (s *SQLite) FullHistory(ctx context.Context, key core.ConversationKey) ([]core.Message, error) {
	convID, err := s.conversationID(ctx, key)
	if err != nil {
		return nil, err
	}
	return s.messagesFor(ctx, convID)
}

// Stats computes the aggregate counters over all conversations.
func (s *SQLite) Stats(ctx context.Context, activeWindow time.Duration) (core.Stats, error) {
	var stats core.Stats
	cutoff := time.Now().Add(-activeWindow)

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN last_update > ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0)
		FROM conversations`, cutoff).
		Scan(&stats.TotalConversations, &stats.ActiveConversations, &stats.CompletedConversations)
	if err != nil {
		return core.Stats{}, storeErr(err)
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&stats.TotalMessages); err != nil {
		return core.Stats{}, storeErr(err)
	}
	return stats, nil
}

// SaveMode persists a handover toggle.
func (s *SQLite) SaveMode(ctx context.Context, buyerID string, mode core.HandoverMode, toggledAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO handover_modes (buyer_id, mode, toggled_at) VALUES (?, ?, ?)
		ON CONFLICT (buyer_id) DO UPDATE SET mode = excluded.mode, toggled_at = excluded.toggled_at`,
		buyerID, string(mode), toggledAt)
	return storeErr(err)
}

// LoadModes returns all persisted handover modes.
func (s *SQLite) LoadModes(ctx context.Context) (map[string]core.HandoverMode, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT buyer_id, mode FROM handover_modes`)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	modes := make(map[string]core.HandoverMode)
	for rows.Next() {
		var buyerID, mode string
		if err := rows.Scan(&buyerID, &mode); err != nil {
			return nil, storeErr(err)
		}
		modes[buyerID] = core.HandoverMode(mode)
	}
	return modes, storeErr(rows.Err())
}

// Interface compliance (compile-time assertions).
var (
	_ core.ContextStore = (*SQLite)(nil)
	_ core.Reporter     = (*SQLite)(nil)
	_ core.ModeStore    = (*SQLite)(nil)
)
