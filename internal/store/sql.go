package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id        TEXT PRIMARY KEY,
		username  TEXT NOT NULL DEFAULT '',
		online    BOOLEAN NOT NULL DEFAULT FALSE,
		last_seen BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS conversations (
		id         TEXT PRIMARY KEY,
		direct_key TEXT UNIQUE,
		is_group   BOOLEAN NOT NULL DEFAULT FALSE,
		group_name TEXT NOT NULL DEFAULT '',
		created_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS conversation_members (
		conversation_id TEXT NOT NULL REFERENCES conversations(id),
		user_id         TEXT NOT NULL,
		position        INTEGER NOT NULL,
		PRIMARY KEY (conversation_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id              TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES conversations(id),
		user_id         TEXT NOT NULL,
		content         TEXT NOT NULL,
		file_url        TEXT NOT NULL DEFAULT '',
		type            TEXT NOT NULL,
		is_read         BOOLEAN NOT NULL DEFAULT FALSE,
		created_at      BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at)`,
}

// SQL implements core.Store on database/sql. Queries are written with ?
// placeholders and rebound for drivers that number them.
type SQL struct {
	db       *sql.DB
	numbered bool
	now      func() time.Time
}

// OpenSQLite opens (creating if needed) a file database through modernc.org/sqlite.
func OpenSQLite(ctx context.Context, path string) (*SQL, error) {
	if path == "" {
		path = "./data/huddle.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer; avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON; PRAGMA journal_mode = WAL; PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}
	return newSQL(ctx, db, false)
}

// OpenPostgres connects through the pgx database/sql driver.
func OpenPostgres(ctx context.Context, dsn string) (*SQL, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return newSQL(ctx, db, true)
}

func newSQL(ctx context.Context, db *sql.DB, numbered bool) (*SQL, error) {
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	s := &SQL{db: db, numbered: numbered, now: time.Now}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init schema: %w", err)
		}
	}
	return s, nil
}

func (s *SQL) q(query string) string {
	if !s.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQL) FindOrCreateConversation(ctx context.Context, members []domain.UserID, opts core.ConversationOptions) (*domain.Conversation, error) {
	members, err := normalizeMembers(members)
	if err != nil {
		return nil, err
	}
	var key sql.NullString
	if !opts.IsGroup {
		key = sql.NullString{String: directKey(members), Valid: true}
		var id string
		err := s.db.QueryRowContext(ctx, s.q(`SELECT id FROM conversations WHERE direct_key = ?`), key).Scan(&id)
		switch {
		case err == nil:
			return s.GetConversation(ctx, domain.ConversationID(id))
		case !errors.Is(err, sql.ErrNoRows):
			return nil, fmt.Errorf("find conversation: %w", err)
		}
	}

	c := &domain.Conversation{
		ID:        domain.ConversationID(uuid.NewString()),
		Members:   members,
		IsGroup:   opts.IsGroup,
		GroupName: opts.GroupName,
		CreatedAt: s.now().UTC().Truncate(time.Millisecond),
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, s.q(`
		INSERT INTO conversations (id, direct_key, is_group, group_name, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (direct_key) DO NOTHING`),
		string(c.ID), key, c.IsGroup, c.GroupName, c.CreatedAt.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Lost a race with a concurrent create of the same pair.
		_ = tx.Rollback()
		return s.FindOrCreateConversation(ctx, members, opts)
	}
	for i, m := range members {
		if _, err := tx.ExecContext(ctx, s.q(`
			INSERT INTO conversation_members (conversation_id, user_id, position) VALUES (?, ?, ?)`),
			string(c.ID), string(m), i); err != nil {
			return nil, fmt.Errorf("insert member: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *SQL) GetConversation(ctx context.Context, id domain.ConversationID) (*domain.Conversation, error) {
	c := &domain.Conversation{ID: id}
	var created int64
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT is_group, group_name, created_at FROM conversations WHERE id = ?`), string(id)).
		Scan(&c.IsGroup, &c.GroupName, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	c.CreatedAt = time.UnixMilli(created).UTC()

	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT user_id FROM conversation_members WHERE conversation_id = ? ORDER BY position`), string(id))
	if err != nil {
		return nil, fmt.Errorf("get members: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, err
		}
		c.Members = append(c.Members, domain.UserID(uid))
	}
	return c, rows.Err()
}

func (s *SQL) AppendMessage(ctx context.Context, msg *domain.Message) (*domain.Conversation, error) {
	c, err := s.GetConversation(ctx, msg.ConversationID)
	if err != nil {
		return nil, err
	}
	if !c.HasMember(msg.UserID) {
		return nil, core.ErrNotConversationMember
	}
	_, err = s.db.ExecContext(ctx, s.q(`
		INSERT INTO messages (id, conversation_id, user_id, content, file_url, type, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		string(msg.ID), string(msg.ConversationID), string(msg.UserID), msg.Content, msg.FileURL,
		string(msg.Type), msg.IsRead, msg.CreatedAt.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return c, nil
}

// SetUserOnline stamps last_seen on disconnect only.
func (s *SQL) SetUserOnline(ctx context.Context, uid domain.UserID, online bool, at time.Time) error {
	var err error
	if online {
		_, err = s.db.ExecContext(ctx, s.q(`
			INSERT INTO users (id, online) VALUES (?, ?)
			ON CONFLICT (id) DO UPDATE SET online = excluded.online`),
			string(uid), true)
	} else {
		_, err = s.db.ExecContext(ctx, s.q(`
			INSERT INTO users (id, online, last_seen) VALUES (?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET online = excluded.online, last_seen = excluded.last_seen`),
			string(uid), false, at.UnixMilli())
	}
	if err != nil {
		return fmt.Errorf("set user online: %w", err)
	}
	return nil
}

func (s *SQL) GetUser(ctx context.Context, uid domain.UserID) (*domain.User, error) {
	u := &domain.User{ID: uid}
	var seen int64
	err := s.db.QueryRowContext(ctx, s.q(`SELECT username, online, last_seen FROM users WHERE id = ?`), string(uid)).
		Scan(&u.Username, &u.Online, &seen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if seen > 0 {
		u.LastSeen = time.UnixMilli(seen).UTC()
	}
	return u, nil
}

func (s *SQL) MarkMessagesRead(ctx context.Context, id domain.ConversationID, reader domain.UserID) (int64, error) {
	if _, err := s.GetConversation(ctx, id); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE messages SET is_read = ? WHERE conversation_id = ? AND user_id <> ? AND is_read = ?`),
		true, string(id), string(reader), false)
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQL) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQL) Close(context.Context) error { return s.db.Close() }
