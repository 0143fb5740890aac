package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parlohq/parlo/backend/internal/clock"
	"github.com/parlohq/parlo/backend/internal/model/profile"
)

const profileColumns = `id, streak, COALESCE(last_login_day, ''), COALESCE(last_conversation_day, ''), daily_conversations, is_premium`

// Postgres implements profile.Store against a PostgreSQL profiles table.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects a pooled client and verifies the connection.
func NewPostgres(ctx context.Context, connString string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Postgres) Close() {
	s.pool.Close()
}

// Bootstrap creates the profiles table when it does not exist yet.
func (s *Postgres) Bootstrap(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS profiles (
			id                    TEXT PRIMARY KEY,
			streak                INTEGER NOT NULL DEFAULT 0,
			last_login_day        TEXT,
			last_conversation_day TEXT,
			daily_conversations   INTEGER NOT NULL DEFAULT 0,
			is_premium            BOOLEAN NOT NULL DEFAULT FALSE
		)
	`

	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to bootstrap profiles table: %w", err)
	}
	return nil
}

// Get retrieves one profile record.
func (s *Postgres) Get(ctx context.Context, id string) (profile.Profile, error) {
	query := fmt.Sprintf("SELECT %s FROM profiles WHERE id = $1", profileColumns)
	return s.scanProfile(s.pool.QueryRow(ctx, query, id))
}

// Update applies a partial field update to one record and returns the stored
// row. Last write wins; no optimistic-lock token is used.
func (s *Postgres) Update(ctx context.Context, id string, update profile.Update) (profile.Profile, error) {
	if update.Empty() {
		return s.Get(ctx, id)
	}

	args := []any{id}
	assignments := make([]string, 0, 4)

	appendSet := func(column string, value any) {
		args = append(args, value)
		assignments = append(assignments, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.Streak != nil {
		appendSet("streak", *update.Streak)
	}
	if update.LastLoginDay != nil {
		appendSet("last_login_day", string(*update.LastLoginDay))
	}
	if update.LastConversationDay != nil {
		appendSet("last_conversation_day", string(*update.LastConversationDay))
	}
	if update.DailyConversations != nil {
		appendSet("daily_conversations", *update.DailyConversations)
	}

	query := fmt.Sprintf(
		"UPDATE profiles SET %s WHERE id = $1 RETURNING %s",
		strings.Join(assignments, ", "),
		profileColumns,
	)

	return s.scanProfile(s.pool.QueryRow(ctx, query, args...))
}

func (s *Postgres) scanProfile(row pgx.Row) (profile.Profile, error) {
	var (
		p         profile.Profile
		loginDay  string
		convDay   string
	)

	err := row.Scan(&p.ID, &p.Streak, &loginDay, &convDay, &p.DailyConversations, &p.IsPremium)
	if errors.Is(err, pgx.ErrNoRows) {
		return profile.Profile{}, profile.ErrNotFound
	}
	if err != nil {
		return profile.Profile{}, fmt.Errorf("failed to scan profile: %w", err)
	}

	p.LastLoginDay = clock.DayID(loginDay)
	p.LastConversationDay = clock.DayID(convDay)
	return p, nil
}
