package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"strings"
	"time"
)

var ErrNotFound = sql.ErrNoRows

//go:embed schema.sql
var schema string

// EnsureSchema creates the cache table if it does not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// AnswerRepo caches successful answers keyed by
// (input_hash, engine, model, mode).
type AnswerRepo struct {
	DB     *sql.DB
	MaxAge time.Duration
}

func NewAnswerRepo(db *sql.DB, maxAge time.Duration) *AnswerRepo {
	return &AnswerRepo{DB: db, MaxAge: maxAge}
}

// Find returns the cached answer. Entries older than MaxAge (when set) count
// as missing.
func (r *AnswerRepo) Find(ctx context.Context, inputHash, engine, model, mode string) (string, bool, error) {
	const q = `select content, created_at
	           from answer_cache
	           where input_hash=$1 and engine=$2 and model=$3 and mode=$4`
	var (
		content string
		ts      time.Time
	)
	err := r.DB.QueryRowContext(ctx, q, inputHash, engine, model, mode).Scan(&content, &ts)
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if r.MaxAge > 0 && time.Since(ts) > r.MaxAge {
		return "", false, nil
	}
	return content, true, nil
}

// Upsert stores or refreshes an answer.
func (r *AnswerRepo) Upsert(ctx context.Context, inputHash, engine, model, mode, content string) error {
	const q = `
insert into answer_cache(input_hash, engine, model, mode, content)
values ($1,$2,$3,$4,$5)
on conflict (input_hash, engine, model, mode)
do update set content=excluded.content, created_at=now()`
	_, err := r.DB.ExecContext(ctx, q, inputHash, engine, model, mode, content)
	return err
}

// PurgeOlderThan deletes entries older than age and reports how many went.
func (r *AnswerRepo) PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	const q = `delete from answer_cache where created_at < $1`
	res, err := r.DB.ExecContext(ctx, q, time.Now().Add(-age))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Ping reports whether the database is reachable.
func (r *AnswerRepo) Ping(ctx context.Context) error {
	return r.DB.PingContext(ctx)
}
