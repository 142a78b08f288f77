package sqlrepo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bryanwahyu/trapscan/internal/domain/analysis"
	"github.com/bryanwahyu/trapscan/internal/domain/history"
)

const table = "analysis_history"

type HistoryRepository struct {
	db *sql.DB
	d  Dialect
}

func NewHistoryRepository(db *sql.DB, d Dialect) *HistoryRepository {
	return &HistoryRepository{db: db, d: d}
}

// Migrate creates the history table when missing.
func (r *HistoryRepository) Migrate(ctx context.Context) error {
	q := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  url_key %s NOT NULL PRIMARY KEY,
  id VARCHAR(64) NOT NULL,
  url %s NOT NULL,
  domain VARCHAR(255) NOT NULL,
  title VARCHAR(512) NOT NULL,
  risk_score INT NOT NULL,
  risk_level VARCHAR(16) NOT NULL,
  finding_count INT NOT NULL,
  added_at BIGINT NOT NULL,
  analyzed_at BIGINT NOT NULL,
  result_json %s NOT NULL
)`, table, r.d.KeyType, r.d.TextType, r.d.TextType)
	_, err := r.db.ExecContext(ctx, q)
	return err
}

// Save upserts by URL. added_at is kept on update so the entry keeps its
// position, then rows beyond MaxEntries are trimmed.
func (r *HistoryRepository) Save(ctx context.Context, e *history.Entry) error {
	result := []byte("{}")
	if e.Result != nil {
		b, err := json.Marshal(e.Result)
		if err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		result = b
	}
	addedAt := e.AddedAt
	if addedAt.IsZero() {
		addedAt = time.Now()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	q := r.d.bind(fmt.Sprintf(`
INSERT INTO %s
  (url_key, id, url, domain, title, risk_score, risk_level, finding_count, added_at, analyzed_at, result_json)
VALUES (?,?,?,?,?,?,?,?,?,?,?)
%s`, table, r.d.Upsert))
	if _, err := tx.ExecContext(ctx, q,
		urlKey(e.URL), e.ID, e.URL, stringOrDash(e.Domain), stringOrDash(e.Title),
		e.RiskScore, string(e.RiskLevel), e.FindingCount,
		addedAt.UnixMilli(), e.AnalyzedAt.UnixMilli(), string(result),
	); err != nil {
		return err
	}

	trim := r.d.bind(fmt.Sprintf(`
DELETE FROM %s WHERE url_key NOT IN (
  SELECT url_key FROM (SELECT url_key FROM %s ORDER BY added_at DESC, id DESC LIMIT ?) keep
)`, table, table))
	if _, err := tx.ExecContext(ctx, trim, history.MaxEntries); err != nil {
		return err
	}
	return tx.Commit()
}

const selectColumns = `id, url, domain, title, risk_score, risk_level, finding_count, added_at, analyzed_at, result_json`

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*history.Entry, error) {
	var (
		e                 history.Entry
		level, result     string
		added, analyzedAt int64
	)
	if err := s.Scan(&e.ID, &e.URL, &e.Domain, &e.Title, &e.RiskScore, &level, &e.FindingCount, &added, &analyzedAt, &result); err != nil {
		return nil, err
	}
	e.RiskLevel = analysis.RiskLevel(level)
	e.AddedAt = time.UnixMilli(added).UTC()
	e.AnalyzedAt = time.UnixMilli(analyzedAt).UTC()
	if result != "" && result != "{}" {
		var res analysis.Result
		if err := json.Unmarshal([]byte(result), &res); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
		e.Result = &res
	}
	return &e, nil
}

// List returns entries newest first.
func (r *HistoryRepository) List(ctx context.Context, limit, offset int) ([]*history.Entry, error) {
	if limit <= 0 || limit > history.MaxEntries {
		limit = history.MaxEntries
	}
	if offset < 0 {
		offset = 0
	}
	q := r.d.bind(fmt.Sprintf(`
SELECT %s
FROM %s
ORDER BY added_at DESC, id DESC
LIMIT ? OFFSET ?`, selectColumns, table))
	rows, err := r.db.QueryContext(ctx, q, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*history.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *HistoryRepository) Get(ctx context.Context, url string) (*history.Entry, error) {
	q := r.d.bind(fmt.Sprintf(`SELECT %s FROM %s WHERE url_key=?`, selectColumns, table))
	e, err := scanEntry(r.db.QueryRowContext(ctx, q, urlKey(url)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, history.ErrNotFound
	}
	return e, err
}

func (r *HistoryRepository) Delete(ctx context.Context, url string) error {
	q := r.d.bind(fmt.Sprintf(`DELETE FROM %s WHERE url_key=?`, table))
	_, err := r.db.ExecContext(ctx, q, urlKey(url))
	return err
}

func (r *HistoryRepository) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, table))
	return err
}

func (r *HistoryRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table)).Scan(&n)
	return n, err
}
