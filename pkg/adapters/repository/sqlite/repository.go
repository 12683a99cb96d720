package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"
	_ "github.com/tursodatabase/libsql-client-go/libsql" // Turso driver
	"github.com/wadjakorntonsri/nexlink/pkg/core/domain"
	"github.com/wadjakorntonsri/nexlink/pkg/ports"
	moderncsqlite "modernc.org/sqlite" // Local SQLite driver
	sqlite3 "modernc.org/sqlite/lib"
)

// timeLayout is fixed width so stored timestamps sort and compare as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbURL string) (*SQLiteRepository, error) {
	driverName := "sqlite"
	if strings.Contains(dbURL, "libsql://") || strings.Contains(dbURL, "wss://") {
		driverName = "libsql"
	}

	dsn := dbURL
	if driverName == "sqlite" {
		dsn = withPragmas(dbURL)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}

	if driverName == "sqlite" {
		// One writer at a time; concurrent callers queue on the pool
		// instead of failing with SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "ping database")
	}

	if err := migrate(db); err != nil {
		return nil, errors.Wrap(err, "migrate database")
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func withPragmas(dbURL string) string {
	sep := "?"
	if strings.Contains(dbURL, "?") {
		sep = "&"
	}
	return dbURL + sep + "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
}

func migrate(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS links (
		id INTEGER PRIMARY KEY,
		original_url TEXT NOT NULL,
		short_code TEXT UNIQUE,
		owner TEXT,
		clicks_count INTEGER NOT NULL DEFAULT 0 CHECK (clicks_count >= 0),
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_links_owner ON links(owner, created_at);

	CREATE TABLE IF NOT EXISTS clicks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		link_id INTEGER NOT NULL,
		clicked_at TEXT NOT NULL,
		ip_address TEXT,
		user_agent TEXT,
		referer TEXT,
		FOREIGN KEY(link_id) REFERENCES links(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_clicks_link_id ON clicks(link_id, clicked_at);

	CREATE TABLE IF NOT EXISTS link_sequence (
		name TEXT PRIMARY KEY,
		value INTEGER NOT NULL
	);
	INSERT OR IGNORE INTO link_sequence (name, value) VALUES ('links', 0);
	`
	if _, err := db.Exec(query); err != nil {
		return err
	}

	// Rows imported with explicit ids must never be handed out again.
	_, err := db.Exec(`UPDATE link_sequence
		SET value = MAX(value, (SELECT COALESCE(MAX(id), 0) FROM links))
		WHERE name = 'links'`)
	return err
}

func (r *SQLiteRepository) NextID(ctx context.Context) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx,
		`UPDATE link_sequence SET value = value + 1 WHERE name = 'links' RETURNING value`).Scan(&id)
	if err != nil {
		return 0, errors.Wrap(err, "reserve link id")
	}
	return id, nil
}

func (r *SQLiteRepository) Create(ctx context.Context, link *domain.Link) error {
	if link.ID == 0 {
		return errors.New("create link: id must be reserved first")
	}
	if link.ShortCode == "" {
		return errors.New("create link: short code is required")
	}

	query := `INSERT INTO links (id, original_url, short_code, owner, clicks_count, created_at)
			  VALUES (?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		link.ID, link.OriginalURL, link.ShortCode, nullString(link.Owner), link.ClicksCount, formatTime(link.CreatedAt))
	if err != nil {
		if isUniqueViolation(err, "links.short_code") {
			return domain.ErrAliasTaken
		}
		return errors.Wrap(err, "insert link")
	}
	return nil
}

func (r *SQLiteRepository) CreateProvisional(ctx context.Context, originalURL, owner string) (int64, error) {
	id, err := r.NextID(ctx)
	if err != nil {
		return 0, err
	}

	query := `INSERT INTO links (id, original_url, short_code, owner, created_at) VALUES (?, ?, NULL, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, id, originalURL, nullString(owner), formatTime(time.Now())); err != nil {
		return 0, errors.Wrap(err, "insert provisional link")
	}
	return id, nil
}

func (r *SQLiteRepository) SetCode(ctx context.Context, id int64, code string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE links SET short_code = ? WHERE id = ? AND short_code IS NULL`, code, id)
	if err != nil {
		if isUniqueViolation(err, "links.short_code") {
			return domain.ErrAliasTaken
		}
		return errors.Wrap(err, "set short code")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "set short code")
	}
	if n == 0 {
		return errors.Wrapf(domain.ErrNotFound, "no pending link with id %d", id)
	}
	return nil
}

const linkColumns = `id, original_url, short_code, owner, clicks_count, created_at`

func (r *SQLiteRepository) GetByShortCode(ctx context.Context, code string) (*domain.Link, error) {
	// A NULL short_code never compares equal, so pending rows stay invisible.
	query := `SELECT ` + linkColumns + ` FROM links WHERE short_code = ?`
	link, err := scanLink(r.db.QueryRowContext(ctx, query, code))
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get link by short code")
	}
	return link, nil
}

func (r *SQLiteRepository) GetByIDs(ctx context.Context, ids []int64) ([]domain.Link, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := `SELECT ` + linkColumns + ` FROM links WHERE short_code IS NOT NULL AND id IN (?` +
		strings.Repeat(", ?", len(ids)-1) + `)`
	return r.queryLinks(ctx, query, args...)
}

func (r *SQLiteRepository) ExistsByShortCode(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM links WHERE short_code = ?)`, code).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "check short code")
	}
	return exists, nil
}

func (r *SQLiteRepository) ListByOwner(ctx context.Context, owner string, limit, offset int) ([]domain.Link, error) {
	query := `SELECT ` + linkColumns + ` FROM links
			  WHERE owner = ? AND short_code IS NOT NULL
			  ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	return r.queryLinks(ctx, query, owner, limit, offset)
}

func (r *SQLiteRepository) CountByOwner(ctx context.Context, owner string) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM links WHERE owner = ? AND short_code IS NOT NULL`, owner).Scan(&count)
	if err != nil {
		return 0, errors.Wrap(err, "count links")
	}
	return count, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM links WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "delete link")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "delete link")
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) Dump(ctx context.Context) ([]domain.Link, error) {
	return r.queryLinks(ctx, `SELECT `+linkColumns+` FROM links WHERE short_code IS NOT NULL ORDER BY id`)
}

func (r *SQLiteRepository) IncrementClicks(ctx context.Context, id int64) error {
	return incrementClicks(ctx, r.db, id)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func incrementClicks(ctx context.Context, db execer, id int64) error {
	res, err := db.ExecContext(ctx, `UPDATE links SET clicks_count = clicks_count + 1 WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "increment clicks")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "increment clicks")
	}
	if n == 0 {
		return errors.Wrapf(domain.ErrNotFound, "increment clicks of link %d", id)
	}
	return nil
}

func (r *SQLiteRepository) queryLinks(ctx context.Context, query string, args ...interface{}) ([]domain.Link, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query links")
	}
	defer rows.Close()

	var links []domain.Link
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan link")
		}
		links = append(links, *l)
	}
	return links, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanLink(s scanner) (*domain.Link, error) {
	var (
		link      domain.Link
		code      sql.NullString
		owner     sql.NullString
		createdAt string
	)
	if err := s.Scan(&link.ID, &link.OriginalURL, &code, &owner, &link.ClicksCount, &createdAt); err != nil {
		return nil, err
	}
	link.ShortCode = code.String
	link.Owner = owner.String

	t, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	link.CreatedAt = t
	return &link, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "parse timestamp %q", s)
	}
	return t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// isUniqueViolation recognises UNIQUE failures from both drivers. The libsql
// client only surfaces the message text.
func isUniqueViolation(err error, column string) bool {
	var se *moderncsqlite.Error
	if errors.As(err, &se) {
		return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), column)
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") && strings.Contains(msg, column)
}

// Ensure interface compliance
var _ ports.LinkRepository = (*SQLiteRepository)(nil)
