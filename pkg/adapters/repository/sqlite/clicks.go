package sqlite

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/wadjakorntonsri/nexlink/pkg/core/domain"
	"github.com/wadjakorntonsri/nexlink/pkg/ports"
)

const dayLayout = "2006-01-02"

func (r *SQLiteRepository) Record(ctx context.Context, click *domain.Click) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin click transaction")
	}
	defer tx.Rollback()

	// 1. Insert Click Record
	res, err := tx.ExecContext(ctx,
		`INSERT INTO clicks (link_id, clicked_at, ip_address, user_agent, referer) VALUES (?, ?, ?, ?, ?)`,
		click.LinkID, formatTime(click.ClickedAt),
		nullString(click.IPAddress), nullString(click.UserAgent), nullString(click.Referer))
	if err != nil {
		return errors.Wrap(err, "insert click")
	}

	// 2. Increment Link Clicks Counter (Atomic)
	if err := incrementClicks(ctx, tx, click.LinkID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit click")
	}

	if id, err := res.LastInsertId(); err == nil {
		click.ID = id
	}
	return nil
}

func (r *SQLiteRepository) DailyCounts(ctx context.Context, linkID int64, since time.Time) ([]domain.DailyClick, error) {
	// clicked_at is fixed-width UTC text: the first ten bytes are the day.
	rows, err := r.db.QueryContext(ctx, `
		SELECT substr(clicked_at, 1, 10) AS day, COUNT(*)
		FROM clicks
		WHERE link_id = ? AND clicked_at >= ?
		GROUP BY day
		ORDER BY day ASC`, linkID, formatTime(since))
	if err != nil {
		return nil, errors.Wrap(err, "query daily clicks")
	}
	defer rows.Close()

	days := []domain.DailyClick{}
	for rows.Next() {
		var (
			day string
			dc  domain.DailyClick
		)
		if err := rows.Scan(&day, &dc.Count); err != nil {
			return nil, errors.Wrap(err, "scan daily clicks")
		}
		dc.Day, err = time.Parse(dayLayout, day)
		if err != nil {
			return nil, errors.Wrapf(err, "parse day %q", day)
		}
		days = append(days, dc)
	}
	return days, rows.Err()
}

func (r *SQLiteRepository) CountByLink(ctx context.Context, linkID int64) (int64, error) {
	var count int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM clicks WHERE link_id = ?`, linkID).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "count clicks")
	}
	return count, nil
}

var _ ports.ClickRepository = (*SQLiteRepository)(nil)
