package services

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/wadjakorntonsri/nexlink/pkg/core/domain"
	"github.com/wadjakorntonsri/nexlink/pkg/ports"
	"go.uber.org/zap"
)

// AnalyticsWindow is the trailing period covered by the chart.
const AnalyticsWindow = 7 * 24 * time.Hour

// DayLabelLayout formats chart labels, e.g. "Jan 02".
const DayLabelLayout = "Jan 02"

type AnalyticsService struct {
	links  ports.LinkService
	clicks ports.ClickRepository
	logger *zap.Logger
	now    func() time.Time
}

func NewAnalyticsService(links ports.LinkService, clicks ports.ClickRepository, logger *zap.Logger) *AnalyticsService {
	return &AnalyticsService{links: links, clicks: clicks, logger: logger, now: time.Now}
}

// WithClock replaces the time source; used by tests and the CLI.
func (s *AnalyticsService) WithClock(now func() time.Time) *AnalyticsService {
	s.now = now
	return s
}

// LinkAnalytics buckets the last seven days of clicks by UTC day. Only days
// with at least one click appear.
func (s *AnalyticsService) LinkAnalytics(ctx context.Context, code, owner string) (*domain.LinkAnalytics, error) {
	link, err := s.links.GetOwnedLink(ctx, code, owner)
	if err != nil {
		return nil, err
	}

	since := s.now().UTC().Add(-AnalyticsWindow)
	days, err := s.clicks.DailyCounts(ctx, link.ID, since)
	if err != nil {
		s.logger.Error("daily click query failed", zap.String("short_code", code), zap.Error(err))
		return nil, errors.Wrap(domain.ErrTemporaryFailure, "analytics")
	}

	out := &domain.LinkAnalytics{
		ShortCode:   link.ShortCode,
		Days:        make([]domain.DailyClick, 0, len(days)),
		Labels:      make([]string, 0, len(days)),
		Values:      make([]int64, 0, len(days)),
		TotalClicks: link.ClicksCount,
	}
	for _, d := range days {
		d.Label = d.Day.UTC().Format(DayLabelLayout)
		out.Days = append(out.Days, d)
		out.Labels = append(out.Labels, d.Label)
		out.Values = append(out.Values, d.Count)
	}
	return out, nil
}

var _ ports.AnalyticsService = (*AnalyticsService)(nil)
