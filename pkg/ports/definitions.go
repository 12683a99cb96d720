package ports

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/wadjakorntonsri/nexlink/pkg/core/domain"
)

var (
	// ErrCacheMiss means the key is absent.
	ErrCacheMiss = errors.New("cache miss")
	// ErrCacheUnavailable means the cache could not answer; never the same as a miss.
	ErrCacheUnavailable = errors.New("cache unavailable")
)

// LinkRepository defines storage operations for links
type LinkRepository interface {
	// NextID atomically reserves the next link identity.
	NextID(ctx context.Context) (int64, error)
	// Create inserts a fully formed link. A short code conflict returns domain.ErrAliasTaken.
	Create(ctx context.Context, link *domain.Link) error

	// Two-phase creation: a provisional row has no short code and cannot be resolved.
	CreateProvisional(ctx context.Context, originalURL, owner string) (int64, error)
	SetCode(ctx context.Context, id int64, code string) error

	GetByShortCode(ctx context.Context, code string) (*domain.Link, error)
	// GetByIDs returns the coded links among ids, in no particular order.
	GetByIDs(ctx context.Context, ids []int64) ([]domain.Link, error)
	ExistsByShortCode(ctx context.Context, code string) (bool, error)
	ListByOwner(ctx context.Context, owner string, limit, offset int) ([]domain.Link, error)
	CountByOwner(ctx context.Context, owner string) (int64, error)
	Delete(ctx context.Context, id int64) error
	Dump(ctx context.Context) ([]domain.Link, error) // For migration

	// IncrementClicks is a storage-native atomic increment.
	IncrementClicks(ctx context.Context, id int64) error
}

// ClickRepository is the append-only click log
type ClickRepository interface {
	// Record appends the click and increments the link counter in one transaction.
	Record(ctx context.Context, click *domain.Click) error
	// DailyCounts buckets clicks at or after since by UTC day, oldest first.
	DailyCounts(ctx context.Context, linkID int64, since time.Time) ([]domain.DailyClick, error)
	CountByLink(ctx context.Context, linkID int64) (int64, error)
}

// Cache is a string key-value store with per-entry TTL.
type Cache interface {
	// Get returns ErrCacheMiss for absent keys and ErrCacheUnavailable when the
	// backend cannot be reached.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Ping(ctx context.Context) error
}

// ShortenRequest is the input of LinkService.Shorten.
type ShortenRequest struct {
	OriginalURL string
	CustomCode  string
	Owner       string
}

// LinkService defines the business logic operations
type LinkService interface {
	Shorten(ctx context.Context, req ShortenRequest) (*domain.Link, error)
	ListLinks(ctx context.Context, owner string, page, limit int) ([]domain.Link, int64, error)
	RecentLinks(ctx context.Context, owner string, codes []string) ([]domain.Link, error)
	GetOwnedLink(ctx context.Context, code, owner string) (*domain.Link, error)
}

// RedirectResolver turns a short code into a redirect target.
type RedirectResolver interface {
	Resolve(ctx context.Context, code string) (*domain.Target, error)
}

// ClickTracker accepts clicks without blocking the caller.
type ClickTracker interface {
	Track(click domain.Click)
}

// AnalyticsService builds the per-day click chart for an owned link.
type AnalyticsService interface {
	LinkAnalytics(ctx context.Context, code, owner string) (*domain.LinkAnalytics, error)
}

// QRService renders the QR code of an owned link.
type QRService interface {
	PNG(ctx context.Context, code, owner, baseURL string) ([]byte, string, error)
}
