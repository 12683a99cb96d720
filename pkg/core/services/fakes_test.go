package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/wadjakorntonsri/nexlink/pkg/adapters/repository/sqlite"
	"github.com/wadjakorntonsri/nexlink/pkg/core/domain"
	"github.com/wadjakorntonsri/nexlink/pkg/ports"
	"go.uber.org/zap"
)

func newSQLite(t *testing.T) *sqlite.SQLiteRepository {
	t.Helper()
	repo, err := sqlite.NewSQLiteRepository("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

// countingRepo counts lookups and writes that reach the wrapped repository.
type countingRepo struct {
	ports.LinkRepository
	lookups atomic.Int64
	writes  atomic.Int64
}

func (c *countingRepo) GetByShortCode(ctx context.Context, code string) (*domain.Link, error) {
	c.lookups.Add(1)
	return c.LinkRepository.GetByShortCode(ctx, code)
}

func (c *countingRepo) NextID(ctx context.Context) (int64, error) {
	c.writes.Add(1)
	return c.LinkRepository.NextID(ctx)
}

func (c *countingRepo) Create(ctx context.Context, link *domain.Link) error {
	c.writes.Add(1)
	return c.LinkRepository.Create(ctx, link)
}

// fakeRepo is an in-memory store whose calls can be made to fail.
type fakeRepo struct {
	mu     sync.Mutex
	nextID int64
	links  map[string]*domain.Link
	clicks []domain.Click

	calls      atomic.Int64
	failWith   error
	hideExists bool // pretend the pre-check saw nothing
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{links: map[string]*domain.Link{}}
}

func (f *fakeRepo) touch() error {
	f.calls.Add(1)
	return f.failWith
}

func (f *fakeRepo) NextID(context.Context) (int64, error) {
	if err := f.touch(); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	return f.nextID, nil
}

func (f *fakeRepo) Create(_ context.Context, link *domain.Link) error {
	if err := f.touch(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.links[link.ShortCode]; ok {
		return domain.ErrAliasTaken
	}
	cp := *link
	f.links[link.ShortCode] = &cp
	return nil
}

func (f *fakeRepo) CreateProvisional(context.Context, string, string) (int64, error) {
	return 0, errors.New("not implemented")
}

func (f *fakeRepo) SetCode(context.Context, int64, string) error {
	return errors.New("not implemented")
}

func (f *fakeRepo) GetByShortCode(_ context.Context, code string) (*domain.Link, error) {
	if err := f.touch(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.links[code]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (f *fakeRepo) GetByIDs(_ context.Context, ids []int64) ([]domain.Link, error) {
	if err := f.touch(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Link
	for _, id := range ids {
		for _, l := range f.links {
			if l.ID == id {
				out = append(out, *l)
			}
		}
	}
	return out, nil
}

func (f *fakeRepo) ExistsByShortCode(_ context.Context, code string) (bool, error) {
	if err := f.touch(); err != nil {
		return false, err
	}
	if f.hideExists {
		return false, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.links[code]
	return ok, nil
}

func (f *fakeRepo) ListByOwner(context.Context, string, int, int) ([]domain.Link, error) {
	return nil, f.touch()
}

func (f *fakeRepo) CountByOwner(context.Context, string) (int64, error) {
	return 0, f.touch()
}

func (f *fakeRepo) Delete(context.Context, int64) error {
	return f.touch()
}

func (f *fakeRepo) Dump(context.Context) ([]domain.Link, error) {
	return nil, f.touch()
}

func (f *fakeRepo) IncrementClicks(_ context.Context, id int64) error {
	if err := f.touch(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.links {
		if l.ID == id {
			l.ClicksCount++
			return nil
		}
	}
	return domain.ErrNotFound
}

func (f *fakeRepo) Record(ctx context.Context, click *domain.Click) error {
	if err := f.IncrementClicks(ctx, click.LinkID); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clicks = append(f.clicks, *click)
	return nil
}

func (f *fakeRepo) DailyCounts(context.Context, int64, time.Time) ([]domain.DailyClick, error) {
	return nil, f.touch()
}

func (f *fakeRepo) CountByLink(context.Context, int64) (int64, error) {
	return 0, f.touch()
}

var (
	_ ports.LinkRepository  = (*fakeRepo)(nil)
	_ ports.ClickRepository = (*fakeRepo)(nil)
)

// downCache fails every call the way an unreachable Redis does.
type downCache struct {
	calls atomic.Int64
}

func (c *downCache) Get(context.Context, string) (string, error) {
	c.calls.Add(1)
	return "", errors.Wrap(ports.ErrCacheUnavailable, "dial tcp: connection refused")
}

func (c *downCache) Set(context.Context, string, string, time.Duration) error {
	c.calls.Add(1)
	return errors.Wrap(ports.ErrCacheUnavailable, "dial tcp: connection refused")
}

func (c *downCache) Ping(context.Context) error {
	return ports.ErrCacheUnavailable
}

func testLogger() *zap.Logger {
	return zap.NewNop()
}
