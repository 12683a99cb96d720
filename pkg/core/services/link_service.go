package services

import (
	"context"
	"math"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/wadjakorntonsri/nexlink/pkg/codec"
	"github.com/wadjakorntonsri/nexlink/pkg/core/domain"
	"github.com/wadjakorntonsri/nexlink/pkg/ports"
	"go.uber.org/zap"
)

// maxAllocAttempts bounds retries when a derived code hits an existing alias.
const maxAllocAttempts = 5

// RecentLimit is how many links the recent list holds.
const RecentLimit = 5

var aliasPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,15}$`)

type LinkService struct {
	repo   ports.LinkRepository
	logger *zap.Logger
	now    func() time.Time
}

func NewLinkService(repo ports.LinkRepository, logger *zap.Logger) *LinkService {
	return &LinkService{repo: repo, logger: logger, now: time.Now}
}

func (s *LinkService) Shorten(ctx context.Context, req ports.ShortenRequest) (*domain.Link, error) {
	originalURL, err := validateURL(req.OriginalURL)
	if err != nil {
		return nil, err
	}

	alias := strings.TrimSpace(req.CustomCode)
	if alias == "" {
		return s.shortenGenerated(ctx, originalURL, req.Owner)
	}
	return s.shortenAlias(ctx, originalURL, alias, req.Owner)
}

// shortenGenerated reserves the id first so the row is written once, already
// carrying Encode(id).
func (s *LinkService) shortenGenerated(ctx context.Context, originalURL, owner string) (*domain.Link, error) {
	for attempt := 1; attempt <= maxAllocAttempts; attempt++ {
		id, err := s.repo.NextID(ctx)
		if err != nil {
			return nil, s.temporary(err, "reserve id")
		}

		link := &domain.Link{
			ID:          id,
			OriginalURL: originalURL,
			ShortCode:   codec.Encode(uint64(id)),
			Owner:       owner,
			CreatedAt:   s.now().UTC(),
		}

		err = s.repo.Create(ctx, link)
		if err == nil {
			return link, nil
		}
		if !errors.Is(err, domain.ErrAliasTaken) {
			return nil, s.temporary(err, "create link")
		}
		// An earlier custom alias already spells this id; burn it and move on.
		s.logger.Warn("generated code collides with alias",
			zap.String("short_code", link.ShortCode), zap.Int("attempt", attempt))
	}
	return nil, s.temporary(errors.New("no free generated code"), "create link")
}

func (s *LinkService) shortenAlias(ctx context.Context, originalURL, alias, owner string) (*domain.Link, error) {
	if owner == "" {
		return nil, domain.ErrAliasRequiresOwner
	}
	if !aliasPattern.MatchString(alias) {
		return nil, &domain.ValidationError{Field: "custom_code", Err: domain.ErrInvalidAliasFormat}
	}

	// Advisory only; the unique index decides races.
	exists, err := s.repo.ExistsByShortCode(ctx, alias)
	if err != nil {
		return nil, s.temporary(err, "check alias")
	}
	if exists {
		return nil, domain.ErrAliasTaken
	}

	id, err := s.repo.NextID(ctx)
	if err != nil {
		return nil, s.temporary(err, "reserve id")
	}

	link := &domain.Link{
		ID:          id,
		OriginalURL: originalURL,
		ShortCode:   alias,
		Owner:       owner,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.repo.Create(ctx, link); err != nil {
		if errors.Is(err, domain.ErrAliasTaken) {
			return nil, domain.ErrAliasTaken
		}
		return nil, s.temporary(err, "create link")
	}
	return link, nil
}

func (s *LinkService) ListLinks(ctx context.Context, owner string, page, limit int) ([]domain.Link, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	offset := (page - 1) * limit

	links, err := s.repo.ListByOwner(ctx, owner, limit, offset)
	if err != nil {
		return nil, 0, s.temporary(err, "list links")
	}

	count, err := s.repo.CountByOwner(ctx, owner)
	if err != nil {
		return nil, 0, s.temporary(err, "count links")
	}

	return links, count, nil
}

// RecentLinks returns the owner's newest links, or for anonymous callers the
// links named by their client-held list, in that list's order.
func (s *LinkService) RecentLinks(ctx context.Context, owner string, codes []string) ([]domain.Link, error) {
	if owner != "" {
		links, err := s.repo.ListByOwner(ctx, owner, RecentLimit, 0)
		if err != nil {
			return nil, s.temporary(err, "list recent links")
		}
		return links, nil
	}

	// Client-held codes are generated ones, so each names its id.
	ids := make([]int64, 0, len(codes))
	for _, code := range codes {
		id, err := codec.Decode(code)
		if err != nil || id == 0 || id > math.MaxInt64 {
			continue
		}
		ids = append(ids, int64(id))
	}
	if len(ids) == 0 {
		return nil, nil
	}

	found, err := s.repo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, s.temporary(err, "get recent links")
	}
	byCode := make(map[string]domain.Link, len(found))
	for _, l := range found {
		byCode[l.ShortCode] = l
	}

	var links []domain.Link
	for _, code := range codes {
		if len(links) == RecentLimit {
			break
		}
		// Anonymous lists never expose owned links.
		if l, ok := byCode[code]; ok && l.Anonymous() {
			links = append(links, l)
			delete(byCode, code)
		}
	}
	return links, nil
}

// GetOwnedLink returns ErrNotFound both for unknown codes and for links the
// caller does not own.
func (s *LinkService) GetOwnedLink(ctx context.Context, code, owner string) (*domain.Link, error) {
	link, err := s.repo.GetByShortCode(ctx, code)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, s.temporary(err, "get link")
	}
	if !link.OwnedBy(owner) {
		return nil, domain.ErrNotFound
	}
	return link, nil
}

func (s *LinkService) temporary(err error, op string) error {
	s.logger.Error("link store failure", zap.String("op", op), zap.Error(err))
	return errors.Wrap(domain.ErrTemporaryFailure, op)
}

func validateURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", &domain.ValidationError{Field: "original_url", Err: domain.ErrURLRequired}
	}
	if len(raw) > domain.MaxURLLength {
		return "", &domain.ValidationError{Field: "original_url", Err: domain.ErrInvalidURL}
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", &domain.ValidationError{Field: "original_url", Err: domain.ErrInvalidURL}
	}
	return raw, nil
}

var _ ports.LinkService = (*LinkService)(nil)
