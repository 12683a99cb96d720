package domain

import "time"

// MaxShortCodeLength bounds both generated codes and custom aliases.
const MaxShortCodeLength = 15

// MaxURLLength bounds the stored destination.
const MaxURLLength = 2000

// Link represents a shortened URL
type Link struct {
	ID          int64     `json:"id"`
	OriginalURL string    `json:"original_url"`
	ShortCode   string    `json:"short_code"`
	Owner       string    `json:"owner,omitempty"` // empty for anonymous creators
	CreatedAt   time.Time `json:"created_at"`
	ClicksCount int64     `json:"clicks_count"`
}

// Anonymous reports whether the link was created without an owner.
func (l *Link) Anonymous() bool {
	return l.Owner == ""
}

// OwnedBy reports whether owner may see the link's analytics.
func (l *Link) OwnedBy(owner string) bool {
	return owner != "" && l.Owner == owner
}

// Target is what a redirect needs: where to go and which link to count.
type Target struct {
	LinkID int64  `json:"id"`
	URL    string `json:"url"`
}
