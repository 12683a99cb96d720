package domain

import "time"

// Click represents a single resolved redirect
type Click struct {
	ID        int64     `json:"id"`
	LinkID    int64     `json:"link_id"`
	ClickedAt time.Time `json:"clicked_at"`
	IPAddress string    `json:"ip_address,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	Referer   string    `json:"referer,omitempty"`
}

// DailyClick is one calendar-day bucket (UTC).
type DailyClick struct {
	Day   time.Time `json:"day"`
	Label string    `json:"label"` // e.g. "Jan 02"
	Count int64     `json:"count"`
}

// LinkAnalytics is the chart payload for a single link.
type LinkAnalytics struct {
	ShortCode   string       `json:"short_code"`
	Days        []DailyClick `json:"days"`
	Labels      []string     `json:"labels"`
	Values      []int64      `json:"values"`
	TotalClicks int64        `json:"total_clicks"`
}
