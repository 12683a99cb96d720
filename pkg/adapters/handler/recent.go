package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/wadjakorntonsri/nexlink/pkg/codec"
	"github.com/wadjakorntonsri/nexlink/pkg/core/services"
)

const (
	recentCookie    = "recent_links"
	recentSeparator = "."
	recentMaxAge    = 30 * 24 * time.Hour
)

// recentCodes reads the anonymous caller's recent codes, newest first.
func recentCodes(r *http.Request) []string {
	c, err := r.Cookie(recentCookie)
	if err != nil || c.Value == "" {
		return nil
	}

	var codes []string
	seen := map[string]bool{}
	for _, code := range strings.Split(c.Value, recentSeparator) {
		if !codec.Valid(code) || seen[code] {
			continue
		}
		seen[code] = true
		codes = append(codes, code)
		if len(codes) == services.RecentLimit {
			break
		}
	}
	return codes
}

// rememberRecent prepends code to the recent_links cookie.
func (h *HTTPHandler) rememberRecent(w http.ResponseWriter, r *http.Request, code string) {
	codes := []string{code}
	for _, c := range recentCodes(r) {
		if c != code && len(codes) < services.RecentLimit {
			codes = append(codes, c)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     recentCookie,
		Value:    strings.Join(codes, recentSeparator),
		Expires:  time.Now().Add(recentMaxAge),
		Path:     "/",
		HttpOnly: true,
		Secure:   h.isProduction,
		SameSite: http.SameSiteLaxMode,
	})
}
