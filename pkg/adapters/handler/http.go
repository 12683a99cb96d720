package handler

import (
	"encoding/base64"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/wadjakorntonsri/nexlink/pkg/core/domain"
	"github.com/wadjakorntonsri/nexlink/pkg/ports"
	"go.uber.org/zap"
)

// User-facing messages. Internal causes never reach the client.
const (
	msgURLRequired    = "URL is required"
	msgInvalidURL     = "Enter a valid URL."
	msgAliasOwner     = "Sign up to use custom aliases!"
	msgAliasFormat    = "Alias can only contain letters, numbers, dashes, and underscores."
	msgAliasTaken     = "That alias is already taken. Try another one."
	msgTryAgain       = "Something went wrong. Please try again."
	msgLinkNotFound   = "Link not found"
	msgBadRequestBody = "Invalid request body"
)

// Services groups what the HTTP layer calls into.
type Services struct {
	Links     ports.LinkService
	Resolver  ports.RedirectResolver
	Tracker   ports.ClickTracker
	Analytics ports.AnalyticsService
	QR        ports.QRService
	Cache     ports.Cache
}

type HTTPHandler struct {
	svc          Services
	baseURL      string
	isProduction bool
	logger       *zap.Logger
}

func NewHTTPHandler(svc Services, baseURL string, isProduction bool, logger *zap.Logger) *HTTPHandler {
	return &HTTPHandler{
		svc:          svc,
		baseURL:      strings.TrimRight(baseURL, "/"),
		isProduction: isProduction,
		logger:       logger,
	}
}

// ShortenRequest payload; also accepted as form fields.
type ShortenRequest struct {
	OriginalURL string `json:"original_url"`
	CustomCode  string `json:"custom_code,omitempty"`
}

// LinkResponse is a created or listed link.
type LinkResponse struct {
	*domain.Link
	ShortURL string `json:"short_url"`
}

// Shorten creates a link
func (h *HTTPHandler) Shorten(w http.ResponseWriter, r *http.Request) {
	var req ShortenRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeMessage(w, shortenStatus(r, http.StatusBadRequest), msgBadRequestBody)
			return
		}
	} else {
		req.OriginalURL = r.FormValue("original_url")
		req.CustomCode = r.FormValue("custom_code")
	}

	owner := OwnerFromContext(r.Context())
	link, err := h.svc.Links.Shorten(r.Context(), ports.ShortenRequest{
		OriginalURL: req.OriginalURL,
		CustomCode:  req.CustomCode,
		Owner:       owner,
	})
	if err != nil {
		status, msg := h.errorResponse(r, err)
		writeMessage(w, shortenStatus(r, status), msg)
		return
	}

	if owner == "" {
		h.rememberRecent(w, r, link.ShortCode)
	}

	writeJSON(w, http.StatusCreated, h.linkResponse(r, link))
}

// Redirect to original URL
func (h *HTTPHandler) Redirect(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("short_code")

	target, err := h.svc.Resolver.Resolve(r.Context(), code)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	// Keep browsers and proxies from pinning a destination that may change.
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	http.Redirect(w, r, target.URL, http.StatusFound)

	// Track visit (only if query param "no_stat" is not set)
	if r.URL.Query().Get("no_stat") == "" {
		h.svc.Tracker.Track(domain.Click{
			LinkID:    target.LinkID,
			ClickedAt: time.Now(),
			IPAddress: clientIP(r),
			UserAgent: r.UserAgent(),
			Referer:   r.Referer(),
		})
	}
}

// Analytics returns the last seven days of clicks, shaped for a chart
func (h *HTTPHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Analytics.LinkAnalytics(r.Context(), r.PathValue("short_code"), OwnerFromContext(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// QR renders the short URL as a PNG, or a data URI with ?format=base64
func (h *HTTPHandler) QR(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("short_code")
	png, fullURL, err := h.svc.QR.PNG(r.Context(), code, OwnerFromContext(r.Context()), h.publicBaseURL(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if r.URL.Query().Get("format") == "base64" {
		writeJSON(w, http.StatusOK, map[string]string{
			"qr_image": "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
			"full_url": fullURL,
		})
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", `attachment; filename="qr_`+code+`.png"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

// List the caller's links
func (h *HTTPHandler) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}

	links, count, err := h.svc.Links.ListLinks(r.Context(), OwnerFromContext(r.Context()), page, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := map[string]interface{}{
		"data":  h.linkResponses(r, links),
		"total": count,
		"page":  page,
		"limit": limit,
	}
	writeJSON(w, http.StatusOK, resp)
}

// Recent lists the caller's newest links; anonymous callers get the links
// from their recent_links cookie.
func (h *HTTPHandler) Recent(w http.ResponseWriter, r *http.Request) {
	owner := OwnerFromContext(r.Context())
	var codes []string
	if owner == "" {
		codes = recentCodes(r)
	}

	links, err := h.svc.Links.RecentLinks(r.Context(), owner, codes)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": h.linkResponses(r, links)})
}

// Health reports liveness and whether the cache answers.
func (h *HTTPHandler) Health(w http.ResponseWriter, r *http.Request) {
	res := map[string]string{
		"message": "ok",
		"cache":   "up",
	}
	if err := h.svc.Cache.Ping(r.Context()); err != nil {
		res["cache"] = "down"
	}
	writeJSON(w, http.StatusOK, res)
}

// writeError maps domain errors to a status and a user-facing message.
func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := h.errorResponse(r, err)
	writeMessage(w, status, msg)
}

func (h *HTTPHandler) errorResponse(r *http.Request, err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrURLRequired):
		return http.StatusBadRequest, msgURLRequired
	case errors.Is(err, domain.ErrInvalidURL):
		return http.StatusBadRequest, msgInvalidURL
	case errors.Is(err, domain.ErrInvalidAliasFormat):
		return http.StatusBadRequest, msgAliasFormat
	case errors.Is(err, domain.ErrAliasRequiresOwner):
		return http.StatusUnauthorized, msgAliasOwner
	case errors.Is(err, domain.ErrAliasTaken):
		return http.StatusConflict, msgAliasTaken
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, msgLinkNotFound
	case errors.Is(err, domain.ErrTemporaryFailure):
	default:
		h.logger.Error("unhandled error", zap.String("path", r.URL.Path), zap.Error(err))
	}
	return http.StatusServiceUnavailable, msgTryAgain
}

// shortenStatus lets partial-page clients (HX-Request) receive shorten
// errors with 200 so they can swap the message in place.
func shortenStatus(r *http.Request, status int) int {
	if r.Header.Get("HX-Request") == "true" {
		return http.StatusOK
	}
	return status
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (h *HTTPHandler) linkResponse(r *http.Request, link *domain.Link) LinkResponse {
	return LinkResponse{Link: link, ShortURL: h.publicBaseURL(r) + "/" + link.ShortCode}
}

func (h *HTTPHandler) linkResponses(r *http.Request, links []domain.Link) []LinkResponse {
	out := make([]LinkResponse, 0, len(links))
	for i := range links {
		out = append(out, h.linkResponse(r, &links[i]))
	}
	return out
}

// publicBaseURL prefers the configured base URL and falls back to the request.
func (h *HTTPHandler) publicBaseURL(r *http.Request) string {
	if h.baseURL != "" {
		return h.baseURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	return scheme + "://" + r.Host
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func clientIP(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		ip := strings.TrimSpace(strings.Split(xf, ",")[0])
		if ip != "" {
			return ip
		}
	}
	if xr := strings.TrimSpace(r.Header.Get("X-Real-IP")); xr != "" {
		return xr
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
