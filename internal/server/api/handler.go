package api

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/hlog"

	"newsriver/aggregator/internal/config"
	"newsriver/aggregator/internal/query"
	"newsriver/aggregator/internal/store"
)

// Handler holds dependencies for the API handlers.
type Handler struct {
	svc *query.Service
	st  *store.Store
}

// NewHandler creates a new handler instance.
func NewHandler(svc *query.Service, st *store.Store) *Handler {
	return &Handler{svc: svc, st: st}
}

// viewResponse is the body of view-recording responses.
type viewResponse struct {
	Success   bool  `json:"success"`
	ViewCount int64 `json:"view_count"`
}

// ListNews handles requests for one page of the ranked listing.
// Invalid or non-numeric offset/limit values fall back to the defaults
// rather than erroring; this endpoint answers with a well-formed page
// under every input.
func (h *Handler) ListNews(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)

	q := r.URL.Query()
	offset := parseOffset(q.Get("offset"))
	limit := parseLimit(q.Get("limit"))

	page, err := h.svc.List(r.Context(), offset, limit)
	if err != nil {
		log.Error().
			Err(err).
			Int("offset", offset).
			Int("limit", limit).
			Msg("Error fetching news page")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, r, http.StatusOK, page)
}

// GetArticle returns a single article and records a view for the
// requesting client.
func (h *Handler) GetArticle(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid article id", http.StatusBadRequest)
		return
	}

	item, err := h.svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Article not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Int64("id", id).Msg("Error fetching article")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	// Viewing the article detail counts as a view.
	if viewCount, _, err := h.st.RecordView(r.Context(), id, clientIP(r)); err != nil {
		log.Warn().Err(err).Int64("id", id).Msg("Failed to record article view")
	} else {
		item.ViewCount = viewCount
	}

	writeJSON(w, r, http.StatusOK, item)
}

// RecordView registers a view of an article from the requesting
// client. Each client address is counted once per article.
func (h *Handler) RecordView(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid article id", http.StatusBadRequest)
		return
	}

	viewCount, counted, err := h.st.RecordView(r.Context(), id, clientIP(r))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Article not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Int64("id", id).Msg("Error recording view")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	log.Debug().
		Int64("id", id).
		Bool("counted", counted).
		Int64("view_count", viewCount).
		Msg("View recorded")

	writeJSON(w, r, http.StatusOK, viewResponse{Success: true, ViewCount: viewCount})
}

// parseOffset parses a non-negative offset, defaulting to 0.
func parseOffset(value string) int {
	offset, err := strconv.Atoi(value)
	if err != nil || offset < 0 {
		return 0
	}
	return offset
}

// parseLimit parses a positive limit, defaulting to DefaultPageLimit
// and clamping to MaxPageLimit.
func parseLimit(value string) int {
	limit, err := strconv.Atoi(value)
	if err != nil || limit <= 0 {
		return config.DefaultPageLimit
	}
	if limit > config.MaxPageLimit {
		return config.MaxPageLimit
	}
	return limit
}

// clientIP extracts the originating client address, preferring the
// first X-Forwarded-For entry over the socket address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.IndexByte(fwd, ','); idx >= 0 {
			fwd = fwd[:idx]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	log := hlog.FromRequest(r)

	jsonBytes, err := json.Marshal(body)
	if err != nil {
		log.Error().Err(err).Msg("Error marshaling JSON response")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(jsonBytes); err != nil {
		log.Error().Err(err).Msg("Error writing JSON response body to client")
	}
}
