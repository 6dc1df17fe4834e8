package handlers

import (
	"encoding/json"
	"net/http"

	"meetscribe/internal/contextutil"
	"meetscribe/internal/search"
)

// SearchHandler answers semantic queries over indexed transcripts.
type SearchHandler struct {
	searcher *search.Searcher
}

// NewSearchHandler creates a new SearchHandler.
func NewSearchHandler(searcher *search.Searcher) *SearchHandler {
	return &SearchHandler{searcher: searcher}
}

// SearchResponse wraps the scored transcript chunks.
type SearchResponse struct {
	Hits []search.Hit `json:"hits"`
}

// ServeHTTP handles POST /api/search.
func (h *SearchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	var query search.Query
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if query.Text == "" || query.UserID == "" {
		writeError(w, http.StatusBadRequest, "query and userId are required")
		return
	}

	hits, err := h.searcher.Search(ctx, query)
	if err != nil {
		logger.ErrorContext(ctx, "transcript search failed", "error", err)
		writeError(w, http.StatusBadGateway, "Search failed")
		return
	}

	writeJSON(w, http.StatusOK, SearchResponse{Hits: hits})
}
