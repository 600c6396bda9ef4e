package controllers

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"groupswipe/media"
	"groupswipe/models"
)

// MediaController exposes media lookups. An unreachable upstream with no
// cached answer is reported as source "unavailable", not as an error.
type MediaController struct {
	Resolver *media.Resolver
}

func NewMediaController(resolver *media.Resolver) *MediaController {
	return &MediaController{Resolver: resolver}
}

func (mc *MediaController) GetDetails(w http.ResponseWriter, r *http.Request) {
	itemID := mux.Vars(r)["itemId"]
	res := mc.Resolver.Details(r.Context(), itemID)
	if res.NotFound {
		writeError(w, http.StatusNotFound, "media item not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"item": res.Value, "source": res.Source})
}

func (mc *MediaController) Search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	res := mc.Resolver.Search(r.Context(), query)
	writeJSON(w, http.StatusOK, map[string]any{"results": orEmpty(res.Value), "source": res.Source})
}

func (mc *MediaController) Discover(w http.ResponseWriter, r *http.Request) {
	year, err := queryInt(r, "year")
	if err != nil {
		respondError(w, r, err)
		return
	}
	page, err := queryInt(r, "page")
	if err != nil {
		respondError(w, r, err)
		return
	}
	if page > 500 {
		writeError(w, http.StatusBadRequest, "page must be at most 500")
		return
	}

	filters := models.DiscoverFilters{
		Genre:     r.URL.Query().Get("genre"),
		Year:      year,
		MediaType: r.URL.Query().Get("type"),
		Page:      page,
	}
	if filters.MediaType != "" && filters.MediaType != "movie" && filters.MediaType != "tv" {
		writeError(w, http.StatusBadRequest, "type must be movie or tv")
		return
	}
	res := mc.Resolver.Discover(r.Context(), filters)
	writeJSON(w, http.StatusOK, map[string]any{"results": orEmpty(res.Value), "source": res.Source})
}

func orEmpty(items []models.MediaItem) []models.MediaItem {
	if items == nil {
		return []models.MediaItem{}
	}
	return items
}
