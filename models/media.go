package models

// MediaItem is the metadata resolved for a queue item.
type MediaItem struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Overview    string   `json:"overview,omitempty"`
	ReleaseDate string   `json:"releaseDate,omitempty"`
	Year        int      `json:"year,omitempty"`
	Genres      []string `json:"genres,omitempty"`
	PosterPath  string   `json:"posterPath,omitempty"`
	PosterURL   string   `json:"posterUrl,omitempty"`
	Rating      float64  `json:"rating,omitempty"`
	MediaType   string   `json:"mediaType,omitempty"`
}

// Valid reports whether the item carries enough metadata to be shown.
func (m MediaItem) Valid() bool {
	return m.ID != "" && m.Title != ""
}

// DiscoverFilters narrows upstream discovery.
type DiscoverFilters struct {
	Genre     string `json:"genre,omitempty"`
	Year      int    `json:"year,omitempty"`
	MediaType string `json:"mediaType,omitempty"`
	Page      int    `json:"page,omitempty"`
}
