package controllers

import (
	"net/http"

	"github.com/gorilla/mux"

	"groupswipe/logging"
	"groupswipe/media"
)

// ArtworkController hands out presigned S3 URLs for poster uploads.
type ArtworkController struct {
	Signer *media.ArtworkSigner
}

type uploadURLRequest struct {
	ContentType string `json:"contentType" validate:"required,oneof=image/jpeg image/png image/webp"`
}

// GenerateUploadURL returns a presigned PUT URL and the key to store as the
// item's poster path.
func (ac *ArtworkController) GenerateUploadURL(w http.ResponseWriter, r *http.Request) {
	if ac.Signer == nil {
		writeError(w, http.StatusServiceUnavailable, "artwork storage is not configured")
		return
	}
	var req uploadURLRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	itemID := mux.Vars(r)["itemId"]
	url, key, err := ac.Signer.UploadURL(r.Context(), itemID, req.ContentType)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Str("item_id", itemID).Msg("Failed to generate upload URL")
		writeError(w, http.StatusInternalServerError, "failed to generate upload URL")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url, "key": key})
}
