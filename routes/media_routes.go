package routes

import (
	"github.com/gorilla/mux"

	"groupswipe/controllers"
	"groupswipe/media"
)

// RegisterMediaRoutes sets up media lookup routes and, when signer is set,
// the artwork upload route.
func RegisterMediaRoutes(r *mux.Router, resolver *media.Resolver, signer *media.ArtworkSigner) {
	controller := controllers.NewMediaController(resolver)

	mediaRouter := r.PathPrefix("/api/media").Subrouter()
	// Fixed paths before {itemId} so they are not captured as ids.
	mediaRouter.HandleFunc("/search", controller.Search).Methods("GET")
	mediaRouter.HandleFunc("/discover", controller.Discover).Methods("GET")
	mediaRouter.HandleFunc("/{itemId}", controller.GetDetails).Methods("GET")

	artwork := &controllers.ArtworkController{Signer: signer}
	mediaRouter.HandleFunc("/{itemId}/artwork-upload-url", artwork.GenerateUploadURL).Methods("POST")
}
