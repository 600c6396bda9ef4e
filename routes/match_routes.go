package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	"github.com/gorilla/mux"

	"groupswipe/controllers"
	"groupswipe/services"
)

// RegisterMatchRoutes sets up vote, consensus and match routes. Votes are
// rate limited per client IP when votesPerMinute is positive.
func RegisterMatchRoutes(r *mux.Router, rooms *services.RoomService, votesPerMinute int) {
	controller := controllers.NewMatchController(rooms)

	var vote http.Handler = http.HandlerFunc(controller.RecordVote)
	if votesPerMinute > 0 {
		vote = httprate.LimitByIP(votesPerMinute, time.Minute)(vote)
	}

	roomRouter := r.PathPrefix("/api/rooms/{roomId}").Subrouter()
	roomRouter.Handle("/votes", vote).Methods("POST")
	roomRouter.HandleFunc("/matches", controller.GetMatches).Methods("GET")
	roomRouter.HandleFunc("/items/{itemId}/consensus", controller.CheckConsensus).Methods("POST")
}
