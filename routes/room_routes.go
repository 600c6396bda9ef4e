package routes

import (
	"github.com/gorilla/mux"

	"groupswipe/controllers"
	"groupswipe/services"
)

// RegisterRoomRoutes sets up room, membership and queue routes under /api/rooms
func RegisterRoomRoutes(r *mux.Router, rooms *services.RoomService) {
	controller := controllers.NewRoomController(rooms)

	roomRouter := r.PathPrefix("/api/rooms").Subrouter()
	roomRouter.HandleFunc("", controller.CreateRoom).Methods("POST")
	roomRouter.HandleFunc("/{roomId}", controller.GetRoom).Methods("GET")
	roomRouter.HandleFunc("/{roomId}", controller.DeleteRoom).Methods("DELETE")
	roomRouter.HandleFunc("/{roomId}/members", controller.JoinRoom).Methods("POST")
	roomRouter.HandleFunc("/{roomId}/members", controller.ListMembers).Methods("GET")
	roomRouter.HandleFunc("/{roomId}/members/{userId}", controller.LeaveRoom).Methods("DELETE")
	roomRouter.HandleFunc("/{roomId}/members/{userId}/next", controller.GetNextItem).Methods("GET")
	roomRouter.HandleFunc("/{roomId}/members/{userId}/progress", controller.GetProgress).Methods("GET")
	roomRouter.HandleFunc("/{roomId}/shuffle", controller.GenerateShuffledLists).Methods("POST")
}
