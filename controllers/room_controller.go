package controllers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"groupswipe/logging"
	"groupswipe/models"
	"groupswipe/services"
)

// RoomController handles room lifecycle, membership and queue requests.
type RoomController struct {
	Rooms *services.RoomService
}

func NewRoomController(rooms *services.RoomService) *RoomController {
	return &RoomController{Rooms: rooms}
}

type createRoomRequest struct {
	RoomID           string   `json:"roomId" validate:"omitempty,excludes=#"`
	HostID           string   `json:"hostId" validate:"required,excludes=#"`
	MinActiveMembers int      `json:"minActiveMembers" validate:"min=0"`
	MasterList       []string `json:"masterList" validate:"omitempty,dive,required"`
}

type joinRequest struct {
	UserID string `json:"userId" validate:"required,excludes=#"`
	Role   string `json:"role" validate:"omitempty,oneof=HOST MEMBER host member"`
}

type shuffleRequest struct {
	MasterList []string `json:"masterList" validate:"required,min=1,dive,required"`
}

// CreateRoom creates a room and joins the host. A room id is generated when
// none is supplied.
func (rc *RoomController) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.RoomID == "" {
		req.RoomID = uuid.NewString()
	}

	room, err := rc.Rooms.CreateRoom(r.Context(), req.RoomID, req.HostID, req.MinActiveMembers, req.MasterList)
	if err != nil {
		respondError(w, r, err)
		return
	}
	logging.Ctx(r.Context()).Info().Str("room_id", room.RoomID).Str("host_id", room.HostID).Msg("Room created")
	writeJSON(w, http.StatusCreated, room)
}

func (rc *RoomController) GetRoom(w http.ResponseWriter, r *http.Request) {
	room, err := rc.Rooms.GetRoom(r.Context(), mux.Vars(r)["roomId"])
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (rc *RoomController) DeleteRoom(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]
	if err := rc.Rooms.DeleteRoom(r.Context(), roomID); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Room deleted", "roomId": roomID})
}

// JoinRoom adds the user to the room; joining again keeps existing progress.
func (rc *RoomController) JoinRoom(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	role, err := models.ParseMemberRole(req.Role)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	member, err := rc.Rooms.Join(r.Context(), mux.Vars(r)["roomId"], req.UserID, role)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, member)
}

func (rc *RoomController) LeaveRoom(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := rc.Rooms.Leave(r.Context(), vars["roomId"], vars["userId"]); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Member left", "userId": vars["userId"]})
}

func (rc *RoomController) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := rc.Rooms.ListMembers(r.Context(), mux.Vars(r)["roomId"])
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": members})
}

// GenerateShuffledLists replaces the room's master list and reshuffles every member.
func (rc *RoomController) GenerateShuffledLists(w http.ResponseWriter, r *http.Request) {
	var req shuffleRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	count, err := rc.Rooms.GenerateShuffledLists(r.Context(), mux.Vars(r)["roomId"], req.MasterList)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"memberCount": count})
}

func (rc *RoomController) GetNextItem(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	next, err := rc.Rooms.GetNextItem(r.Context(), vars["roomId"], vars["userId"])
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, next)
}

func (rc *RoomController) GetProgress(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	progress, err := rc.Rooms.GetMemberProgress(r.Context(), vars["roomId"], vars["userId"])
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}
