package controllers

import (
	"net/http"

	"github.com/gorilla/mux"

	"groupswipe/models"
	"groupswipe/services"
)

const defaultMatchLimit = 50

// MatchController handles votes and the matches they produce.
type MatchController struct {
	Rooms *services.RoomService
}

func NewMatchController(rooms *services.RoomService) *MatchController {
	return &MatchController{Rooms: rooms}
}

type voteRequest struct {
	UserID   string `json:"userId" validate:"required,excludes=#"`
	ItemID   string `json:"itemId" validate:"required,excludes=#"`
	VoteType string `json:"voteType" validate:"required"`
}

// RecordVote records a LIKE or DISLIKE. A repeated vote answers 200 with
// accepted=false.
func (mc *MatchController) RecordVote(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	voteType, err := models.ParseVoteType(req.VoteType)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := mc.Rooms.RecordVote(r.Context(), mux.Vars(r)["roomId"], req.UserID, req.ItemID, voteType)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetMatches lists the room's matches, newest first.
func (mc *MatchController) GetMatches(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		respondError(w, r, err)
		return
	}
	if limit == 0 {
		limit = defaultMatchLimit
	}

	matches, err := mc.Rooms.GetRoomMatches(r.Context(), mux.Vars(r)["roomId"], limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if matches == nil {
		matches = []models.Match{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"matches": matches})
}

// CheckConsensus re-evaluates the item and reports how close it is to a
// match. It materializes the match, and notifies the room, when the current
// members already agree, for instance after a holdout left.
func (mc *MatchController) CheckConsensus(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	result, err := mc.Rooms.CheckConsensus(r.Context(), vars["roomId"], vars["itemId"])
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"match":    result.Match,
		"progress": result.Progress,
	})
}
