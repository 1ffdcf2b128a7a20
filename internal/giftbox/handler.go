package giftbox

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/cardjoy/giftbox-service/internal/user"
	"github.com/cardjoy/giftbox-service/pkg/utils"
)

type Handler struct {
	Repo Repository
}

func NewHandler(repo Repository) *Handler {
	return &Handler{Repo: repo}
}

func (h *Handler) GetGiftBox(w http.ResponseWriter, r *http.Request) {
	usr, _ := r.Context().Value(utils.UserKey).(user.User)

	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusBadRequest, "Invalid gift box id", nil)
		return
	}

	box, err := h.Repo.GetByID(id)
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusNotFound, "Gift box not found", nil)
		return
	}

	// the redemption code is only the sender's to share
	if box.SenderID != usr.ID {
		box.Code = ""
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Gift Box", box)
}

func (h *Handler) ListSentGiftBoxes(w http.ResponseWriter, r *http.Request) {
	usr, ok := r.Context().Value(utils.UserKey).(user.User)
	if !ok {
		utils.BuildErrorResponse(w, http.StatusUnauthorized, "Unauthorized", nil)
		return
	}

	boxes, err := h.Repo.ListBySender(usr.ID)
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusInternalServerError, "Failed to fetch gift boxes", nil)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Sent Gift Boxes", boxes)
}
