package gift

import (
	"errors"
	"math"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/cardjoy/giftbox-service/internal/user"
	"github.com/cardjoy/giftbox-service/pkg/apperrors"
	"github.com/cardjoy/giftbox-service/pkg/utils"
)

// BoxReferenceChecker is the slice of giftbox.Repository this handler needs.
// Declared locally to avoid an import cycle with internal/giftbox, whose
// model embeds gift.Gift.
type BoxReferenceChecker interface {
	HasBoxesReferencing(giftID uuid.UUID) (bool, error)
}

type Handler struct {
	Repo  Repository
	Boxes BoxReferenceChecker
}

func NewHandler(repo Repository, boxes BoxReferenceChecker) *Handler {
	return &Handler{Repo: repo, Boxes: boxes}
}

func (h *Handler) ListGifts(w http.ResponseWriter, r *http.Request) {
	limit, offset, page := utils.GetPaginationDetails(r)

	gifts, err := h.Repo.List(limit, offset)
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusInternalServerError, "Failed to fetch gifts", nil)
		return
	}

	count, _ := h.Repo.Count()
	totalPages := int(math.Ceil(float64(count) / float64(limit)))

	utils.BuildSuccessResponse(w, http.StatusOK, "Gift Catalog", map[string]interface{}{
		"gifts": gifts,
		"meta": map[string]interface{}{
			"total_items":  count,
			"total_pages":  totalPages,
			"current_page": page,
			"limit":        limit,
		},
	})
}

func (h *Handler) GetGift(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusBadRequest, "Invalid gift id", nil)
		return
	}

	g, err := h.Repo.GetActive(id)
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusNotFound, "Gift not found", nil)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Gift", g)
}

type UpsertGiftRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Type        Type            `json:"type"`
	Value       decimal.Decimal `json:"value"`
	Price       decimal.Decimal `json:"price"`
	Stock       *int            `json:"stock,omitempty"`
	Active      *bool           `json:"active,omitempty"`
}

func (req *UpsertGiftRequest) validate() string {
	if req.Name == "" {
		return "Name is required"
	}
	if req.Type != TypeVoucher && req.Type != TypeItem {
		return "Type must be voucher or item"
	}
	if req.Value.IsNegative() || req.Price.IsNegative() {
		return "Value and price must not be negative"
	}
	if req.Stock != nil && *req.Stock < 0 {
		return "Stock must not be negative"
	}
	return ""
}

func (h *Handler) CreateGift(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}

	var req UpsertGiftRequest
	if status, err := utils.DecodeJSONBody(w, r, &req); err != nil {
		utils.BuildErrorResponse(w, status, "Invalid request", map[string]string{"error": err.Error()})
		return
	}
	if msg := req.validate(); msg != "" {
		utils.BuildErrorResponse(w, http.StatusBadRequest, msg, nil)
		return
	}

	g := Gift{
		Name:        req.Name,
		Description: req.Description,
		Type:        req.Type,
		Value:       req.Value,
		Price:       req.Price,
		Stock:       req.Stock,
		Active:      true,
	}
	if req.Active != nil {
		g.Active = *req.Active
	}

	if err := h.Repo.Create(&g); err != nil {
		utils.BuildErrorResponse(w, http.StatusInternalServerError, "Failed to create gift", nil)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusCreated, "Gift created", g)
}

func (h *Handler) UpdateGift(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}

	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusBadRequest, "Invalid gift id", nil)
		return
	}

	var req UpsertGiftRequest
	if status, err := utils.DecodeJSONBody(w, r, &req); err != nil {
		utils.BuildErrorResponse(w, status, "Invalid request", map[string]string{"error": err.Error()})
		return
	}
	if msg := req.validate(); msg != "" {
		utils.BuildErrorResponse(w, http.StatusBadRequest, msg, nil)
		return
	}

	g, err := h.Repo.Get(id)
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusNotFound, "Gift not found", nil)
		return
	}

	g.Name = req.Name
	g.Description = req.Description
	g.Type = req.Type
	g.Value = req.Value
	g.Price = req.Price
	g.Stock = req.Stock
	if req.Active != nil {
		g.Active = *req.Active
	}

	if err := h.Repo.Update(g); err != nil {
		utils.BuildErrorResponse(w, http.StatusInternalServerError, "Failed to update gift", nil)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Gift updated", g)
}

// DeleteGift hard-deletes unreferenced catalog entries. Gifts already sitting
// in someone's box are deactivated instead so their line items stay resolvable.
func (h *Handler) DeleteGift(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}

	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusBadRequest, "Invalid gift id", nil)
		return
	}

	referenced, err := h.Boxes.HasBoxesReferencing(id)
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusInternalServerError, "Failed to delete gift", nil)
		return
	}

	if referenced {
		err = h.Repo.Deactivate(id)
	} else {
		err = h.Repo.Delete(id)
	}
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			utils.BuildErrorResponse(w, http.StatusNotFound, "Gift not found", nil)
			return
		}
		utils.BuildErrorResponse(w, http.StatusInternalServerError, "Failed to delete gift", nil)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Gift removed", map[string]bool{"deactivated": referenced})
}

func requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	usr, ok := r.Context().Value(utils.UserKey).(user.User)
	if !ok || !usr.IsAdmin() {
		utils.BuildErrorResponse(w, http.StatusForbidden, "Admin access required", nil)
		return false
	}
	return true
}
