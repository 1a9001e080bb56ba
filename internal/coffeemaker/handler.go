// internal/coffeemaker/handler.go
package coffeemaker

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"coffeemaker/internal/ingredient"
	"coffeemaker/internal/platform/logger"
	"coffeemaker/internal/recipe"
	"coffeemaker/internal/recipebook"
	"coffeemaker/internal/storage"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	service Service
	log     *logger.Logger
}

func NewHandler(service Service, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{service: service, log: log}
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// PurchaseResponse is returned for every completed purchase, declined or not.
type PurchaseResponse struct {
	Result string `json:"result"`
	Change int    `json:"change"`
}

// RecipeRequest is the body of recipe create and update calls.
type RecipeRequest struct {
	Name      string `json:"name"`
	Price     int    `json:"price"`
	Coffee    int    `json:"coffee"`
	Milk      int    `json:"milk"`
	Sugar     int    `json:"sugar"`
	Chocolate int    `json:"chocolate"`
}

func (req RecipeRequest) recipe() (recipe.Recipe, error) {
	return recipe.New(req.Name, req.Price, req.Coffee, req.Milk, req.Sugar, req.Chocolate)
}

type UpdateRecipeResponse struct {
	Name string `json:"name"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}

// writeServiceError maps domain and store errors onto HTTP statuses.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrRecipeNotFound), errors.Is(err, recipebook.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, recipebook.ErrDuplicateName):
		writeError(w, http.StatusConflict, "duplicate_name", err.Error())
	case errors.Is(err, recipebook.ErrCapacityExceeded):
		writeError(w, http.StatusInsufficientStorage, "capacity_exceeded", err.Error())
	case errors.Is(err, ingredient.ErrInvalidQuantity):
		writeError(w, http.StatusBadRequest, "invalid_quantity", err.Error())
	case errors.Is(err, recipe.ErrInvalidRecipe):
		writeError(w, http.StatusBadRequest, "invalid_recipe", err.Error())
	case errors.Is(err, storage.ErrUnavailable):
		h.log.Error("store unavailable", "error", err)
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "the store is unavailable")
	default:
		h.log.Error("unexpected error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected error")
	}
}

func (h *Handler) MakeCoffee(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var amountPaid int
	if err := json.NewDecoder(r.Body).Decode(&amountPaid); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "body must be an integer amount")
		return
	}

	change, err := h.service.Purchase(r.Context(), name, amountPaid)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PurchaseResponse{Result: "success", Change: change})
}

func (h *Handler) ListRecipes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.ListRecipes(r.Context()))
}

func (h *Handler) GetRecipe(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.GetRecipe(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) AddRecipe(w http.ResponseWriter, r *http.Request) {
	var req RecipeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}
	rec, err := req.recipe()
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	added, err := h.service.AddRecipe(r.Context(), rec)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, added)
}

func (h *Handler) UpdateRecipe(w http.ResponseWriter, r *http.Request) {
	var req RecipeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}
	rec, err := req.recipe()
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	name, err := h.service.UpdateRecipe(r.Context(), chi.URLParam(r, "name"), rec)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, UpdateRecipeResponse{Name: name})
}

func (h *Handler) DeleteRecipe(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteRecipe(r.Context(), chi.URLParam(r, "name")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetInventory(w http.ResponseWriter, r *http.Request) {
	levels, err := h.service.Inventory(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, levels)
}

func (h *Handler) ReplenishInventory(w http.ResponseWriter, r *http.Request) {
	var amounts ingredient.Amounts
	if err := json.NewDecoder(r.Body).Decode(&amounts); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	levels, err := h.service.Replenish(r.Context(), amounts)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, levels)
}

func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	var after int64
	if v := r.URL.Query().Get("after"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "after must be a non-negative integer")
			return
		}
		after = parsed
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	events, err := h.service.Events(r.Context(), after, limit)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
