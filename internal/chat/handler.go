package chat

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/codementor-labs/codementor/internal/api"
	"github.com/codementor-labs/codementor/internal/auth"
)

// Handler exposes the chat endpoints.
type Handler struct {
	controller *Controller
	validate   *validator.Validate
}

func NewHandler(controller *Controller) *Handler {
	return &Handler{
		controller: controller,
		validate:   validator.New(),
	}
}

type chatRequest struct {
	Message  string `json:"message" validate:"required_without=Code"`
	Code     string `json:"code"`
	Language string `json:"language" validate:"max=32"`
}

type chatResponse struct {
	Reply    string `json:"reply"`
	Provider string `json:"provider"`
	Usage    Usage  `json:"usage"`
}

// Chat handles POST /chat.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	result, err := h.controller.Chat(r.Context(), userID, ChatRequest{
		Message:  req.Message,
		Code:     req.Code,
		Language: req.Language,
	})
	if err != nil {
		slog.Error("resolving chat request", "error", err, "user", userID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	switch result.Outcome {
	case OutcomeReply:
		api.JSON(w, http.StatusOK, chatResponse{
			Reply:    result.Reply,
			Provider: result.Provider,
			Usage:    result.Usage,
		})
	case OutcomeRateLimited:
		api.HandleError(w, api.ErrRateLimited)
	case OutcomeQuotaExceeded:
		api.HandleError(w, api.ErrQuotaExceeded)
	case OutcomeOversizedInput:
		api.HandleError(w, api.ErrOversizedInput)
	case OutcomeAllProvidersFailed:
		api.HandleError(w, api.ErrProvidersUnavailable)
	default:
		api.HandleError(w, api.ErrInternalServer)
	}
}

// History handles GET /chat/history.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	messages, err := h.controller.History(r.Context(), userID)
	if err != nil {
		slog.Error("loading chat history", "error", err, "user", userID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, messages)
}

// ClearHistory handles DELETE /chat/history.
func (h *Handler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	if err := h.controller.ClearHistory(r.Context(), userID); err != nil {
		slog.Error("clearing chat history", "error", err, "user", userID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONMessage(w, http.StatusOK, "conversation cleared")
}

// Limits handles GET /me/limits.
func (h *Handler) Limits(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	api.JSON(w, http.StatusOK, h.controller.Limits(userID))
}

func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	claims := auth.GetUserClaims(r.Context())
	if claims == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		api.HandleError(w, api.ErrUnauthorized)
		return uuid.Nil, false
	}
	return userID, true
}
