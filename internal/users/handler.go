package users

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/codementor-labs/codementor/internal/api"
	"github.com/codementor-labs/codementor/internal/authctx"
	inats "github.com/codementor-labs/codementor/internal/nats"
)

type eventPublisher interface {
	PublishAuditEvent(ctx context.Context, event inats.AuditEvent) error
}

// Handler exposes the profile and admin endpoints.
type Handler struct {
	svc    *Service
	events eventPublisher
}

// NewHandler creates a users Handler. events may be nil.
func NewHandler(svc *Service, events eventPublisher) *Handler {
	return &Handler{svc: svc, events: events}
}

// Me handles GET /me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUserID(w, r)
	if !ok {
		return
	}

	user, err := h.svc.GetByID(r.Context(), userID)
	if err != nil {
		slog.Error("getting user", "error", err, "user", userID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if user == nil {
		api.HandleError(w, api.ErrNotFound)
		return
	}

	api.JSON(w, http.StatusOK, user)
}

// Promote handles POST /admin/users/{id}/promote.
func (h *Handler) Promote(w http.ResponseWriter, r *http.Request) {
	h.setAdmin(w, r, true)
}

// Demote handles POST /admin/users/{id}/demote.
func (h *Handler) Demote(w http.ResponseWriter, r *http.Request) {
	h.setAdmin(w, r, false)
}

func (h *Handler) setAdmin(w http.ResponseWriter, r *http.Request, isAdmin bool) {
	targetID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid user id"))
		return
	}

	actorID, ok := h.currentUserID(w, r)
	if !ok {
		return
	}
	if actorID == targetID {
		api.HandleError(w, api.NewBadRequestError("cannot change your own admin status"))
		return
	}

	target, err := h.svc.GetByID(r.Context(), targetID)
	if err != nil {
		slog.Error("getting user", "error", err, "user", targetID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if target == nil {
		api.HandleError(w, api.ErrNotFound)
		return
	}

	if err := h.svc.SetAdmin(r.Context(), targetID, isAdmin); err != nil {
		slog.Error("updating admin flag", "error", err, "user", targetID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	eventType := inats.EventUserPromoted
	msg := "user promoted to admin"
	if !isAdmin {
		eventType = inats.EventUserDemoted
		msg = "user demoted from admin"
	}
	h.emit(r.Context(), targetID, eventType, msg)

	api.JSONMessage(w, http.StatusOK, msg)
}

// RequireAdmin rejects requests from non-admin users. It sits behind the auth
// middleware, so claims are always present.
func (h *Handler) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := h.currentUserID(w, r)
		if !ok {
			return
		}

		user, err := h.svc.GetByID(r.Context(), userID)
		if err != nil {
			slog.Error("getting user for admin check", "error", err, "user", userID)
			api.HandleError(w, api.ErrInternalServer)
			return
		}
		if user == nil || !user.IsAdmin {
			api.HandleError(w, api.ErrForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (h *Handler) currentUserID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	claims := authctx.GetUserClaims(r.Context())
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

func (h *Handler) emit(ctx context.Context, userID uuid.UUID, eventType, detail string) {
	if h.events == nil {
		return
	}
	event := inats.AuditEvent{
		UserID:    userID,
		EventType: eventType,
		Severity:  "info",
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	}
	if err := h.events.PublishAuditEvent(ctx, event); err != nil {
		slog.Debug("publishing audit event", "error", err, "event_type", eventType)
	}
}
