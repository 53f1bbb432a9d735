package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/SARVESHVARADKAR123/notifier/internal/notify"
	"github.com/SARVESHVARADKAR123/notifier/internal/observability"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// Notifier is the part of *notify.Registry the API exposes.
type Notifier interface {
	SendNotification(ctx context.Context, userKey string, payload any) (bool, error)
	UpdateUnreadCount(ctx context.Context, userKey string, count int) bool
	ConnectionCount(userKey string) int
	Snapshot() []notify.UserConnections
}

type Handler struct {
	notifier Notifier
}

func NewHandler(n Notifier) *Handler {
	return &Handler{notifier: n}
}

type sendNotificationRequest struct {
	User    string          `json:"user"`
	Payload json.RawMessage `json:"payload"`
}

type unreadCountRequest struct {
	User  string `json:"user"`
	Count *int   `json:"count"`
}

type deliveryResponse struct {
	Delivered bool `json:"delivered"`
}

type connectionCountResponse struct {
	User        string `json:"user"`
	Connections int    `json:"connections"`
}

type snapshotResponse struct {
	Users []notify.UserConnections `json:"users"`
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON")
		return false
	}
	return true
}

func (h *Handler) SendNotification(w http.ResponseWriter, r *http.Request) {
	var req sendNotificationRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.User) == "" {
		WriteError(w, http.StatusBadRequest, "missing_user", "user is required")
		return
	}
	if len(req.Payload) == 0 {
		WriteError(w, http.StatusBadRequest, "missing_payload", "payload is required")
		return
	}

	delivered, err := h.notifier.SendNotification(r.Context(), req.User, req.Payload)
	if errors.Is(err, notify.ErrEncodePayload) {
		WriteError(w, http.StatusBadRequest, "invalid_payload", err.Error())
		return
	}
	if err != nil {
		observability.GetLogger(r.Context()).Error("send notification failed", zap.Error(err))
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	WriteJSON(w, http.StatusOK, deliveryResponse{Delivered: delivered})
}

func (h *Handler) UpdateUnreadCount(w http.ResponseWriter, r *http.Request) {
	var req unreadCountRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.User) == "" {
		WriteError(w, http.StatusBadRequest, "missing_user", "user is required")
		return
	}
	if req.Count == nil || *req.Count < 0 {
		WriteError(w, http.StatusBadRequest, "invalid_count", "count must be a non-negative integer")
		return
	}

	delivered := h.notifier.UpdateUnreadCount(r.Context(), req.User, *req.Count)
	WriteJSON(w, http.StatusOK, deliveryResponse{Delivered: delivered})
}

func (h *Handler) ConnectionCount(w http.ResponseWriter, r *http.Request) {
	user := notify.NormalizeKey(chi.URLParam(r, "user"))
	WriteJSON(w, http.StatusOK, connectionCountResponse{
		User:        user,
		Connections: h.notifier.ConnectionCount(user),
	})
}

func (h *Handler) Connections(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, snapshotResponse{Users: h.notifier.Snapshot()})
}
