package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/tillq/api/responses"
	"github.com/angelmondragon/tillq/api/validators"
	"github.com/angelmondragon/tillq/internal/notify"
	"github.com/angelmondragon/tillq/pkg/enums"
	"github.com/angelmondragon/tillq/pkg/logger"
)

type NotificationBridge interface {
	HandleAction(ctx context.Context, action enums.NotificationAction, tag string) error
	Center() *notify.Center
}

type notificationActionRequest struct {
	Action string `json:"action" validate:"required,oneof=sync retry view"`
	Tag    string `json:"tag" validate:"max=128"`
}

func NotificationAction(bridge NotificationBridge, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req notificationActionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := bridge.HandleAction(r.Context(), enums.NotificationAction(req.Action), req.Tag); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, map[string]string{"status": "forwarded"})
	}
}

func ListNotifications(bridge NotificationBridge) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items := bridge.Center().List()
		responses.WriteList(w, items, int64(len(items)))
	}
}
