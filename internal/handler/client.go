package handler

import (
	"net/http"

	"falldetector/internal/logger"
	"falldetector/internal/middleware"
	"falldetector/internal/service/websocket"

	gorilla "github.com/gorilla/websocket"
)

// EventsWebsocketHandler upgrades viewers to WebSocket and registers them in the
// hub so they receive every recorded event.
func EventsWebsocketHandler(hub *websocket.HubService, origins []string, logger *logger.Logger) http.HandlerFunc {
	upgrader := gorilla.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || middleware.OriginAllowed(origins, origin)
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		connection, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("WebSocket upgrade error: %v", err)
			return
		}

		hub.Register(connection)
		defer hub.Unregister(connection)

		for {
			if _, _, err := connection.ReadMessage(); err != nil {
				if gorilla.IsCloseError(err, gorilla.CloseNormalClosure, gorilla.CloseGoingAway) {
					logger.Info("Viewer disconnected normally")
				} else {
					logger.Warning("Viewer disconnected with error: %v", err)
				}
				return
			}
		}
	}
}
