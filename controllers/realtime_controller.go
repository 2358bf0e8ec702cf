package controllers

import (
	"net/http"
	"time"

	"portaria-backend/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type RealtimeController struct {
	Hub         *services.Hub
	Events      *services.EventStore
	NewListener func() *services.EntryListener
}

func NewRealtimeController(hub *services.Hub, events *services.EventStore, newListener func() *services.EntryListener) *RealtimeController {
	return &RealtimeController{Hub: hub, Events: events, NewListener: newListener}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true }, // tighten behind the load balancer if needed
}

// EventsWS streams entry-event updates to an open app session. For residents
// it also owns a change-feed listener scoped to their apartment: the
// listener lives exactly as long as the connection, so nothing keeps firing
// notifications for a session that is gone.
func (rc *RealtimeController) EventsWS(c *gin.Context) {
	uid := c.GetUint("userID")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	cl := &services.WSClient{UserID: uid, Conn: conn}
	rc.Hub.Register(cl)

	if rc.Events != nil && rc.NewListener != nil {
		if apartmentID, err := rc.Events.UserApartmentID(c.Request.Context(), uid); err == nil && apartmentID != 0 {
			listener := rc.NewListener()
			if err := listener.Listen(c.Request.Context(), apartmentID); err == nil {
				defer listener.Close()
			}
		}
	}

	done := make(chan struct{})
	defer close(done)

	// ping to keep connections alive through some proxies; exits as soon as
	// the read loop ends instead of lingering until the next tick
	go func() {
		t := time.NewTicker(25 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					rc.Hub.Unregister(cl)
					return
				}
			}
		}
	}()

	// read loop ends on client close/error → unregister
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			rc.Hub.Unregister(cl)
			return
		}
	}
}
