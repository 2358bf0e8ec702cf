package routes

import (
	"portaria-backend/controllers"
	"portaria-backend/middlewares"
	"portaria-backend/models"

	"github.com/gin-gonic/gin"
)

type Controllers struct {
	Auth         *controllers.AuthController
	Device       *controllers.DeviceController
	Intercom     *controllers.IntercomController
	Notification *controllers.NotificationController
	Realtime     *controllers.RealtimeController
}

func SetupRouter(c Controllers) *gin.Engine {
	r := gin.Default()

	auth := r.Group("/auth")
	{
		auth.POST("/register", c.Auth.Register)
		auth.POST("/login", c.Auth.Login)
	}

	api := r.Group("/api")
	api.Use(middlewares.AuthMiddleware())
	{
		api.POST("/devices", c.Device.Register)
		api.DELETE("/devices", c.Device.Invalidate)
		api.POST("/devices/toggle", c.Device.ToggleNotifications)

		api.GET("/notifications/pending", c.Notification.Pending)
		api.POST("/notifications/:id/respond", c.Notification.Respond)

		api.POST("/intercom/answer", c.Intercom.Answer)
		api.POST("/intercom/decline", c.Intercom.Decline)

		api.GET("/ws/events", c.Realtime.EventsWS)

		doorman := api.Group("")
		doorman.Use(middlewares.RequireRole(models.RoleDoorman))
		{
			doorman.POST("/entries", c.Notification.CreateEntry)
			doorman.POST("/intercom/call", c.Intercom.StartCall)
			doorman.POST("/intercom/hangup", c.Intercom.Hangup)
			doorman.GET("/intercom/active", c.Intercom.Active)
		}
	}

	return r
}
