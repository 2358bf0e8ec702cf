package controllers

import (
	"errors"
	"net/http"

	"portaria-backend/models"
	"portaria-backend/services"

	"github.com/gin-gonic/gin"
)

type NotificationController struct {
	Events    *services.EventStore
	Responder *services.ApprovalResponder
}

func NewNotificationController(events *services.EventStore, responder *services.ApprovalResponder) *NotificationController {
	return &NotificationController{Events: events, Responder: responder}
}

type createEntryReq struct {
	Kind            string `json:"kind" binding:"required,oneof=visitor delivery vehicle"`
	BuildingID      uint   `json:"building_id" binding:"required"`
	ApartmentNumber string `json:"apartment_number" binding:"required"`
	GuestName       string `json:"guest_name"`
	Summary         string `json:"summary"`
}

// CreateEntry registers an arrival at the front desk. The insert lands on
// the change feed, which is what actually notifies the residents.
func (nc *NotificationController) CreateEntry(c *gin.Context) {
	var req createEntryReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	apt, err := nc.Events.ApartmentByNumber(ctx, req.BuildingID, req.ApartmentNumber)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "apartment not found"})
		return
	}

	ev := models.EntryEvent{
		Kind:             req.Kind,
		ApartmentID:      apt.ID,
		BuildingID:       req.BuildingID,
		GuestName:        req.GuestName,
		Summary:          req.Summary,
		RequiresApproval: true,
		ApprovalState:    models.ApprovalPending,
	}
	if err := nc.Events.Create(ctx, &ev); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"event_id": ev.ID})
}

func (nc *NotificationController) Pending(c *gin.Context) {
	uid := c.GetUint("userID")
	apartmentID, err := nc.Events.UserApartmentID(c.Request.Context(), uid)
	if err != nil || apartmentID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no apartment on profile"})
		return
	}

	events, err := nc.Events.PendingForApartment(c.Request.Context(), apartmentID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"pending": events})
}

type respondReq struct {
	Decision            string `json:"decision" binding:"required,oneof=approve reject"`
	Reason              string `json:"reason"`
	DeliveryDestination string `json:"delivery_destination"`
}

func (nc *NotificationController) Respond(c *gin.Context) {
	uid := c.GetUint("userID")
	eventID := c.Param("id")

	var req respondReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	buildingID, err := nc.Responder.Respond(c.Request.Context(), services.RespondInput{
		EventID:             eventID,
		Decision:            req.Decision,
		ResponderID:         uid,
		Reason:              req.Reason,
		DeliveryDestination: req.DeliveryDestination,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEventNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
		case errors.Is(err, services.ErrAlreadyResolved):
			c.JSON(http.StatusConflict, gin.H{"error": "event already resolved"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "building_id": buildingID})
}
