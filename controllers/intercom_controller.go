package controllers

import (
	"errors"
	"net/http"

	"portaria-backend/services"
	"portaria-backend/utils"

	"github.com/gin-gonic/gin"
)

type IntercomController struct {
	Calls  *services.CallCoordinator
	Events *services.EventStore
}

func NewIntercomController(calls *services.CallCoordinator, events *services.EventStore) *IntercomController {
	return &IntercomController{Calls: calls, Events: events}
}

type startCallReq struct {
	ApartmentNumber string `json:"apartment_number" binding:"required"`
	BuildingID      uint   `json:"building_id" binding:"required"`
	CallerName      string `json:"caller_name"`
}

// StartCall is the doorman pressing the intercom button for an apartment.
func (ic *IntercomController) StartCall(c *gin.Context) {
	uid := c.GetUint("userID")

	var req startCallReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	apt, err := ic.Events.ApartmentByNumber(ctx, req.BuildingID, req.ApartmentNumber)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "apartment not found"})
		return
	}

	residents, err := ic.Events.ApartmentResidents(ctx, apt.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	calleeIDs := make([]uint, 0, len(residents))
	for _, u := range residents {
		calleeIDs = append(calleeIDs, u.ID)
	}

	data := services.CallData{
		CallID:          utils.NewID(),
		CallerID:        uid,
		CallerName:      req.CallerName,
		BuildingID:      req.BuildingID,
		ApartmentID:     apt.ID,
		ApartmentNumber: apt.Number,
		ChannelName:     utils.NewChannelName(req.BuildingID),
		CalleeIDs:       calleeIDs,
	}

	if err := ic.Calls.StartCall(ctx, data); err != nil {
		if errors.Is(err, services.ErrNoRecipients) {
			// Interactive path: the doorman must know nobody can pick up.
			c.JSON(http.StatusConflict, gin.H{"error": "no resident device can receive this call"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"call_id":      data.CallID,
		"channel_name": data.ChannelName,
	})
}

type callActionReq struct {
	CallID string `json:"call_id" binding:"required"`
}

func (ic *IntercomController) Answer(c *gin.Context) {
	uid := c.GetUint("userID")

	var req callActionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := ic.Calls.Answer(c.Request.Context(), req.CallID, uid); err != nil {
		if errors.Is(err, services.ErrCallNotFound) {
			c.JSON(http.StatusConflict, gin.H{"error": "call already ended"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "call answered"})
}

func (ic *IntercomController) Decline(c *gin.Context) {
	uid := c.GetUint("userID")

	var req callActionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := ic.Calls.Decline(c.Request.Context(), req.CallID, uid); err != nil {
		if errors.Is(err, services.ErrCallNotFound) {
			c.JSON(http.StatusConflict, gin.H{"error": "call already ended"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "call declined"})
}

// Hangup is the doorman aborting before any resident responded. Always 200:
// stopping an already-ended call is a no-op by design.
func (ic *IntercomController) Hangup(c *gin.Context) {
	var req callActionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ic.Calls.StopCall(req.CallID)
	c.JSON(http.StatusOK, gin.H{"message": "call stopped"})
}

func (ic *IntercomController) Active(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"active_calls": ic.Calls.GetActiveCalls()})
}
