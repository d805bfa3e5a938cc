package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LiveStak-Brad/mylivelinks-sub009/internal/app"
	"github.com/LiveStak-Brad/mylivelinks-sub009/internal/domain"
	"github.com/LiveStak-Brad/mylivelinks-sub009/internal/presence"
	"github.com/LiveStak-Brad/mylivelinks-sub009/internal/session"
)

type Handlers struct {
	Coord *app.Coordinator
}

type watchRequest struct {
	Unmuted    bool `json:"unmuted"`
	TabVisible bool `json:"tab_visible"`
	Subscribed bool `json:"subscribed"`
}

func (h *Handlers) StartWatch(c *gin.Context) {
	var req watchRequest
	// Body optional; defaults are all-false flags.
	_ = c.ShouldBindJSON(&req)
	h.Coord.WatchStream(domain.StreamID(c.Param("stream")), presence.ViewerFlags{
		Unmuted:    req.Unmuted,
		TabVisible: req.TabVisible,
		Subscribed: req.Subscribed,
	})
	c.Status(http.StatusNoContent)
}

func (h *Handlers) UpdateWatch(c *gin.Context) {
	var req watchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid flags payload"})
		return
	}
	h.Coord.UpdateViewerFlags(domain.StreamID(c.Param("stream")), presence.ViewerFlags{
		Unmuted:    req.Unmuted,
		TabVisible: req.TabVisible,
		Subscribed: req.Subscribed,
	})
	c.Status(http.StatusNoContent)
}

func (h *Handlers) StopWatch(c *gin.Context) {
	h.Coord.StopWatching(domain.StreamID(c.Param("stream")))
	c.Status(http.StatusNoContent)
}

func (h *Handlers) StreamViewers(c *gin.Context) {
	recs, err := h.Coord.StreamViewers(c.Request.Context(), domain.StreamID(c.Param("stream")))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "presence scan failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"viewers": recs, "count": len(recs)})
}

func (h *Handlers) JoinRoom(c *gin.Context) {
	h.Coord.JoinRoom(domain.RoomID(c.Param("room")))
	c.Status(http.StatusNoContent)
}

func (h *Handlers) LeaveRoom(c *gin.Context) {
	h.Coord.LeaveRoom(domain.RoomID(c.Param("room")))
	c.Status(http.StatusNoContent)
}

func (h *Handlers) GoLive(c *gin.Context) {
	report, err := h.Coord.GoLive(c.Request.Context(), domain.RoomID(c.Param("room")))
	if err != nil {
		c.JSON(failureStatus(err), gin.H{
			"error": err.Error(),
			"class": session.Classify(err).String(),
		})
		return
	}
	resp := gin.H{"published": report.Published}
	if len(report.Failures) > 0 {
		failures := make([]gin.H, 0, len(report.Failures))
		for _, f := range report.Failures {
			failures = append(failures, gin.H{"track": f.Track, "class": f.Class.String(), "error": f.Err.Error()})
		}
		resp["failures"] = failures
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) StopLive(c *gin.Context) {
	if err := h.Coord.StopLive(domain.RoomID(c.Param("room"))); err != nil {
		// Teardown ran to completion anyway; report what leaked.
		c.JSON(http.StatusOK, gin.H{"warning": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) RoomPresence(c *gin.Context) {
	recs, err := h.Coord.RoomRoster(c.Request.Context(), domain.RoomID(c.Param("room")))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "presence scan failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": recs, "count": len(recs)})
}

func (h *Handlers) SessionState(c *gin.Context) {
	state := h.Coord.SessionState(domain.RoomID(c.Param("room")))
	c.JSON(http.StatusOK, gin.H{"state": state.String(), "broadcasting": state.Active()})
}

func failureStatus(err error) int {
	var se *session.Error
	if !errors.As(err, &se) {
		return http.StatusInternalServerError
	}
	switch se.Class {
	case session.FailureUnauthenticated:
		return http.StatusUnauthorized
	case session.FailureMalformedCredential:
		return http.StatusBadGateway
	case session.FailureTransportConnect:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
