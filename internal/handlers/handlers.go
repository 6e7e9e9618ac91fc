// Package handlers wires gin routes to the Diff Controller and Streaming
// Sink, requiring an authenticated user and a numeric session id before
// opening an event stream.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"apex-diffrun/internal/diffrun"
	"apex-diffrun/internal/middleware"
	"apex-diffrun/internal/stream"
)

// Handlers binds a Controller to the start, rerun, and stop routes.
type Handlers struct {
	Controller *diffrun.Controller
}

func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/sessions/:session_id/start", h.Start)
	r.GET("/sessions/:session_id/rerun", h.Rerun)
	r.POST("/sessions/:session_id/stop", h.Stop)
}

func (h *Handlers) Start(c *gin.Context) {
	sessionID, ok := h.authorizedSessionID(c)
	if !ok {
		return
	}

	maxTests, err := strconv.Atoi(c.DefaultQuery("max_tests", "100"))
	if err != nil {
		maxTests = 100
	}
	checkerName := c.DefaultQuery("checker", "wcmp")

	sink := stream.NewSink(c)
	h.Controller.Start(c.Request.Context(), sink, sessionID, maxTests, checkerName)
}

func (h *Handlers) Rerun(c *gin.Context) {
	sessionID, ok := h.authorizedSessionID(c)
	if !ok {
		return
	}
	checkerName := c.DefaultQuery("checker", "wcmp")

	sink := stream.NewSink(c)
	h.Controller.Rerun(c.Request.Context(), sink, sessionID, checkerName)
}

func (h *Handlers) Stop(c *gin.Context) {
	sessionID, ok := h.authorizedSessionID(c)
	if !ok {
		return
	}
	h.Controller.Stop(c.Request.Context(), sessionID)
	c.JSON(http.StatusOK, gin.H{"stopped": true, "session_id": sessionID})
}

// authorizedSessionID parses :session_id, failing the request if the
// path param is malformed; it does not load the session. Ownership checks against the
// authenticated user live in the outer web layer (session
// storage is explicitly out of scope); this only requires a valid bearer
// subject to be present.
func (h *Handlers) authorizedSessionID(c *gin.Context) (uint, bool) {
	if _, ok := middleware.GetUserID(c); !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return 0, false
	}

	id, err := strconv.ParseUint(c.Param("session_id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid session_id"})
		return 0, false
	}
	return uint(id), true
}
