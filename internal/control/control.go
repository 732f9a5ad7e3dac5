// Package control exposes the recording orchestrator to callers: an
// HTTP surface for its request/response operations, and a WebSocket hub
// broadcasting lifecycle events to session members.
package control

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aura-webinar/recorder/internal/orchestrator"
	"github.com/aura-webinar/recorder/internal/recording"
	"github.com/aura-webinar/recorder/internal/registry"
	"github.com/aura-webinar/recorder/internal/sfurouter"
	"github.com/aura-webinar/recorder/pkg/response"
)

// RouterProvider resolves the live SFU router for a room. The real SFU
// is out of scope for this repository; a production deployment wires
// this to the host application's router registry, and tests wire it to
// sfurouter.Fake.
type RouterProvider func(room string) (sfurouter.Router, bool)

// Surface is the control surface: gin handlers over an
// orchestrator.Service, emitting lifecycle events to a Hub.
type Surface struct {
	svc     *orchestrator.Service
	routers RouterProvider
	hub     *Hub
	logger  *zap.Logger
}

// New creates a Surface. hub may be nil, in which case events are
// dropped (useful for the recsim harness and unit tests).
func New(svc *orchestrator.Service, routers RouterProvider, hub *Hub, logger *zap.Logger) *Surface {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Surface{svc: svc, routers: routers, hub: hub, logger: logger}
}

// RegisterRoutes attaches the Control Surface's HTTP handlers to r.
func (s *Surface) RegisterRoutes(r gin.IRouter) {
	r.POST("/recordings/participant/start", s.startParticipant)
	r.POST("/recordings/participant/stop", s.stopRecording)
	r.POST("/recordings/mixed/start", s.startMixed)
	r.POST("/recordings/mixed/stop", s.stopRecording)
	r.GET("/recordings/:id/status", s.status)
}

type startRequest struct {
	Room   string `json:"room" binding:"required"`
	User   string `json:"user" binding:"required"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type stopRequest struct {
	RecordingID string `json:"rec_id" binding:"required"`
}

func (s *Surface) resolveRouter(c *gin.Context, room string) (sfurouter.Router, bool) {
	if s.routers == nil {
		return nil, false
	}
	return s.routers(room)
}

func (s *Surface) startParticipant(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	router, ok := s.resolveRouter(c, req.Room)
	if !ok {
		s.emitError(req.Room, "", "router not available")
		response.ServiceUnavailable(c, orchestrator.ErrRouterUnready.Error())
		return
	}

	s.emitState(req.Room, "", "starting")
	r, err := s.svc.StartParticipant(c.Request.Context(), router, req.Room, req.User)
	if err != nil {
		s.handleStartError(c, req.Room, err)
		return
	}

	s.emitStarted(r)
	response.Created(c, gin.H{"rec_id": string(r.ID), "file_name": fileName(r)})
}

func (s *Surface) startMixed(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	router, ok := s.resolveRouter(c, req.Room)
	if !ok {
		s.emitError(req.Room, "", "router not available")
		response.ServiceUnavailable(c, orchestrator.ErrRouterUnready.Error())
		return
	}

	s.emitState(req.Room, "", "starting")
	r, err := s.svc.StartMixed(c.Request.Context(), router, req.Room, req.User, req.Width, req.Height)
	if err != nil {
		s.handleStartError(c, req.Room, err)
		return
	}

	s.emitStarted(r)
	response.Created(c, gin.H{"rec_id": string(r.ID), "file_name": fileName(r), "path": r.Dir})
}

func (s *Surface) handleStartError(c *gin.Context, room string, err error) {
	s.emitError(room, "", err.Error())
	switch {
	case errors.Is(err, orchestrator.ErrRouterUnready):
		response.ServiceUnavailable(c, err.Error())
	case errors.Is(err, orchestrator.ErrNoInputs):
		response.BadRequest(c, err.Error())
	default:
		response.Internal(c, err.Error())
	}
}

func (s *Surface) stopRecording(c *gin.Context) {
	var req stopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	id := recording.ID(req.RecordingID)
	s.emitState("", req.RecordingID, "stopping")

	result, err := s.svc.Stop(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			response.NotFound(c, err.Error())
			return
		}
		s.emitError("", req.RecordingID, err.Error())
		response.Internal(c, err.Error())
		return
	}

	s.emitStopped(req.RecordingID)
	body := gin.H{
		"rec_id":      req.RecordingID,
		"file_name":   result.FileName,
		"path":        result.Path,
		"file_exists": result.FileExists,
		"duration":    result.Duration,
	}
	if result.ExpectedDuration > 0 {
		body["expected_duration"] = result.ExpectedDuration
	}
	response.OK(c, body)
}

func (s *Surface) status(c *gin.Context) {
	id := recording.ID(c.Param("id"))
	info, err := s.svc.Status(id)
	if err != nil {
		response.NotFound(c, err.Error())
		return
	}
	response.OK(c, gin.H{
		"active":     info.Active,
		"elapsed_ms": info.Elapsed.Milliseconds(),
		"file_name":  info.FileName,
		"num_inputs": info.NumInputs,
	})
}

func fileName(r *recording.Recording) string {
	if r.Mode == recording.ModeMixed {
		return "mixed-" + string(r.ID) + ".mp4"
	}
	return "per-" + string(r.ID)
}
