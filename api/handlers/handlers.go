package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/NethermindEth/chaosfeed/core"
	"github.com/NethermindEth/chaosfeed/export"
	"github.com/NethermindEth/chaosfeed/profiles"
	"github.com/NethermindEth/chaosfeed/simulation"
)

// Engine is the part of the turn loop the API drives.
type Engine interface {
	Start(ctx context.Context) error
	Stop() error
	Running() bool
}

// Handler serves the feed API.
type Handler struct {
	store        *core.Store
	engine       Engine
	loopCtx      context.Context
	profilesPath string
	logger       *zap.Logger
}

// NewHandler creates the handler. loopCtx bounds loops started over HTTP, so
// it must outlive any single request.
func NewHandler(loopCtx context.Context, store *core.Store, engine Engine, profilesPath string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		store:        store,
		engine:       engine,
		loopCtx:      loopCtx,
		profilesPath: profilesPath,
		logger:       logger.Named("api"),
	}
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrEmptyName),
		errors.Is(err, core.ErrEmptyBio),
		errors.Is(err, core.ErrEmptyTopic),
		errors.Is(err, simulation.ErrNoAgents):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrAgentNotFound):
		return http.StatusNotFound
	case errors.Is(err, simulation.ErrAlreadyRunning),
		errors.Is(err, core.ErrTopicLocked):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// GetState returns the whole application state
func (h *Handler) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.Snapshot())
}

// ListAgents returns the roster in creation order
func (h *Handler) ListAgents(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"agents": h.store.Snapshot().Agents})
}

// CreateAgent adds an agent from {name, bio}
func (h *Handler) CreateAgent(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
		Bio  string `json:"bio"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid agent data"})
		return
	}

	agent, err := h.store.AddAgent(req.Name, req.Bio)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"agent": agent})
}

// DeleteAgent removes an agent. Its posts stay in the feed.
func (h *Handler) DeleteAgent(c *gin.Context) {
	if err := h.store.DeleteAgent(c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Agent deleted"})
}

// LoadDefaultAgents replaces the roster with the profiles file, or the
// built-in personas when the file does not exist.
func (h *Handler) LoadDefaultAgents(c *gin.Context) {
	seeds, source, err := profiles.LoadOrDefaults(h.profilesPath)
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.store.LoadAgents(seeds, source); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"agents": h.store.Snapshot().Agents})
}

// SetTopic changes the discussion topic while idle
func (h *Handler) SetTopic(c *gin.Context) {
	var req struct {
		Topic string `json:"topic"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid topic data"})
		return
	}
	if err := h.store.SetTopic(req.Topic); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"topic": h.store.Snapshot().Topic})
}

// StartSimulation starts the turn loop
func (h *Handler) StartSimulation(c *gin.Context) {
	if err := h.engine.Start(h.loopCtx); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"running": true})
}

// StopSimulation asks the loop to stop after the current turn
func (h *Handler) StopSimulation(c *gin.Context) {
	if err := h.engine.Stop(); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"running": h.engine.Running()})
}

// GetFeed returns root posts with their nested replies
func (h *Handler) GetFeed(c *gin.Context) {
	snap := h.store.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"threads": snap.Feed.Threads(),
		"total":   snap.Feed.Len(),
	})
}

// GetLogs returns the monitor window
func (h *Handler) GetLogs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"logs": core.Tail(h.store.Snapshot().Logs, core.MonitorWindow)})
}

// GetNotifications returns recent activity, newest first
func (h *Handler) GetNotifications(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"notifications": h.store.Snapshot().Notifications})
}

// ExportIterations downloads the iteration log of the current run
func (h *Handler) ExportIterations(c *gin.Context) {
	records := h.store.Snapshot().Iterations
	c.Header("Content-Disposition", export.ContentDisposition())
	c.Header("Content-Type", "application/json")
	c.Status(http.StatusOK)
	if err := (export.StreamSink{W: c.Writer}).Export(c.Request.Context(), records); err != nil {
		h.logger.Warn("export download failed", zap.Error(err))
	}
}
