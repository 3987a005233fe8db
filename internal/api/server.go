// Package api is the local HTTP surface consumed by the presentation layer
// (scan UI, list views, settings forms). Every failure maps to a status code
// and a short message; nothing propagates as a panic.
package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"attendsync/internal/auth"
	"attendsync/internal/config"
	"attendsync/internal/connectivity"
	"attendsync/internal/exporter"
	"attendsync/internal/httpmiddleware"
	"attendsync/internal/queue"
	"attendsync/internal/scan"
	"attendsync/internal/store"
)

// Server wires the gin engine to the capture and reconciliation components.
type Server struct {
	Engine *gin.Engine

	cfg          config.App
	store        *store.Store
	orchestrator *scan.Orchestrator
	triggers     queue.Queue
	exporter     *exporter.Exporter
	monitor      *connectivity.StaticMonitor
	redis        *store.Redis // nil unless the redis queue backend is active
}

// New builds the server and registers all routes.
func New(cfg config.App, st *store.Store, orch *scan.Orchestrator, triggers queue.Queue,
	exp *exporter.Exporter, monitor *connectivity.StaticMonitor, redis *store.Redis) *Server {

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:          cfg,
		store:        st,
		orchestrator: orch,
		triggers:     triggers,
		exporter:     exp,
		monitor:      monitor,
		redis:        redis,
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", s.healthz)
	r.POST("/v1/devices/register", s.registerDevice)

	authGroup := r.Group("/v1", auth.DeviceAuth(cfg.JWTSigningKey, cfg.JWTIssuer))
	authGroup.POST("/scans", s.processScan)
	authGroup.POST("/scans/reactivate", s.reactivate)
	authGroup.GET("/events", s.listEvents)
	authGroup.GET("/teachers/:id/pending", s.teacherPending)
	authGroup.POST("/sync", s.triggerSync)
	authGroup.PUT("/network", s.setNetwork)
	authGroup.POST("/export", s.export)
	authGroup.DELETE("/events/:id", s.deleteEvent)
	authGroup.DELETE("/events", s.deleteEvents)

	s.Engine = r
	return s
}

func (s *Server) healthz(c *gin.Context) {
	dbHealthy := s.store.Healthy(c.Request.Context())
	status := http.StatusOK
	resp := gin.H{"status": "ok", "db": dbHealthy}
	if s.redis != nil {
		redisHealthy := s.redis.Healthy(c.Request.Context())
		resp["redis"] = redisHealthy
		if !redisHealthy {
			status = http.StatusServiceUnavailable
		}
	}
	if !dbHealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}

func (s *Server) registerDevice(c *gin.Context) {
	var req struct {
		DeviceID string `json:"device_id"`
	}
	_ = c.ShouldBindJSON(&req)

	deviceID := req.DeviceID
	if deviceID == "" {
		id, err := s.store.DeviceID(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "local storage unavailable"})
			return
		}
		deviceID = id
	}

	tokens, err := auth.Issue(deviceID, "device", s.cfg.JWTIssuer, s.cfg.JWTSigningKey, s.cfg.AccessTTL, s.cfg.RefreshTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"device_id":     deviceID,
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_at":    tokens.AccessExp.Unix(),
	})
}

func (s *Server) processScan(c *gin.Context) {
	var req struct {
		Payload string `json:"payload" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "provide {\"payload\": \"<scanned text>\"}"})
		return
	}

	result := s.orchestrator.Process(c.Request.Context(), req.Payload)
	status := http.StatusOK
	switch result.Status {
	case scan.StatusQueued:
		status = http.StatusAccepted
	case scan.StatusRejected:
		status = http.StatusUnprocessableEntity
	case scan.StatusIgnored:
		status = http.StatusConflict
	case scan.StatusFailed:
		status = http.StatusServiceUnavailable
	}
	resp := gin.H{"message": result.Message, "active": s.orchestrator.Active()}
	if result.EventID != 0 {
		resp["event_id"] = result.EventID
	}
	c.JSON(status, resp)
}

func (s *Server) reactivate(c *gin.Context) {
	s.orchestrator.Reactivate()
	c.JSON(http.StatusOK, gin.H{"active": true})
}

func (s *Server) listEvents(c *gin.Context) {
	var (
		events []store.Event
		err    error
	)
	if c.Query("pending") == "true" {
		events, err = s.store.ListPending(c.Request.Context())
	} else {
		events, err = s.store.ListAll(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	type eventJSON struct {
		ID         int64  `json:"id"`
		URL        string `json:"url"`
		ScannedAt  string `json:"scanned_at"`
		State      string `json:"state"`
		Diagnostic string `json:"diagnostic"`
		TeacherID  int    `json:"teacher_id"`
		DeviceID   string `json:"device_id"`
		Latitude   string `json:"latitude"`
		Longitude  string `json:"longitude"`
		Type       string `json:"type"`
		Attempts   int    `json:"attempts"`
	}
	out := make([]eventJSON, 0, len(events))
	pending := 0
	for _, evt := range events {
		if evt.State == store.StatePending {
			pending++
		}
		out = append(out, eventJSON{
			ID:         evt.ID,
			URL:        evt.URL,
			ScannedAt:  evt.ScannedAt.Format("02/01/2006 15:04"),
			State:      evt.State,
			Diagnostic: evt.Diagnostic,
			TeacherID:  evt.TeacherID,
			DeviceID:   evt.DeviceID,
			Latitude:   evt.Latitude,
			Longitude:  evt.Longitude,
			Type:       evt.Type,
			Attempts:   evt.Attempts,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"events":       out,
		"pending":      pending,
		"synchronized": len(out) - pending,
	})
}

func (s *Server) teacherPending(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid teacher id"})
		return
	}
	n, err := s.store.CountPendingByTeacher(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"teacher_id": id, "pending": n})
}

func (s *Server) triggerSync(c *gin.Context) {
	var req struct {
		Force bool `json:"force"`
	}
	_ = c.ShouldBindJSON(&req)

	if err := s.triggers.Publish(c.Request.Context(), queue.Trigger{Source: queue.SourceManual, Force: req.Force}); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "sync trigger not accepted"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "sync requested"})
}

func (s *Server) setNetwork(c *gin.Context) {
	var req struct {
		Profile string `json:"profile" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "provide {\"profile\": \"wifi|cellular|none\"}"})
		return
	}

	previous := s.monitor.Profile()
	s.monitor.Set(req.Profile)

	// Connectivity restoration wakes the reconciler.
	if s.monitor.Profile() == connectivity.ProfileWiFi && previous != connectivity.ProfileWiFi {
		_ = s.triggers.Publish(c.Request.Context(), queue.Trigger{Source: queue.SourceConnectivity})
	}
	c.JSON(http.StatusOK, gin.H{"profile": s.monitor.Profile()})
}

func (s *Server) export(c *gin.Context) {
	path, err := s.exporter.Export(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if path == "" {
		c.JSON(http.StatusOK, gin.H{"message": "nothing to export"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"file": path})
}

func (s *Server) deleteEvent(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}
	if err := s.store.Delete(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) deleteEvents(c *gin.Context) {
	var err error
	if c.Query("pending") == "true" {
		err = s.store.DeletePending(c.Request.Context())
	} else {
		err = s.store.DeleteAll(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
