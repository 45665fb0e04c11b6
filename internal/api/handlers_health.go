package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mescon/tickr/internal/config"
)

// formatUptime returns a human-readable uptime string
func formatUptime(uptime time.Duration) string {
	days := int(uptime.Hours()) / 24
	hours := int(uptime.Hours()) % 24
	minutes := int(uptime.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

// checkDatabaseHealth checks database connectivity and returns status
func (s *RESTServer) checkDatabaseHealth(ctx context.Context) (gin.H, bool) {
	dbHealth := gin.H{"status": "connected"}

	if err := s.repo.DB.PingContext(ctx); err != nil {
		dbHealth["status"] = "error"
		dbHealth["error"] = err.Error()
		return dbHealth, false
	}
	if info, err := os.Stat(s.cfg.DatabasePath); err == nil {
		dbHealth["size_bytes"] = info.Size()
	}
	return dbHealth, true
}

// handleHealth returns server health status for container orchestration.
// This endpoint must return quickly (within 5 seconds) for Docker healthchecks.
func (s *RESTServer) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	dbHealth, dbHealthy := s.checkDatabaseHealth(ctx)

	status := "healthy"
	code := http.StatusOK
	if !dbHealthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	health := gin.H{
		"status":            status,
		"version":           config.Version,
		"uptime":            formatUptime(time.Since(s.startTime)),
		"database":          dbHealth,
		"timers":            gin.H{"registered": s.registry.Count(), "counting": s.registry.CountingCount()},
		"websocket_clients": s.hub.ClientCount(),
	}
	if d, ok := s.eventBus.(interface{ Dropped() int64 }); ok {
		health["dropped_events"] = d.Dropped()
	}
	if s.scheduler != nil {
		health["scheduled_timers"] = s.scheduler.ScheduledCount()
	}

	c.JSON(code, health)
}
