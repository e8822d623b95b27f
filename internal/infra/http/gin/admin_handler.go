package ginserver

import (
	"context"
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"slotkeeper/internal/app/dto"
)

// SweepRunner is satisfied by *sweep.Runner.
type SweepRunner interface {
	RunInstances(ctx context.Context) ([]dto.SweepReport, error)
	RunWaitlist(ctx context.Context) ([]dto.SweepReport, error)
	RunReassignment(ctx context.Context) ([]dto.SweepReport, error)
	RunCompletion(ctx context.Context) ([]dto.SweepReport, error)
}

type AdminHandler struct {
	Sweeps SweepRunner
	Logger *slog.Logger
}

// RunSweep triggers one maintenance job out of band.
func (h AdminHandler) RunSweep(c *gin.Context) {
	if h.Sweeps == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "sweeps are not configured"})
		return
	}
	var run func(context.Context) ([]dto.SweepReport, error)
	switch job := c.Param("job"); job {
	case "instances":
		run = h.Sweeps.RunInstances
	case "waitlist":
		run = h.Sweeps.RunWaitlist
	case "reassignment":
		run = h.Sweeps.RunReassignment
	case "completion":
		run = h.Sweeps.RunCompletion
	default:
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown sweep " + job})
		return
	}
	reports, err := run(c.Request.Context())
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("sweep finished with errors", "job", c.Param("job"), "error", err)
		}
		c.JSON(http.StatusOK, gin.H{"reports": reports, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reports": reports})
}
