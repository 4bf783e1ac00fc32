package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/confide-ai/confide-backend/internal/logger"
	"github.com/confide-ai/confide-backend/internal/types"
)

const readinessTimeout = 10 * time.Second

// ReadinessProbe is one named dependency check.
type ReadinessProbe struct {
	ID    string
	Check func(ctx context.Context) error
}

type HealthHandler struct {
	log    *logger.Logger
	probes []ReadinessProbe
}

func NewHealthHandler(log *logger.Logger, probes ...ReadinessProbe) *HealthHandler {
	return &HealthHandler{
		log:    log.With("handler", "HealthHandler"),
		probes: probes,
	}
}

// Liveness answers as long as the process can serve requests at all.
func (hh *HealthHandler) Liveness(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Readiness probes every dependency and reports per-check status. Any
// failing check fails the whole report with a 503.
func (hh *HealthHandler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	report := types.ReadinessReport{Status: types.ReadinessOK}
	for _, probe := range hh.probes {
		status := types.ReadinessOK
		if err := probe.Check(ctx); err != nil {
			hh.log.Warn("Readiness check failed", "check", probe.ID, "error", err)
			status = types.ReadinessFail
			report.Status = types.ReadinessFail
		}
		report.Checks = append(report.Checks, types.ReadinessCheck{ID: probe.ID, Status: status})
	}

	code := http.StatusOK
	if report.Status == types.ReadinessFail {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, report)
}
