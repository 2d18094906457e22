package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/xpanvictor/avatarchat/internal/domains/session"
	"github.com/xpanvictor/avatarchat/pkg/Logger"
)

type HealthHandler struct {
	pipeline Pipeline
	store    session.Store
	version  string
	logger   *Logger.Logger
	// hostMetrics is swapped in tests to keep them off the real host.
	hostMetrics func() (*HostMetrics, error)
}

func NewHealthHandler(p Pipeline, store session.Store, version string, logger *Logger.Logger) *HealthHandler {
	return &HealthHandler{
		pipeline:    p,
		store:       store,
		version:     version,
		logger:      logger,
		hostMetrics: collectHostMetrics,
	}
}

// Health reports liveness
// @Summary Health check
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	st := h.pipeline.Status()
	resp := HealthResponse{
		Status:         "healthy",
		Version:        h.version,
		PipelineStatus: st.OverallStatus,
		Uptime:         st.Uptime,
	}
	if !st.Healthy {
		resp.Status = "unhealthy"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// PipelineStatus reports per-component availability and host load
// @Summary Pipeline status
// @Tags System
// @Produce json
// @Success 200 {object} PipelineStatusResponse
// @Router /pipeline/status [get]
func (h *HealthHandler) PipelineStatus(c *gin.Context) {
	resp := PipelineStatusResponse{
		Status:   h.pipeline.Status(),
		Sessions: h.store.Stats(),
	}
	host, err := h.hostMetrics()
	if err != nil {
		h.logger.Debugf("host metrics unavailable: %v", err)
	} else {
		resp.Host = host
	}
	c.JSON(http.StatusOK, resp)
}

func collectHostMetrics() (*HostMetrics, error) {
	var m HostMetrics

	cpuPercent, err := cpu.Percent(200*time.Millisecond, false)
	if err != nil {
		return nil, err
	}
	if len(cpuPercent) > 0 {
		m.CPUPercent = cpuPercent[0]
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		return nil, err
	}
	m.MemoryPercent = vm.UsedPercent
	m.MemoryUsedMB = vm.Used / 1024 / 1024

	if du, err := disk.Usage("/"); err == nil {
		m.DiskPercent = du.UsedPercent
	}
	return &m, nil
}
