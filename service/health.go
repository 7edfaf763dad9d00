package service

import (
	"context"
	"fmt"
	"net/http"
	"syscall"
	"time"

	"TrendToVideo-server/config"
	"TrendToVideo-server/logger"
	"TrendToVideo-server/models"
)

const (
	HealthStatusHealthy   = "healthy"
	HealthStatusDegraded  = "degraded"
	HealthStatusUnhealthy = "unhealthy"
)

type SubCheck struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

type HealthSummary struct {
	Status    string     `json:"status"`
	Checks    []SubCheck `json:"checks"`
	CheckedAt time.Time  `json:"checkedAt"`
}

// HealthChecker aggregates independent sub-checks into one summary. Check
// never panics or errors out of the aggregate: any sub-check failure is
// captured as an unhealthy entry for that sub-check.
type HealthChecker struct {
	Store     models.JobStore
	Artifacts *MinioArtifactStore
	HTTP      *http.Client

	WorkerAddr        string
	StorageUsageMaxGB float64
	DiskHeadroomMinGB float64
	DiskPath          string
}

func NewHealthChecker(store models.JobStore, artifacts *MinioArtifactStore) *HealthChecker {
	auto := config.AppConfig.Automation
	return &HealthChecker{
		Store:             store,
		Artifacts:         artifacts,
		HTTP:              &http.Client{Timeout: 10 * time.Second},
		WorkerAddr:        config.AppConfig.Worker.Addr,
		StorageUsageMaxGB: auto.StorageUsageMaxGB,
		DiskHeadroomMinGB: auto.DiskHeadroomMinGB,
		DiskPath:          ".",
	}
}

func (h *HealthChecker) Check(ctx context.Context) HealthSummary {
	checks := []SubCheck{
		h.guard("store", h.checkStore),
		h.guard("storage_usage", h.checkStorageUsage),
		h.guard("worker_api", h.checkWorkerAPI),
		h.guard("disk_headroom", func(ctx context.Context) (string, error) { return h.checkDiskHeadroom() }),
	}

	unhealthy := 0
	for _, c := range checks {
		if !c.Healthy {
			unhealthy++
		}
	}
	status := HealthStatusHealthy
	switch {
	case unhealthy == len(checks):
		status = HealthStatusUnhealthy
	case unhealthy > 0:
		status = HealthStatusDegraded
	}

	return HealthSummary{
		Status:    status,
		Checks:    checks,
		CheckedAt: time.Now(),
	}
}

// guard runs one sub-check inside its own recover boundary so a panicking
// check degrades to unhealthy instead of aborting the aggregate.
func (h *HealthChecker) guard(name string, fn func(ctx context.Context) (string, error)) (result SubCheck) {
	result = SubCheck{Name: name, Healthy: true}
	defer func() {
		if r := recover(); r != nil {
			logger.L().Errorf("health sub-check %s panicked: %v", name, r)
			result.Healthy = false
			result.Detail = fmt.Sprintf("panic: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	detail, err := fn(ctx)
	if err != nil {
		result.Healthy = false
		result.Detail = err.Error()
		return result
	}
	result.Detail = detail
	return result
}

func (h *HealthChecker) checkStore(ctx context.Context) (string, error) {
	// A cheap read exercises the full connection path.
	if _, err := h.Store.GetSetting(models.SettingSystemStatus); err != nil {
		return "", fmt.Errorf("store unreachable: %w", err)
	}
	return "reachable", nil
}

func (h *HealthChecker) checkStorageUsage(ctx context.Context) (string, error) {
	usage, err := h.Artifacts.BucketUsageBytes(ctx)
	if err != nil {
		return "", fmt.Errorf("bucket usage check failed: %w", err)
	}
	usageGB := float64(usage) / (1 << 30)
	if usageGB > h.StorageUsageMaxGB {
		return "", fmt.Errorf("bucket usage %.1f GB exceeds limit %.1f GB", usageGB, h.StorageUsageMaxGB)
	}
	return fmt.Sprintf("%.1f GB used", usageGB), nil
}

func (h *HealthChecker) checkWorkerAPI(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.WorkerAddr+"/healthz", nil)
	if err != nil {
		return "", err
	}
	resp, err := h.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("render worker unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("render worker status code: %d", resp.StatusCode)
	}
	return "reachable", nil
}

func (h *HealthChecker) checkDiskHeadroom() (string, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(h.DiskPath, &stat); err != nil {
		return "", fmt.Errorf("statfs failed: %w", err)
	}
	freeGB := float64(stat.Bavail) * float64(stat.Bsize) / (1 << 30)
	if freeGB < h.DiskHeadroomMinGB {
		return "", fmt.Errorf("disk headroom %.1f GB below minimum %.1f GB", freeGB, h.DiskHeadroomMinGB)
	}
	return fmt.Sprintf("%.1f GB free", freeGB), nil
}
