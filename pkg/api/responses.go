package api

import "github.com/luci/swarmsched/pkg/database"

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status       string                 `json:"status"`
	Version      string                 `json:"version"`
	Database     *database.HealthStatus `json:"database"`
	SweeperAlive bool                   `json:"sweeper_alive"`
}
