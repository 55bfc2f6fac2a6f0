package domain

import "time"

// RunStatus is the lifecycle state of a provisioning run.
type RunStatus string

const (
	RunNotStarted RunStatus = "not_started"
	RunRunning    RunStatus = "running"
	RunCompleted  RunStatus = "completed"
	RunFailed     RunStatus = "failed"
)

// LogLevel classifies a run log entry.
type LogLevel string

const (
	LogInfo    LogLevel = "INFO"
	LogWarning LogLevel = "WARNING"
	LogError   LogLevel = "ERROR"
)

// LogEntry is one timestamped line of the append-only run log.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Level   LogLevel  `json:"level"`
	Message string    `json:"message"`
}

// BuyerDistance summarizes the routes observed for one buyer during
// combination generation.
type BuyerDistance struct {
	AverageKm float64 `json:"average_km"`
	Routes    int     `json:"routes"`
}

// RunStats aggregates the outcome of a run. Monetary totals are in the
// same currency unit as the order bag prices.
type RunStats struct {
	TotalOperations   int `json:"total_operations"`
	TotalSales        int `json:"total_sales"`
	TotalPurchases    int `json:"total_purchases"`
	TotalCombinations int `json:"total_combinations"`
	Processed         int `json:"processed_combinations"`

	DistancesComputed int `json:"distances_computed"`

	TotalAllocated  float64 `json:"total_allocated"`
	TotalRevenue    float64 `json:"total_revenue"`
	TotalCost       float64 `json:"total_cost"`
	TotalProfit     float64 `json:"total_profit"`
	TotalFreight    float64 `json:"total_freight"`
	TotalTaxBalance float64 `json:"total_tax_balance"`
	AverageDistance float64 `json:"average_distance"`

	GrainTotals    map[string]float64       `json:"grain_totals"`
	BuyerDistances map[string]BuyerDistance `json:"buyer_distances"`
}

// RunSnapshot is the read-only view of a run exposed to pollers.
type RunSnapshot struct {
	RunID     string     `json:"run_id"`
	Status    RunStatus  `json:"status"`
	Progress  float64    `json:"progress"`
	Error     string     `json:"error,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Log       []LogEntry `json:"log"`
	Stats     RunStats   `json:"stats"`
}
