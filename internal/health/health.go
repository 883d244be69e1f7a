package health

// Status grades overall pipeline health.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusCritical Status = "critical"
)

// Report is one health snapshot.
type Report struct {
	Status           Status `json:"status"`
	PendingItems     int    `json:"pending_items"`
	FailedItems      int    `json:"failed_items"`
	PushRetryDepth   int    `json:"push_retry_depth"`
	ActiveChannels   int    `json:"active_channels"`
	InactiveChannels int    `json:"inactive_channels"`
}
