package api

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	// State is the worst visible status among watched sensors, or
	// "unknown" while none has been evaluated.
	State            string `json:"state"`
	SensorCount      int    `json:"sensor_count"`
	WatchedCount     int    `json:"watched_count"`
	OKCount          int    `json:"ok_count"`
	WarningCount     int    `json:"warning_count"`
	CriticalCount    int    `json:"critical_count"`
	UnevaluatedCount int    `json:"unevaluated_count"`
}

// SensorResponse is one entry in GET /api/v1/sensors or
// GET /api/v1/sensors/{key}.
type SensorResponse struct {
	Sensor       string `json:"sensor"`
	Device       string `json:"device"`
	Kind         string `json:"kind"`
	Index        int    `json:"index"`
	Watched      bool   `json:"watched"`
	Status       string `json:"status"`
	Value        string `json:"value,omitempty"`
	Raw          int64  `json:"raw"`
	Lower        string `json:"lower,omitempty"`
	Upper        string `json:"upper,omitempty"`
	Pending      string `json:"pending,omitempty"`
	PendingCount int    `json:"pending_count"`
	ChangedAt    string `json:"changed_at,omitempty"` // RFC3339
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
