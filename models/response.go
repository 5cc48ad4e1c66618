package models

// StatusResponse is the response for GET /status.
type StatusResponse struct {
	// Value is exactly what GET / currently serves.
	Value string `json:"value"`

	// Outcome is "names", "empty" or "failure" for the last attempt.
	Outcome string `json:"outcome"`

	// Reason is set when the last attempt failed.
	Reason string `json:"reason,omitempty"`

	// Strategy names the extraction strategy that produced the last result.
	Strategy string `json:"strategy,omitempty"`

	// Engine names the fetch engine that produced the last snapshot.
	Engine string `json:"engine,omitempty"`

	// UpdatedAt is the RFC 3339 time of the last refresh attempt, empty
	// before the first attempt.
	UpdatedAt string `json:"updated_at,omitempty"`

	// Age is how long ago UpdatedAt was, empty before the first attempt.
	Age string `json:"age,omitempty"`

	// Drift is the structural distance between the last two snapshots.
	Drift int `json:"drift"`

	// DriftDetected is true when Drift exceeded the configured threshold.
	DriftDetected bool `json:"drift_detected"`

	// Uptime is the process uptime.
	Uptime string `json:"uptime"`
}
