package models

// FanOutCounts aggregates per-character job state for a fanned-out step.
// completed + active + failed + pending == total when no duplicate keys exist.
type FanOutCounts struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Active    int `json:"active"`
	Failed    int `json:"failed"`
	Pending   int `json:"pending"`
}

// StepStatus is the displayed status of one pipeline step after
// reconciling the persisted snapshot against the ephemeral registry.
type StepStatus struct {
	StepID   string        `json:"step_id"`
	Kind     JobKind       `json:"kind"`
	Order    int           `json:"order"`
	FanOut   bool          `json:"fan_out"`
	Status   JobStatus     `json:"status"`
	Error    string        `json:"error,omitempty"`
	Attempts int           `json:"attempts,omitempty"`
	Counts   *FanOutCounts `json:"counts,omitempty"` // Fan-out steps only

	// Characters carries per-character status for fan-out steps so
	// observers can show which characters are still rendering.
	Characters map[string]JobStatus `json:"characters,omitempty"`
}

// ShowStatus is the full reconciled status document for one show.
type ShowStatus struct {
	ShowID string       `json:"show_id"`
	Title  string       `json:"title"`
	Steps  []StepStatus `json:"steps"`
}
