package interfaces

import "github.com/ternarybob/backlot/internal/models"

// JobEvent is a status transition broadcast to observers.
type JobEvent struct {
	Type   string                `json:"type"` // "job_update"
	Job    *models.GenerationJob `json:"job"`
	ShowID string                `json:"show_id"`
}

// EventPublisher pushes job transitions to connected observers. A nil
// or disconnected publisher must never block the polling loop.
type EventPublisher interface {
	PublishJobUpdate(job *models.GenerationJob)
}
