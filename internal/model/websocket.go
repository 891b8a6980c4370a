package model

// WebSocket message types
const (
	WSMessageTypeProgress = "progress"
	WSMessageTypeComplete = "complete"
	WSMessageTypeError    = "error"
	WSMessageTypePing     = "ping"
	WSMessageTypePong     = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSProgressMessage represents a progress update
type WSProgressMessage struct {
	Type         string    `json:"type"`
	JobID        string    `json:"job_id"`
	Progress     int       `json:"progress"`
	Status       JobStatus `json:"status"`
	CurrentStage string    `json:"current_stage,omitempty"`
}

// WSCompleteMessage represents job completion
type WSCompleteMessage struct {
	Type        string `json:"type"`
	JobID       string `json:"job_id"`
	OutputS3Key string `json:"output_s3_key"`
}

// WSErrorMessage represents a failed job
type WSErrorMessage struct {
	Type  string  `json:"type"`
	JobID string  `json:"job_id"`
	Error WSError `json:"error"`
}

// WSError represents error details
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// JobEvent is the fan-out envelope published whenever a job changes.
type JobEvent struct {
	JobID        string    `json:"job_id"`
	Status       JobStatus `json:"status"`
	Progress     int       `json:"progress"`
	CurrentStage string    `json:"current_stage,omitempty"`
	OutputS3Key  string    `json:"output_s3_key,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

// EventFromJob snapshots a job into an event.
func EventFromJob(j *Job) JobEvent {
	return JobEvent{
		JobID:        j.ID,
		Status:       j.Status,
		Progress:     j.Progress,
		CurrentStage: Deref(j.CurrentStage),
		OutputS3Key:  Deref(j.OutputS3Key),
		ErrorMessage: Deref(j.ErrorMessage),
	}
}
