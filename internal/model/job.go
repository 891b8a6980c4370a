package model

import "time"

// Job is a processing job row. Nullable columns are pointers.
type Job struct {
	ID           string    `json:"job_id" db:"id"`
	UserID       string    `json:"user_id" db:"user_id"`
	Genre        *string   `json:"genre" db:"genre"`
	FlowType     FlowType  `json:"flow_type" db:"flow_type"`
	PresetName   *string   `json:"preset_name" db:"preset_name"`
	InputS3Key   string    `json:"input_s3_key" db:"input_s3_key"`
	OutputS3Key  *string   `json:"output_s3_key" db:"output_s3_key"`
	Status       JobStatus `json:"status" db:"status"`
	ErrorMessage *string   `json:"error_message" db:"error_message"`
	Progress     int       `json:"progress" db:"progress"`
	CurrentStage *string   `json:"current_stage" db:"current_stage"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// NewJob holds the fields supplied at submission.
type NewJob struct {
	UserID     string
	InputS3Key string
	Genre      *string
	FlowType   FlowType
	PresetName *string
}

// JobUpdate is a status write. OutputS3Key, ErrorMessage and CurrentStage
// are only written when non-nil.
type JobUpdate struct {
	Status       JobStatus
	OutputS3Key  *string
	ErrorMessage *string
	CurrentStage *string
}

// ProgressUpdate is an in-flight progress write.
type ProgressUpdate struct {
	CurrentStage string
	Progress     int
}

// JobFilter narrows a listing.
type JobFilter struct {
	Status *JobStatus
	Limit  int
}

// QueuePosition is a job's place among active jobs of its flow type.
type QueuePosition struct {
	Position int `json:"queue_position"`
	Size     int `json:"queue_size"`
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
