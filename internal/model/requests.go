package model

// CreateJobRequest is the user-facing submission body. The owner comes from
// the authenticated identity.
type CreateJobRequest struct {
	S3Key      string  `json:"s3_key" validate:"required,min=3,max=1024"`
	Genre      *string `json:"genre" validate:"omitempty,max=64"`
	FlowType   string  `json:"flow_type" validate:"required,min=3,max=64"`
	PresetName *string `json:"preset_name" validate:"omitempty,max=128"`
}

// LegacyCreateJobRequest is the body of POST /create-job, which names the
// owner explicitly.
type LegacyCreateJobRequest struct {
	UserID     string  `json:"user_id" validate:"required,min=1,max=128"`
	S3Key      string  `json:"s3_key" validate:"required,min=3,max=1024"`
	Genre      *string `json:"genre" validate:"omitempty,max=64"`
	FlowType   string  `json:"flow_type" validate:"required,min=3,max=64"`
	PresetName *string `json:"preset_name" validate:"omitempty,max=128"`
}

// CreateJobResponse is returned after a job is queued.
type CreateJobResponse struct {
	JobID string `json:"job_id"`
}

// UpdateJobRequest is the worker's terminal patch.
type UpdateJobRequest struct {
	Status       JobStatus `json:"status" validate:"required,oneof=completed failed"`
	OutputS3Key  *string   `json:"output_s3_key,omitempty" validate:"omitempty,max=1024"`
	ErrorMessage *string   `json:"error_message,omitempty" validate:"omitempty,max=4000"`
	CurrentStage *string   `json:"current_stage,omitempty" validate:"omitempty,max=255"`
}

// ProgressRequest is the worker's in-flight progress patch.
type ProgressRequest struct {
	CurrentStage string `json:"current_stage" validate:"required,max=255"`
	Progress     int    `json:"progress" validate:"min=0,max=100"`
}

// JobListResponse wraps a listing.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// JobStatusResponse is what a user sees when polling a job.
type JobStatusResponse struct {
	JobID             string       `json:"job_id"`
	Status            JobStatus    `json:"status"`
	FlowType          FlowType     `json:"flow_type"`
	Progress          int          `json:"progress"`
	CurrentStage      *string      `json:"current_stage"`
	ErrorMessage      *string      `json:"error_message"`
	OutputDownloadURL *string      `json:"output_download_url"`
	QueueFeatureType  FlowType     `json:"queue_feature_type"`
	QueuePosition     *int         `json:"queue_position"`
	QueueSize         *int         `json:"queue_size"`
	Steps             []StepStatus `json:"steps"`
}
