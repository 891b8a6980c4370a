package model

// Job status
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

var ValidJobStatuses = []JobStatus{
	JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed,
}

// IsTerminal reports whether no further transition is expected.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// IsValid reports whether s is a known status.
func (s JobStatus) IsValid() bool {
	for _, v := range ValidJobStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// Flow types
type FlowType string

const (
	FlowAudioCleanup  FlowType = "audio_cleanup"
	FlowMixingOnly    FlowType = "mixing_only"
	FlowMixMaster     FlowType = "mix_master"
	FlowMasteringOnly FlowType = "mastering_only"
)

var ValidFlowTypes = []FlowType{
	FlowAudioCleanup, FlowMixingOnly, FlowMixMaster, FlowMasteringOnly,
}
