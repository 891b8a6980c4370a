package model

// Stage templates shown to users while a job renders.
var flowStages = map[FlowType][]string{
	FlowAudioCleanup: {
		"Analyzing audio",
		"Noise reduction",
		"Artifact cleanup",
		"EQ cleanup",
		"Output rendering",
	},
	FlowMixingOnly: {
		"Analyzing audio",
		"Gain staging",
		"Applying EQ",
		"Applying compression",
		"Adding saturation",
		"Stereo enhancement",
		"Mix render",
	},
	FlowMixMaster: {
		"Analyzing audio",
		"Detecting vocal characteristics",
		"Cleaning noise & artifacts",
		"Gain staging",
		"Applying EQ",
		"Applying compression",
		"De-essing",
		"Adding saturation",
		"Stereo enhancement",
		"Bus processing",
		"Loudness normalization",
		"Finalizing output",
	},
	FlowMasteringOnly: {
		"Analyzing mix",
		"Linear EQ",
		"Multiband compression",
		"Stereo imaging",
		"Limiting",
		"Loudness normalization",
		"Final render",
	},
}

var genericStages = []string{
	"Analyzing audio",
	"Processing",
	"Finalizing output",
}

// StagesFor returns the stage template for a flow type. Unknown flows get a
// generic three-stage template. The returned slice must not be modified.
func StagesFor(flow FlowType) []string {
	if stages, ok := flowStages[flow]; ok {
		return stages
	}
	return genericStages
}

// IsKnownFlow reports whether flow has a dedicated template.
func IsKnownFlow(flow FlowType) bool {
	_, ok := flowStages[flow]
	return ok
}

// StepStatus is one row of the per-stage checklist.
type StepStatus struct {
	Name      string `json:"name"`
	Completed bool   `json:"completed"`
}

// StepStatuses derives the checklist for a job from its persisted progress.
// Stage i counts as done once progress reaches floor((i+1)/n*100). A failed
// job reports no completed stages.
func StepStatuses(flow FlowType, progress int, status JobStatus) []StepStatus {
	stages := StagesFor(flow)
	n := len(stages)
	out := make([]StepStatus, n)
	for i, name := range stages {
		threshold := (i + 1) * 100 / n
		out[i] = StepStatus{
			Name:      name,
			Completed: status != JobStatusFailed && progress >= threshold,
		}
	}
	return out
}
