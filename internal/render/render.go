// Package render runs the DSP pipeline for a job. Callers treat it as a
// black box from input file to output file.
package render

import (
	"context"
	"strings"

	"github.com/mixsmvrt/api/internal/model"
)

// Request describes one render of one job attempt.
type Request struct {
	JobID      string
	FlowType   model.FlowType
	PresetName string
	Genre      string
	InputPath  string
	OutputPath string
}

// StageFunc is called after stage index (0-based, into the flow's stage
// template) has finished.
type StageFunc func(index int)

// Renderer turns Request.InputPath into Request.OutputPath.
type Renderer interface {
	Render(ctx context.Context, req Request, onStage StageFunc) error
}

// LooksVocal guesses from a preset name whether the input is a vocal track.
func LooksVocal(presetName string) bool {
	key := strings.ToLower(presetName)
	for _, token := range []string{"vocal", "lead", "rap", "rnb", "dancehall", "reggae"} {
		if strings.Contains(key, token) {
			return true
		}
	}
	return false
}
