package render

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/mixsmvrt/api/internal/model"
)

// stageOp is the ffmpeg work behind one template stage. Analysis stages read
// the current file and discard the output.
type stageOp struct {
	filter  string
	analyze bool
}

const (
	gainStaging   = "loudnorm=I=-18:TP=-3:LRA=11"
	eqChain       = "equalizer=f=280:t=q:w=1.2:g=-2,equalizer=f=3200:t=q:w=1.0:g=3,equalizer=f=12000:t=q:w=1.2:g=2"
	compression   = "acompressor=threshold=-18dB:ratio=3:attack=10:release=120"
	saturation    = "asoftclip=type=tanh"
	stereoWiden   = "extrastereo=m=1.2"
	loudnessNorm  = "loudnorm=I=-14:TP=-1:LRA=9"
	finalLimiter  = "alimiter=limit=0.97"
	vocalHighpass = "highpass=f=85"
)

var flowOps = map[model.FlowType][]stageOp{
	model.FlowAudioCleanup: {
		{filter: "volumedetect", analyze: true},
		{filter: "afftdn=nf=-25"},
		{filter: "adeclick,adeclip"},
		{filter: "highpass=f=60,lowpass=f=18000"},
		{filter: finalLimiter},
	},
	model.FlowMixingOnly: {
		{filter: "volumedetect", analyze: true},
		{filter: gainStaging},
		{filter: eqChain},
		{filter: compression},
		{filter: saturation},
		{filter: stereoWiden},
		{filter: finalLimiter},
	},
	model.FlowMixMaster: {
		{filter: "volumedetect", analyze: true},
		{filter: "astats=metadata=1:reset=1", analyze: true},
		{filter: "afftdn=nf=-25,adeclick"},
		{filter: gainStaging},
		{filter: eqChain},
		{filter: compression},
		{filter: "deesser=i=0.4"},
		{filter: saturation},
		{filter: stereoWiden},
		{filter: "acompressor=threshold=-12dB:ratio=2:attack=30:release=200"},
		{filter: loudnessNorm},
		{filter: "alimiter=limit=0.98"},
	},
	model.FlowMasteringOnly: {
		{filter: "volumedetect", analyze: true},
		{filter: "equalizer=f=60:t=q:w=0.8:g=1,equalizer=f=12000:t=q:w=1.0:g=1.5"},
		{filter: "acompressor=threshold=-16dB:ratio=2.5:attack=20:release=250"},
		{filter: "extrastereo=m=1.1"},
		{filter: "alimiter=limit=0.95"},
		{filter: loudnessNorm},
		{filter: "aresample=48000"},
	},
}

var genericOps = []stageOp{
	{filter: "volumedetect", analyze: true},
	{filter: "loudnorm=I=-16:TP=-1.5:LRA=11"},
	{filter: "alimiter=limit=0.98"},
}

// CommandRunner executes one external command.
type CommandRunner func(ctx context.Context, name string, args ...string) error

// FFmpegRenderer renders a job as one ffmpeg pass per stage of its flow.
type FFmpegRenderer struct {
	binary string
	run    CommandRunner
}

// NewFFmpegRenderer creates a renderer that shells out to the given ffmpeg binary.
func NewFFmpegRenderer(binary string) *FFmpegRenderer {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpegRenderer{binary: binary, run: runCommand}
}

// WithRunner swaps the command runner. Used by tests.
func (r *FFmpegRenderer) WithRunner(run CommandRunner) *FFmpegRenderer {
	r.run = run
	return r
}

func (r *FFmpegRenderer) Render(ctx context.Context, req Request, onStage StageFunc) error {
	ops := opsFor(req.FlowType, LooksVocal(req.PresetName))
	stages := model.StagesFor(req.FlowType)

	lastWrite := -1
	for i, op := range ops {
		if !op.analyze {
			lastWrite = i
		}
	}

	current := req.InputPath
	for i, op := range ops {
		if err := ctx.Err(); err != nil {
			return err
		}

		if op.analyze {
			if err := r.run(ctx, r.binary, analyzeArgs(current, op.filter)...); err != nil {
				return fmt.Errorf("%s: %w", stages[i], err)
			}
		} else {
			next := req.OutputPath
			if i != lastWrite {
				next = intermediatePath(req.OutputPath, i)
			}
			if err := r.run(ctx, r.binary, filterArgs(current, next, op.filter)...); err != nil {
				return fmt.Errorf("%s: %w", stages[i], err)
			}
			current = next
		}

		if onStage != nil {
			onStage(i)
		}
	}

	if current != req.OutputPath {
		if err := r.run(ctx, r.binary, filterArgs(current, req.OutputPath, "anull")...); err != nil {
			return fmt.Errorf("final render: %w", err)
		}
	}
	return nil
}

// opsFor returns the stage ops for a flow, adding a vocal high-pass ahead
// of the EQ stage for vocal presets.
func opsFor(flow model.FlowType, vocal bool) []stageOp {
	base, ok := flowOps[flow]
	if !ok {
		base = genericOps
	}
	ops := make([]stageOp, len(base))
	copy(ops, base)
	if vocal {
		for i := range ops {
			if ops[i].filter == eqChain {
				ops[i].filter = vocalHighpass + "," + eqChain
			}
		}
	}
	return ops
}

func analyzeArgs(input, filter string) []string {
	return []string{
		"-hide_banner", "-nostats",
		"-i", input,
		"-af", filter,
		"-f", "null", "-",
	}
}

func filterArgs(input, output, filter string) []string {
	return []string{
		"-hide_banner", "-nostats",
		"-i", input,
		"-af", filter,
		"-c:a", "pcm_s24le",
		"-y", output,
	}
}

func intermediatePath(output string, stage int) string {
	ext := filepath.Ext(output)
	return fmt.Sprintf("%s.stage%02d%s", strings.TrimSuffix(output, ext), stage, ext)
}

func runCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s failed: %w: %s", filepath.Base(name), err, tail(stderr.String(), 500))
	}
	return nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
