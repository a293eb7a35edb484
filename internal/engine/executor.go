package engine

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/seantiz/ripq/internal/model"
	"github.com/seantiz/ripq/internal/runner"
)

// ResultPathPrefix is the URL path under which output artifacts are served.
const ResultPathPrefix = "/files/lua/"

// genericFailure is reported when the engine leaves no output and says nothing.
const genericFailure = "engine produced no output"

// featureFlags maps each feature to its engine flag.
var featureFlags = map[model.Feature]string{
	model.FeatureVM:         "--vm",
	model.FeatureJunkYard:   "--junk-yard",
	model.FeatureAntiTamper: "--anti-tamper",
	model.FeatureWatermark:  "--watermark",
}

// dispatch is the immutable slice of a job the executor works from.
type dispatch struct {
	id        string
	token     string
	script    []byte
	options   model.Options
	origin    model.Origin
	startedAt time.Time
}

// completion is the executor's verdict on a dispatched job.
type completion struct {
	status   model.Status
	result   *model.Result
	errMsg   string
	exitCode *int
}

// BuildFlags derives the engine flags for opts: exactly one mode flag (a
// preset, or else a profile) followed by one flag per requested feature.
func BuildFlags(opts model.Options) []string {
	var flags []string

	if opts.Preset != "" && slices.Contains(model.Presets, opts.Preset) {
		flags = append(flags, "--preset-"+opts.Preset)
	} else {
		profile := opts.Profile
		if !slices.Contains(model.Profiles, profile) {
			profile = model.DefaultProfile
		}
		flags = append(flags, "--profile", string(profile))
	}

	for _, f := range model.Features {
		if opts.Has(f) {
			flags = append(flags, featureFlags[f])
		}
	}

	return flags
}

// execute runs one dispatched job to a terminal state. Success means the
// output artifact exists once the engine exits; the exit code is only recorded.
func (e *Engine) execute(d dispatch) {
	inputPath, err := e.artifacts.WriteInput(d.token, d.script)
	if err != nil {
		e.logger.Error("prepare input", "job_id", d.id, "error", err)
		_ = e.artifacts.RemoveInput(d.token)
		e.finish(d, completion{
			status: model.StatusFailed,
			errMsg: fmt.Sprintf("prepare input: %v", err),
		})
		return
	}

	inv := runner.Invocation{
		JobID:      d.id,
		InputPath:  inputPath,
		OutputPath: e.artifacts.OutputPath(d.token),
		Flags:      BuildFlags(d.options),
		LogWriter: func(line string) {
			e.broker.Publish(d.id, line)
		},
	}

	e.logger.Info("job dispatched", "job_id", d.id, "flags", strings.Join(inv.Flags, " "))

	out, runErr := e.runner.Run(context.Background(), inv)
	duration := time.Since(d.startedAt)
	engineDuration.Observe(out.Duration.Seconds())

	exitCode := out.ExitCode
	c := completion{exitCode: &exitCode}

	if size, ok := e.artifacts.OutputSize(d.token); ok {
		inputSize := int64(len(d.script))
		c.status = model.StatusCompleted
		c.result = &model.Result{
			URL: resultURL(d.origin, d.token),
			Metrics: model.Metrics{
				InputSize:  inputSize,
				OutputSize: size,
				Ratio:      ratio(size, inputSize),
				Duration:   duration,
			},
		}
		e.logger.Info("job completed",
			"job_id", d.id,
			"duration_ms", duration.Milliseconds(),
			"input_bytes", inputSize,
			"output_bytes", size,
			"exit_code", exitCode,
		)
	} else {
		c.status = model.StatusFailed
		c.errMsg = diagnostic(out, runErr)
		e.logger.Warn("job failed",
			"job_id", d.id,
			"duration_ms", duration.Milliseconds(),
			"exit_code", exitCode,
			"error", c.errMsg,
		)
	}

	if err := e.artifacts.RemoveInput(d.token); err != nil {
		e.logger.Warn("remove input artifact", "job_id", d.id, "error", err)
	}

	e.finish(d, c)
}

// diagnostic picks the failure text: the engine's stderr, then the runner
// error, then a generic message.
func diagnostic(out runner.Outcome, runErr error) string {
	if msg := strings.TrimSpace(out.Stderr); msg != "" {
		return msg
	}
	if runErr != nil {
		return runErr.Error()
	}
	return genericFailure
}

// ratio returns output/input rounded to two decimals.
func ratio(output, input int64) float64 {
	if input <= 0 {
		return 0
	}
	return math.Round(float64(output)/float64(input)*100) / 100
}

func resultURL(origin model.Origin, token string) string {
	return strings.TrimRight(origin.BaseURL, "/") + ResultPathPrefix + OutputName(token)
}
