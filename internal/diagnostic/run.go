package diagnostic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"aks-egress-check/internal/config"
	"aks-egress-check/internal/egress"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RunOptions configures one egress check run.
type RunOptions struct {
	RunID                 string
	Image                 string
	Payload               config.ProbePayload
	StartupTimeout        time.Duration
	CompletionTimeout     time.Duration
	CleanupTimeout        time.Duration
	SimulateBlockedEgress bool
	// Progress receives probe output lines other than the report.
	Progress func(line string)
}

// RunOutcome is what a finished run produced.
type RunOutcome struct {
	RunID     string
	PodName   string
	Report    egress.Report
	StartTime time.Time
	EndTime   time.Time
}

// RunEgressCheck provisions the probe pod, streams its output, and returns
// its report. Everything the run created is removed before returning,
// whether the run succeeded or not.
func (t *Tester) RunEgressCheck(ctx context.Context, opts RunOptions) (*RunOutcome, error) {
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.StartupTimeout <= 0 {
		opts.StartupTimeout = 300 * time.Second
	}
	if opts.CompletionTimeout <= 0 {
		opts.CompletionTimeout = 60 * time.Second
	}
	if opts.CleanupTimeout <= 0 {
		opts.CleanupTimeout = 60 * time.Second
	}
	progress := opts.Progress
	if progress == nil {
		progress = func(line string) {
			t.logger.Debug("probe output", zap.String("line", line))
		}
	}
	opts.Payload.RunID = opts.RunID

	res := NewResources(opts.RunID)
	outcome := &RunOutcome{RunID: opts.RunID, PodName: res.Name, StartTime: time.Now()}
	log := t.logger.With(zap.String("run_id", opts.RunID), zap.String("pod", res.Name))

	if err := t.EnsureNamespace(ctx); err != nil {
		return nil, err
	}
	defer func() {
		// The run context may already be cancelled here.
		cleanupCtx, cancel := context.WithTimeout(context.Background(), opts.CleanupTimeout)
		defer cancel()

		t.cleanupResources(cleanupCtx, res)
		if opts.SimulateBlockedEgress {
			if err := t.RemoveEgressBlockPolicy(cleanupCtx, res); err != nil {
				log.Warn("failed to remove egress block policy", zap.Error(err))
			}
		}
		if err := t.CleanupNamespace(cleanupCtx); err != nil {
			log.Warn("failed to delete namespace", zap.Error(err))
		}
		log.Info("cleaned up probe resources")
	}()

	if opts.SimulateBlockedEgress {
		if err := t.ApplyEgressBlockPolicy(ctx, res); err != nil {
			return nil, err
		}
		log.Info("applied egress block policy")
	}

	if _, err := t.CreatePayload(ctx, res, opts.Payload); err != nil {
		return nil, err
	}
	if _, err := t.CreateProbePod(ctx, res, opts.Image); err != nil {
		return nil, err
	}
	log.Info("created probe pod", zap.String("image", opts.Image), zap.Int("endpoints", len(opts.Payload.Endpoints)))

	if err := t.waitForPodStarted(ctx, res.Name, opts.StartupTimeout); err != nil {
		return nil, err
	}
	log.Info("probe pod started")

	report, logErr := t.StreamLogs(ctx, res.Name, progress)
	if logErr != nil && !errors.Is(logErr, ErrReportNotFound) {
		return nil, logErr
	}

	terminated, err := t.waitForProbeTerminated(ctx, res.Name, opts.CompletionTimeout)
	if err != nil {
		return nil, err
	}
	if terminated.ExitCode != 0 {
		return nil, &ProbeExitError{Pod: res.Name, ExitCode: terminated.ExitCode, Reason: terminated.Reason}
	}
	if logErr != nil {
		return nil, fmt.Errorf("probe pod %s: %w", res.Name, logErr)
	}

	outcome.Report = report
	outcome.EndTime = time.Now()
	log.Info("probe finished", zap.Int("results", len(report)))
	return outcome, nil
}
