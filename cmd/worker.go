package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/relightlabs/relight/pkg/config"
	"github.com/relightlabs/relight/pkg/jobq"
	"github.com/relightlabs/relight/pkg/kernel"
	"github.com/relightlabs/relight/pkg/logx"
	"github.com/relightlabs/relight/pkg/notify"
	"github.com/relightlabs/relight/pkg/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logx.NewLogger(logx.DefaultConfig()).Fatalf("Invalid configuration: %v", err)
	}

	logger := logx.NewLogger(&logx.Config{
		Level:  logx.ParseLevel(cfg.Log.Level),
		Format: logx.Format(cfg.Log.Format),
	})

	logger.Info("🚀 Starting Relight restoration worker...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	container, err := NewContainer(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize container: %v", err)
	}
	defer container.Cleanup()

	container.Jobs.Register(jobq.TypeRestoreRequest, restoreHandler(container))
	logger.Infof("✓ Restore handler registered (max %d concurrent jobs)", cfg.Pipeline.MaxConcurrentJobs)

	if err := container.Jobs.Start(ctx); err != nil {
		logger.Fatalf("Job client failed: %v", err)
	}

	logger.Info("👋 Worker stopped")
}

// restoreHandler runs one restoration request end to end. Pipeline
// outcomes — including QC rejection — are final: the handler returns
// nil so the queue never re-runs a decided job. Only failures before a
// job exists are surfaced for queue-level retry.
func restoreHandler(c *Container) jobq.HandlerFunc {
	return func(ctx context.Context, info *jobq.JobInfo) error {
		req, err := jobq.DecodeRestoreRequest(info)
		if err != nil {
			return err
		}

		job, err := c.Machine.CreateJob(ctx, pipeline.CreateJobParams{
			Mode:     kernel.ParseMode(req.Mode),
			InputRef: req.InputRef,
		})
		if err != nil {
			return err
		}

		if err := c.Machine.Run(ctx, job.ID); err != nil {
			c.Logger.WithError(err).
				WithField("job_id", job.ID).
				Warn("worker: job failed")
		}

		c.notifyOutcome(ctx, job.ID)
		return nil
	}
}

func (c *Container) notifyOutcome(ctx context.Context, jobID kernel.JobID) {
	if c.Notifier == nil {
		return
	}

	job, err := c.Machine.GetJob(jobID)
	if err != nil {
		c.Logger.WithError(err).Warn("worker: cannot load job for notification")
		return
	}

	reason := ""
	if len(job.History) > 0 {
		reason = job.History[len(job.History)-1].Reason
	}

	outcome := notify.JobOutcome{
		JobID:        job.ID.String(),
		SessionID:    job.SessionID.String(),
		Mode:         string(job.Mode),
		State:        string(job.State),
		QualityScore: job.QualityScore,
		RetryCount:   job.RetryCount,
		Reason:       reason,
	}
	if err := c.Notifier.JobFinished(ctx, outcome); err != nil {
		c.Logger.WithError(err).Warn("worker: outcome notification failed")
	}
}
