package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/steveyegge/graphd/internal/config"
	"github.com/steveyegge/graphd/internal/graphstore"
	"github.com/steveyegge/graphd/internal/jobqueue"
)

const (
	workerPollInterval = time.Second
	workerLeaseBatch   = 10
)

var workerKinds []string

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Lease and run jobs from the job queue",
	Long: `Runs the job queue's lease/dispatch loop standalone (separate from
"serve"), so worker capacity can be scaled independently of the
HTTP/websocket/projector process.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		pctx, err := config.NewContext(ctx, configPath)
		if err != nil {
			return fmt.Errorf("worker: %w", err)
		}
		defer pctx.Close()

		gs := graphstore.New(pctx.Store)

		cache, err := jobqueue.NewLeaseCache(pctx.Config.RedisURL)
		if err != nil {
			log.WithError(err).Warn("graphd: redis lease cache unavailable, falling back to DB-only reclaim")
			cache = nil
		}
		jobs := jobqueue.New(pctx.Store, cache)

		handlers := map[string]jobqueue.Handler{
			jobqueue.KindAttachmentIndex: jobqueue.NewAttachmentIndexHandler(gs),
			jobqueue.KindGraphCompact:    jobqueue.NewGraphCompactHandler(gs),
		}
		if len(workerKinds) > 0 {
			allowed := make(map[string]jobqueue.Handler, len(workerKinds))
			for _, k := range workerKinds {
				if h, ok := handlers[k]; ok {
					allowed[k] = h
				}
			}
			handlers = allowed
		}

		owner := workerOwnerID()
		log.WithField("owner", owner).Info("graphd: worker started")
		return runWorkerLoop(ctx, jobs, handlers, owner, pctx.Config.JobLeaseSeconds)
	},
}

func init() {
	workerCmd.Flags().StringSliceVar(&workerKinds, "kinds", nil, "restrict this worker to specific job kinds (default: all registered kinds)")
	rootCmd.AddCommand(workerCmd)
}

func workerOwnerID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "worker"
	}
	return fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
}

// runWorkerLoop polls the queue every workerPollInterval, leasing up to
// workerLeaseBatch jobs at a time and running each through its
// registered Handler, completing or failing it per spec.md §4.D.
func runWorkerLoop(ctx context.Context, jobs *jobqueue.Queue, handlers map[string]jobqueue.Handler, owner string, leaseSeconds int) error {
	ticker := time.NewTicker(workerPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			leased, err := jobs.Lease(ctx, owner, leaseSeconds, workerLeaseBatch)
			if err != nil {
				log.WithError(err).Warn("graphd: worker lease failed")
				continue
			}
			for _, job := range leased {
				runOne(ctx, jobs, handlers, owner, job)
			}
		}
	}
}

func runOne(ctx context.Context, jobs *jobqueue.Queue, handlers map[string]jobqueue.Handler, owner string, job jobqueue.Job) {
	logf := log.WithField("job_id", job.JobID).WithField("kind", job.Kind)

	handler, ok := handlers[job.Kind]
	if !ok {
		logf.Warn("graphd: no handler registered for job kind, failing")
		if err := jobs.Fail(ctx, job.JobID, owner, defaultFailBackoffSeconds); err != nil {
			logf.WithError(err).Warn("graphd: failed to mark job failed")
		}
		return
	}

	if err := jobs.Start(ctx, job.JobID, owner); err != nil {
		logf.WithError(err).Warn("graphd: failed to mark job running")
		return
	}

	if err := handler(ctx, job.Payload); err != nil {
		logf.WithError(err).Warn("graphd: job handler failed")
		if err := jobs.Fail(ctx, job.JobID, owner, defaultFailBackoffSeconds); err != nil {
			logf.WithError(err).Warn("graphd: failed to mark job failed")
		}
		return
	}

	if err := jobs.Complete(ctx, job.JobID, owner); err != nil {
		logf.WithError(err).Warn("graphd: failed to mark job completed")
	}
}

const defaultFailBackoffSeconds = 10
