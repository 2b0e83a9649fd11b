package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/steveyegge/graphd/internal/config"
	"github.com/steveyegge/graphd/internal/eventbus"
	"github.com/steveyegge/graphd/internal/eventlog"
	"github.com/steveyegge/graphd/internal/graphstore"
	"github.com/steveyegge/graphd/internal/httpapi"
	"github.com/steveyegge/graphd/internal/jobqueue"
	"github.com/steveyegge/graphd/internal/projection"
	"github.com/steveyegge/graphd/internal/session"
	"github.com/steveyegge/graphd/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP/websocket server and both projector loops",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		pctx, err := config.NewContext(ctx, configPath)
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		defer pctx.Close()

		shutdown, err := telemetry.Init(ctx)
		if err != nil {
			return fmt.Errorf("serve: init telemetry: %w", err)
		}
		defer shutdown(ctx)

		evLog := eventlog.New(pctx.Store)
		gs := graphstore.New(pctx.Store)
		bus := eventbus.New()

		if pctx.Config.NatsURL != "" {
			nc, err := nats.Connect(pctx.Config.NatsURL)
			if err != nil {
				log.WithError(err).Warn("graphd: nats connect failed, continuing without JetStream fan-out")
			} else {
				defer nc.Close()
				js, err := nc.JetStream()
				if err != nil {
					log.WithError(err).Warn("graphd: jetstream context failed, continuing without fan-out")
				} else if err := eventbus.EnsureStreams(js); err != nil {
					log.WithError(err).Warn("graphd: ensure jetstream streams failed")
				} else {
					bus.SetJetStream(js)
				}
			}
		}

		cache, err := jobqueue.NewLeaseCache(pctx.Config.RedisURL)
		if err != nil {
			log.WithError(err).Warn("graphd: redis lease cache unavailable, falling back to DB-only reclaim")
			cache = nil
		}
		jobs := jobqueue.New(pctx.Store, cache)
		reclaimer := jobqueue.NewReclaimer(jobs)

		auth := session.StaticAuthenticator{}
		aux := session.StaticAux{}

		srv := httpapi.New(evLog, gs, jobs, pctx.Store, auth, aux)

		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			return runProjector(gctx, pctx.Store.DB(), "graph_materialization",
				projection.NewGraphMaterializer(pctx.Store, evLog, gs, bus))
		})

		g.Go(func() error {
			return runProjector(gctx, pctx.Store.DB(), "attachment_index",
				projection.NewAttachmentIndexer(pctx.Store, evLog, bus))
		})

		g.Go(func() error {
			return reclaimer.Run(gctx)
		})

		g.Go(func() error {
			httpSrv := &http.Server{Addr: pctx.Config.HTTPAddr, Handler: srv.Router()}
			go func() {
				<-gctx.Done()
				_ = httpSrv.Close()
			}()
			log.WithField("addr", pctx.Config.HTTPAddr).Info("graphd: listening")
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})

		return g.Wait()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// runProjector holds the single-instance advisory lock named for the
// duration of the process and runs runner's checkpoint loop until ctx is
// canceled, per spec.md §5's single-instance-per-projection-name rule.
func runProjector(ctx context.Context, db *sql.DB, name string, runner *projection.Runner) error {
	lock, err := acquireProjectorLock(ctx, db, name)
	if err != nil {
		return fmt.Errorf("projector %s: %w", name, err)
	}
	defer lock.Release()

	log.WithField("projection", name).Info("graphd: projector started")
	return runner.Run(ctx)
}
