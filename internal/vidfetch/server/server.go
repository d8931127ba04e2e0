package server

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vidfetch/vidfetch/internal/common"
	"github.com/vidfetch/vidfetch/internal/common/health"
	"github.com/vidfetch/vidfetch/internal/common/requestid"
	"github.com/vidfetch/vidfetch/internal/common/serve"
	"github.com/vidfetch/vidfetch/internal/common/task"
	"github.com/vidfetch/vidfetch/internal/vidfetch/configuration"
	"github.com/vidfetch/vidfetch/internal/vidfetch/domain"
	"github.com/vidfetch/vidfetch/internal/vidfetch/eventbus"
	"github.com/vidfetch/vidfetch/internal/vidfetch/fetcher"
	"github.com/vidfetch/vidfetch/internal/vidfetch/gateway"
	"github.com/vidfetch/vidfetch/internal/vidfetch/handlers"
	"github.com/vidfetch/vidfetch/internal/vidfetch/library"
	"github.com/vidfetch/vidfetch/internal/vidfetch/metrics"
	"github.com/vidfetch/vidfetch/internal/vidfetch/playback"
	"github.com/vidfetch/vidfetch/internal/vidfetch/scheduling"
)

// Serve wires every component together and blocks until ctx is cancelled.
func Serve(ctx context.Context, config *configuration.VidfetchConfig, healthChecks *health.MultiChecker) error {
	log.Info("Vidfetch server starting")
	defer log.Info("Vidfetch server shutting down")

	// Marked complete once every service is up.
	startupCompleteCheck := health.NewStartupCompleteChecker()
	healthChecks.Add(startupCompleteCheck)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	if err := os.MkdirAll(config.MediaDir, 0o755); err != nil {
		return errors.WithMessage(err, "creating media directory")
	}

	// First start fetches the yt-dlp binary; afterwards this is a no-op.
	// Jobs submitted without it fail with a clear error, so keep starting.
	if err := fetcher.EnsureTooling(ctx); err != nil {
		log.WithError(err).Warn("Could not provision yt-dlp, downloads may fail")
	}

	bus := eventbus.NewBus()
	subscriptions := gateway.NewSubscriptionManager()
	bus.Register(subscriptions.HandleEvent)

	scheduler := scheduling.NewScheduler(
		config.Scheduling,
		fetcher.NewYtdlpFetcher(config.Fetcher, config.MediaDir),
		metrics.NewCountingPublisher(bus))
	lib := library.New(config.Library, config.MediaDir)
	pairing := playback.NewManager(config.Playback)

	hub := gateway.NewHub(config.Gateway, subscriptions, scheduler.Snapshot, lib.List)
	scheduler.SetOnChange(hub.BroadcastQueueStatus)
	scheduler.Start(ctx)

	// Start playback on the requesting player once a job lands, when the
	// submission asked for it. Failures are logged and never touch the job.
	bus.Register(func(event domain.Event) {
		if event.Kind != domain.EventDone {
			return
		}
		request, ok := scheduler.Request(event.JobID)
		if !ok || !request.AutoPlay || request.PlayerURL == "" {
			return
		}
		go func() {
			playCtx, playCancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer playCancel()
			if err := pairing.Play(playCtx, request.PlayerURL, event.File, request.BackendURL); err != nil {
				log.WithError(err).WithField("downloadId", event.JobID).Warn("Auto-play failed")
			}
		}()
	})

	metrics.ExposeQueueMetrics(scheduler, hub, subscriptions)

	taskManager := task.NewBackgroundTaskManager(metrics.MetricPrefix)
	lib.RegisterJanitor(taskManager)

	mux := http.NewServeMux()
	handlers.NewAPI(scheduler, lib, pairing).Register(mux)
	mux.Handle("/ws", hub)
	health.SetupHttpMux(mux, healthChecks)
	mux.Handle("/videos/", http.StripPrefix("/videos/", http.FileServer(serve.MediaOnly(config.MediaDir))))
	mux.Handle("/", http.FileServer(serve.WebApp(config.WebDir)))

	shutdownHttp := common.ServeHttp(config.HttpPort, requestid.Middleware(false)(mux))

	g.Go(func() error {
		<-ctx.Done()
		shutdownHttp()
		hub.Close()
		if timedOut := scheduler.Stop(10 * time.Second); timedOut {
			log.Warn("Some jobs did not stop within the shutdown timeout")
		}
		if timedOut := taskManager.StopAll(2 * time.Second); timedOut {
			log.Warn("Background tasks did not stop within the shutdown timeout")
		}
		return nil
	})

	startupCompleteCheck.MarkComplete()
	log.WithField("port", config.HttpPort).Info("Vidfetch server is ready")

	return g.Wait()
}
