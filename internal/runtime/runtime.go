package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voxprep/voxprep-core/internal/audio"
	"github.com/voxprep/voxprep-core/internal/bus"
	"github.com/voxprep/voxprep-core/internal/config"
	"github.com/voxprep/voxprep-core/internal/eventstore"
	"github.com/voxprep/voxprep-core/internal/feedback"
	"github.com/voxprep/voxprep-core/internal/generate"
	"github.com/voxprep/voxprep-core/internal/natsserver"
	"github.com/voxprep/voxprep-core/internal/session"
	"github.com/voxprep/voxprep-core/internal/telemetry"
)

// Runtime wires the interview engine's collaborators together and exposes
// the local HTTP control surface. One runtime drives at most one live
// session at a time.
type Runtime struct {
	cfg    config.Config
	logger *slog.Logger

	httpServer  *http.Server
	tracerClose func(context.Context) error
	ready       atomic.Bool
	wg          sync.WaitGroup

	store      *eventstore.Store
	natsSrv    *natsserver.EmbeddedServer
	busClient  *bus.Client
	tap        *bus.Tap
	pipeline   *audio.Pipeline
	aggregator *telemetry.Aggregator
	bridge     *session.Bridge
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	store, err := eventstore.Open(ctx, r.cfg.EventStore, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open event store: %w", err)
	}
	r.store = store

	r.aggregator = telemetry.NewAggregator(r.logger)

	if err := r.startBus(ctx); err != nil {
		return err
	}

	pipeline, err := r.buildPipeline()
	if err != nil {
		return fmt.Errorf("failed to build audio pipeline: %w", err)
	}
	r.pipeline = pipeline

	generator, err := generate.FromConfig(r.cfg.Generate)
	if err != nil {
		return fmt.Errorf("failed to build generation backend: %w", err)
	}

	r.bridge = session.NewBridge(r.cfg, session.Deps{
		Provisioner: session.NewHTTPProvisioner(r.cfg.Provision, r.cfg.Interview),
		Pipeline:    r.pipeline,
		Generator:   generator,
		Telemetry:   r.aggregator,
		Store:       r.store,
		Tap:         r.tap,
		Feedback:    feedback.NewClient(r.cfg.Feedback, r.logger),
		Logger:      r.logger,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}
	r.registerSessionRoutes(mux)

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	r.ready.Store(false)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	r.bridge.StopVoiceSession(shutdownCtx)
	r.pipeline.Close()
	r.tap.Close()
	r.busClient.Close()
	r.natsSrv.Shutdown()
	if err := r.store.Close(); err != nil {
		r.logger.Error("event store close error", slog.String("error", err.Error()))
	}

	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

// startBus brings up the optional observability tap. A broken bus is logged
// and skipped; the session runs without it.
func (r *Runtime) startBus(ctx context.Context) error {
	if !r.cfg.Bus.Enabled {
		return nil
	}

	natsSrv, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start embedded bus: %w", err)
	}
	r.natsSrv = natsSrv

	busCfg := r.cfg.Bus
	if natsSrv != nil {
		busCfg.Servers = []string{natsSrv.ClientURL()}
	}
	client, err := bus.Connect(busCfg, r.logger)
	if err != nil {
		r.logger.Warn("bus connection failed, continuing without tap",
			slog.String("error", err.Error()))
		return nil
	}
	r.busClient = client
	r.tap = bus.NewTap(ctx, client, 5*time.Second, r.aggregator.Snapshot, r.logger)
	return nil
}

func (r *Runtime) buildPipeline() (*audio.Pipeline, error) {
	var (
		device audio.CaptureDevice
		player audio.Player
		err    error
	)
	switch r.cfg.Audio.Mode {
	case "mock":
		device = audio.NewMockDevice()
		player = audio.NewMockPlayer()
	case "exec":
		device, err = audio.NewExecDevice(r.cfg.Audio)
		if err != nil {
			return nil, err
		}
		player, err = audio.NewExecPlayer(r.cfg.Audio.PlaybackCommand)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown audio mode %q", r.cfg.Audio.Mode)
	}
	return audio.NewPipeline(r.cfg.Audio, device, player, r.logger), nil
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
