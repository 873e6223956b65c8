// launchmon is the launch monitor node daemon. One process runs per
// compute node: the ball-watch node drives the shot cycle, the strobe-cam
// node answers peer capture requests. The role comes from configuration.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fairwaylab/strobeshot/internal/config"
	"github.com/fairwaylab/strobeshot/internal/log"
	"github.com/fairwaylab/strobeshot/internal/store"
	"github.com/fairwaylab/strobeshot/pkg/analyze"
	"github.com/fairwaylab/strobeshot/pkg/capture"
	"github.com/fairwaylab/strobeshot/pkg/coord"
	"github.com/fairwaylab/strobeshot/pkg/detect"
	"github.com/fairwaylab/strobeshot/pkg/shot"
	"github.com/fairwaylab/strobeshot/pkg/sink"
	"github.com/fairwaylab/strobeshot/pkg/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Error("load configuration", "error", err)
		os.Exit(1)
	}
	log.Init(cfg.LogLevel)
	log.Info("launchmon starting", "role", cfg.Role)

	cal := shot.DefaultCalibration()
	if cfg.CalibrationPath != "" {
		cal, err = shot.LoadCalibration(cfg.CalibrationPath)
		if err != nil {
			log.Error("load calibration", "error", err)
			os.Exit(1)
		}
	}

	det, err := detect.New(detect.Kind(cfg.Detector), detectorConfig(cfg, cal))
	if err != nil {
		log.Error("create detector", "error", err)
		os.Exit(1)
	}
	defer det.Close()

	// The high-speed camera and strobe GPIO are driven through the
	// capture abstraction; bench rigs use a plain UVC camera.
	dev, err := capture.OpenWebcam(cfg.CameraID, nil)
	if err != nil {
		log.Error("open capture device", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cfg.Role {
	case config.RoleBallWatch:
		err = runBallWatch(ctx, cfg, cal, det, dev)
	case config.RoleStrobeCam:
		err = runStrobeCam(ctx, cfg, dev)
	}
	if err != nil {
		log.Error("node failed", "error", err)
		os.Exit(1)
	}
}

func detectorConfig(cfg *config.Config, cal *shot.Calibration) detect.Config {
	dc := detect.DefaultConfig().FromCalibration(cal)
	dc.ModelPath = cfg.ModelPath
	return dc
}

func runBallWatch(ctx context.Context, cfg *config.Config, cal *shot.Calibration, det detect.Detector, dev capture.Device) error {
	ch, err := coord.Dial(ctx, cfg.PeerURL)
	if err != nil {
		return err
	}
	defer ch.Close()

	sinks := sink.Multi{sink.LogSink{}}

	var shots *store.Store
	if cfg.StorePath != "" {
		shots, err = store.Open(cfg.StorePath)
		if err != nil {
			return err
		}
		defer shots.Close()
		sinks = append(sinks, store.NewSink(shots))
	}

	if cfg.SimulatorURL != "" {
		sinks = append(sinks, sink.HTTPSink{URL: cfg.SimulatorURL})
	}

	var node *coord.Node
	if cfg.WebAddr != "" {
		srv := web.NewServer(cfg.WebAddr, cfg.Role, func() string {
			if node == nil {
				return "starting"
			}
			return node.State().String()
		}, shots)
		srv.StartAsync()
		defer srv.Shutdown()
		sinks = append(sinks, srv)
	}

	var spin analyze.SpinEstimator = analyze.NoSpin{}
	if cfg.SpinEnabled {
		spin = analyze.NewMarkingSpin()
	}
	analyzer := analyze.New(det, spin, cal, analyze.DefaultOptions())
	watcher := coord.NewWatcher(det, cal, cfg.StableFrames)

	opts := coord.DefaultOptions()
	opts.ExposureCount = cfg.ExposureCount
	opts.PeerTimeout = time.Duration(cfg.PeerTimeoutMS) * time.Millisecond
	opts.PollInterval = time.Duration(cfg.PollIntervalMS) * time.Millisecond
	opts.ArmOnStart = cfg.ArmOnStart

	node = coord.NewNode(dev, ch, watcher, analyzer, sinks, cal, opts)
	return node.Run(ctx)
}

// runStrobeCam serves the coordination endpoint and answers capture
// requests, one peer connection at a time.
func runStrobeCam(ctx context.Context, cfg *config.Config, dev capture.Device) error {
	defer dev.Close()

	if cfg.WebAddr != "" {
		srv := web.NewServer(cfg.WebAddr, cfg.Role, nil, nil)
		srv.StartAsync()
		defer srv.Shutdown()
	}

	done := make(chan struct{})
	var once sync.Once
	var sessions coord.SessionGuard
	mux := http.NewServeMux()
	mux.HandleFunc("/coord", func(w http.ResponseWriter, r *http.Request) {
		ch, err := coord.Upgrade(w, r)
		if err != nil {
			log.Warn("peer connection rejected", "error", err)
			return
		}
		defer ch.Close()

		// A redial supersedes a half-dead session; the guard waits out the
		// stale responder so its disarm lands before this one arms.
		end := sessions.Begin(ch)
		defer end()

		peer := coord.NewPeer(dev, ch, time.Duration(cfg.PeerTimeoutMS)*time.Millisecond/2)
		if err := peer.Run(ctx); err != nil {
			log.Warn("peer session ended", "error", err)
			return
		}
		// Orderly shutdown request: stop accepting.
		once.Do(func() { close(done) })
	})

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	errc := make(chan error, 1)
	go func() {
		log.Info("coordination endpoint listening", "addr", cfg.ListenAddr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case <-done:
	case err := <-errc:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
