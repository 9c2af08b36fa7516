package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/yangga/vision-runner/pkg/camera"
	"github.com/yangga/vision-runner/pkg/metrics"
	"github.com/yangga/vision-runner/pkg/middleware"
	"github.com/yangga/vision-runner/pkg/routing"
	"github.com/yangga/vision-runner/pkg/vision/engines/remote"
	"github.com/yangga/vision-runner/pkg/vision/orchestration"
)

var log = logrus.New()

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := loadConfigFromEnv()

	if cfg.engineURL == "" {
		log.Fatal("VISION_ENGINE_URL must point at the inference server")
	}
	engine := remote.New(log.WithField("component", "engine"), cfg.engineURL, nil)

	pipelineMetrics := metrics.New()
	orchestrator := orchestration.NewOrchestrator(
		log.WithField("component", "orchestrator"),
		engine,
		pipelineMetrics,
	)

	var producer camera.Producer
	if cfg.cameraDir != "" {
		sim, err := camera.NewFileSim(
			log.WithField("component", "camera"),
			cfg.cameraDir,
			cfg.cameraFPS,
			orchestrator.HandleFrame,
		)
		if err != nil {
			log.Fatalf("unable to initialize camera simulator: %v", err)
		}
		producer = sim
		orchestrator.SetProducer(sim)
		log.Infof("Camera simulator replaying %s at %.1f fps", cfg.cameraDir, cfg.cameraFPS)
	} else {
		log.Info("No camera source configured; frame streams stay idle")
	}

	router := routing.NewNormalizedServeMux()
	for _, route := range orchestrator.GetRoutes() {
		router.Handle(route, orchestrator)
	}
	if !cfg.disableMetrics {
		router.Handle("/metrics", pipelineMetrics.Handler())
		log.Info("Metrics endpoint enabled at /metrics")
	} else {
		log.Info("Metrics endpoint disabled")
	}

	server := &http.Server{Handler: middleware.CorsMiddleware(nil, router)}

	group, groupCtx := errgroup.WithContext(ctx)

	if cfg.tcpPort != "" {
		server.Addr = ":" + cfg.tcpPort
		log.Infof("Listening on TCP port %s", cfg.tcpPort)
		group.Go(server.ListenAndServe)
	} else {
		if err := os.Remove(cfg.sockName); err != nil && !os.IsNotExist(err) {
			log.Fatalf("Failed to remove existing socket: %v", err)
		}
		ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: cfg.sockName, Net: "unix"})
		if err != nil {
			log.Fatalf("Failed to listen on socket: %v", err)
		}
		log.Infof("Listening on socket %s", cfg.sockName)
		group.Go(func() error { return server.Serve(ln) })
	}

	if producer != nil {
		group.Go(func() error { return producer.Run(groupCtx) })
	}

	group.Go(func() error {
		<-groupCtx.Done()
		log.Infoln("Shutdown signal received")
		if producer != nil {
			producer.Stop()
		}
		if err := server.Close(); err != nil {
			log.Errorf("Server shutdown error: %v", err)
		}
		return nil
	})

	if err := group.Wait(); err != nil && err != http.ErrServerClosed {
		log.Errorf("Server error: %v", err)
	}
	log.Infoln("Vision Runner stopped")
}
