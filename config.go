package main

import (
	"os"
	"strconv"
)

// defaultCameraFPS is replayed by the camera simulator when VISION_CAMERA_FPS
// is unset or unparseable.
const defaultCameraFPS = 15.0

// config carries the daemon settings read from the environment.
type config struct {
	// sockName is the Unix socket to listen on when tcpPort is empty.
	sockName string
	// tcpPort, if set, selects TCP listening instead of the Unix socket.
	tcpPort string
	// engineURL is the root URL of the external inference server.
	engineURL string
	// cameraDir, if set, enables the directory-backed camera simulator.
	cameraDir string
	// cameraFPS is the simulator replay rate.
	cameraFPS float64
	// disableMetrics turns off the /metrics endpoint.
	disableMetrics bool
}

// loadConfigFromEnv reads the daemon configuration from environment
// variables.
func loadConfigFromEnv() config {
	cfg := config{
		sockName:       os.Getenv("VISION_RUNNER_SOCK"),
		tcpPort:        os.Getenv("VISION_RUNNER_PORT"),
		engineURL:      os.Getenv("VISION_ENGINE_URL"),
		cameraDir:      os.Getenv("VISION_CAMERA_DIR"),
		cameraFPS:      defaultCameraFPS,
		disableMetrics: os.Getenv("DISABLE_METRICS") == "1",
	}
	if cfg.sockName == "" {
		cfg.sockName = "vision-runner.sock"
	}
	if raw := os.Getenv("VISION_CAMERA_FPS"); raw != "" {
		if fps, err := strconv.ParseFloat(raw, 64); err == nil && fps > 0 {
			cfg.cameraFPS = fps
		} else {
			log.Warnf("Ignoring invalid VISION_CAMERA_FPS %q", raw)
		}
	}
	return cfg
}
