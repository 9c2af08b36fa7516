// visionctl is a command-line client for the vision-runner daemon's HTTP
// API.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yangga/vision-runner/pkg/vision"
)

var addr string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "visionctl",
		Short:        "Vision Runner client",
		SilenceUsage: true,
	}
	defaultAddr := os.Getenv("VISION_RUNNER_ADDR")
	if defaultAddr == "" {
		defaultAddr = "http://localhost:8080"
	}
	rootCmd.PersistentFlags().StringVar(&addr, "addr", defaultAddr, "vision-runner daemon address")
	rootCmd.AddCommand(
		newLoadCmd(),
		newSetCmd(),
		newDetectCmd(),
		newClassifyCmd(),
		newCaptureCmd(),
		newCloseCameraCmd(),
		newStatusCmd(),
		newFollowCmd(),
	)
	return rootCmd
}

func client() *apiClient {
	return newAPIClient(addr)
}

func newLoadCmd() *cobra.Command {
	var task string
	c := &cobra.Command{
		Use:   "load MODEL_PATH",
		Short: "Load a model from a local path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client().loadModel(args[0], vision.Task(task)); err != nil {
				return err
			}
			cmd.Printf("Loaded %s model from %s\n", task, args[0])
			return nil
		},
	}
	c.Flags().StringVar(&task, "task", string(vision.TaskDetect), `model task ("detect" or "classify")`)
	return c
}

func newSetCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "set",
		Short: "Tune detector thresholds",
	}
	c.AddCommand(
		newSetFloatCmd("confidence", "confidence", "Set the detection confidence threshold"),
		newSetFloatCmd("iou", "iou", "Set the detection IoU threshold"),
		newSetIntCmd("max-items", "numItems", "Set the maximum number of detections"),
		newSetIntCmd("lens", "direction", "Select the lens direction (currently inert)"),
	)
	return c
}

func newSetFloatCmd(name, field, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name + " VALUE",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("invalid value %q: %w", args[0], err)
			}
			return client().setSetting(name, map[string]any{field: value})
		},
	}
}

func newSetIntCmd(name, field, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name + " VALUE",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid value %q: %w", args[0], err)
			}
			return client().setSetting(name, map[string]any{field: value})
		},
	}
}

func newDetectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detect IMAGE_PATH",
		Short: "Run detection on a still image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPredict(cmd, "detect", args[0])
		},
	}
}

func newClassifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify IMAGE_PATH",
		Short: "Run classification on a still image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPredict(cmd, "classify", args[0])
		},
	}
}

func runPredict(cmd *cobra.Command, operation, imagePath string) error {
	results, err := client().predictImage(operation, imagePath)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		cmd.Println("No results")
		return nil
	}
	for _, result := range results {
		if result.Box != nil {
			cmd.Printf("%-20s %.3f  [%.3f %.3f %.3f %.3f]\n",
				result.Label, result.Confidence,
				result.Box.X, result.Box.Y, result.Box.W, result.Box.H)
		} else {
			cmd.Printf("%-20s %.3f\n", result.Label, result.Confidence)
		}
	}
	return nil
}

func newCaptureCmd() *cobra.Command {
	var output string
	var timeoutSec int
	c := &cobra.Command{
		Use:   "capture",
		Short: "Capture the next camera frame to a JPEG file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := client().capture(timeoutSec)
			if err != nil {
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("unable to write %s: %w", output, err)
			}
			cmd.Printf("Wrote %d bytes to %s\n", len(data), output)
			return nil
		},
	}
	c.Flags().StringVarP(&output, "output", "o", "capture.jpg", "output file")
	c.Flags().IntVar(&timeoutSec, "timeout", 3, "capture timeout in seconds")
	return c
}

func newCloseCameraCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "close-camera",
		Short: "Stop the daemon's frame producer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return client().closeCamera()
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := client().status()
			if err != nil {
				return err
			}
			for _, key := range []string{"engine", "predictor", "captureArmed", "lensDirection"} {
				cmd.Printf("%-14s %v\n", key+":", status[key])
			}
			if recent, ok := status["recentErrors"].([]any); ok && len(recent) > 0 {
				cmd.Println("recent errors:")
				for _, line := range recent {
					cmd.Printf("  %v\n", line)
				}
			}
			return nil
		},
	}
}

func newFollowCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "follow STREAM",
		Short:     "Follow one of the daemon's output streams",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"detections", "inference-time", "fps"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return client().follow(ctx, args[0], func(payload string) {
				cmd.Println(payload)
			})
		},
	}
}
