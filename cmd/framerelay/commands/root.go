package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	jsonLogs bool
	rootCmd  = &cobra.Command{
		Use:   "framerelay",
		Short: "FrameRelay - stream a window's frames to remote viewers",
		Long: `FrameRelay captures an X11 window (or a synthetic test card) on a fixed
tick, throttles it to the viewers' framerate and serves the newest frame as
MJPEG and over WebSocket.

Features:
  • Capture any X11 window by id, or the focused one
  • Framerate and resolution as runtime variables
  • At most one frame in flight, stale frames dropped
  • Persistent YAML configuration
  • REST API for stats and settings`,
		SilenceUsage: true,
	}
)

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/framerelay/config.yaml)")
	rootCmd.PersistentFlags().Int("port", 0, "server port (default is 8080)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "log as JSON instead of console text")
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}
