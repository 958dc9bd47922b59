package commands

import (
	"context"
	"fmt"
	"image"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/bryanchriswhite/FrameRelay/internal/api"
	"github.com/bryanchriswhite/FrameRelay/internal/config"
	"github.com/bryanchriswhite/FrameRelay/internal/cvar"
	"github.com/bryanchriswhite/FrameRelay/internal/logger"
	"github.com/bryanchriswhite/FrameRelay/internal/output"
	"github.com/bryanchriswhite/FrameRelay/internal/pattern"
	"github.com/bryanchriswhite/FrameRelay/internal/stream"
	"github.com/bryanchriswhite/FrameRelay/internal/viewport"
	"github.com/bryanchriswhite/FrameRelay/internal/window"
	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the FrameRelay server",
	Long: `Start capturing the configured source and serve it to viewers.

Viewers open /stream (MJPEG, ?fps=N) or /ws (WebSocket). The first framerate a
viewer asks for is used unless stream.framerate is set in the config.`,
	Example: `  # Stream the synthetic test card on the default port (8080)
  framerelay serve

  # Stream the focused X11 window
  framerelay serve --source x11

  # Stream a specific window at 15 fps, scaled to 1280 wide
  framerelay serve --source x11 --window 0x3a00007 --fps 15 --resx 1280

  # Start with debug logging
  framerelay serve --log-level debug`,
	RunE: runServe,
}

var (
	serveSource string
	serveWindow string
	serveFPS    int
	serveResX   int
	serveResY   int
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveSource, "source", "", "capture source (x11 or pattern)")
	serveCmd.Flags().StringVar(&serveWindow, "window", "", "X11 window id to capture (default is the focused window)")
	serveCmd.Flags().IntVar(&serveFPS, "fps", 0, "pin the stream framerate")
	serveCmd.Flags().IntVar(&serveResX, "resx", 0, "capture width override")
	serveCmd.Flags().IntVar(&serveResY, "resy", 0, "capture height override")
}

func runServe(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to initialize config manager: %w", err)
	}
	if err := configMgr.BindFlags(cmd.Flags()); err != nil {
		return err
	}

	cfg := configMgr.Get()
	if err := applyServeFlags(&cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger.Init(cfg.LogLevel, !jsonLogs)
	log := logger.WithComponent("serve")
	log.Info().
		Str("config", configMgr.GetConfigPath()).
		Str("log_level", cfg.LogLevel).
		Msg("Configuration loaded")

	settings := stream.DefaultSettings
	if err := applySettings(settings, cfg.Stream); err != nil {
		return err
	}

	broadcaster := output.NewBroadcaster(output.Config{JPEGQuality: cfg.Stream.JPEGQuality})
	if err := broadcaster.Start(); err != nil {
		return fmt.Errorf("failed to start output: %w", err)
	}

	provider := stream.NewProvider(broadcaster, stream.Options{
		Settings:          settings,
		MaxBufferedFrames: cfg.Stream.MaxBufferedFrames,
	})
	broadcaster.OnFramerateRequest(func(rate int) {
		provider.SetTargetFramerate(rate)
	})

	src, err := openSource(cfg.Source)
	if err != nil {
		broadcaster.Stop()
		return err
	}
	defer src.close()

	provider.AttachViewport(src.viewport)

	server := api.NewServer(provider, broadcaster, cvar.Default, src.windows)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg conc.WaitGroup
	serverErr := make(chan error, 1)
	wg.Go(func() {
		interval := time.Second / 60
		if cfg.Stream.TickHz > 0 {
			interval = time.Second / time.Duration(cfg.Stream.TickHz)
		}
		provider.Run(ctx, interval)
	})
	wg.Go(func() {
		if err := server.Start(cfg.ServerPort); err != nil {
			serverErr <- err
			stop()
		}
	})

	log.Info().
		Int("port", cfg.ServerPort).
		Str("source", string(cfg.Source.Kind)).
		Msgf("FrameRelay is running: http://localhost:%d (Ctrl+C to stop)", cfg.ServerPort)

	<-ctx.Done()
	log.Info().Msg("Shutting down gracefully...")

	provider.Close()
	provider.Wait()
	broadcaster.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Server shutdown incomplete")
	}
	wg.Wait()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	default:
		return nil
	}
}

// applyServeFlags folds the serve-only flags into cfg.
func applyServeFlags(cfg *config.Config) error {
	if serveSource != "" {
		cfg.Source.Kind = config.SourceKind(serveSource)
	}
	if serveWindow != "" {
		id, err := strconv.ParseUint(serveWindow, 0, 32)
		if err != nil {
			return fmt.Errorf("invalid window id: %s", serveWindow)
		}
		cfg.Source.WindowID = uint32(id)
		if serveSource == "" {
			cfg.Source.Kind = config.SourceX11
		}
	}
	if serveFPS > 0 {
		cfg.Stream.Framerate = serveFPS
	}
	if serveResX > 0 {
		cfg.Stream.ResX = serveResX
	}
	if serveResY > 0 {
		cfg.Stream.ResY = serveResY
	}
	return nil
}

// applySettings turns configured values into user overrides. Zero leaves a
// variable unset so viewers can choose it.
func applySettings(settings stream.Settings, sc config.StreamConfig) error {
	if sc.Framerate > 0 {
		if err := settings.Framerate.Set(sc.Framerate); err != nil {
			return err
		}
	}
	if sc.ResX > 0 {
		if err := settings.ResX.Set(sc.ResX); err != nil {
			return err
		}
	}
	if sc.ResY > 0 {
		if err := settings.ResY.Set(sc.ResY); err != nil {
			return err
		}
	}
	return nil
}

type source struct {
	viewport viewport.Viewport
	windows  api.WindowLister
	close    func()
}

func openSource(sc config.SourceConfig) (*source, error) {
	log := logger.WithComponent("serve")

	switch sc.Kind {
	case config.SourcePattern:
		vp := pattern.NewViewport(image.Pt(sc.Width, sc.Height), "FrameRelay")
		log.Info().Int("width", sc.Width).Int("height", sc.Height).Msg("Streaming test pattern")
		return &source{viewport: vp, close: vp.Close}, nil

	case config.SourceX11:
		windowMgr, err := window.NewManager()
		if err != nil {
			return nil, fmt.Errorf("failed to connect to X11: %w", err)
		}

		id := sc.WindowID
		if id == 0 {
			focused, err := windowMgr.FocusedWindow()
			if err != nil {
				windowMgr.Close()
				return nil, fmt.Errorf("no window given and none focused: %w", err)
			}
			id = focused.ID
			log.Info().Str("title", focused.Title).Str("class", focused.Class).Msg("Using focused window")
		}

		vp, err := viewport.OpenX11(id)
		if err != nil {
			windowMgr.Close()
			return nil, fmt.Errorf("failed to open window %#x: %w", id, err)
		}
		log.Info().Str("window", fmt.Sprintf("%#x", id)).Msg("Streaming X11 window")

		return &source{
			viewport: vp,
			windows:  windowMgr,
			close: func() {
				vp.Close()
				windowMgr.Close()
			},
		}, nil

	default:
		return nil, fmt.Errorf("unknown source kind: %q", sc.Kind)
	}
}
