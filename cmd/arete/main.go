// Arete interview client - real-time AI technical interview frontend.
// Connects the browser UI to the backend session API, a realtime voice
// transport and a local fallback interviewer.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/aretelabs/go-arete/internal/log"
	"github.com/aretelabs/go-arete/pkg/arete"
)

func main() {
	cfg := parseFlags()

	if cfg.Debug {
		log.Init("debug")
	} else {
		log.Init("info")
	}

	app, err := arete.New(cfg)
	if err != nil {
		log.Error("configuration error", "error", err)
		os.Exit(1)
	}

	if err := app.Init(); err != nil {
		log.Error("initialization failed", "error", err)
		os.Exit(1)
	}
	defer app.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx); err != nil {
		log.Error("runtime error", "error", err)
		os.Exit(1)
	}
}

// parseFlags parses command line flags and returns configuration.
// Environment defaults come from internal/config; flags win.
func parseFlags() arete.Config {
	cfg := arete.DefaultConfig()

	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	apiURL := flag.String("api", "", "Backend API base URL (overrides ARETE_API_URL)")
	signaling := flag.String("signaling", "", "Signaling websocket URL (overrides ARETE_SIGNALING_URL)")
	port := flag.String("port", "", "Local UI port (overrides ARETE_UI_PORT)")
	voice := flag.String("voice", "", "TTS voice identifier")
	camera := flag.Int("camera", 0, "Webcam device index for the self-preview")
	noCamera := flag.Bool("no-camera", false, "Disable the webcam self-preview")
	noRealtime := flag.Bool("no-realtime", false, "Skip the realtime transport, local interviewer only")
	flag.Parse()

	cfg.Debug = *debug
	cfg.Voice = *voice
	cfg.CameraDevice = *camera
	cfg.NoCamera = *noCamera
	cfg.NoRealtime = *noRealtime
	if *apiURL != "" {
		cfg.APIBaseURL = *apiURL
	}
	if *signaling != "" {
		cfg.SignalingURL = *signaling
	}
	if *port != "" {
		cfg.UIPort = *port
	}
	return cfg
}
