package arete

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretelabs/go-arete/internal/log"
	"github.com/aretelabs/go-arete/pkg/api"
	"github.com/aretelabs/go-arete/pkg/fallback"
	"github.com/aretelabs/go-arete/pkg/interview"
	"github.com/aretelabs/go-arete/pkg/media"
	"github.com/aretelabs/go-arete/pkg/speech"
	"github.com/aretelabs/go-arete/pkg/stt"
	"github.com/aretelabs/go-arete/pkg/transport"
	"github.com/aretelabs/go-arete/pkg/tts"
	"github.com/aretelabs/go-arete/pkg/web"
)

// App wires every component of the interview client and owns their
// lifecycle.
type App struct {
	config Config
	logger *slog.Logger

	backend *api.Client

	// Speech pipeline
	synth      *tts.Chain
	speaker    *speech.Speaker
	controller *stt.Controller

	// Interviewer paths
	session     *transport.Session
	interviewer *fallback.Interviewer

	// Audio I/O for the realtime path
	publisher *transport.AudioPublisher
	player    *transport.PCMPlayer

	// Self-preview
	webcam  *media.Webcam
	preview *media.Preview

	orchestrator *interview.Orchestrator
	webServer    *web.Server
}

// New creates the application with the given configuration.
func New(cfg Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &App{
		config: cfg,
		logger: log.Component("app"),
	}, nil
}

// Init builds and wires all components. Call after New and before Run.
func (a *App) Init() error {
	cfg := a.config

	backend, err := api.NewClient(cfg.APIBaseURL)
	if err != nil {
		return fmt.Errorf("backend client: %w", err)
	}
	a.backend = backend

	if err := a.initSpeech(); err != nil {
		return fmt.Errorf("speech init: %w", err)
	}
	a.initRecognition()
	a.initInterviewers()
	a.initOrchestrator()
	a.initPreview()

	return nil
}

// initSpeech builds the TTS chain and the sequential speaker.
func (a *App) initSpeech() error {
	remote, err := tts.NewRemote(
		tts.WithBaseURL(a.config.APIBaseURL),
		tts.WithVoice(a.config.Voice),
	)
	if err != nil {
		return err
	}

	providers := []tts.Provider{remote}
	if local, err := tts.NewLocal(); err != nil {
		a.logger.Warn("no local speech command on PATH, remote TTS only", "error", err)
	} else {
		providers = append(providers, local)
	}

	chain, err := tts.NewChain(providers...)
	if err != nil {
		return err
	}
	a.synth = chain
	return nil
}

// initRecognition builds the streaming recognizer and its controller.
// The speaker is built here too so the gate wiring stays in one place.
func (a *App) initRecognition() {
	recognizer := stt.NewDeepgram(stt.DeepgramConfig{
		APIKey:      a.config.DeepgramKey,
		SmartFormat: true,
	})
	capture := stt.NewFFmpegCapture()

	a.controller = stt.NewController(recognizer, capture,
		stt.WithSilenceWindow(a.config.SilenceWindow),
		stt.WithMinUtteranceLen(a.config.MinUtteranceLen),
		stt.WithResponseCooldown(a.config.ResponseCooldown),
	)

	var sink speech.Sink
	if execSink, err := speech.NewExecSink(); err != nil {
		a.logger.Warn("no audio player on PATH, speech output disabled", "error", err)
		sink = &speech.NullSink{}
	} else {
		sink = execSink
	}

	a.speaker = speech.NewSpeaker(a.synth, sink,
		speech.WithGate(a.controller),
		speech.WithCooldown(a.config.SpeechCooldown),
	)
}

// initInterviewers builds the realtime session and the local fallback.
// The fallback's chat and code closures resolve through the
// orchestrator, which does not exist yet; they run only once a session
// is live.
func (a *App) initInterviewers() {
	chat := func(ctx context.Context, message, code string) (string, error) {
		resp, err := a.backend.Chat(ctx, a.orchestrator.SessionID(), message, code)
		if err != nil {
			return "", err
		}
		return resp.Response, nil
	}
	code := func() string { return a.orchestrator.Code() }

	a.interviewer = fallback.New(a.speaker, a.controller, chat, code)

	if a.config.NoRealtime {
		return
	}

	sessionCfg := transport.DefaultSessionConfig()
	sessionCfg.SignalingURL = a.config.SignalingURL
	sessionCfg.ConnectTimeout = a.config.ConnectTimeout
	a.session = transport.NewSession(sessionCfg)

	if player, err := transport.NewPCMPlayer(); err != nil {
		a.logger.Warn("no PCM player on PATH, remote audio muted", "error", err)
	} else {
		a.player = player
		a.session.OnRemoteAudio = func(pcm []int16) {
			if err := a.player.Write(pcm); err != nil {
				a.logger.Debug("remote audio write failed", "error", err)
			}
		}
	}

	a.publisher = transport.NewAudioPublisher(a.session, stt.NewFFmpegCapture())
}

// initOrchestrator builds the orchestrator and the web bridge, then
// hooks the transport events into the orchestrator.
func (a *App) initOrchestrator() {
	opts := []interview.Option{
		interview.WithLocal(a.interviewer),
		interview.WithConfig(interview.Config{
			CodeDebounce:  a.config.CodeDebounce,
			RedirectDelay: interview.DefaultConfig().RedirectDelay,
		}),
	}
	if a.session != nil {
		opts = append(opts, interview.WithRealtime(a.session))
	}
	a.orchestrator = interview.New(a.backend, opts...)

	if a.session != nil {
		a.session.OnTranscript = a.orchestrator.HandleRemoteTranscript
		a.session.OnEvent = a.orchestrator.HandleRemoteEvent
		a.session.OnHealthChange = a.orchestrator.HandleHealthChange
	}

	// The web server installs its own orchestrator callbacks; wrap the
	// state hook so the app sees transitions too.
	a.webServer = web.NewServer(a.config.UIPort, a.orchestrator, a.backend)
	prev := a.orchestrator.OnStateChange
	a.orchestrator.OnStateChange = func(s interview.State) {
		if prev != nil {
			prev(s)
		}
		a.handleStateChange(s)
	}
}

// initPreview opens the webcam for the self-preview. A missing or
// blocked camera is a notice, not a startup failure.
func (a *App) initPreview() {
	if a.config.NoCamera {
		return
	}

	camCfg := media.DefaultWebcamConfig()
	camCfg.DeviceID = a.config.CameraDevice

	cam, err := media.OpenWebcam(camCfg)
	if err != nil {
		var capErr *media.CaptureError
		if errors.As(err, &capErr) {
			a.logger.Warn("camera unavailable", "class", capErr.Class.String(), "hint", capErr.Class.Message())
		} else {
			a.logger.Warn("camera unavailable", "error", err)
		}
		return
	}
	a.webcam = cam

	a.preview = media.NewPreview(cam, 10)
	a.preview.OnFrame = func(jpeg []byte) {
		if !a.cameraOn() || a.webServer.PreviewClientCount() == 0 {
			return
		}
		a.webServer.SendPreviewFrame(jpeg)
	}
	a.preview.OnError = func(err error) {
		a.logger.Debug("preview frame failed", "error", err)
	}
}

// cameraOn asks the active interviewer path whether the camera toggle
// is enabled. Frames stop flowing the moment it is not.
func (a *App) cameraOn() bool {
	switch a.orchestrator.Mode() {
	case interview.ModeRealtime:
		return a.session.CameraOn()
	case interview.ModeLocal:
		return a.interviewer.CameraOn()
	}
	return false
}

// handleStateChange starts the microphone publisher once the realtime
// path is live.
func (a *App) handleStateChange(s interview.State) {
	if s != interview.StateLive {
		return
	}
	if a.orchestrator.Mode() != interview.ModeRealtime || a.publisher == nil {
		return
	}
	go func() {
		if err := a.publisher.Run(context.Background()); err != nil {
			a.logger.Warn("microphone publisher stopped", "error", err)
		}
	}()
}

// Run starts the UI bridge and the preview loop, then blocks until the
// context is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.webServer.StartAsync()
	if a.preview != nil {
		a.preview.Start(ctx)
	}

	a.logger.Info("interview client ready",
		"ui", "http://localhost:"+a.config.UIPort,
		"api", a.config.APIBaseURL,
		"realtime", !a.config.NoRealtime,
	)

	<-ctx.Done()
	return nil
}

// Shutdown releases every component. Safe to call once after Run.
func (a *App) Shutdown() {
	a.orchestrator.End()

	if a.preview != nil {
		a.preview.Close()
	}
	if a.player != nil {
		a.player.Close()
	}
	if err := a.webServer.Shutdown(); err != nil {
		a.logger.Warn("web server shutdown failed", "error", err)
	}
	a.logger.Info("shutdown complete")
}
