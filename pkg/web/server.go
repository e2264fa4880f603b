// Package web serves the interview UI bridge: REST endpoints for
// session control plus websocket streams for status, transcript and
// camera preview.
package web

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/aretelabs/go-arete/internal/log"
	"github.com/aretelabs/go-arete/pkg/api"
	"github.com/aretelabs/go-arete/pkg/hub"
	"github.com/aretelabs/go-arete/pkg/interview"
	"github.com/aretelabs/go-arete/pkg/protocol"
)

// Status is the session snapshot pushed over the status stream.
type Status struct {
	State          string `json:"state"`
	Mode           string `json:"mode"`
	SessionID      string `json:"session_id,omitempty"`
	ProblemTitle   string `json:"problem_title,omitempty"`
	HintCount      int    `json:"hint_count"`
	ElapsedSeconds int    `json:"elapsed_seconds"`
	ConnectionLost bool   `json:"connection_lost"`
	MicrophoneOn   bool   `json:"microphone_on"`
	CameraOn       bool   `json:"camera_on"`
	Notice         string `json:"notice,omitempty"`
	RedirectURL    string `json:"redirect_url,omitempty"`
}

// Server is the browser-facing bridge around one orchestrator.
type Server struct {
	app    *fiber.App
	port   string
	logger *slog.Logger

	orchestrator *interview.Orchestrator
	backend      *api.Client

	statusHub     *hub.Hub
	transcriptHub *hub.Hub
	previewHub    *hub.Hub
	editorHub     *hub.Hub

	mu    sync.Mutex
	micOn bool
	camOn bool
}

// NewServer creates the bridge and wires the orchestrator's callbacks
// into the broadcast streams.
func NewServer(port string, o *interview.Orchestrator, backend *api.Client) *Server {
	s := &Server{
		port:          port,
		logger:        log.Component("web"),
		orchestrator:  o,
		backend:       backend,
		statusHub:     hub.New("status"),
		transcriptHub: hub.New("transcript"),
		previewHub:    hub.New("preview"),
		editorHub:     hub.New("editor"),
		micOn:         true,
		camOn:         true,
	}

	app := fiber.New(fiber.Config{
		AppName:               "Arete Interview",
		DisableStartupMessage: true,
	})

	app.Use(cors.New())
	app.Static("/", "./web")

	apiGroup := app.Group("/api")
	apiGroup.Get("/problems", s.handleProblems)
	apiGroup.Post("/session/start", s.handleStart)
	apiGroup.Post("/session/unlock", s.handleUnlock)
	apiGroup.Post("/session/run", s.handleRun)
	apiGroup.Post("/session/submit", s.handleSubmit)
	apiGroup.Post("/session/end", s.handleEnd)
	apiGroup.Post("/session/microphone", s.handleMicrophone)
	apiGroup.Post("/session/camera", s.handleCamera)
	apiGroup.Get("/session/status", s.handleStatus)
	apiGroup.Get("/session/transcript", s.handleTranscript)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	app.Get("/ws/transcript", websocket.New(s.handleTranscriptWS))
	app.Get("/ws/preview", websocket.New(s.handlePreviewWS))
	app.Get("/ws/editor", websocket.New(s.handleEditorWS))

	s.wireOrchestrator()

	s.app = app
	return s
}

// wireOrchestrator routes orchestrator events into the streams.
func (s *Server) wireOrchestrator() {
	o := s.orchestrator

	o.Transcript().OnAppend = func(e interview.Entry) {
		s.transcriptHub.BroadcastJSON(e)
	}
	o.OnStateChange = func(interview.State) {
		s.broadcastStatus("")
	}
	o.OnNotice = func(text string) {
		s.broadcastStatus(text)
	}
	o.OnHint = func(text string, count int) {
		if msg, err := protocol.NewHintMessage(text); err == nil {
			if data, err := msg.Bytes(); err == nil {
				s.transcriptHub.Broadcast(hub.NewJSONMessage(data))
			}
		}
		s.broadcastStatus("")
	}
	o.OnConnectionLost = func() {
		s.broadcastStatus("")
	}
	o.OnComplete = func(redirectURL string) {
		status := s.snapshot("")
		status.RedirectURL = redirectURL
		s.statusHub.BroadcastJSON(status)
	}

	// Editor changes arrive as code_snapshot messages on the editor
	// stream and feed the debounced relay.
	s.editorHub.OnInbound = func(data []byte) {
		msg, err := protocol.ParseMessage(data)
		if err != nil || msg.Type != protocol.TypeCodeSnapshot {
			return
		}
		snap, err := msg.GetCodeSnapshotData()
		if err != nil {
			return
		}
		s.orchestrator.UpdateCode(snap.Code)
	}
}

// Start runs the hubs and listens. Blocks.
func (s *Server) Start() error {
	go s.statusHub.Run()
	go s.transcriptHub.Run()
	go s.previewHub.Run()
	go s.editorHub.Run()

	s.logger.Info("interview UI listening", "addr", "http://localhost:"+s.port)
	return s.app.Listen(":" + s.port)
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			s.logger.Error("web server stopped", "error", err)
		}
	}()
}

// SendPreviewFrame pushes one JPEG frame to the preview stream.
func (s *Server) SendPreviewFrame(jpegData []byte) {
	s.previewHub.BroadcastBinary(jpegData)
}

// PreviewClientCount reports how many preview sockets are open.
func (s *Server) PreviewClientCount() int {
	return s.previewHub.ClientCount()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) snapshot(notice string) Status {
	s.mu.Lock()
	micOn, camOn := s.micOn, s.camOn
	s.mu.Unlock()

	o := s.orchestrator
	return Status{
		State:          o.State().String(),
		Mode:           o.Mode().String(),
		SessionID:      o.SessionID(),
		ProblemTitle:   o.ProblemTitle(),
		HintCount:      o.HintCount(),
		ElapsedSeconds: int(o.Elapsed() / time.Second),
		ConnectionLost: o.ConnectionLost(),
		MicrophoneOn:   micOn,
		CameraOn:       camOn,
		Notice:         notice,
	}
}

func (s *Server) broadcastStatus(notice string) {
	s.statusHub.BroadcastJSON(s.snapshot(notice))
}

// problemsTimeout bounds the passthrough call.
const problemsTimeout = 10 * time.Second

func requestContext(c *fiber.Ctx, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), timeout)
}
