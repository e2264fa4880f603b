package web

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/aretelabs/go-arete/pkg/hub"
	"github.com/aretelabs/go-arete/pkg/interview"
)

// StartSessionRequest is the body for POST /api/session/start.
type StartSessionRequest struct {
	CandidateName string `json:"candidate_name"`
	ProblemID     string `json:"problem_id,omitempty"`
}

// handleProblems proxies the problem listing from the backend.
func (s *Server) handleProblems(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c, problemsTimeout)
	defer cancel()

	problems, err := s.backend.Problems(ctx)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(problems)
}

// handleStart creates the session and brings up the interviewer.
func (s *Server) handleStart(c *fiber.Ctx) error {
	var req StartSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	// The session outlives this request: the orchestrator keeps the
	// context for its speech loops and snapshot sends. The backend
	// client bounds the individual calls itself.
	if err := s.orchestrator.Start(context.Background(), req.CandidateName, req.ProblemID); err != nil {
		status := fiber.StatusInternalServerError
		if errors.Is(err, interview.ErrNoCandidateName) {
			status = fiber.StatusBadRequest
		}
		return c.Status(status).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{
		"session_id":    s.orchestrator.SessionID(),
		"problem_title": s.orchestrator.ProblemTitle(),
		"mode":          s.orchestrator.Mode().String(),
		"starter_code":  s.orchestrator.Code(),
	})
}

// handleUnlock opens audio output after the user gesture.
func (s *Server) handleUnlock(c *fiber.Ctx) error {
	s.orchestrator.Unlock()
	return c.JSON(fiber.Map{"unlocked": true})
}

// handleRun executes the current buffer against the problem's tests.
func (s *Server) handleRun(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c, 60*time.Second)
	defer cancel()

	result, err := s.orchestrator.RunCode(ctx)
	if err != nil {
		status := fiber.StatusInternalServerError
		if errors.Is(err, interview.ErrNotLive) {
			status = fiber.StatusConflict
		}
		return c.Status(status).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(result)
}

// handleSubmit sends the final solution. On failure the session stays
// live and the client may retry.
func (s *Server) handleSubmit(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c, 60*time.Second)
	defer cancel()

	report, err := s.orchestrator.Submit(ctx)
	if err != nil {
		status := fiber.StatusBadGateway
		if errors.Is(err, interview.ErrNotLive) {
			status = fiber.StatusConflict
		}
		return c.Status(status).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(report)
}

// handleEnd tears the session down without submitting.
func (s *Server) handleEnd(c *fiber.Ctx) error {
	s.orchestrator.End()
	s.broadcastStatus("")
	return c.JSON(fiber.Map{"state": s.orchestrator.State().String()})
}

// handleMicrophone toggles the active path's microphone.
func (s *Server) handleMicrophone(c *fiber.Ctx) error {
	on := s.orchestrator.ToggleMicrophone()
	s.mu.Lock()
	s.micOn = on
	s.mu.Unlock()
	s.broadcastStatus("")
	return c.JSON(fiber.Map{"microphone_on": on})
}

// handleCamera toggles the camera preview.
func (s *Server) handleCamera(c *fiber.Ctx) error {
	on := s.orchestrator.ToggleCamera()
	s.mu.Lock()
	s.camOn = on
	s.mu.Unlock()
	s.broadcastStatus("")
	return c.JSON(fiber.Map{"camera_on": on})
}

// handleStatus returns the current session snapshot.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.snapshot(""))
}

// handleTranscript returns the full transcript so far.
func (s *Server) handleTranscript(c *fiber.Ctx) error {
	return c.JSON(s.orchestrator.Transcript().Snapshot())
}

// handleStatusWS streams status snapshots. The current snapshot is sent
// on connect.
func (s *Server) handleStatusWS(c *websocket.Conn) {
	c.WriteJSON(s.snapshot(""))
	hub.NewClient(s.statusHub, c).Run()
}

// handleTranscriptWS streams transcript lines. The backlog is replayed
// on connect so a reconnecting client misses nothing.
func (s *Server) handleTranscriptWS(c *websocket.Conn) {
	for _, entry := range s.orchestrator.Transcript().Snapshot() {
		if err := c.WriteJSON(entry); err != nil {
			c.Close()
			return
		}
	}
	hub.NewClient(s.transcriptHub, c).Run()
}

// handlePreviewWS streams JPEG preview frames.
func (s *Server) handlePreviewWS(c *websocket.Conn) {
	hub.NewClient(s.previewHub, c).Run()
}

// handleEditorWS receives code_snapshot messages from the editor.
func (s *Server) handleEditorWS(c *websocket.Conn) {
	hub.NewClient(s.editorHub, c).Run()
}
