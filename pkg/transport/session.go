package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"

	"github.com/aretelabs/go-arete/pkg/protocol"
)

// Credentials carry what the backend token endpoint issued.
type Credentials struct {
	Token    string
	Identity string
	RoomName string
}

// SessionConfig holds connection settings.
type SessionConfig struct {
	SignalingURL   string
	ConnectTimeout time.Duration
	ICEServers     []string
}

// DefaultSessionConfig returns connection defaults.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		ConnectTimeout: 3 * time.Second,
		ICEServers:     []string{"stun:stun.l.google.com:19302"},
	}
}

// Session is one realtime interview connection.
type Session struct {
	cfg    SessionConfig
	logger *slog.Logger

	mu         sync.Mutex
	health     ConnectionHealth
	pc         *webrtc.PeerConnection
	dc         *webrtc.DataChannel
	signaler   Signaler
	audioTrack *webrtc.TrackLocalStaticSample
	micOn      bool
	camOn      bool

	meter *LevelMeter

	// Callbacks. Set before Connect.
	OnHealthChange  func(ConnectionHealth)
	OnTranscript    func(role, text string, structured bool)
	OnEvent         func(*protocol.Message)
	OnAgentSpeaking func(bool)
	OnRemoteAudio   func(pcm []int16)
}

// NewSession creates an unconnected session.
func NewSession(cfg SessionConfig) *Session {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 3 * time.Second
	}
	return &Session{
		cfg:    cfg,
		logger: slog.Default().With("component", "transport.session"),
		health: HealthDisconnected,
		micOn:  true,
		camOn:  true,
	}
}

// CredentialFunc fetches connection credentials. The fetch shares the
// connect timeout, so a slow token endpoint fails the attempt instead
// of hanging it.
type CredentialFunc func(ctx context.Context) (Credentials, error)

// ConnectWith fetches credentials then connects, all under one bounded
// timeout.
func (s *Session) ConnectWith(ctx context.Context, fetch CredentialFunc) error {
	s.setHealth(HealthConnecting)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()

	creds, err := fetch(ctx)
	if err != nil {
		s.setHealth(HealthFailed)
		return fmt.Errorf("transport: credentials: %w", err)
	}

	signaler, err := dialSignaler(ctx, s.cfg.SignalingURL, creds.Token)
	if err != nil {
		s.setHealth(HealthFailed)
		return err
	}

	if err := s.connectWith(ctx, signaler); err != nil {
		signaler.Close()
		s.setHealth(HealthFailed)
		return err
	}
	return nil
}

// Health returns the current connection health.
func (s *Session) Health() ConnectionHealth {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.health
}

// setHealth applies a transition if the state machine allows it.
func (s *Session) setHealth(to ConnectionHealth) {
	s.mu.Lock()
	from := s.health
	if !CanTransition(from, to) {
		s.mu.Unlock()
		return
	}
	s.health = to
	cb := s.OnHealthChange
	s.mu.Unlock()

	s.logger.Info("connection health changed", "from", from.String(), "to", to.String())
	if cb != nil {
		cb(to)
	}
}

// Connect dials signaling, negotiates the peer connection, and waits
// for the connected state. The whole handshake is bounded by the
// configured connect timeout.
func (s *Session) Connect(ctx context.Context, creds Credentials) error {
	s.setHealth(HealthConnecting)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()

	signaler, err := dialSignaler(ctx, s.cfg.SignalingURL, creds.Token)
	if err != nil {
		s.setHealth(HealthFailed)
		return err
	}

	if err := s.connectWith(ctx, signaler); err != nil {
		signaler.Close()
		s.setHealth(HealthFailed)
		return err
	}
	return nil
}

// connectWith runs the handshake over an established signaler.
func (s *Session) connectWith(ctx context.Context, signaler Signaler) error {
	iceServers := make([]webrtc.ICEServer, 0, len(s.cfg.ICEServers))
	for _, u := range s.cfg.ICEServers {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: []string{u}})
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		return fmt.Errorf("transport: peer connection: %w", err)
	}

	meter, err := NewLevelMeter()
	if err != nil {
		pc.Close()
		return fmt.Errorf("transport: level meter: %w", err)
	}
	meter.OnActiveChange = func(active bool) {
		if s.OnAgentSpeaking != nil {
			s.OnAgentSpeaking(active)
		}
	}

	audioTrack, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio", "microphone",
	)
	if err != nil {
		pc.Close()
		return fmt.Errorf("transport: local audio track: %w", err)
	}
	if _, err := pc.AddTrack(audioTrack); err != nil {
		pc.Close()
		return fmt.Errorf("transport: add audio track: %w", err)
	}

	// Receive the agent's audio.
	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		pc.Close()
		return fmt.Errorf("transport: audio transceiver: %w", err)
	}

	dc, err := pc.CreateDataChannel("events", nil)
	if err != nil {
		pc.Close()
		return fmt.Errorf("transport: data channel: %w", err)
	}
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		s.handleData(msg.Data)
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if track.Kind() == webrtc.RTPCodecTypeAudio {
			go s.consumeRemoteAudio(track)
		}
	})

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		if err := signaler.SendCandidate(candidate); err != nil {
			s.logger.Warn("send candidate failed", "error", err)
		}
	})

	connected := make(chan struct{})
	var connectedOnce sync.Once
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateConnected:
			connectedOnce.Do(func() { close(connected) })
			s.setHealth(HealthConnected)
		case webrtc.PeerConnectionStateDisconnected:
			s.setHealth(HealthReconnecting)
		case webrtc.PeerConnectionStateFailed:
			s.setHealth(HealthFailed)
		case webrtc.PeerConnectionStateClosed:
			s.setHealth(HealthDisconnected)
		}
	})

	s.mu.Lock()
	s.pc = pc
	s.dc = dc
	s.signaler = signaler
	s.audioTrack = audioTrack
	s.meter = meter
	s.mu.Unlock()

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("transport: create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("transport: local description: %w", err)
	}
	if err := signaler.SendOffer(offer); err != nil {
		return fmt.Errorf("transport: send offer: %w", err)
	}

	go s.consumeSignaling(signaler)

	select {
	case <-connected:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("transport: connect: %w", ctx.Err())
	}
}

// consumeSignaling applies inbound answers and candidates.
func (s *Session) consumeSignaling(signaler Signaler) {
	for msg := range signaler.Messages() {
		switch {
		case msg.SDP != nil && msg.SDP.Type == "answer":
			answer := webrtc.SessionDescription{
				Type: webrtc.SDPTypeAnswer,
				SDP:  msg.SDP.SDP,
			}
			s.mu.Lock()
			pc := s.pc
			s.mu.Unlock()
			if pc == nil {
				return
			}
			if err := pc.SetRemoteDescription(answer); err != nil {
				s.logger.Warn("set remote description failed", "error", err)
			}

		case msg.ICE != nil:
			s.mu.Lock()
			pc := s.pc
			s.mu.Unlock()
			if pc == nil {
				return
			}
			if err := pc.AddICECandidate(webrtc.ICECandidateInit{
				Candidate:     msg.ICE.Candidate,
				SDPMid:        msg.ICE.SDPMid,
				SDPMLineIndex: msg.ICE.SDPMLineIndex,
			}); err != nil {
				s.logger.Warn("add candidate failed", "error", err)
			}

		case msg.Error != "":
			s.logger.Warn("signaling error", "detail", msg.Error)
		}
	}
}

// consumeRemoteAudio feeds the agent's audio into the level meter and
// hands decoded PCM to the playback callback.
func (s *Session) consumeRemoteAudio(track *webrtc.TrackRemote) {
	s.mu.Lock()
	meter := s.meter
	s.mu.Unlock()

	pcm := make([]int16, 5760)
	var lastSeq uint16
	var seen bool
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			return
		}
		if len(pkt.Payload) == 0 {
			continue
		}
		// Opus conceals single losses; a late packet decoded out of
		// order sounds worse than the gap it fills.
		if seen && staleRTP(pkt, lastSeq) {
			continue
		}
		lastSeq, seen = pkt.SequenceNumber, true

		n, err := meter.decoder.Decode(pkt.Payload, pcm)
		if err != nil {
			continue
		}
		samples := pcm[:n]
		meter.FeedPCM(samples)

		if s.OnRemoteAudio != nil {
			out := make([]int16, len(samples))
			copy(out, samples)
			s.OnRemoteAudio(out)
		}
	}
}

// staleRTP reports whether a packet arrived behind the newest sequence
// number, accounting for wraparound.
func staleRTP(pkt *rtp.Packet, lastSeq uint16) bool {
	return pkt.SequenceNumber != lastSeq && pkt.SequenceNumber-lastSeq > 1<<15
}

// handleData routes a data-channel payload. Structured events reach
// OnEvent; anything else degrades to a plain agent transcript line.
func (s *Session) handleData(payload []byte) {
	role, text, structured := protocol.TranscriptLine(payload, "ai")

	if structured {
		if msg, err := protocol.ParseMessage(payload); err == nil && s.OnEvent != nil {
			s.OnEvent(msg)
		}
	} else if s.OnEvent != nil {
		// Non-transcript structured types (run results, completion)
		// still parse even though they carry no transcript line.
		if msg, err := protocol.ParseMessage(payload); err == nil {
			s.OnEvent(msg)
			return
		}
	}

	if text != "" && s.OnTranscript != nil {
		s.OnTranscript(role, text, structured)
	}
}

// SendData ships a payload over the data channel. A no-op unless the
// session is connected; callers never queue into a dead channel.
func (s *Session) SendData(payload []byte) error {
	s.mu.Lock()
	health := s.health
	dc := s.dc
	s.mu.Unlock()

	if health != HealthConnected || dc == nil {
		s.logger.Debug("dropping data while not connected", "health", health.String())
		return nil
	}
	return dc.Send(payload)
}

// WriteAudio pushes one encoded audio sample outbound. Dropped while
// the microphone is off.
func (s *Session) WriteAudio(data []byte, duration time.Duration) error {
	s.mu.Lock()
	track := s.audioTrack
	on := s.micOn
	s.mu.Unlock()

	if !on || track == nil {
		return nil
	}
	return track.WriteSample(media.Sample{Data: data, Duration: duration})
}

// ToggleMicrophone flips the mic and returns the new state.
func (s *Session) ToggleMicrophone() bool {
	s.mu.Lock()
	s.micOn = !s.micOn
	on := s.micOn
	s.mu.Unlock()
	s.logger.Info("microphone toggled", "enabled", on)
	return on
}

// SetMicrophone sets the mic state. Idempotent.
func (s *Session) SetMicrophone(on bool) {
	s.mu.Lock()
	s.micOn = on
	s.mu.Unlock()
}

// MicrophoneOn reports the mic state.
func (s *Session) MicrophoneOn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.micOn
}

// ToggleCamera flips the camera and returns the new state. The camera
// feeds the local self-preview; the caller is responsible for telling
// the far end, see interview.Orchestrator.ToggleCamera.
func (s *Session) ToggleCamera() bool {
	s.mu.Lock()
	s.camOn = !s.camOn
	on := s.camOn
	s.mu.Unlock()
	s.logger.Info("camera toggled", "enabled", on)
	return on
}

// CameraOn reports the camera state.
func (s *Session) CameraOn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.camOn
}

// AgentSpeaking reports whether the far end has recent speech energy.
func (s *Session) AgentSpeaking() bool {
	s.mu.Lock()
	meter := s.meter
	s.mu.Unlock()
	if meter == nil {
		return false
	}
	return meter.Active()
}

// Close tears the session down. Health lands on disconnected.
func (s *Session) Close() error {
	s.mu.Lock()
	pc := s.pc
	signaler := s.signaler
	s.pc = nil
	s.dc = nil
	s.signaler = nil
	s.mu.Unlock()

	s.setHealth(HealthDisconnected)

	var err error
	if pc != nil {
		err = pc.Close()
	}
	if signaler != nil {
		signaler.Close()
	}
	return err
}
