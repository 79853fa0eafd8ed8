package webrtc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"pairnet/internal/core/domain"
	"pairnet/internal/core/ports"
)

// Config holds the transport settings shared by every peer session in a
// room.
type Config struct {
	ICEServers []webrtc.ICEServer
	PortRange  struct {
		Min uint16
		Max uint16
	}
}

// signalEnvelope is the wire shape of a signaling payload exchanged with a
// participant's client.
type signalEnvelope struct {
	Type      string                     `json:"type"`
	From      string                     `json:"from"`
	SDP       *webrtc.SessionDescription `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
}

const (
	signalOffer     = "offer"
	signalAnswer    = "answer"
	signalCandidate = "ice_candidate"
)

// Factory builds one media session per participant per pairing. Each client
// connects to the engine; the engine bridges media between the two sessions
// of a pair, so a partner change never touches the client's camera access.
type Factory struct {
	config Config
	sender ports.SignalSender
	logger *zap.SugaredLogger

	mu       sync.Mutex
	sessions map[string]*peerSession // keyed by pairKey + participant
}

var _ ports.MediaSessionFactory = (*Factory)(nil)

func NewFactory(config Config, sender ports.SignalSender, logger *zap.SugaredLogger) *Factory {
	return &Factory{
		config:   config,
		sender:   sender,
		logger:   logger,
		sessions: make(map[string]*peerSession),
	}
}

func (f *Factory) NewSession(ctx context.Context, self, remote domain.ParticipantID, isInitiator bool) (ports.MediaSession, error) {
	pc, err := f.createPeerConnection()
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	streamID := fmt.Sprintf("pair-%s", pairKey(self, remote))
	outAudio, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", streamID)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("failed to create audio track: %w", err)
	}
	outVideo, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", streamID)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("failed to create video track: %w", err)
	}

	s := &peerSession{
		pc:          pc,
		self:        self,
		remote:      remote,
		isInitiator: isInitiator,
		sender:      f.sender,
		factory:     f,
		outAudio:    outAudio,
		outVideo:    outVideo,
		logger:      f.logger.With("participant_id", self, "partner_id", remote),
	}
	s.registerHandlers()

	// Link the two sessions of a pair so inbound media on one side can be
	// forwarded to the other.
	f.mu.Lock()
	f.sessions[sessionKey(self, remote)] = s
	if counterpart, ok := f.sessions[sessionKey(remote, self)]; ok {
		s.counterpart = counterpart
		counterpart.mu.Lock()
		counterpart.counterpart = s
		counterpart.mu.Unlock()
	}
	f.mu.Unlock()

	return s, nil
}

func (f *Factory) release(s *peerSession) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, sessionKey(s.self, s.remote))
	if counterpart, ok := f.sessions[sessionKey(s.remote, s.self)]; ok {
		counterpart.mu.Lock()
		counterpart.counterpart = nil
		counterpart.mu.Unlock()
	}
}

// createPeerConnection builds a PeerConnection with the room's ICE servers
// and UDP port range.
func (f *Factory) createPeerConnection() (*webrtc.PeerConnection, error) {
	config := webrtc.Configuration{
		ICEServers:   f.config.ICEServers,
		SDPSemantics: webrtc.SDPSemanticsUnifiedPlanWithFallback,
	}

	settingEngine := webrtc.SettingEngine{}
	if f.config.PortRange.Min > 0 && f.config.PortRange.Max > 0 {
		settingEngine.SetEphemeralUDPPortRange(f.config.PortRange.Min, f.config.PortRange.Max)
	}

	api := webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine))
	return api.NewPeerConnection(config)
}

func pairKey(a, b domain.ParticipantID) string {
	if b < a {
		a, b = b, a
	}
	return fmt.Sprintf("%s:%s", a, b)
}

func sessionKey(self, remote domain.ParticipantID) string {
	return fmt.Sprintf("%s|%s", self, remote)
}

// peerSession is the engine-side media endpoint serving one participant for
// one pairing. It is discarded when the pairing ends.
type peerSession struct {
	pc          *webrtc.PeerConnection
	self        domain.ParticipantID
	remote      domain.ParticipantID
	isInitiator bool
	sender      ports.SignalSender
	factory     *Factory
	logger      *zap.SugaredLogger

	// Outbound tracks carrying the partner's media toward this client.
	outAudio *webrtc.TrackLocalStaticRTP
	outVideo *webrtc.TrackLocalStaticRTP

	mu          sync.Mutex
	counterpart *peerSession
	// Candidates that arrived before the remote description was set.
	pendingCandidates []webrtc.ICECandidateInit

	onConnected func()
	onStream    func(trackID string, kind string)
	onError     func(err error)

	destroyOnce sync.Once
}

var _ ports.MediaSession = (*peerSession)(nil)

func (s *peerSession) OnConnected(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onConnected = fn
}

func (s *peerSession) OnStream(fn func(trackID string, kind string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onStream = fn
}

func (s *peerSession) OnError(fn func(err error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = fn
}

// Connect attaches the outbound tracks and, on the initiating side, creates
// and sends the offer. The other side waits for the client's offer.
func (s *peerSession) Connect(ctx context.Context) error {
	if _, err := s.pc.AddTrack(s.outAudio); err != nil {
		return fmt.Errorf("failed to add audio track: %w", err)
	}
	if _, err := s.pc.AddTrack(s.outVideo); err != nil {
		return fmt.Errorf("failed to add video track: %w", err)
	}

	if !s.isInitiator {
		return nil
	}

	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("failed to create offer: %w", err)
	}
	if err := s.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("failed to set local description: %w", err)
	}

	return s.sender.SendToParticipant(s.self, signalEnvelope{
		Type: signalOffer,
		From: string(s.remote),
		SDP:  &offer,
	})
}

// HandleSignal feeds a signaling payload received from this participant's
// client.
func (s *peerSession) HandleSignal(ctx context.Context, payload []byte) error {
	var env signalEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return fmt.Errorf("failed to decode signal payload: %w", err)
	}

	switch env.Type {
	case signalOffer:
		return s.handleOffer(env)
	case signalAnswer:
		return s.handleAnswer(env)
	case signalCandidate:
		return s.handleCandidate(env)
	default:
		return fmt.Errorf("unknown signal type %q", env.Type)
	}
}

func (s *peerSession) handleOffer(env signalEnvelope) error {
	if env.SDP == nil {
		return fmt.Errorf("offer signal without SDP")
	}
	if err := s.pc.SetRemoteDescription(*env.SDP); err != nil {
		return fmt.Errorf("failed to set remote offer: %w", err)
	}

	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("failed to create answer: %w", err)
	}
	if err := s.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("failed to set local description: %w", err)
	}

	if err := s.sender.SendToParticipant(s.self, signalEnvelope{
		Type: signalAnswer,
		From: string(s.remote),
		SDP:  &answer,
	}); err != nil {
		return err
	}

	return s.flushPendingCandidates()
}

func (s *peerSession) handleAnswer(env signalEnvelope) error {
	if env.SDP == nil {
		return fmt.Errorf("answer signal without SDP")
	}
	if err := s.pc.SetRemoteDescription(*env.SDP); err != nil {
		return fmt.Errorf("failed to set remote answer: %w", err)
	}
	return s.flushPendingCandidates()
}

func (s *peerSession) handleCandidate(env signalEnvelope) error {
	if env.Candidate == nil {
		return fmt.Errorf("candidate signal without candidate")
	}

	// Candidates may arrive before the SDP exchange completes; buffer them
	// until the remote description lands.
	if s.pc.RemoteDescription() == nil {
		s.mu.Lock()
		s.pendingCandidates = append(s.pendingCandidates, *env.Candidate)
		s.mu.Unlock()
		return nil
	}
	return s.pc.AddICECandidate(*env.Candidate)
}

func (s *peerSession) flushPendingCandidates() error {
	s.mu.Lock()
	pending := s.pendingCandidates
	s.pendingCandidates = nil
	s.mu.Unlock()

	for _, c := range pending {
		if err := s.pc.AddICECandidate(c); err != nil {
			return fmt.Errorf("failed to add buffered candidate: %w", err)
		}
	}
	return nil
}

func (s *peerSession) registerHandlers() {
	s.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		init := c.ToJSON()
		if err := s.sender.SendToParticipant(s.self, signalEnvelope{
			Type:      signalCandidate,
			From:      string(s.remote),
			Candidate: &init,
		}); err != nil {
			s.logger.Warnw("Failed to relay ICE candidate", "error", err)
		}
	})

	s.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		s.logger.Infow("Inbound track started",
			"track_id", track.ID(),
			"kind", track.Kind().String(),
			"codec", track.Codec().MimeType)

		go s.readRTCP(receiver)
		go s.forwardTrack(track)

		s.mu.Lock()
		fn := s.onStream
		s.mu.Unlock()
		if fn != nil {
			fn(track.ID(), track.Kind().String())
		}
	})

	s.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		s.logger.Infow("Peer connection state changed", "state", state.String())

		switch state {
		case webrtc.PeerConnectionStateConnected:
			s.mu.Lock()
			fn := s.onConnected
			s.mu.Unlock()
			if fn != nil {
				fn()
			}
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateDisconnected:
			s.mu.Lock()
			fn := s.onError
			s.mu.Unlock()
			if fn != nil {
				fn(fmt.Errorf("peer connection %s", state.String()))
			}
		}
	})
}

func (s *peerSession) Destroy() error {
	var err error
	s.destroyOnce.Do(func() {
		s.factory.release(s)
		err = s.pc.Close()
	})
	return err
}
