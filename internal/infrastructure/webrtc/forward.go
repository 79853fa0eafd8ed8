package webrtc

import (
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
)

// forwardTrack reads inbound RTP from one participant and writes it to the
// partner session's matching outbound track. The loop exits when the track
// closes, which happens when either peer connection is destroyed.
func (s *peerSession) forwardTrack(track *webrtc.TrackRemote) {
	buf := make([]byte, 1500) // MTU size
	packet := &rtp.Packet{}

	for {
		n, _, err := track.Read(buf)
		if err != nil {
			return
		}

		if err := packet.Unmarshal(buf[:n]); err != nil {
			s.logger.Warnw("Dropping malformed RTP packet",
				"track_id", track.ID(),
				"error", err)
			continue
		}

		out := s.partnerTrack(track.Kind())
		if out == nil {
			// Partner side not up yet; nothing to feed.
			continue
		}

		if err := out.WriteRTP(packet); err != nil {
			s.logger.Warnw("Failed to forward RTP packet",
				"track_id", track.ID(),
				"error", err)
		}
	}
}

// partnerTrack returns the counterpart session's outbound track for a media
// kind, or nil when the counterpart is gone.
func (s *peerSession) partnerTrack(kind webrtc.RTPCodecType) *webrtc.TrackLocalStaticRTP {
	s.mu.Lock()
	counterpart := s.counterpart
	s.mu.Unlock()

	if counterpart == nil {
		return nil
	}
	switch kind {
	case webrtc.RTPCodecTypeAudio:
		return counterpart.outAudio
	case webrtc.RTPCodecTypeVideo:
		return counterpart.outVideo
	default:
		return nil
	}
}
