package webrtc

import (
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
)

// readRTCP drains RTCP from a receiver and logs call quality. Sessions are
// short, so reports are only surfaced when loss gets noticeable.
func (s *peerSession) readRTCP(receiver *webrtc.RTPReceiver) {
	for {
		packets, _, err := receiver.ReadRTCP()
		if err != nil {
			return
		}

		for _, packet := range packets {
			switch p := packet.(type) {
			case *rtcp.ReceiverReport:
				for _, report := range p.Reports {
					loss := float64(report.FractionLost) / 255.0
					if loss > 0.05 {
						s.logger.Warnw("Call quality degraded",
							"packet_loss", loss,
							"jitter", time.Duration(report.Jitter)*time.Millisecond)
					}
				}
			case *rtcp.PictureLossIndication:
				s.logger.Debugw("Keyframe requested by remote")
			}
		}
	}
}
