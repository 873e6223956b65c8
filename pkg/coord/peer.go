package coord

import (
	"context"
	"errors"
	"time"

	"github.com/fairwaylab/strobeshot/internal/log"
	"github.com/fairwaylab/strobeshot/pkg/capture"
)

// Peer is the strobe-camera node: it idles until the ball-watch node
// requests a capture, replies with the strobe-lit image tagged with the
// same correlation id, and returns to idle. It keeps no cycle state beyond
// a window of recently serviced correlation ids used to discard duplicates.
type Peer struct {
	dev capture.Device
	ch  Channel

	captureTimeout time.Duration

	// Recently serviced ids, newest last. A request is never acted on twice.
	serviced []string
}

const servicedWindow = 16

// NewPeer creates the strobe-camera responder.
func NewPeer(dev capture.Device, ch Channel, captureTimeout time.Duration) *Peer {
	if captureTimeout <= 0 {
		captureTimeout = 2 * time.Second
	}
	return &Peer{dev: dev, ch: ch, captureTimeout: captureTimeout}
}

// Run services requests until ctx is cancelled, a ShutdownRequest arrives,
// or the channel dies. The caller owns the device lifecycle so a dropped
// connection can be re-served without losing the camera.
func (p *Peer) Run(ctx context.Context) error {
	defer log.Info("strobe-camera responder stopped")

	if err := p.dev.Arm(); err != nil {
		return err
	}
	defer func() {
		if err := p.dev.Disarm(); err != nil {
			log.Warn("disarm capture device", "error", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-p.ch.Receive():
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("coordination channel lost")
			}
			if done := p.handle(ctx, m); done {
				return nil
			}
		}
	}
}

// handle processes one message; returns true on shutdown.
func (p *Peer) handle(ctx context.Context, m *Message) bool {
	switch m.Type {
	case TypeCaptureRequest:
		p.serviceCapture(ctx, m)

	case TypeResult:
		var rep ResultReport
		if err := m.ParseData(&rep); err != nil {
			log.Warn("discarding malformed result report", "error", err)
			return false
		}
		log.Info("shot result (peer echo)",
			"kind", rep.Kind,
			"speed_mps", rep.SpeedMPS,
			"cid", m.CorrelationID)

	case TypeShutdown:
		log.Info("shutdown requested by peer")
		return true

	case TypeControl:
		// Session arming is the ball-watch node's concern; the strobe
		// camera stays armed while running.
		log.Debug("ignoring control directive", "cid", m.CorrelationID)

	default:
		log.Warn("discarding unexpected message", "type", m.Type)
	}
	return false
}

func (p *Peer) serviceCapture(ctx context.Context, m *Message) {
	if m.CorrelationID == "" {
		log.Warn("discarding capture request without correlation id")
		return
	}
	if p.wasServiced(m.CorrelationID) {
		log.Warn("discarding duplicate capture request", "cid", m.CorrelationID)
		return
	}
	p.markServiced(m.CorrelationID)

	var req CaptureRequest
	if err := m.ParseData(&req); err != nil {
		log.Warn("discarding malformed capture request", "cid", m.CorrelationID, "error", err)
		return
	}

	log.Info("servicing capture request", "cid", m.CorrelationID, "exposures", req.ExposureCount)
	peerCaptures.Inc()

	if ack, err := NewMessage(TypeCaptureReady, m.CorrelationID, nil); err == nil {
		if err := p.ch.Send(ack); err != nil {
			log.Warn("send capture ack", "error", err)
		}
	}

	frame, err := p.dev.Capture(ctx, p.captureTimeout)
	if err != nil {
		// A missed capture cannot be retried; the requester's timeout
		// abandons the cycle.
		log.Error("strobe capture failed", "cid", m.CorrelationID, "error", err)
		return
	}

	reply, err := NewMessage(TypeImagePayload, m.CorrelationID, EncodeImage(frame))
	if err != nil {
		log.Error("encode image payload", "cid", m.CorrelationID, "error", err)
		return
	}
	if err := p.ch.Send(reply); err != nil {
		log.Error("send image payload", "cid", m.CorrelationID, "error", err)
	}
}

func (p *Peer) wasServiced(cid string) bool {
	for _, s := range p.serviced {
		if s == cid {
			return true
		}
	}
	return false
}

func (p *Peer) markServiced(cid string) {
	p.serviced = append(p.serviced, cid)
	if len(p.serviced) > servicedWindow {
		p.serviced = p.serviced[len(p.serviced)-servicedWindow:]
	}
}
