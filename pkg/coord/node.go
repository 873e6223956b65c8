package coord

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/fairwaylab/strobeshot/internal/log"
	"github.com/fairwaylab/strobeshot/pkg/analyze"
	"github.com/fairwaylab/strobeshot/pkg/capture"
	"github.com/fairwaylab/strobeshot/pkg/shot"
	"github.com/fairwaylab/strobeshot/pkg/sink"
)

// State is the ball-watch node's coordination state.
type State int32

const (
	StateIdle State = iota
	StateArmed
	StateAwaitingPeer
	StateAnalyzing
	StateReporting
	StateShuttingDown
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StateAwaitingPeer:
		return "awaiting_peer"
	case StateAnalyzing:
		return "analyzing"
	case StateReporting:
		return "reporting"
	case StateShuttingDown:
		return "shutting_down"
	default:
		return "unknown"
	}
}

// Options tune the ball-watch node.
type Options struct {
	// ExposureCount is the strobe pulses fired per shot.
	ExposureCount int

	// PeerTimeout bounds the wait for the peer's strobe image. Long
	// enough for image transfer, short enough to re-arm before a
	// plausible next shot.
	PeerTimeout time.Duration

	// PollInterval paces the trigger-detection loop.
	PollInterval time.Duration

	// CaptureTimeout bounds each local frame capture.
	CaptureTimeout time.Duration

	// ArmOnStart arms the session immediately.
	ArmOnStart bool
}

// DefaultOptions returns production defaults.
func DefaultOptions() Options {
	return Options{
		ExposureCount:  5,
		PeerTimeout:    4 * time.Second,
		PollInterval:   2 * time.Millisecond,
		CaptureTimeout: 250 * time.Millisecond,
		ArmOnStart:     true,
	}
}

// Node is the ball-watch node: it owns the shot cycle. Two concurrent
// activities run under it — the tight trigger-detection loop and the
// message loop — and neither may block the other: strobe firing must not
// wait on the network.
type Node struct {
	dev      capture.Device
	ch       Channel
	watcher  *Watcher
	analyzer *analyze.Analyzer
	sink     sink.Sink
	cal      *shot.Calibration
	opts     Options

	state   atomic.Int32
	armed   atomic.Bool
	pending *pendingTable
	cancel  context.CancelFunc
}

// NewNode assembles a ball-watch node.
func NewNode(dev capture.Device, ch Channel, w *Watcher, a *analyze.Analyzer, s sink.Sink, cal *shot.Calibration, opts Options) *Node {
	if s == nil {
		s = sink.LogSink{}
	}
	return &Node{
		dev:      dev,
		ch:       ch,
		watcher:  w,
		analyzer: a,
		sink:     s,
		cal:      cal,
		opts:     opts,
		pending:  newPendingTable(),
	}
}

// State returns the current coordination state.
func (n *Node) State() State { return State(n.state.Load()) }

func (n *Node) setState(s State) {
	old := State(n.state.Swap(int32(s)))
	if old != s {
		log.Debug("state transition", "from", old.String(), "to", s.String())
	}
}

// Arm starts an armed session: the watcher begins looking for a teed ball.
func (n *Node) Arm() error {
	if n.State() == StateShuttingDown {
		return fmt.Errorf("cannot arm while shutting down")
	}
	if err := n.dev.Arm(); err != nil {
		return fmt.Errorf("%w: arm: %v", shot.ErrCaptureDevice, err)
	}
	n.watcher.Reset()
	n.armed.Store(true)
	n.setState(StateArmed)
	log.Info("session armed")
	return nil
}

// Disarm stops the session without shutting down.
func (n *Node) Disarm() {
	n.armed.Store(false)
	n.watcher.Reset()
	if err := n.dev.Disarm(); err != nil {
		log.Warn("disarm capture device", "error", err)
	}
	n.setState(StateIdle)
	log.Info("session disarmed")
}

// Run drives the node until ctx is cancelled or a ShutdownRequest arrives.
// It returns nil on orderly shutdown and an error only for unrecoverable
// resource failures (coordination channel permanently gone).
func (n *Node) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	n.cancel = cancel
	defer cancel()

	defer func() {
		n.setState(StateShuttingDown)
		n.pending.abandonAll()
		if err := n.dev.Close(); err != nil {
			log.Warn("release capture device", "error", err)
		}
		log.Info("ball-watch node stopped")
	}()

	if n.opts.ArmOnStart {
		if err := n.Arm(); err != nil {
			return err
		}
	}

	msgErr := make(chan error, 1)
	go func() { msgErr <- n.messageLoop(ctx) }()

	trigErr := make(chan error, 1)
	go func() { trigErr <- n.triggerLoop(ctx) }()

	select {
	case <-ctx.Done():
		return nil
	case err := <-msgErr:
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("coordination channel lost: %w", err)
		}
		return nil
	case err := <-trigErr:
		return err
	}
}

// messageLoop processes inbound coordination messages. It never performs
// blocking work inline; replies resolve through the pending table.
func (n *Node) messageLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-n.ch.Receive():
			if !ok {
				return errors.New("receive channel closed")
			}
			n.handleMessage(m)
		}
	}
}

func (n *Node) handleMessage(m *Message) {
	switch m.Type {
	case TypeImagePayload:
		n.pending.resolve(m.CorrelationID, m)

	case TypeCaptureReady:
		log.Debug("peer acknowledged capture request", "cid", m.CorrelationID)

	case TypeResult:
		var rep ResultReport
		if err := m.ParseData(&rep); err != nil {
			log.Warn("discarding malformed result echo", "error", err)
			return
		}
		log.Debug("peer result echo", "kind", rep.Kind, "cid", m.CorrelationID)

	case TypeControl:
		var c Control
		if err := m.ParseData(&c); err != nil {
			log.Warn("discarding malformed control directive", "error", err)
			return
		}
		switch c.Command {
		case CommandArm:
			if err := n.Arm(); err != nil {
				log.Error("arm on control directive", "error", err)
			}
		case CommandDisarm:
			n.Disarm()
		default:
			log.Warn("unknown control command", "command", c.Command)
		}

	case TypeShutdown:
		log.Info("shutdown requested by peer")
		n.cancel()

	default:
		log.Warn("discarding unexpected message", "type", m.Type)
	}
}

// triggerLoop is the low-latency trigger-detection path: it polls the
// capture device for frames and fires the shot cycle on ball departure.
func (n *Node) triggerLoop(ctx context.Context) error {
	ticker := time.NewTicker(n.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if !n.armed.Load() {
			continue
		}

		f, err := n.dev.Capture(ctx, n.opts.CaptureTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			if errors.Is(err, capture.ErrTimeout) {
				continue
			}
			log.Warn("local capture failed", "error", err)
			continue
		}

		ev, err := n.watcher.Observe(f)
		if err != nil {
			log.Warn("watch frame", "error", err)
			continue
		}

		switch ev {
		case EventBallPlaced:
			log.Debug("ball placed, stabilizing")
		case EventBallSteady:
			log.Info("ball steady, departure trigger armed")
		case EventDeparted:
			teed := n.watcher.AddressFrame()
			if teed.Empty() {
				log.Warn("departure without retained address frame, skipping cycle")
				continue
			}
			n.runCycle(ctx, teed)
		}
	}
}

// runCycle executes one shot cycle: strobe, peer capture, analysis,
// report. All per-cycle data is scoped here and discarded on return.
func (n *Node) runCycle(ctx context.Context, teed capture.Frame) {
	cyclesTotal.Inc()
	cid := uuid.NewString()
	log.Info("ball departed, cycle started", "cid", cid)

	// Trigger path first: the strobe pulses are time-critical and must
	// not wait on anything.
	if err := n.dev.FireStrobe(n.opts.ExposureCount, n.cal.StrobeInterval()); err != nil {
		n.failCycle(cid, fmt.Errorf("%w: strobe: %v", shot.ErrCaptureDevice, err))
		n.rearm()
		return
	}

	n.setState(StateAwaitingPeer)
	wait := n.pending.register(cid)

	req, err := NewMessage(TypeCaptureRequest, cid, CaptureRequest{
		ExposureCount: n.opts.ExposureCount,
		IntervalUS:    n.cal.StrobeIntervalUS,
	})
	if err != nil {
		n.pending.abandon(cid)
		n.failCycle(cid, fmt.Errorf("%w: %v", shot.ErrMalformedPayload, err))
		n.rearm()
		return
	}
	// Network send off the trigger path.
	go func() {
		if err := n.ch.Send(req); err != nil {
			log.Error("send capture request", "cid", cid, "error", err)
		}
	}()

	start := time.Now()
	timer := time.NewTimer(n.opts.PeerTimeout)
	defer timer.Stop()

	var reply *Message
	select {
	case <-ctx.Done():
		n.pending.abandon(cid)
		return
	case <-timer.C:
		n.pending.abandon(cid)
		n.failCycle(cid, fmt.Errorf("%w: no image after %s", shot.ErrPeerTimeout, n.opts.PeerTimeout))
		n.rearm()
		return
	case reply = <-wait:
	}
	peerRoundtrip.Observe(time.Since(start).Seconds())

	var payload ImagePayload
	if err := reply.ParseData(&payload); err != nil {
		n.failCycle(cid, err)
		n.rearm()
		return
	}
	strobeFrame, err := payload.Decode()
	if err != nil {
		n.failCycle(cid, err)
		n.rearm()
		return
	}

	n.setState(StateAnalyzing)
	analysisStart := time.Now()
	res, err := n.analyzer.Analyze(ctx, teed, analyze.StrobeFrame{
		Frame:     strobeFrame,
		Exposures: n.opts.ExposureCount,
	})
	analysisDuration.Observe(time.Since(analysisStart).Seconds())

	if ctx.Err() != nil {
		// Shutdown mid-analysis: no result is emitted.
		return
	}
	if err != nil {
		n.failCycle(cid, err)
		n.rearm()
		return
	}

	res.CorrelationID = cid
	n.report(res)
	n.rearm()
}

// failCycle reports a classified cycle failure. Never fatal.
func (n *Node) failCycle(cid string, err error) {
	kind := shot.KindForError(err)
	cycleFailures.WithLabelValues(string(kind)).Inc()
	log.Warn("shot cycle failed", "cid", cid, "kind", kind, "error", err)
	n.report(shot.Failure(kind, cid, err.Error()))
}

// report hands the result to the sink and echoes it to the peer. Both are
// fire-and-forget; neither blocks the state machine.
func (n *Node) report(res shot.Result) {
	n.setState(StateReporting)
	resultsPublished.Inc()

	go func() {
		if err := n.sink.Publish(res); err != nil {
			log.Warn("publish result", "cid", res.CorrelationID, "error", err)
		}
	}()

	msg, err := NewMessage(TypeResult, res.CorrelationID, ResultReport{Result: res})
	if err != nil {
		log.Error("encode result report", "error", err)
		return
	}
	go func() {
		if err := n.ch.Send(msg); err != nil {
			log.Warn("send result report", "error", err)
		}
	}()
}

// rearm returns the state machine to Armed (or Idle when the session was
// disarmed mid-cycle) and resets the watcher for the next ball.
func (n *Node) rearm() {
	n.watcher.Reset()
	if n.armed.Load() {
		n.setState(StateArmed)
	} else {
		n.setState(StateIdle)
	}
}
