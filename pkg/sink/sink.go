// Package sink delivers finished shot results to their consumers: log,
// simulator, shot history, live dashboard feed.
package sink

import (
	"encoding/json"
	"fmt"

	"github.com/fairwaylab/strobeshot/internal/httpc"
	"github.com/fairwaylab/strobeshot/internal/log"
	"github.com/fairwaylab/strobeshot/pkg/shot"
)

// Sink consumes published shot results. Publish is fire-and-forget from
// the coordination layer's perspective: an error is reported, never allowed
// to block or fail the state machine.
type Sink interface {
	Publish(res shot.Result) error
}

// LogSink writes results to the structured log.
type LogSink struct{}

// Publish implements Sink.
func (LogSink) Publish(res shot.Result) error {
	if res.Kind.OK() {
		log.Info("shot result",
			"kind", res.Kind,
			"speed_mph", res.SpeedMPH(),
			"launch_deg", res.LaunchAngleDeg,
			"side_deg", res.SideAngleDeg,
			"back_spin_rpm", res.BackSpinRPM,
			"side_spin_rpm", res.SideSpinRPM,
			"carry_yd", res.CarryYards(),
			"cid", res.CorrelationID)
		return nil
	}
	log.Info("shot cycle failed", "kind", res.Kind, "message", res.Message, "cid", res.CorrelationID)
	return nil
}

// HTTPSink POSTs results to a simulator endpoint as JSON.
type HTTPSink struct {
	URL string
}

// Publish implements Sink.
func (s HTTPSink) Publish(res shot.Result) error {
	body, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	resp, err := httpc.Post(s.URL, "application/json", body)
	if err != nil {
		return fmt.Errorf("post result to simulator: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("simulator rejected result: %s", resp.Status)
	}
	return nil
}

// Multi fans a result out to several sinks. Errors are logged per sink and
// the first is returned.
type Multi []Sink

// Publish implements Sink.
func (m Multi) Publish(res shot.Result) error {
	var first error
	for _, s := range m {
		if err := s.Publish(res); err != nil {
			log.Warn("sink publish failed", "error", err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}
