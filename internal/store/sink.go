package store

import (
	"context"
	"time"

	"github.com/fairwaylab/strobeshot/pkg/shot"
)

// Sink adapts a Store to the reporting sink contract.
type Sink struct {
	store *Store
}

// NewSink wraps s as a publish target.
func NewSink(s *Store) *Sink { return &Sink{store: s} }

// Publish records the result. Bounded so a wedged disk cannot stall the
// publisher.
func (s *Sink) Publish(res shot.Result) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.store.Insert(ctx, res)
}
