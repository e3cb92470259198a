package analytics

import (
	"context"

	"github.com/dealeros/carbot/agent/contract"
)

// MultiSink fans one event out to every configured sink. Emit stays
// non-blocking as long as each child sink honors the same contract.
type MultiSink struct {
	sinks []contract.Sink
}

func NewMultiSink(sinks ...contract.Sink) *MultiSink {
	var active []contract.Sink
	for _, s := range sinks {
		if s != nil {
			active = append(active, s)
		}
	}
	return &MultiSink{sinks: active}
}

func (m *MultiSink) Emit(ctx context.Context, ev contract.Event) {
	for _, s := range m.sinks {
		s.Emit(ctx, ev)
	}
}

// NopSink drops every event. Used when no analytics backend is configured.
type NopSink struct{}

func (NopSink) Emit(ctx context.Context, ev contract.Event) {}
