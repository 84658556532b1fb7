package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"demoreel/internal/analysis"
	"demoreel/internal/protocol"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.MessageProcessed(protocol.KindPlayer)
	m.MessageProcessed(protocol.KindPlayer)
	m.MessageProcessed(protocol.KindGameEvent)
	m.TraceEmitted()
	m.CorrelationMissed(analysis.MissSameVictim)
	m.RunFinished(time.Second, nil)
	m.RunFinished(time.Second, errors.New("boom"))
	m.Rejected("rate_limit")
	m.WSConnected()
	m.WSConnected()
	m.WSDisconnected()

	if got := testutil.ToFloat64(m.messages.WithLabelValues(protocol.KindPlayer.String())); got != 2 {
		t.Fatalf("player messages=%v", got)
	}
	if got := testutil.ToFloat64(m.traces); got != 1 {
		t.Fatalf("traces=%v", got)
	}
	if got := testutil.ToFloat64(m.misses.WithLabelValues(string(analysis.MissSameVictim))); got != 1 {
		t.Fatalf("misses=%v", got)
	}
	if got := testutil.ToFloat64(m.runs.WithLabelValues("error")); got != 1 {
		t.Fatalf("error runs=%v", got)
	}
	if got := testutil.ToFloat64(m.wsActive); got != 1 {
		t.Fatalf("ws active=%v", got)
	}
	if n, err := testutil.GatherAndCount(reg, "demoreel_runs_total"); err != nil || n != 2 {
		t.Fatalf("runs series=%d err=%v", n, err)
	}
}

func TestMetrics_RunsAsPipelineObserver(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	p := analysis.New(protocol.Header{}, analysis.Config{Observer: m})
	if _, err := p.Process(protocol.Message{Kind: protocol.KindWorld, Tick: 1, World: &protocol.WorldMsg{}}); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got := testutil.ToFloat64(m.messages.WithLabelValues(protocol.KindWorld.String())); got != 1 {
		t.Fatalf("world messages=%v", got)
	}
}
