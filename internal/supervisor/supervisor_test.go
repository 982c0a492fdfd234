package supervisor

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/tascade-run/tascade/internal/engine"
	"github.com/tascade-run/tascade/internal/store/memory"
	"github.com/tascade-run/tascade/pkg/logger"
)

func newTestSupervisor(t *testing.T) (*Supervisor, *bytes.Buffer) {
	t.Helper()
	log := logger.New(logger.LoggingConfig{Level: "debug", Format: "text", Output: "stdout"})
	var buf bytes.Buffer
	log.SetOutput(&buf)
	eng := engine.New(memory.New(), log)
	return New(eng, DefaultConfig(), log), &buf
}

func TestDescriptorAdvertisesBackgroundLayer(t *testing.T) {
	s, _ := newTestSupervisor(t)
	d := s.Descriptor()
	if d.Name != "supervisor" {
		t.Fatalf("expected name supervisor, got %q", d.Name)
	}
	if string(d.Layer) != "background" {
		t.Fatalf("expected background layer, got %q", d.Layer)
	}
	if len(d.DependsOn) != 1 || d.DependsOn[0] != "engine" {
		t.Fatalf("expected DependsOn=[engine], got %v", d.DependsOn)
	}
}

func TestCacheGCTickLogsObservationHooks(t *testing.T) {
	s, buf := newTestSupervisor(t)
	s.cacheGCTick(context.Background())

	out := buf.String()
	if !strings.Contains(out, "supervisor tick started") {
		t.Fatalf("expected tick-start log, got: %s", out)
	}
	if !strings.Contains(out, "supervisor tick completed") {
		t.Fatalf("expected tick-complete log, got: %s", out)
	}
	if !strings.Contains(out, "cache_gc") {
		t.Fatalf("expected tick name cache_gc in log, got: %s", out)
	}
}

func TestSweepTickLogsObservationHooksWithNoProjects(t *testing.T) {
	s, buf := newTestSupervisor(t)
	s.sweepTick(context.Background())

	out := buf.String()
	if !strings.Contains(out, "supervisor tick started") {
		t.Fatalf("expected tick-start log, got: %s", out)
	}
	if !strings.Contains(out, "sweep") {
		t.Fatalf("expected tick name sweep in log, got: %s", out)
	}
}
