package eventlog_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tascade-run/tascade/internal/domain/event"
	"github.com/tascade-run/tascade/internal/eventlog"
)

func TestHubPublishDeliversToMatchingSubscriber(t *testing.T) {
	hub := eventlog.NewHub()
	ch := hub.Subscribe("proj-1")

	hub.Publish(event.Entry{ID: 1, ProjectID: "proj-1", EventType: "task.created"})

	select {
	case got := <-ch:
		assert.Equal(t, int64(1), got.ID)
		assert.Equal(t, "task.created", got.EventType)
	case <-time.After(time.Second):
		t.Fatal("expected event was not delivered")
	}
}

func TestHubPublishSkipsOtherProjects(t *testing.T) {
	hub := eventlog.NewHub()
	ch := hub.Subscribe("proj-1")

	hub.Publish(event.Entry{ID: 1, ProjectID: "proj-2", EventType: "task.created"})

	select {
	case got := <-ch:
		t.Fatalf("unexpected delivery for a different project: %+v", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubPublishDropsOnFullChannelWithoutBlocking(t *testing.T) {
	hub := eventlog.NewHub()
	ch := hub.Subscribe("proj-1")

	// Fill the channel's buffer beyond capacity; Publish must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			hub.Publish(event.Entry{ID: int64(i), ProjectID: "proj-1"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber channel")
	}
	require.NotNil(t, ch)
}
