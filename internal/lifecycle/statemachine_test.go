package lifecycle_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tascade-run/tascade/internal/domain/task"
	"github.com/tascade-run/tascade/internal/lifecycle"
	"github.com/tascade-run/tascade/pkg/tascadeerr"
)

func TestFireUndefinedTransitionIsIllegal(t *testing.T) {
	table := lifecycle.NewTable()
	current := task.Task{State: task.Integrated, Version: 1}
	_, err := table.Fire(context.Background(), current, lifecycle.EventStart, lifecycle.TransitionContext{})
	require.Error(t, err)
	var terr *tascadeerr.Error
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, tascadeerr.IllegalTransition, terr.Code)
}

func TestFireAdvancesStateAndVersion(t *testing.T) {
	table := lifecycle.NewTable()
	current := task.Task{State: task.Claimed, Version: 3}
	next, err := table.Fire(context.Background(), current, lifecycle.EventStart, lifecycle.TransitionContext{ActorID: "agent-1"})
	require.NoError(t, err)
	assert.Equal(t, task.InProgress, next.State)
	assert.EqualValues(t, 4, next.Version)
}

func TestCanFireReflectsTable(t *testing.T) {
	table := lifecycle.NewTable()
	assert.True(t, table.CanFire(task.Claimed, lifecycle.EventStart))
	assert.False(t, table.CanFire(task.Integrated, lifecycle.EventStart))
}

func TestRegisteredGuardBlocksTransition(t *testing.T) {
	table := lifecycle.NewTable()
	table.RegisterGuard(task.Implemented, lifecycle.EventRequestIntegrate, func(ctx context.Context, t task.Task, tc lifecycle.TransitionContext) error {
		return tascadeerr.GateEvidenceRequiredErr("review")
	})
	current := task.Task{State: task.Implemented, Version: 1}
	_, err := table.Fire(context.Background(), current, lifecycle.EventRequestIntegrate, lifecycle.TransitionContext{})
	require.Error(t, err)
	assert.True(t, tascadeerr.Is(err, tascadeerr.GateEvidenceRequired))
}

func TestRegisteredEffectRunsBeforeStateApplied(t *testing.T) {
	table := lifecycle.NewTable()
	var sawState task.State
	table.RegisterEffect(task.Claimed, lifecycle.EventStart, func(ctx context.Context, t *task.Task, tc lifecycle.TransitionContext) error {
		sawState = t.State
		t.ClaimedBy = tc.ActorID
		return nil
	})
	current := task.Task{State: task.Claimed, Version: 1}
	next, err := table.Fire(context.Background(), current, lifecycle.EventStart, lifecycle.TransitionContext{ActorID: "agent-7"})
	require.NoError(t, err)
	assert.Equal(t, task.Claimed, sawState, "effect observes pre-transition state")
	assert.Equal(t, task.InProgress, next.State, "table applies the post-transition state regardless of effect mutation")
	assert.Equal(t, "agent-7", next.ClaimedBy)
}

func TestRegisterGuardOnUndefinedTransitionPanics(t *testing.T) {
	table := lifecycle.NewTable()
	assert.Panics(t, func() {
		table.RegisterGuard(task.Integrated, lifecycle.EventStart, func(ctx context.Context, t task.Task, tc lifecycle.TransitionContext) error {
			return nil
		})
	})
}

func TestConflictRetryReturnsToReady(t *testing.T) {
	table := lifecycle.NewTable()
	current := task.Task{State: task.Conflict, Version: 5}
	next, err := table.Fire(context.Background(), current, lifecycle.EventRetryFromConflict, lifecycle.TransitionContext{})
	require.NoError(t, err)
	assert.Equal(t, task.Ready, next.State)
}
