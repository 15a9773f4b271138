package execution

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testflow/testflow/errors"
)

func TestStatusTransitions(t *testing.T) {
	t.Run("queued can start or error", func(t *testing.T) {
		assert.True(t, StatusQueued.CanTransition(StatusRunning))
		assert.True(t, StatusQueued.CanTransition(StatusError))
		assert.False(t, StatusQueued.CanTransition(StatusCompleted))
	})

	t.Run("running can complete or error", func(t *testing.T) {
		assert.True(t, StatusRunning.CanTransition(StatusCompleted))
		assert.True(t, StatusRunning.CanTransition(StatusError))
		assert.False(t, StatusRunning.CanTransition(StatusQueued))
	})

	t.Run("terminal states allow nothing", func(t *testing.T) {
		for _, s := range []Status{StatusCompleted, StatusError} {
			assert.True(t, s.IsTerminal())
			for _, next := range []Status{StatusQueued, StatusRunning, StatusCompleted, StatusError} {
				assert.False(t, s.CanTransition(next), "%s -> %s must be illegal", s, next)
			}
		}
	})
}

func TestExecutionLifecycle(t *testing.T) {
	t.Run("new execution is queued with empty steps", func(t *testing.T) {
		e := New("proj-1", "tc-1", "user@example.com", "staging")
		assert.Equal(t, StatusQueued, e.Status)
		assert.Empty(t, e.Steps)
		assert.Empty(t, e.Screenshots)
		assert.Empty(t, e.Result)
		assert.False(t, e.StartTime.IsZero())
	})

	t.Run("finish from running sets result and timing", func(t *testing.T) {
		e := New("proj-1", "tc-1", "user@example.com", "")
		require.NoError(t, e.Start())
		require.NoError(t, e.Finish(ResultPass, ""))

		assert.Equal(t, StatusCompleted, e.Status)
		assert.Equal(t, ResultPass, e.Result)
		require.NotNil(t, e.EndTime)
		assert.False(t, e.EndTime.Before(e.StartTime))
	})

	t.Run("error result is legal straight from queued", func(t *testing.T) {
		e := New("proj-1", "tc-1", "user@example.com", "")
		require.NoError(t, e.Finish(ResultError, "browser crashed before start"))
		assert.Equal(t, StatusError, e.Status)
		assert.Equal(t, ResultError, e.Result)
	})

	t.Run("pass result is illegal from queued", func(t *testing.T) {
		e := New("proj-1", "tc-1", "user@example.com", "")
		err := e.Finish(ResultPass, "")
		require.Error(t, err)
		assert.True(t, errors.IsInvalidRequestError(err))
		assert.Equal(t, StatusQueued, e.Status)
	})

	t.Run("terminal execution rejects further transitions", func(t *testing.T) {
		e := New("proj-1", "tc-1", "user@example.com", "")
		require.NoError(t, e.Start())
		require.NoError(t, e.Finish(ResultFail, ""))

		assert.Error(t, e.Start())
		assert.Error(t, e.Finish(ResultPass, ""))
		assert.Equal(t, StatusCompleted, e.Status)
		assert.Equal(t, ResultFail, e.Result)
	})
}

func TestAppendStep(t *testing.T) {
	t.Run("steps are indexed in order and screenshots tracked", func(t *testing.T) {
		e := New("proj-1", "tc-1", "user@example.com", "")
		require.NoError(t, e.Start())

		require.NoError(t, e.AppendStep(Step{Action: "navigate", Status: StepPass}))
		require.NoError(t, e.AppendStep(Step{Action: "click", Status: StepFail, Screenshot: "shots/click.png"}))

		require.Len(t, e.Steps, 2)
		assert.Equal(t, 0, e.Steps[0].Index)
		assert.Equal(t, 1, e.Steps[1].Index)
		assert.Equal(t, []string{"shots/click.png"}, e.Screenshots)
	})

	t.Run("terminal execution rejects steps", func(t *testing.T) {
		e := New("proj-1", "tc-1", "user@example.com", "")
		require.NoError(t, e.Finish(ResultError, "gone"))
		assert.Error(t, e.AppendStep(Step{Action: "navigate", Status: StepPass}))
	})
}

func TestCompletedSteps(t *testing.T) {
	e := New("proj-1", "tc-1", "user@example.com", "")
	require.NoError(t, e.Start())
	require.NoError(t, e.AppendStep(Step{Action: "navigate", Status: StepPass}))
	require.NoError(t, e.AppendStep(Step{Action: "click", Status: StepError}))

	assert.Equal(t, 2, e.CompletedSteps())
}

func TestLiveDuration(t *testing.T) {
	t.Run("in-flight executions estimate from now", func(t *testing.T) {
		e := New("proj-1", "tc-1", "user@example.com", "")
		now := e.StartTime.Add(1500 * time.Millisecond)
		assert.Equal(t, int64(1500), e.LiveDuration(now))
	})

	t.Run("finished executions return stored duration", func(t *testing.T) {
		e := New("proj-1", "tc-1", "user@example.com", "")
		require.NoError(t, e.Start())
		require.NoError(t, e.Finish(ResultPass, ""))
		stored := e.DurationMS
		assert.Equal(t, stored, e.LiveDuration(time.Now().Add(time.Hour)))
	})
}
