package queue

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tftest "github.com/testflow/testflow/internal/testing"
)

func TestPublishDequeueAck(t *testing.T) {
	q := New(tftest.CreateTestDB(t))

	body := json.RawMessage(`{"test_case_id":"tc-1"}`)
	require.NoError(t, q.Publish("ex_1", body))

	msg, err := q.Dequeue()
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "ex_1", msg.ExecutionID)
	assert.JSONEq(t, string(body), string(msg.Body))
	assert.Equal(t, 1, msg.Attempts)

	require.NoError(t, q.Ack(msg.ID))

	// Queue drained
	msg, err = q.Dequeue()
	require.NoError(t, err)
	assert.Nil(t, msg)
}

func TestDequeueOrder(t *testing.T) {
	q := New(tftest.CreateTestDB(t))

	require.NoError(t, q.Publish("ex_1", json.RawMessage(`{}`)))
	require.NoError(t, q.Publish("ex_2", json.RawMessage(`{}`)))

	first, err := q.Dequeue()
	require.NoError(t, err)
	second, err := q.Dequeue()
	require.NoError(t, err)

	assert.Equal(t, "ex_1", first.ExecutionID, "oldest message delivered first")
	assert.Equal(t, "ex_2", second.ExecutionID)
}

func TestMaxInFlight(t *testing.T) {
	q := New(tftest.CreateTestDB(t))
	q.SetMaxInFlight(1)

	require.NoError(t, q.Publish("ex_1", json.RawMessage(`{}`)))
	require.NoError(t, q.Publish("ex_2", json.RawMessage(`{}`)))

	first, err := q.Dequeue()
	require.NoError(t, err)
	require.NotNil(t, first)

	// Bound reached: second message stays ready until the first is acked
	blocked, err := q.Dequeue()
	require.NoError(t, err)
	assert.Nil(t, blocked)

	require.NoError(t, q.Ack(first.ID))

	second, err := q.Dequeue()
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, "ex_2", second.ExecutionID)
}

func TestPublishRequiresExecutionID(t *testing.T) {
	q := New(tftest.CreateTestDB(t))
	assert.Error(t, q.Publish("", json.RawMessage(`{}`)))
}

func TestRedelivery(t *testing.T) {
	t.Run("inflight message with live lease is not redelivered", func(t *testing.T) {
		q := New(tftest.CreateTestDB(t))
		require.NoError(t, q.Publish("ex_1", json.RawMessage(`{}`)))

		_, err := q.Dequeue()
		require.NoError(t, err)

		again, err := q.Dequeue()
		require.NoError(t, err)
		assert.Nil(t, again)
	})

	t.Run("expired lease makes the message deliverable again", func(t *testing.T) {
		q := New(tftest.CreateTestDB(t))
		q.SetRedeliverAfter(10 * time.Millisecond)
		require.NoError(t, q.Publish("ex_1", json.RawMessage(`{}`)))

		first, err := q.Dequeue()
		require.NoError(t, err)
		require.NotNil(t, first)

		time.Sleep(20 * time.Millisecond)

		second, err := q.Dequeue()
		require.NoError(t, err)
		require.NotNil(t, second, "at-least-once: unacked message redelivered")
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, 2, second.Attempts)
	})

	t.Run("nack makes the message immediately deliverable", func(t *testing.T) {
		q := New(tftest.CreateTestDB(t))
		require.NoError(t, q.Publish("ex_1", json.RawMessage(`{}`)))

		msg, err := q.Dequeue()
		require.NoError(t, err)
		require.NoError(t, q.Nack(msg.ID))

		again, err := q.Dequeue()
		require.NoError(t, err)
		require.NotNil(t, again)
		assert.Equal(t, msg.ID, again.ID)
	})
}

func TestDepth(t *testing.T) {
	q := New(tftest.CreateTestDB(t))

	require.NoError(t, q.Publish("ex_1", json.RawMessage(`{}`)))
	require.NoError(t, q.Publish("ex_2", json.RawMessage(`{}`)))
	_, err := q.Dequeue()
	require.NoError(t, err)

	ready, inflight, err := q.Depth()
	require.NoError(t, err)
	assert.Equal(t, 1, ready)
	assert.Equal(t, 1, inflight)
}

func TestSubscribe(t *testing.T) {
	q := New(tftest.CreateTestDB(t))
	ch := q.Subscribe()

	require.NoError(t, q.Publish("ex_1", json.RawMessage(`{"k":"v"}`)))

	select {
	case msg := <-ch:
		assert.Equal(t, "ex_1", msg.ExecutionID)
	case <-time.After(time.Second):
		t.Fatal("subscriber was not notified of published message")
	}
}

func TestAckUnknownMessage(t *testing.T) {
	q := New(tftest.CreateTestDB(t))
	assert.Error(t, q.Ack(42))
	assert.Error(t, q.Nack(42))
}
