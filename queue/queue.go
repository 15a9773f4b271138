// Package queue provides the at-least-once work queue that carries execution
// instructions to the worker pool. Messages are persisted in SQLite; a
// dequeued message that is never acked becomes eligible for redelivery after
// a lease timeout. Consumer idempotency is the worker's responsibility.
package queue

import (
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/testflow/testflow/errors"
)

const (
	// SubscriberChannelBufferSize is the buffer size for subscriber channels
	SubscriberChannelBufferSize = 100

	// DefaultRedeliverAfter is the lease duration before an unacked message
	// becomes deliverable again
	DefaultRedeliverAfter = 5 * time.Minute
)

// Message states in the work_messages table
const (
	stateReady    = "ready"
	stateInflight = "inflight"
)

// Message is one unit of work: an instruction to perform one execution.
// Body is opaque to the queue; the lifecycle manager owns its structure.
type Message struct {
	ID          int64           `json:"id"`
	ExecutionID string          `json:"execution_id"`
	Body        json.RawMessage `json:"body"`
	Attempts    int             `json:"attempts"`
	EnqueuedAt  time.Time       `json:"enqueued_at"`
	LeasedAt    *time.Time      `json:"leased_at,omitempty"`
}

// Publisher is the write side of the queue, the only part the lifecycle
// manager depends on.
type Publisher interface {
	Publish(executionID string, body json.RawMessage) error
}

// Queue is a SQLite-backed at-least-once message queue
type Queue struct {
	db             *sql.DB
	redeliverAfter time.Duration
	maxInFlight    int // 0 = unbounded
	mu             sync.RWMutex
	subscribers    []chan *Message // channels notified of published work
}

var _ Publisher = (*Queue)(nil)

// New creates a work queue over the given database
func New(db *sql.DB) *Queue {
	return &Queue{
		db:             db,
		redeliverAfter: DefaultRedeliverAfter,
		subscribers:    make([]chan *Message, 0),
	}
}

// SetRedeliverAfter overrides the lease duration before unacked messages are
// redelivered
func (q *Queue) SetRedeliverAfter(d time.Duration) {
	q.redeliverAfter = d
}

// SetMaxInFlight bounds how many messages may be leased but unacked at once.
// 0 means unbounded.
func (q *Queue) SetMaxInFlight(n int) {
	q.maxInFlight = n
}

// Publish appends a work message for the given execution
func (q *Queue) Publish(executionID string, body json.RawMessage) error {
	if executionID == "" {
		return errors.NewInvalidRequestError("work message requires an execution id")
	}

	now := time.Now().UTC()
	result, err := q.db.Exec(`
		INSERT INTO work_messages (execution_id, body, state, attempts, enqueued_at)
		VALUES (?, ?, ?, 0, ?)
	`, executionID, string(body), stateReady, now)
	if err != nil {
		err = errors.Wrap(err, "failed to publish work message")
		return errors.WithDetailf(err, "Execution ID: %s", executionID)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "failed to read published message id")
	}

	q.notifySubscribers(&Message{
		ID:          id,
		ExecutionID: executionID,
		Body:        body,
		EnqueuedAt:  now,
	})

	return nil
}

// Dequeue leases the next deliverable message: the oldest ready message, or
// an inflight one whose lease has expired (at-least-once redelivery).
// Returns nil when no work is available.
func (q *Queue) Dequeue() (*Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now().UTC()
	leaseCutoff := now.Add(-q.redeliverAfter)

	if q.maxInFlight > 0 {
		// Expired leases don't count against the bound; they are
		// redeliverable, not held.
		var held int
		err := q.db.QueryRow(`
			SELECT COUNT(*) FROM work_messages
			WHERE state = ? AND leased_at >= ?
		`, stateInflight, leaseCutoff).Scan(&held)
		if err != nil {
			return nil, errors.Wrap(err, "failed to count inflight work messages")
		}
		if held >= q.maxInFlight {
			return nil, nil
		}
	}

	var msg Message
	var body string
	var leasedAt sql.NullTime
	err := q.db.QueryRow(`
		SELECT id, execution_id, body, attempts, enqueued_at, leased_at
		FROM work_messages
		WHERE state = ? OR (state = ? AND leased_at < ?)
		ORDER BY enqueued_at ASC, id ASC
		LIMIT 1
	`, stateReady, stateInflight, leaseCutoff).Scan(
		&msg.ID, &msg.ExecutionID, &body, &msg.Attempts, &msg.EnqueuedAt, &leasedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // no work available
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to dequeue work message")
	}
	msg.Body = json.RawMessage(body)

	_, err = q.db.Exec(`
		UPDATE work_messages
		SET state = ?, attempts = attempts + 1, leased_at = ?
		WHERE id = ?
	`, stateInflight, now, msg.ID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to lease work message")
	}

	msg.Attempts++
	msg.LeasedAt = &now
	return &msg, nil
}

// Ack removes a delivered message from the queue
func (q *Queue) Ack(id int64) error {
	result, err := q.db.Exec(`DELETE FROM work_messages WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "failed to ack work message")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.NewNotFoundError("work message not found: %d", id)
	}
	return nil
}

// Nack returns an inflight message to the ready state for immediate
// redelivery
func (q *Queue) Nack(id int64) error {
	result, err := q.db.Exec(`
		UPDATE work_messages
		SET state = ?, leased_at = NULL
		WHERE id = ? AND state = ?
	`, stateReady, id, stateInflight)
	if err != nil {
		return errors.Wrap(err, "failed to nack work message")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.NewNotFoundError("inflight work message not found: %d", id)
	}
	return nil
}

// Depth returns the number of messages awaiting delivery or ack
func (q *Queue) Depth() (ready int, inflight int, err error) {
	err = q.db.QueryRow(`
		SELECT
			COUNT(CASE WHEN state = ? THEN 1 END),
			COUNT(CASE WHEN state = ? THEN 1 END)
		FROM work_messages
	`, stateReady, stateInflight).Scan(&ready, &inflight)
	if err != nil {
		return 0, 0, errors.Wrap(err, "failed to read queue depth")
	}
	return ready, inflight, nil
}

// Subscribe returns a channel that receives newly published messages.
// Delivery on the channel is best effort (slow subscribers miss
// notifications); the database remains the source of truth.
func (q *Queue) Subscribe() <-chan *Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	ch := make(chan *Message, SubscriberChannelBufferSize)
	q.subscribers = append(q.subscribers, ch)
	return ch
}

// notifySubscribers sends a message to all subscribers without blocking
func (q *Queue) notifySubscribers(msg *Message) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	for _, ch := range q.subscribers {
		select {
		case ch <- msg:
		default:
			// Subscriber buffer full; it will catch up from the database
		}
	}
}
