package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"maragu.dev/goqite"
)

// ErrNoMessage is returned when the queue is empty.
var ErrNoMessage = errors.New("no messages in queue")

// Manager is a thin wrapper around a single named goqite queue. It carries
// no business logic: callers marshal/unmarshal their own stage-specific
// message type (TaskMessage, FileMessage, ExtractMessage, RenameMessage).
type Manager struct {
	q    *goqite.Queue
	name string
}

// NewManager opens (creating if absent) the named goqite queue against db.
// db is expected to be the Catalog's shared *sql.DB. NewManager runs
// goqite.Setup itself and tolerates an "already exists" error, so it is safe
// to call once per queue name against the same database.
func NewManager(db *sql.DB, queueName string) (*Manager, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := goqite.Setup(ctx, db); err != nil {
		if !strings.Contains(err.Error(), "already exists") {
			return nil, err
		}
	}

	q := goqite.New(goqite.NewOpts{DB: db, Name: queueName})

	return &Manager{q: q, name: queueName}, nil
}

// Enqueue marshals payload as JSON and sends it to the queue.
func (m *Manager) Enqueue(ctx context.Context, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return m.q.Send(ctx, goqite.Message{Body: data})
}

// Receive pulls the next message, unmarshaling its body into out. The
// returned deleteFn must be called once processing succeeds; leaving it
// uncalled lets the message become visible again after the queue's
// visibility timeout, which is how crash-resumption recovers in-flight work.
func (m *Manager) Receive(ctx context.Context, out interface{}) (deleteFn func(context.Context) error, err error) {
	gMsg, err := m.q.Receive(ctx)
	if err != nil {
		return nil, err
	}
	if gMsg == nil {
		return nil, ErrNoMessage
	}

	if err := json.Unmarshal(gMsg.Body, out); err != nil {
		return nil, err
	}

	id := gMsg.ID
	deleteFn = func(ctx context.Context) error {
		return m.q.Delete(ctx, id)
	}

	return deleteFn, nil
}

// Extend extends the visibility timeout for a long-running message.
func (m *Manager) Extend(ctx context.Context, id goqite.ID, d time.Duration) error {
	return m.q.Extend(ctx, id, d)
}

// Name returns the queue's goqite queue name.
func (m *Manager) Name() string {
	return m.name
}

// Close is a no-op: goqite holds no resources beyond the shared *sql.DB.
func (m *Manager) Close() error {
	return nil
}
