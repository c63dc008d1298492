package connection

import (
	"errors"
	"sync"

	"github.com/rickgao/livelink/internal/queue"
	"github.com/rickgao/livelink/internal/transport"
)

// controlBuffer bounds pings and pongs waiting for the writer.
const controlBuffer = 16

var (
	errWriterStopped  = errors.New("writer stopped")
	errControlBacklog = errors.New("control frame backlog full")
)

// writer owns every write to one connection. Application payloads are
// drained from the manager's queue so they go out in Send order; control
// frames are written ahead of them and never queued.
//
// A writer starts writing only after the previous connection's writer has
// exited, so two writers never drain the queue at the same time.
type writer struct {
	conn    transport.Conn
	queue   *queue.Queue
	prev    *writer
	fail    func(error)
	wake    chan struct{}
	control chan []byte

	stopOnce sync.Once
	done     chan struct{}
	exited   chan struct{}
}

func newWriter(conn transport.Conn, q *queue.Queue, prev *writer, fail func(error)) *writer {
	return &writer{
		conn:    conn,
		queue:   q,
		prev:    prev,
		fail:    fail,
		wake:    make(chan struct{}, 1),
		control: make(chan []byte, controlBuffer),
		done:    make(chan struct{}),
		exited:  make(chan struct{}),
	}
}

// notify asks the writer to drain the queue. It never blocks.
func (w *writer) notify() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// sendControl hands a control frame to the writer without blocking.
func (w *writer) sendControl(data []byte) error {
	select {
	case <-w.done:
		return transport.ErrNotConnected
	default:
	}
	select {
	case w.control <- data:
		return nil
	default:
		return errControlBacklog
	}
}

func (w *writer) stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

func (w *writer) stopped() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

func (w *writer) run() {
	defer close(w.exited)

	if w.prev != nil {
		select {
		case <-w.prev.exited:
		case <-w.done:
			return
		}
		w.prev = nil
	}

	for {
		select {
		case <-w.done:
			return
		case data := <-w.control:
			if err := w.conn.Send(data); err != nil {
				w.fail(err)
				return
			}
		case <-w.wake:
			if _, err := w.queue.Flush(w.write); err != nil {
				w.fail(err)
				return
			}
		}
	}
}

// write sends one queued payload, letting pending control frames go first.
// An error puts the payload back at the front of the queue.
func (w *writer) write(payload []byte) error {
	for {
		if w.stopped() {
			return errWriterStopped
		}
		select {
		case data := <-w.control:
			if err := w.conn.Send(data); err != nil {
				return err
			}
			continue
		default:
		}
		return w.conn.Send(payload)
	}
}
