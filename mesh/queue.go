package mesh

import (
	"bufio"
	"io"
	"sync"

	"go.dedis.ch/onet/v3/log"
	"golang.org/x/xerrors"
)

// Queue hands raw input from one producer to the polling loop. Push never
// waits for the consumer and Pop never waits for the producer. There is no
// bound on how many items it holds.
type Queue struct {
	sync.Mutex
	items  [][]byte
	closed bool
}

// NewQueue returns an empty, open queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Push appends a copy of data. It returns false once the queue is closed.
func (q *Queue) Push(data []byte) bool {
	q.Lock()
	defer q.Unlock()
	if q.closed {
		return false
	}
	q.items = append(q.items, append([]byte{}, data...))
	return true
}

// Pop returns the oldest item, or false if there is none right now.
func (q *Queue) Pop() ([]byte, bool) {
	q.Lock()
	defer q.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	data := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return data, true
}

// Close marks the end of input. Items already queued can still be popped.
func (q *Queue) Close() {
	q.Lock()
	q.closed = true
	q.Unlock()
}

// Done reports whether the queue is closed and empty.
func (q *Queue) Done() bool {
	q.Lock()
	defer q.Unlock()
	return q.closed && len(q.items) == 0
}

// Len returns the number of queued items.
func (q *Queue) Len() int {
	q.Lock()
	defer q.Unlock()
	return len(q.items)
}

// ReadLines pushes every line of r, trailing newline included, and closes q
// when r ends. A last line without newline is pushed as well. It returns nil
// on end of input.
func ReadLines(r io.Reader, q *Queue) error {
	defer q.Close()
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 {
			if !q.Push(line) {
				return nil
			}
		}
		if err == io.EOF {
			log.Lvl2("end of input")
			return nil
		}
		if err != nil {
			return xerrors.Errorf("reading input: %w", err)
		}
	}
}
