// Package framelog is an append-only log of node states.
//
// The file is a sequence of frames, each a 4-byte big-endian length followed
// by that many bytes of node.Encode output. Frames are never rewritten nor
// removed. Because every stored byte is already a leaf literal, reading a
// frame back decodes it into the tree of those literals.
package framelog

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"

	"go.dedis.ch/hey"
	"go.dedis.ch/hey/node"
	"go.dedis.ch/onet/v3/log"
	"golang.org/x/xerrors"
)

// MaxFrameSize bounds the payload of a frame, both when appending and when
// reading.
const MaxFrameSize = 1 << 26

const prefixSize = 4

// ErrCorruptFrame is matched by every CorruptFrameError.
var ErrCorruptFrame = xerrors.New("corrupt frame")

// ErrFrameTooLarge is returned by Append for a state whose encoding exceeds
// the frame size limit.
var ErrFrameTooLarge = xerrors.New("frame too large")

// CorruptFrameError reports a frame that cannot be read back.
type CorruptFrameError struct {
	// Index is the zero-based number of the frame.
	Index int
	// Offset is where the frame starts in the file.
	Offset int64
	Reason string
}

func (e *CorruptFrameError) Error() string {
	return fmt.Sprintf("%v %d at offset %d: %s", ErrCorruptFrame, e.Index, e.Offset, e.Reason)
}

// Is makes xerrors.Is(err, ErrCorruptFrame) hold.
func (e *CorruptFrameError) Is(target error) bool {
	return target == ErrCorruptFrame
}

// Store is a frame log backed by a file.
type Store struct {
	sync.Mutex
	path     string
	file     *os.File
	// maxFrame is MaxFrameSize, lowered in tests.
	maxFrame int
}

// Open opens the log at path, creating it if it does not exist. An existing
// file is kept as is.
func Open(path string) (*Store, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return nil, hey.ErrorOrNil(err, "opening frame log")
	}
	return &Store{path: path, file: f, maxFrame: MaxFrameSize}, nil
}

// Path returns the file the store writes to.
func (s *Store) Path() string {
	return s.path
}

// Append writes n as one frame at the end of the log and syncs the file.
func (s *Store) Append(n node.Node) error {
	payload := node.Encode(n)
	if len(payload) > s.maxFrame {
		return xerrors.Errorf("%d bytes, limit %d: %w", len(payload), s.maxFrame, ErrFrameTooLarge)
	}
	buf := make([]byte, prefixSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[prefixSize:], payload)

	s.Lock()
	defer s.Unlock()
	if _, err := s.file.Write(buf); err != nil {
		return hey.ErrorOrNil(err, "appending frame")
	}
	if err := s.file.Sync(); err != nil {
		return hey.ErrorOrNil(err, "syncing frame log")
	}
	log.Lvlf3("appended frame of %d bytes to %s", len(payload), s.path)
	return nil
}

// Iterate returns an iterator over the frames present when it is called,
// starting from the first one. Iterators are independent of each other and
// of later appends.
func (s *Store) Iterate() (*Iterator, error) {
	s.Lock()
	defer s.Unlock()
	fi, err := s.file.Stat()
	if err != nil {
		return nil, hey.ErrorOrNil(err, "reading frame log size")
	}
	r := io.NewSectionReader(s.file, 0, fi.Size())
	return &Iterator{r: bufio.NewReader(r), maxFrame: s.maxFrame}, nil
}

// Frames counts the frames of the log. It fails on the first corrupt frame.
func (s *Store) Frames() (int, error) {
	it, err := s.Iterate()
	if err != nil {
		return 0, err
	}
	count := 0
	for {
		_, err := it.Next()
		if err == io.EOF {
			return count, nil
		}
		if err != nil {
			return count, err
		}
		count++
	}
}

// Close closes the underlying file.
func (s *Store) Close() error {
	s.Lock()
	defer s.Unlock()
	return hey.ErrorOrNil(s.file.Close(), "closing frame log")
}

// Iterator reads frames in the order they were appended.
type Iterator struct {
	r        *bufio.Reader
	maxFrame int
	index    int
	offset   int64
	err      error
}

// Next returns the next stored state. It returns io.EOF after the last
// complete frame and a *CorruptFrameError if the log ends inside a frame.
// Once an error is returned, every later call returns it too.
func (it *Iterator) Next() (node.Node, error) {
	if it.err != nil {
		return nil, it.err
	}
	n, err := it.next()
	if err != nil {
		it.err = err
		return nil, err
	}
	it.index++
	return n, nil
}

func (it *Iterator) next() (node.Node, error) {
	var prefix [prefixSize]byte
	read, err := io.ReadFull(it.r, prefix[:])
	switch {
	case err == io.EOF:
		return nil, io.EOF
	case err == io.ErrUnexpectedEOF:
		return nil, it.corrupt(fmt.Sprintf("truncated length prefix (%d of %d bytes)", read, prefixSize))
	case err != nil:
		return nil, hey.ErrorOrNil(err, "reading frame prefix")
	}

	length := binary.BigEndian.Uint32(prefix[:])
	if length == 0 {
		return nil, it.corrupt("empty frame")
	}
	if int64(length) > int64(it.maxFrame) {
		return nil, it.corrupt(fmt.Sprintf("length %d above maximum %d", length, it.maxFrame))
	}
	payload := make([]byte, length)
	read, err = io.ReadFull(it.r, payload)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return nil, it.corrupt(fmt.Sprintf("truncated payload (%d of %d bytes)", read, length))
	}
	if err != nil {
		return nil, hey.ErrorOrNil(err, "reading frame payload")
	}

	n, err := node.FromBytes(payload)
	if err != nil {
		return nil, it.corrupt(err.Error())
	}
	it.offset += int64(prefixSize) + int64(length)
	return n, nil
}

func (it *Iterator) corrupt(reason string) error {
	return &CorruptFrameError{Index: it.index, Offset: it.offset, Reason: reason}
}
