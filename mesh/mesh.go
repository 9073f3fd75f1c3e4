// Package mesh lets nodes on one host find each other over UDP.
//
// A node serves on the port derived from its current state (see Port). While
// the port is taken, the node folds a one bit into its state and derives a
// new port. The node whose port equals the port of the root literal is the
// root: every other node announces its encoded state there, and the root
// answers with the Hello literal so both sides know each other. From then on
// every datagram received is folded into the state, and every line of input
// is folded in and forwarded, unchanged, to all known peers.
//
// The mesh runs as a single polling loop; the only other goroutine is the
// input producer, which talks to the loop through a Queue.
package mesh

import (
	"bytes"
	"context"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.dedis.ch/hey"
	"go.dedis.ch/hey/evolve"
	"go.dedis.ch/hey/node"
	"go.dedis.ch/onet/v3/log"
	"golang.org/x/xerrors"
)

// DefaultTick is how long one polling round waits for a datagram.
const DefaultTick = 20 * time.Millisecond

// Config holds the network settings of a mesh node.
type Config struct {
	// Host is the address the socket binds to.
	Host string
	// PeerHost is where the root node is expected.
	PeerHost string
	// Tick is the polling interval.
	Tick time.Duration
	// Root is the root literal; hey.Root if empty.
	Root []byte
}

func (c *Config) setDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.PeerHost == "" {
		c.PeerHost = "127.0.0.1"
	}
	if c.Tick <= 0 {
		c.Tick = DefaultTick
	}
	if len(c.Root) == 0 {
		c.Root = hey.Root
	}
}

// Recorder receives every new state, e.g. a *framelog.Store.
type Recorder interface {
	Append(node.Node) error
}

// PeerBook persists the peer set, e.g. a *peerstore.Store.
type PeerBook interface {
	Add(addr string, acknowledged bool) (bool, error)
	Addresses() ([]string, error)
}

// ListenFunc opens a packet socket, like net.ListenPacket.
type ListenFunc func(network, address string) (net.PacketConn, error)

// Option configures a Mesh.
type Option func(*Mesh)

// WithRecorder appends every state the node passes through to r.
func WithRecorder(r Recorder) Option {
	return func(m *Mesh) { m.recorder = r }
}

// WithPeerBook loads known peers from b and stores every new one in it.
func WithPeerBook(b PeerBook) Option {
	return func(m *Mesh) { m.book = b }
}

// WithListener replaces net.ListenPacket.
func WithListener(l ListenFunc) Option {
	return func(m *Mesh) { m.listen = l }
}

// Mesh is one node of the mesh. Its state is only changed by Bind and
// Serve; the accessors may be called from any goroutine.
type Mesh struct {
	sync.Mutex
	cfg      Config
	ev       *evolve.Evolver
	state    node.Node
	rootPort int

	conn net.PacketConn
	port int
	root bool

	peers     map[string]net.Addr
	inputDone bool

	recorder Recorder
	book     PeerBook
	listen   ListenFunc
}

// New returns an unbound node starting from state.
func New(state node.Node, ev *evolve.Evolver, cfg Config, opts ...Option) (*Mesh, error) {
	if state == nil {
		return nil, xerrors.New("nil initial state")
	}
	if ev == nil {
		ev = evolve.New()
	}
	cfg.setDefaults()
	m := &Mesh{
		cfg:      cfg,
		ev:       ev,
		state:    state,
		rootPort: RootPort(cfg.Root),
		peers:    make(map[string]net.Addr),
		listen:   net.ListenPacket,
	}
	for _, opt := range opts {
		opt(m)
	}
	if err := m.loadPeers(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Mesh) loadPeers() error {
	if m.book == nil {
		return nil
	}
	addrs, err := m.book.Addresses()
	if err != nil {
		return xerrors.Errorf("loading peers: %w", err)
	}
	for _, a := range addrs {
		addr, err := net.ResolveUDPAddr("udp", a)
		if err != nil {
			log.Warn("ignoring stored peer", a, ":", err)
			continue
		}
		m.peers[addr.String()] = addr
	}
	log.Lvl2("loaded", len(m.peers), "stored peers")
	return nil
}

// State returns the current state.
func (m *Mesh) State() node.Node {
	m.Lock()
	defer m.Unlock()
	return m.state
}

// Port returns the bound port, 0 while still seeking one.
func (m *Mesh) Port() int {
	m.Lock()
	defer m.Unlock()
	return m.port
}

// RootPort returns the port of this mesh's root literal.
func (m *Mesh) RootPort() int {
	return m.rootPort
}

// Active reports whether the node is bound.
func (m *Mesh) Active() bool {
	m.Lock()
	defer m.Unlock()
	return m.conn != nil
}

// IsRoot reports whether the node is bound to the root port.
func (m *Mesh) IsRoot() bool {
	m.Lock()
	defer m.Unlock()
	return m.root
}

// Peers returns the known peer addresses, sorted.
func (m *Mesh) Peers() []string {
	m.Lock()
	defer m.Unlock()
	out := make([]string, 0, len(m.peers))
	for k := range m.peers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Close releases the socket.
func (m *Mesh) Close() error {
	m.Lock()
	defer m.Unlock()
	if m.conn == nil {
		return nil
	}
	err := m.conn.Close()
	m.conn = nil
	return err
}

// advance folds input into the state and records the result.
func (m *Mesh) advance(input node.Node) error {
	next, err := m.ev.Next(m.state, input)
	if err != nil {
		return err
	}
	m.Lock()
	m.state = next
	m.Unlock()
	log.Lvlf3("state now has %d leaves, digest %x", node.Size(next), node.Digest(next)[:8])
	if m.recorder != nil {
		if err := m.recorder.Append(next); err != nil {
			return xerrors.Errorf("recording state: %w", err)
		}
	}
	return nil
}

// addPeer inserts addr in the peer set and reports whether it was new.
func (m *Mesh) addPeer(addr net.Addr, acknowledged bool) bool {
	key := addr.String()
	m.Lock()
	_, known := m.peers[key]
	if !known {
		m.peers[key] = addr
	}
	m.Unlock()

	if m.book != nil {
		if _, err := m.book.Add(key, acknowledged); err != nil {
			log.Error("couldn't store peer:", err)
		}
	}
	return !known
}

// Bind derives a port from the state and binds it. Every failed attempt
// folds a one bit into the state, which changes the port for the next one.
// It only gives up when ctx is done or a state cannot be recorded.
func (m *Mesh) Bind(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		port := Port(m.state)
		address := net.JoinHostPort(m.cfg.Host, strconv.Itoa(port))
		log.Lvl3("trying to bind", address)
		conn, err := m.listen("udp", address)
		if err == nil {
			m.Lock()
			m.conn = conn
			m.port = port
			m.root = port == m.rootPort
			m.Unlock()
			log.Lvl1("bound", address, "with", node.Size(m.state), "leaves; root:", port == m.rootPort)
			return nil
		}

		if isPortInUse(err) {
			log.Lvl2("port", port, "in use, folding a one bit")
		} else {
			log.Error(&BindError{Port: port, Err: err})
		}
		if err := m.advance(node.One); err != nil {
			return err
		}
	}
}

// Serve announces the node to the root, unless it is the root, and runs the
// polling loop until ctx is done. Each round receives at most one datagram,
// waiting up to one tick for it, then handles at most one item of q. A nil q
// means there is no local input. Serve returns nil when ctx is done and a
// *SocketError when the socket fails.
func (m *Mesh) Serve(ctx context.Context, q *Queue) error {
	m.Lock()
	conn, root := m.conn, m.root
	m.Unlock()
	if conn == nil {
		return xerrors.New("serve called before bind")
	}

	if !root {
		if err := m.announce(conn); err != nil {
			return err
		}
	} else {
		log.Lvl1("this node is the root, port", m.rootPort)
	}

	buf := make([]byte, Size)
	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := m.receive(ctx, conn, buf); err != nil {
			return err
		}
		if err := m.drain(conn, q); err != nil {
			return err
		}
	}
}

func (m *Mesh) announce(conn net.PacketConn) error {
	target := net.JoinHostPort(m.cfg.PeerHost, strconv.Itoa(m.rootPort))
	addr, err := net.ResolveUDPAddr("udp", target)
	if err != nil {
		return xerrors.Errorf("resolving root: %w", err)
	}
	log.Lvl2("announcing to", target)
	if _, err := conn.WriteTo(node.Encode(m.state), addr); err != nil {
		return &SocketError{Op: "announce", Addr: addr, Err: err}
	}
	return nil
}

func (m *Mesh) receive(ctx context.Context, conn net.PacketConn, buf []byte) error {
	if err := conn.SetReadDeadline(time.Now().Add(m.cfg.Tick)); err != nil {
		return &SocketError{Op: "set deadline", Err: err}
	}
	n, src, err := conn.ReadFrom(buf)
	if err != nil {
		if isTimeout(err) {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
		return &SocketError{Op: "receive", Err: err}
	}
	return m.handleDatagram(conn, append([]byte{}, buf[:n]...), src)
}

func (m *Mesh) handleDatagram(conn net.PacketConn, payload []byte, src net.Addr) error {
	if bytes.Equal(payload, Hello) {
		log.Lvl2("handshake from", src)
		if m.addPeer(src, true) {
			log.Lvl1("new peer", src)
		}
		return nil
	}

	log.Lvlf2("received %d bytes from %s", len(payload), src)
	if m.addPeer(src, false) {
		log.Lvl1("new peer", src)
	}

	input, err := node.FromBytes(payload)
	if err != nil {
		log.Warn("dropping datagram from", src, ":", err)
		return nil
	}
	if err := m.advance(input); err != nil {
		return err
	}

	if m.root {
		log.Lvl2("acknowledging", src)
		if _, err := conn.WriteTo(Hello, src); err != nil {
			return &SocketError{Op: "hello", Addr: src, Err: err}
		}
	}
	return nil
}

func (m *Mesh) drain(conn net.PacketConn, q *Queue) error {
	if q == nil || m.inputDone {
		return nil
	}
	data, ok := q.Pop()
	if !ok {
		if q.Done() {
			log.Lvl2("input closed, serving network only")
			m.inputDone = true
		}
		return nil
	}
	return m.handleInput(conn, data)
}

func (m *Mesh) handleInput(conn net.PacketConn, data []byte) error {
	input, err := node.FromBytes(data)
	if err != nil {
		log.Warn("dropping input:", err)
		return nil
	}
	if err := m.advance(input); err != nil {
		return err
	}

	m.Lock()
	peers := make([]net.Addr, 0, len(m.peers))
	for _, p := range m.peers {
		peers = append(peers, p)
	}
	m.Unlock()

	if len(peers) == 0 {
		log.Lvl2("no peers known yet, not sending")
		return nil
	}
	for _, p := range peers {
		log.Lvlf3("sending %d bytes to %s", len(data), p)
		if _, err := conn.WriteTo(data, p); err != nil {
			return &SocketError{Op: "send", Addr: p, Err: err}
		}
	}
	return nil
}
