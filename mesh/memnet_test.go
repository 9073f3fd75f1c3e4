package mesh

import (
	"net"
	"os"
	"strconv"
	"sync"
	"syscall"
	"time"

	"go.dedis.ch/hey/node"
	"golang.org/x/xerrors"
)

// memNet is an in-memory stand-in for loop-back UDP. Every host maps to
// 127.0.0.1 and a port can only be bound once.
type memNet struct {
	sync.Mutex
	conns  map[int]*memConn
	writes int
}

func newMemNet() *memNet {
	return &memNet{conns: make(map[int]*memConn)}
}

type packet struct {
	data []byte
	from net.Addr
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func (n *memNet) listen(network, address string) (net.PacketConn, error) {
	_, p, err := net.SplitHostPort(address)
	if err != nil {
		return nil, err
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		return nil, err
	}
	n.Lock()
	defer n.Unlock()
	if _, ok := n.conns[port]; ok {
		return nil, &net.OpError{Op: "listen", Net: network,
			Err: os.NewSyscallError("bind", syscall.EADDRINUSE)}
	}
	c := &memConn{
		net:    n,
		addr:   &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port},
		in:     make(chan packet, 64),
		closed: make(chan struct{}),
	}
	n.conns[port] = c
	return c, nil
}

// occupy binds port without serving it.
func (n *memNet) occupy(port int) *memConn {
	c, err := n.listen("udp", "127.0.0.1:"+strconv.Itoa(port))
	if err != nil {
		panic(err)
	}
	return c.(*memConn)
}

func (n *memNet) writeCount() int {
	n.Lock()
	defer n.Unlock()
	return n.writes
}

type memConn struct {
	sync.Mutex
	net      *memNet
	addr     *net.UDPAddr
	in       chan packet
	closed   chan struct{}
	once     sync.Once
	deadline time.Time
}

func (c *memConn) ReadFrom(b []byte) (int, net.Addr, error) {
	c.Lock()
	deadline := c.deadline
	c.Unlock()

	var timeout <-chan time.Time
	if !deadline.IsZero() {
		t := time.NewTimer(time.Until(deadline))
		defer t.Stop()
		timeout = t.C
	}
	select {
	case p := <-c.in:
		return copy(b, p.data), p.from, nil
	case <-c.closed:
		return 0, nil, xerrors.New("use of closed connection")
	case <-timeout:
		return 0, nil, &net.OpError{Op: "read", Net: "udp", Err: timeoutError{}}
	}
}

func (c *memConn) WriteTo(b []byte, addr net.Addr) (int, error) {
	select {
	case <-c.closed:
		return 0, xerrors.New("use of closed connection")
	default:
	}
	ua, ok := addr.(*net.UDPAddr)
	if !ok {
		return 0, xerrors.Errorf("unexpected address %T", addr)
	}
	c.net.Lock()
	c.net.writes++
	dst := c.net.conns[ua.Port]
	c.net.Unlock()
	if dst == nil {
		return len(b), nil
	}
	select {
	case dst.in <- packet{data: append([]byte{}, b...), from: c.addr}:
	default:
	}
	return len(b), nil
}

func (c *memConn) Close() error {
	c.once.Do(func() {
		close(c.closed)
		c.net.Lock()
		delete(c.net.conns, c.addr.Port)
		c.net.Unlock()
	})
	return nil
}

// next waits for one datagram sent to c.
func (c *memConn) next(d time.Duration) (packet, bool) {
	select {
	case p := <-c.in:
		return p, true
	case <-time.After(d):
		return packet{}, false
	}
}

func (c *memConn) LocalAddr() net.Addr { return c.addr }

func (c *memConn) SetDeadline(t time.Time) error {
	return c.SetReadDeadline(t)
}

func (c *memConn) SetReadDeadline(t time.Time) error {
	c.Lock()
	c.deadline = t
	c.Unlock()
	return nil
}

func (c *memConn) SetWriteDeadline(t time.Time) error { return nil }

// recorder keeps the states in memory.
type recorder struct {
	sync.Mutex
	states []node.Node
}

func (r *recorder) Append(n node.Node) error {
	r.Lock()
	r.states = append(r.states, n)
	r.Unlock()
	return nil
}

func (r *recorder) len() int {
	r.Lock()
	defer r.Unlock()
	return len(r.states)
}

// book is an in-memory PeerBook.
type book struct {
	sync.Mutex
	addrs map[string]bool
}

func (b *book) Add(addr string, acknowledged bool) (bool, error) {
	b.Lock()
	defer b.Unlock()
	if b.addrs == nil {
		b.addrs = make(map[string]bool)
	}
	old, ok := b.addrs[addr]
	if ok && (old || !acknowledged) {
		return false, nil
	}
	b.addrs[addr] = acknowledged
	return true, nil
}

func (b *book) Addresses() ([]string, error) {
	b.Lock()
	defer b.Unlock()
	var out []string
	for a := range b.addrs {
		out = append(out, a)
	}
	return out, nil
}
