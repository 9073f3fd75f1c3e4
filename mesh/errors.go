package mesh

import (
	"fmt"
	"net"
	"syscall"

	"golang.org/x/xerrors"
)

// ErrPortInUse is reported when the derived port is already bound.
var ErrPortInUse = xerrors.New("port in use")

// BindError is any failure to bind a derived port other than a collision.
type BindError struct {
	Port int
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("binding port %d: %v", e.Port, e.Err)
}

// Unwrap returns the listener's error.
func (e *BindError) Unwrap() error {
	return e.Err
}

// SocketError is a send or receive failure on a bound socket. It ends Serve.
type SocketError struct {
	Op   string
	Addr net.Addr
	Err  error
}

func (e *SocketError) Error() string {
	if e.Addr != nil {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the socket's error.
func (e *SocketError) Unwrap() error {
	return e.Err
}

func isPortInUse(err error) bool {
	return xerrors.Is(err, ErrPortInUse) || xerrors.Is(err, syscall.EADDRINUSE)
}

func isTimeout(err error) bool {
	var ne net.Error
	return xerrors.As(err, &ne) && ne.Timeout()
}
