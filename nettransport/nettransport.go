/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

//go:build !windows

// Package nettransport implements the non-blocking socket I/O state
// machine shared by the server and client sides of the wire protocol:
// listen/accept/connect, and a single "pump" that is driven by an
// external readiness poll.
package nettransport

import (
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/sys/unix"

	"github.com/tomzo/nxtvepgd/wire"
)

// UnixSocketPath is the well-known local IPC path used on Unix platforms.
const UnixSocketPath = "/tmp/nxtvepg.0"

// IOTimeout is how long a message may sit in flight before CheckTimeout
// reports it as stalled.
const IOTimeout = 60 * time.Second

var (
	// ErrClosed is returned by any operation on a Conn whose fd has
	// already been closed.
	ErrClosed = errors.New("io-error: connection closed")
	// ErrPeerClosed signals a zero-byte read on a readable socket.
	ErrPeerClosed = errors.New("io-peer-closed")
	// ErrTimeout signals CheckTimeout found a stalled in-flight message.
	ErrTimeout = errors.New("io-timeout")
)

// Conn is one connection's non-blocking I/O state. It owns exactly one
// fd and is single-threaded: callers must not invoke HandleIO
// concurrently with itself.
type Conn struct {
	Fd         int
	Peer       net.Addr
	LastIOTime time.Time

	writeBuf   []byte
	writeOff   int

	readHeader [wire.HeaderSize]byte
	readHdrOff int
	readBuf    []byte
	readOff    int
	haveHeader bool

	completed [][]byte
}

// NewConn wraps an already-connected, already-non-blocking fd.
func NewConn(fd int, peer net.Addr) *Conn {
	return &Conn{Fd: fd, Peer: peer, LastIOTime: time.Now()}
}

// socket creates a non-blocking, SO_REUSEADDR stream socket of the given
// family, falling back from PF_INET6 to PF_INET for TCP listeners
// without IPv6 support.
func socket(family int) (int, error) {
	fd, err := unix.Socket(family, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

// Listen opens a listening socket: TCP (PF_INET6 preferred, PF_INET
// fallback) if isTCP, else a Unix-domain stream socket at UnixSocketPath
// made world-readable/writable.
func Listen(isTCP bool, bindAddr string, port int) (int, error) {
	if !isTCP {
		return listenUnix()
	}
	fd, err := socket(unix.AF_INET6)
	if err == nil {
		if bindErr := bindTCP6(fd, bindAddr, port); bindErr == nil {
			if lErr := unix.Listen(fd, 16); lErr == nil {
				return fd, nil
			}
		}
		unix.Close(fd)
	}
	fd, err = socket(unix.AF_INET)
	if err != nil {
		return -1, fmt.Errorf("tune-no-tuner: socket: %w", err)
	}
	if err := bindTCP4(fd, bindAddr, port); err != nil {
		unix.Close(fd)
		return -1, err
	}
	if err := unix.Listen(fd, 16); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

func bindTCP6(fd int, bindAddr string, port int) error {
	var addr [16]byte
	if bindAddr != "" {
		ip := net.ParseIP(bindAddr).To16()
		if ip == nil {
			return fmt.Errorf("invalid bind address %q", bindAddr)
		}
		copy(addr[:], ip)
	}
	return unix.Bind(fd, &unix.SockaddrInet6{Port: port, Addr: addr})
}

func bindTCP4(fd int, bindAddr string, port int) error {
	var addr [4]byte
	if bindAddr != "" {
		ip := net.ParseIP(bindAddr).To4()
		if ip == nil {
			return fmt.Errorf("invalid bind address %q", bindAddr)
		}
		copy(addr[:], ip)
	}
	return unix.Bind(fd, &unix.SockaddrInet4{Port: port, Addr: addr})
}

func listenUnix() (int, error) {
	fd, err := socket(unix.AF_UNIX)
	if err != nil {
		return -1, err
	}
	_ = unix.Unlink(UnixSocketPath)
	if err := unix.Bind(fd, &unix.SockaddrUnix{Name: UnixSocketPath}); err != nil {
		unix.Close(fd)
		return -1, err
	}
	if err := unix.Chmod(UnixSocketPath, 0666); err != nil {
		unix.Close(fd)
		return -1, err
	}
	if err := unix.Listen(fd, 16); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

// Accept accepts a pending connection from a listening fd, returning a
// fresh non-blocking Conn.
func Accept(listenFd int) (*Conn, error) {
	connFd, sa, err := unix.Accept(listenFd)
	if err != nil {
		if err == unix.EAGAIN {
			return nil, nil
		}
		return nil, err
	}
	if err := unix.SetNonblock(connFd, true); err != nil {
		unix.Close(connFd)
		return nil, err
	}
	return NewConn(connFd, sockaddrToAddr(sa)), nil
}

func sockaddrToAddr(sa unix.Sockaddr) net.Addr {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: a.Addr[:], Port: a.Port}
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: a.Addr[:], Port: a.Port}
	case *unix.SockaddrUnix:
		return &net.UnixAddr{Name: a.Name, Net: "unix"}
	default:
		return nil
	}
}

// Connect begins a non-blocking outbound connection. Completion is
// observed by the caller's poller reporting the fd writable: a subsequent HandleIO call with writable=true will detect
// success or failure via SO_ERROR.
func Connect(host string, port int, useTCP bool) (*Conn, error) {
	if !useTCP {
		fd, err := socket(unix.AF_UNIX)
		if err != nil {
			return nil, err
		}
		err = unix.Connect(fd, &unix.SockaddrUnix{Name: UnixSocketPath})
		if err != nil && err != unix.EINPROGRESS {
			unix.Close(fd)
			return nil, err
		}
		return NewConn(fd, &net.UnixAddr{Name: UnixSocketPath, Net: "unix"}), nil
	}

	ips, err := net.LookupIP(host)
	if err != nil || len(ips) == 0 {
		return nil, fmt.Errorf("io-error: resolve %q: %w", host, err)
	}
	ip := ips[0]
	family := unix.AF_INET
	if ip4 := ip.To4(); ip4 == nil {
		family = unix.AF_INET6
	}
	fd, err := socket(family)
	if err != nil {
		return nil, err
	}
	var sa unix.Sockaddr
	if family == unix.AF_INET {
		var a [4]byte
		copy(a[:], ip.To4())
		sa = &unix.SockaddrInet4{Port: port, Addr: a}
	} else {
		var a [16]byte
		copy(a[:], ip.To16())
		sa = &unix.SockaddrInet6{Port: port, Addr: a}
	}
	err = unix.Connect(fd, sa)
	if err != nil && err != unix.EINPROGRESS {
		unix.Close(fd)
		return nil, err
	}
	return NewConn(fd, &net.TCPAddr{IP: ip, Port: port}), nil
}

// ConnectComplete checks, after a writable readiness event, whether an
// in-progress Connect succeeded.
func ConnectComplete(fd int) error {
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if errno != 0 {
		return unix.Errno(errno)
	}
	return nil
}

// QueueWrite appends a fully framed message to the outbound buffer. It
// never blocks; actual transmission happens in HandleIO.
func (c *Conn) QueueWrite(frame []byte) {
	c.writeBuf = append(c.writeBuf, frame...)
}

// HasPendingWrite reports whether the connection wants a writable
// readiness event.
func (c *Conn) HasPendingWrite() bool {
	return c.writeOff < len(c.writeBuf)
}

// HandleIO runs one pump cycle: writing takes precedence over reading
// when both are ready.
func (c *Conn) HandleIO(readable, writable bool) error {
	if c.Fd < 0 {
		return ErrClosed
	}
	c.LastIOTime = time.Now()

	if writable && c.HasPendingWrite() {
		if err := c.doWrite(); err != nil {
			return err
		}
		return nil
	}
	if readable {
		return c.doRead()
	}
	return nil
}

func (c *Conn) doWrite() error {
	for c.writeOff < len(c.writeBuf) {
		n, err := unix.Write(c.Fd, c.writeBuf[c.writeOff:])
		if err != nil {
			if err == unix.EAGAIN {
				return nil
			}
			return fmt.Errorf("io-error: write: %w", err)
		}
		c.writeOff += n
		if n == 0 {
			return nil
		}
	}
	c.writeBuf = c.writeBuf[:0]
	c.writeOff = 0
	return nil
}

// doRead implements the two-phase read: first fill the 4-byte header,
// then allocate a body buffer sized per the header (rejecting length
// > MaxBodySize or < HeaderSize), then fill the body.
func (c *Conn) doRead() error {
	for {
		if !c.haveHeader {
			n, err := unix.Read(c.Fd, c.readHeader[c.readHdrOff:])
			if err != nil {
				if err == unix.EAGAIN {
					return nil
				}
				return fmt.Errorf("io-error: read: %w", err)
			}
			if n == 0 {
				return ErrPeerClosed
			}
			c.readHdrOff += n
			if c.readHdrOff < wire.HeaderSize {
				return nil
			}
			h, err := wire.DecodeHeader(c.readHeader[:])
			if err != nil {
				return err
			}
			if int(h.Length) < wire.HeaderSize || int(h.Length) > wire.MaxBodySize {
				return wire.ErrBadLength
			}
			c.readBuf = make([]byte, int(h.Length)-wire.HeaderSize)
			c.readOff = 0
			c.haveHeader = true
			if len(c.readBuf) == 0 {
				c.finishMessage(h.Type)
				continue
			}
		}

		n, err := unix.Read(c.Fd, c.readBuf[c.readOff:])
		if err != nil {
			if err == unix.EAGAIN {
				return nil
			}
			return fmt.Errorf("io-error: read: %w", err)
		}
		if n == 0 {
			return ErrPeerClosed
		}
		c.readOff += n
		if c.readOff < len(c.readBuf) {
			return nil
		}
		h, _ := wire.DecodeHeader(c.readHeader[:])
		c.finishMessage(h.Type)
	}
}

func (c *Conn) finishMessage(t wire.MsgType) {
	frame := make([]byte, wire.HeaderSize+len(c.readBuf))
	copy(frame, c.readHeader[:])
	copy(frame[wire.HeaderSize:], c.readBuf)
	c.completed = append(c.completed, frame)
	c.haveHeader = false
	c.readHdrOff = 0
	c.readBuf = nil
	c.readOff = 0
	_ = t
}

// TakeMessages drains and returns every fully-received frame (header +
// body) accumulated since the last call, in arrival order.
func (c *Conn) TakeMessages() [][]byte {
	if len(c.completed) == 0 {
		return nil
	}
	out := c.completed
	c.completed = nil
	return out
}

// CheckTimeout reports true if a message is in-flight (read or write
// in progress) and has been idle longer than IOTimeout.
func (c *Conn) CheckTimeout(now time.Time) bool {
	inFlight := c.haveHeader || c.readHdrOff > 0 || c.HasPendingWrite()
	return inFlight && now.Sub(c.LastIOTime) > IOTimeout
}

// Close is idempotent and frees all buffers.
func (c *Conn) Close() error {
	if c.Fd < 0 {
		return nil
	}
	err := unix.Close(c.Fd)
	c.Fd = -1
	c.writeBuf = nil
	c.readBuf = nil
	c.completed = nil
	return err
}
