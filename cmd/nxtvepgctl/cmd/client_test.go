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

package cmd

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/tomzo/nxtvepgd/nettransport"
	"github.com/tomzo/nxtvepgd/wire"
)

// listenLoopback opens a TCP listener on an ephemeral loopback port and
// returns its fd and the port the kernel picked.
func listenLoopback(t *testing.T) (fd, port int) {
	t.Helper()
	fd, err := nettransport.Listen(true, "127.0.0.1", 0)
	require.NoError(t, err)
	t.Cleanup(func() { unix.Close(fd) })

	sa, err := unix.Getsockname(fd)
	require.NoError(t, err)
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return fd, a.Port
	case *unix.SockaddrInet6:
		return fd, a.Port
	default:
		t.Fatalf("unexpected listener sockaddr type %T", sa)
		return 0, 0
	}
}

// acceptOne blocks (polling, since Accept-returned fds are non-blocking)
// until one connection arrives, then flips it to blocking mode so the
// fake-server goroutine can use plain unix.Read/Write.
func acceptOne(listenFd int, timeout time.Duration) (int, error) {
	deadline := time.Now().Add(timeout)
	for {
		connFd, _, err := unix.Accept(listenFd)
		if err == nil {
			if err := unix.SetNonblock(connFd, false); err != nil {
				unix.Close(connFd)
				return -1, err
			}
			return connFd, nil
		}
		if err != unix.EAGAIN {
			return -1, err
		}
		if time.Now().After(deadline) {
			return -1, fmt.Errorf("timed out waiting for a connection")
		}
		time.Sleep(time.Millisecond)
	}
}

func readExactlyBlocking(fd int, n int) ([]byte, error) {
	buf := make([]byte, n)
	total := 0
	for total < n {
		got, err := unix.Read(fd, buf[total:])
		if err != nil {
			return nil, err
		}
		if got == 0 {
			return nil, fmt.Errorf("peer closed")
		}
		total += got
	}
	return buf, nil
}

func readFrameBlocking(fd int) (wire.Header, []byte, error) {
	hdr, err := readExactlyBlocking(fd, wire.HeaderSize)
	if err != nil {
		return wire.Header{}, nil, err
	}
	h, err := wire.DecodeHeader(hdr)
	if err != nil {
		return wire.Header{}, nil, err
	}
	body, err := readExactlyBlocking(fd, int(h.Length)-wire.HeaderSize)
	return h, body, err
}

func TestTextQueryRoundTrip(t *testing.T) {
	listenFd, port := listenLoopback(t)

	result := make(chan error, 1)
	go func() {
		connFd, err := acceptOne(listenFd, 2*time.Second)
		if err != nil {
			result <- err
			return
		}
		defer unix.Close(connFd)

		h, body, err := readFrameBlocking(connFd)
		if err != nil {
			result <- err
			return
		}
		if h.Type != wire.MsgConnectReq {
			result <- fmt.Errorf("unexpected request type %s", h.Type)
			return
		}
		if string(body) != wire.TextQueryACQSTAT {
			result <- fmt.Errorf("unexpected query body %q", body)
			return
		}

		frame, err := wire.Build(wire.MsgConqueryCnf, []byte("Acq mode: 1\n"))
		if err != nil {
			result <- err
			return
		}
		if _, err := unix.Write(connFd, frame); err != nil {
			result <- err
			return
		}
		result <- nil
	}()

	reply, err := textQuery("127.0.0.1", port, true, wire.TextQueryACQSTAT)
	require.NoError(t, err)
	assert.Equal(t, "Acq mode: 1\n", reply)
	require.NoError(t, <-result)
}

func TestStopDaemonSendsCloseInd(t *testing.T) {
	listenFd, port := listenLoopback(t)

	result := make(chan error, 1)
	go func() {
		connFd, err := acceptOne(listenFd, 2*time.Second)
		if err != nil {
			result <- err
			return
		}
		defer unix.Close(connFd)

		h, body, err := readFrameBlocking(connFd)
		if err != nil {
			result <- err
			return
		}
		if h.Type != wire.MsgCloseInd {
			result <- fmt.Errorf("unexpected request type %s", h.Type)
			return
		}
		closeInd, err := wire.UnmarshalCloseInd(body)
		if err != nil {
			result <- err
			return
		}
		if closeInd.Reason != wire.CloseNormal {
			result <- fmt.Errorf("unexpected close reason %v", closeInd.Reason)
			return
		}
		result <- nil
	}()

	require.NoError(t, stopDaemon("127.0.0.1", port, true))
	require.NoError(t, <-result)
}
