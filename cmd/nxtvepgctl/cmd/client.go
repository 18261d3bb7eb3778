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
	"time"

	"golang.org/x/sys/unix"

	"github.com/tomzo/nxtvepgd/nettransport"
	"github.com/tomzo/nxtvepgd/wire"
)

// dialTimeout bounds how long a subcommand waits for the daemon to accept
// a connection or answer a query before giving up.
const dialTimeout = 2 * time.Second

// dial opens a connection to the daemon and blocks until the non-blocking
// connect either completes or times out.
func dial(host string, port int, useTCP bool) (*nettransport.Conn, error) {
	conn, err := nettransport.Connect(host, port, useTCP)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	pfd := []unix.PollFd{{Fd: int32(conn.Fd), Events: unix.POLLOUT}}
	if _, err := unix.Poll(pfd, int(dialTimeout.Milliseconds())); err != nil {
		conn.Close()
		return nil, fmt.Errorf("connect: poll: %w", err)
	}
	if pfd[0].Revents&unix.POLLOUT == 0 {
		conn.Close()
		return nil, fmt.Errorf("connect: timed out")
	}
	if err := nettransport.ConnectComplete(conn.Fd); err != nil {
		conn.Close()
		return nil, fmt.Errorf("connect: %w", err)
	}
	return conn, nil
}

// textQuery sends one of wire's short ASCII queries (ACQSTAT, PID) to the
// daemon and returns the CONQUERY_CNF body. The daemon closes the
// connection right after replying, so one request/response pair is all a
// session is good for.
func textQuery(host string, port int, useTCP bool, query string) (string, error) {
	conn, err := dial(host, port, useTCP)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	frame, err := wire.Build(wire.MsgConnectReq, []byte(query))
	if err != nil {
		return "", err
	}
	if err := writeAll(conn.Fd, frame); err != nil {
		return "", fmt.Errorf("write query: %w", err)
	}

	header, err := readHeader(conn.Fd)
	if err != nil {
		return "", err
	}
	body, err := readBody(conn.Fd, int(header.Length)-wire.HeaderSize)
	if err != nil {
		return "", err
	}
	if header.Type != wire.MsgConqueryCnf {
		return "", fmt.Errorf("unexpected reply type %s", header.Type)
	}
	return string(body), nil
}

// stopDaemon sends a normal CLOSE_IND, the protocol's request for the
// daemon to shut down.
func stopDaemon(host string, port int, useTCP bool) error {
	conn, err := dial(host, port, useTCP)
	if err != nil {
		return err
	}
	defer conn.Close()

	frame, err := wire.Build(wire.MsgCloseInd, wire.CloseInd{Reason: wire.CloseNormal}.Marshal())
	if err != nil {
		return err
	}
	if err := writeAll(conn.Fd, frame); err != nil {
		return fmt.Errorf("write CLOSE_IND: %w", err)
	}
	return nil
}

func writeAll(fd int, buf []byte) error {
	deadline := time.Now().Add(dialTimeout)
	for len(buf) > 0 {
		n, err := unix.Write(fd, buf)
		if err != nil {
			if err == unix.EAGAIN {
				if time.Now().After(deadline) {
					return fmt.Errorf("timed out writing")
				}
				waitWritable(fd, deadline)
				continue
			}
			return err
		}
		buf = buf[n:]
	}
	return nil
}

func readHeader(fd int) (wire.Header, error) {
	buf, err := readExactly(fd, wire.HeaderSize)
	if err != nil {
		return wire.Header{}, err
	}
	return wire.DecodeHeader(buf)
}

func readBody(fd int, n int) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	return readExactly(fd, n)
}

func readExactly(fd int, n int) ([]byte, error) {
	buf := make([]byte, 0, n)
	deadline := time.Now().Add(dialTimeout)
	for len(buf) < n {
		waitReadable(fd, deadline)
		chunk := make([]byte, n-len(buf))
		got, err := unix.Read(fd, chunk)
		if err != nil {
			if err == unix.EAGAIN {
				if time.Now().After(deadline) {
					return nil, fmt.Errorf("timed out reading")
				}
				continue
			}
			return nil, err
		}
		if got == 0 {
			return nil, fmt.Errorf("connection closed by daemon")
		}
		buf = append(buf, chunk[:got]...)
	}
	return buf, nil
}

func waitReadable(fd int, deadline time.Time) {
	pfd := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	unix.Poll(pfd, int(time.Until(deadline).Milliseconds()))
}

func waitWritable(fd int, deadline time.Time) {
	pfd := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
	unix.Poll(pfd, int(time.Until(deadline).Milliseconds()))
}
