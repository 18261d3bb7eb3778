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

package server

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/tomzo/nxtvepgd/dbcontext"
	"github.com/tomzo/nxtvepgd/wire"
)

type fakeStats struct{}

func (fakeStats) AcqMode() uint8               { return 1 }
func (fakeStats) PassiveReasonCode() uint8     { return 0 }
func (fakeStats) VpsPdc() (uint16, uint32)     { return 0, 0 }
func (fakeStats) Counters() wire.StatsCounters { return wire.StatsCounters{} }
func (fakeStats) CurrentCNI() uint16           { return 0x0D94 }

func newTestServer(t *testing.T) (*Server, int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	require.NoError(t, unix.SetNonblock(fds[0], true))
	require.NoError(t, unix.SetNonblock(fds[1], true))

	db := dbcontext.NewManager(t.TempDir())
	srv := NewServer(db, fakeStats{}, NewMetrics(prometheus.NewRegistry()))
	srv.Accept(fds[0], nil)
	return srv, fds[0], fds[1]
}

func readFrame(t *testing.T, peerFd int) (wire.Header, []byte) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	var hdr [wire.HeaderSize]byte
	for {
		n, err := unix.Read(peerFd, hdr[:])
		if err == unix.EAGAIN {
			require.True(t, time.Now().Before(deadline), "timed out waiting for header")
			time.Sleep(time.Millisecond)
			continue
		}
		require.NoError(t, err)
		require.Equal(t, wire.HeaderSize, n)
		break
	}
	h, err := wire.DecodeHeader(hdr[:])
	require.NoError(t, err)
	body := make([]byte, int(h.Length)-wire.HeaderSize)
	off := 0
	for off < len(body) {
		n, err := unix.Read(peerFd, body[off:])
		if err == unix.EAGAIN {
			require.True(t, time.Now().Before(deadline), "timed out waiting for body")
			time.Sleep(time.Millisecond)
			continue
		}
		require.NoError(t, err)
		off += n
	}
	return h, body
}

func writeFrame(t *testing.T, peerFd int, msgType wire.MsgType, body []byte) {
	t.Helper()
	frame, err := wire.Build(msgType, body)
	require.NoError(t, err)
	off := 0
	for off < len(frame) {
		n, err := unix.Write(peerFd, frame[off:])
		require.NoError(t, err)
		off += n
	}
}

func pumpUntil(t *testing.T, srv *Server, fd int, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		require.True(t, time.Now().Before(deadline), "timed out pumping session")
		srv.Pump(fd, true, true)
		time.Sleep(time.Millisecond)
	}
	// One more pass to flush whatever the condition-satisfying call queued
	// but didn't get to write (HandleIO runs before message dispatch).
	if sess, ok := srv.sessions[fd]; ok {
		for sess.Conn.HasPendingWrite() {
			require.True(t, time.Now().Before(deadline), "timed out flushing session")
			srv.Pump(fd, true, true)
			time.Sleep(time.Millisecond)
		}
	}
}

func TestConnectHandshakeAdvancesToWaitFwdReq(t *testing.T) {
	srv, fd, peer := newTestServer(t)
	defer unix.Close(peer)

	connReq := wire.ConnectMessage{
		EndianMagic:   wire.EndianMagic,
		CompatVersion: wire.CompatVersionPacked,
		SwVersion:     wire.SwVersion,
		UTF8:          true,
	}
	writeFrame(t, peer, wire.MsgConnectReq, connReq.Marshal())

	pumpUntil(t, srv, fd, func() bool { return srv.sessions[fd].State == StateWaitFwdReq })

	h, body := readFrame(t, peer)
	require.Equal(t, wire.MsgConnectCnf, h.Type)
	cnf, magic, err := wire.UnmarshalConnect(body)
	require.NoError(t, err)
	require.NoError(t, wire.ValidateServiceMagic(magic))
	require.True(t, cnf.UTF8)
}

func TestTextQueryPIDClosesAfterReply(t *testing.T) {
	srv, fd, peer := newTestServer(t)
	defer unix.Close(peer)

	writeFrame(t, peer, wire.MsgConnectReq, []byte(wire.TextQueryPID))

	pumpUntil(t, srv, fd, func() bool {
		_, ok := srv.sessions[fd]
		return !ok
	})

	h, body := readFrame(t, peer)
	require.Equal(t, wire.MsgConqueryCnf, h.Type)
	require.Contains(t, string(body), "PID ")
}

func TestForwardReqDumpsThenForwards(t *testing.T) {
	srv, fd, peer := newTestServer(t)
	defer unix.Close(peer)

	const cni = uint16(0x0D94)
	ctx := srv.DB.CreateDummy(cni)
	ctx.AI = &dbcontext.AI{
		ServiceName: "Test Provider",
		Networks:    []dbcontext.Network{{CNI: cni, Name: "Channel One"}},
	}
	ctx.InsertPI(dbcontext.PI{NetwopNo: 0, BlockNo: 1, Start: 1000, Stop: 2000, Title: "Show"})
	srv.DB.AdoptAcquired(ctx)

	connReq := wire.ConnectMessage{EndianMagic: wire.EndianMagic, CompatVersion: wire.CompatVersionPacked, SwVersion: wire.SwVersion}
	writeFrame(t, peer, wire.MsgConnectReq, connReq.Marshal())
	pumpUntil(t, srv, fd, func() bool { return srv.sessions[fd].State == StateWaitFwdReq })
	readFrame(t, peer) // CONNECT_CNF

	fwdReq := wire.ForwardReq{ForwardCni: cni, Cnis: []uint16{cni}, LastSeen: []uint32{0}}
	writeFrame(t, peer, wire.MsgForwardReq, fwdReq.Marshal())

	pumpUntil(t, srv, fd, func() bool { return srv.sessions[fd].State == StateForward })

	h, body := readFrame(t, peer)
	require.Equal(t, wire.MsgForwardCnf, h.Type)
	cnf, err := wire.UnmarshalForwardCnf(body)
	require.NoError(t, err)
	require.True(t, cnf.OK)

	h, body = readFrame(t, peer)
	require.Equal(t, wire.MsgBlockInd, h.Type)
	bh, err := wire.UnmarshalBlockIndHeader(body)
	require.NoError(t, err)
	require.Equal(t, cni, bh.Cni)

	h, body = readFrame(t, peer)
	require.Equal(t, wire.MsgBlockInd, h.Type)
	bh, err = wire.UnmarshalBlockIndHeader(body)
	require.NoError(t, err)
	pi, err := dbcontext.DecodePIBlock(body[wire.BlockIndHeaderLen:])
	require.NoError(t, err)
	require.Equal(t, "Show", pi.Title)

	h, _ = readFrame(t, peer)
	require.Equal(t, wire.MsgDumpInd, h.Type)
}

func TestStarvationGuardCapsMessagesPerPump(t *testing.T) {
	srv, fd, peer := newTestServer(t)
	defer unix.Close(peer)
	sess := srv.sessions[fd]
	sess.State = StateForward

	for i := 0; i < MaxPumpMessages+10; i++ {
		frame, err := wire.Build(wire.MsgCloseInd, wire.CloseInd{Reason: wire.CloseNormal}.Marshal())
		require.NoError(t, err)
		sess.pending = append(sess.pending, frame)
	}

	srv.Pump(fd, false, false)
	n := MaxPumpMessages + 10 - len(sess.pending)
	require.Equal(t, MaxPumpMessages, n)
	require.Equal(t, 10, len(sess.pending))
}

func TestIdleDisconnectsStalledPartialRead(t *testing.T) {
	srv, fd, peer := newTestServer(t)
	defer unix.Close(peer)

	// Write only half a header, then stop: the session's read is left
	// in flight, which is what CheckTimeout watches for.
	n, err := unix.Write(peer, []byte{0, 1})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	srv.Pump(fd, true, false)
	sess := srv.sessions[fd]
	sess.Conn.LastIOTime = time.Now().Add(-2 * time.Minute)

	srv.Idle(time.Now())
	_, ok := srv.sessions[fd]
	require.False(t, ok)
}

func TestIdleKeepsIdleConnectionWithNoInFlightRead(t *testing.T) {
	srv, fd, peer := newTestServer(t)
	defer unix.Close(peer)

	sess := srv.sessions[fd]
	sess.Conn.LastIOTime = time.Now().Add(-2 * time.Minute)

	srv.Idle(time.Now())
	_, ok := srv.sessions[fd]
	require.True(t, ok, "a connection with no message in flight never times out")
}
