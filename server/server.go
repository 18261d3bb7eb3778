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

package server

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/tomzo/nxtvepgd/blockqueue"
	"github.com/tomzo/nxtvepgd/dbcontext"
	"github.com/tomzo/nxtvepgd/nettransport"
	"github.com/tomzo/nxtvepgd/timescale"
	"github.com/tomzo/nxtvepgd/wire"
)

// StatsSource is the acquisition-side data the server needs to answer
// ACQSTAT/PID text queries and to build STATS_IND/VPS_PDC_IND updates.
// Implemented by package acquisition's Manager in
// production; tests supply a fake.
type StatsSource interface {
	AcqMode() uint8
	PassiveReasonCode() uint8
	VpsPdc() (cni uint16, pil uint32)
	Counters() wire.StatsCounters
	CurrentCNI() uint16
}

// Metrics are the Prometheus gauges/counters the server exposes, grounded on `ptp4u/stats`'s per-server counters.
type Metrics struct {
	SessionsActive prometheus.Gauge
	SessionsTotal  prometheus.Counter
	ProtocolErrors prometheus.Counter
}

// NewMetrics registers the server's counters with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nxtvepgd_server_sessions_active",
			Help: "Currently connected client sessions.",
		}),
		SessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nxtvepgd_server_sessions_total",
			Help: "Client sessions accepted since startup.",
		}),
		ProtocolErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nxtvepgd_server_protocol_errors_total",
			Help: "Sessions closed due to a protocol violation.",
		}),
	}
	reg.MustRegister(m.SessionsActive, m.SessionsTotal, m.ProtocolErrors)
	return m
}

// Server holds every connected client session and the shared resources
// (the database cache, acquisition stats) sessions read from.
type Server struct {
	DB      *dbcontext.Manager
	Stats   StatsSource
	Metrics *Metrics

	sessions map[int]*Session
}

// NewServer wires a Server over db and stats.
func NewServer(db *dbcontext.Manager, stats StatsSource, metrics *Metrics) *Server {
	return &Server{DB: db, Stats: stats, Metrics: metrics, sessions: make(map[int]*Session)}
}

// Accept registers a freshly accepted connection as a new session in
// WAIT_CON_REQ.
func (s *Server) Accept(fd int, peer net.Addr) *Session {
	sess := newSession(nettransport.NewConn(fd, peer))
	s.sessions[fd] = sess
	s.Metrics.SessionsActive.Inc()
	s.Metrics.SessionsTotal.Inc()
	log.Infof("server: accepted session from %v", peer)
	return sess
}

// Sessions exposes the live session table, keyed by fd.
func (s *Server) Sessions() map[int]*Session { return s.sessions }

// BuildFDSets returns the fds that want read and write readiness this
// select-loop iteration.
func (s *Server) BuildFDSets() (readFds, writeFds []int) {
	for fd, sess := range s.sessions {
		readFds = append(readFds, fd)
		if sess.WantsWrite() {
			writeFds = append(writeFds, fd)
		}
	}
	return readFds, writeFds
}

// Pump drives one session's I/O and message processing for one
// select-loop iteration: at most MaxPumpMessages dispatches, the rest
// staying queued for the next iteration so other sessions get a turn.
func (s *Server) Pump(fd int, readable, writable bool) {
	sess, ok := s.sessions[fd]
	if !ok {
		return
	}
	if err := sess.Conn.HandleIO(readable, writable); err != nil {
		s.disconnect(fd, sess, err)
		return
	}
	sess.pending = append(sess.pending, sess.Conn.TakeMessages()...)

	n := 0
	for n < MaxPumpMessages && len(sess.pending) > 0 {
		frame := sess.pending[0]
		sess.pending = sess.pending[1:]
		if err := s.handleMessage(sess, frame); err != nil {
			s.disconnect(fd, sess, err)
			return
		}
		n++
	}

	if sess.State == StateDumpRequested || sess.State == StateDumpAcq {
		s.pumpDump(sess)
	}
	s.flushOutbound(sess)
	if sess.closeAfter && !sess.Conn.HasPendingWrite() {
		s.disconnect(fd, sess, nil)
	}
}

// Idle performs periodic per-session housekeeping: connection timeouts
// and the "no reception" stats cadence.
func (s *Server) Idle(now time.Time) {
	for fd, sess := range s.sessions {
		if sess.Conn.CheckTimeout(now) {
			s.disconnect(fd, sess, nettransport.ErrTimeout)
			continue
		}
		if sess.State == StateForward && now.Sub(sess.lastStatsSent) >= StatsNoReceptionInterval {
			sess.cadence = wire.CadenceUpdateNoAI
		}
	}
}

func (s *Server) disconnect(fd int, sess *Session, cause error) {
	if cause != nil {
		log.Warningf("server: session %v closed: %v", sess.Conn.Peer, cause)
	}
	sess.Conn.Close()
	delete(s.sessions, fd)
	s.Metrics.SessionsActive.Dec()
}

func (s *Server) handleMessage(sess *Session, frame []byte) error {
	h, err := wire.DecodeHeader(frame[:wire.HeaderSize])
	if err != nil {
		s.Metrics.ProtocolErrors.Inc()
		return err
	}
	body := frame[wire.HeaderSize:]
	if sess.Swap && sess.State != StateWaitConReq {
		if h.Type == wire.MsgForwardReq {
			if err := wire.SwapForwardReq(body); err != nil {
				s.Metrics.ProtocolErrors.Inc()
				return err
			}
		} else {
			wire.SwapBody(h.Type, body)
		}
	}
	res := wire.Check(h, body)
	if sess.State != StateWaitConReq && !res.OK {
		s.Metrics.ProtocolErrors.Inc()
		return &wire.ProtocolError{Err: wire.ErrBadType, Header: h}
	}

	switch sess.State {
	case StateWaitConReq:
		return s.handleConnectReq(sess, h, body)
	case StateWaitFwdReq:
		return s.handleForwardReq(sess, body)
	default:
		return s.handleSteadyState(sess, h, body)
	}
}

func (s *Server) handleConnectReq(sess *Session, h wire.Header, body []byte) error {
	if query, ok := wire.DetectTextQuery(body); ok {
		sess.textQuery = true
		reply := s.textQueryReply(query)
		frame, err := wire.Build(wire.MsgConqueryCnf, []byte(reply))
		if err != nil {
			return err
		}
		sess.Conn.QueueWrite(frame)
		sess.closeAfter = true
		return nil
	}
	if h.Type != wire.MsgConnectReq {
		return &wire.ProtocolError{Err: wire.ErrBadType, Header: h}
	}

	needSwap, err := wire.DetectSwap(body)
	if err != nil {
		return err
	}
	sess.Swap = needSwap
	if needSwap {
		wire.SwapBody(wire.MsgConnectReq, body)
	}
	msg, magic, err := wire.UnmarshalConnect(body)
	if err != nil {
		return err
	}
	if err := wire.ValidateServiceMagic(magic); err != nil {
		return &wire.ProtocolError{Err: err, Header: h}
	}
	if err := wire.CheckVersion(wire.FormatPackedVersion(msg.CompatVersion)); err != nil {
		closeFrame, _ := wire.Build(wire.MsgCloseInd, wire.CloseInd{Reason: wire.CloseVersionMismatch}.Marshal())
		sess.Conn.QueueWrite(closeFrame)
		sess.closeAfter = true
		return nil
	}

	cnf := wire.ConnectMessage{
		EndianMagic:   wire.EndianMagic,
		CompatVersion: wire.CompatVersionPacked,
		SwVersion:     wire.SwVersion,
		Pid:           uint32(os.Getpid()),
		UTF8:          true,
	}
	respBody := cnf.Marshal()
	frame, err := wire.Build(wire.MsgConnectCnf, respBody)
	if err != nil {
		return err
	}
	sess.Conn.QueueWrite(frame)
	sess.State = StateWaitFwdReq
	return nil
}

func (s *Server) handleForwardReq(sess *Session, body []byte) error {
	req, err := wire.UnmarshalForwardReq(body)
	if err != nil {
		return err
	}
	sess.forwardCNI = req.ForwardCni
	sess.extStats = req.ExtStats
	sess.wantTsc = req.WantTsc
	sess.wantVpsPdc = req.WantVpsPdc
	if req.WantTsc {
		sess.tsc = timescale.New(sess.forwardCNI)
	}
	sess.lastSeen = make(map[uint16]uint32, len(req.Cnis))
	sess.dumpQueue = sess.dumpQueue[:0]
	for i, cni := range req.Cnis {
		ts := req.LastSeen[i]
		sess.lastSeen[cni] = ts
		ctx := s.DB.Lookup(cni)
		if ctx != nil && uint32(ctx.LastAcquired.Unix()) > ts {
			sess.dumpQueue = append(sess.dumpQueue, providerCursor{cni: cni, lastSeen: ts})
		}
	}

	cnf := wire.ForwardCnf{OK: true}
	frame, err := wire.Build(wire.MsgForwardCnf, cnf.Marshal())
	if err != nil {
		return err
	}
	sess.Conn.QueueWrite(frame)
	sess.State = StateDumpRequested
	return nil
}

// pumpDump advances the DUMP_REQUESTED/DUMP_ACQ streaming: one provider
// fully drained per Pump call so the starvation guard still applies to
// dump traffic.
func (s *Server) pumpDump(sess *Session) {
	if sess.State == StateDumpRequested {
		if len(sess.dumpQueue) == 0 {
			s.enterForward(sess)
			return
		}
		cur := sess.dumpQueue[0]
		sess.dumpQueue = sess.dumpQueue[1:]
		if err := s.streamProvider(sess, cur); err != nil {
			log.Warningf("server: dump of provider 0x%04x failed: %v", cur.cni, err)
			return
		}
		frame, _ := wire.Build(wire.MsgDumpInd, wire.DumpInd{Cni: cur.cni}.Marshal())
		sess.out.Add(&blockqueue.Block{Type: blockqueue.BlockAI, Payload: frame})
		return
	}
}

func (s *Server) enterForward(sess *Session) {
	cur := s.Stats.CurrentCNI()
	if cur != 0 {
		if _, known := sess.lastSeen[cur]; !known {
			if ctx := s.DB.Lookup(cur); ctx != nil && ctx.AI != nil {
				s.enqueueAI(sess, ctx)
			}
		}
	}
	sess.State = StateForward
	sess.cadence = wire.CadenceInitial
}

func (s *Server) streamProvider(sess *Session, cur providerCursor) error {
	ctx, err := s.DB.Open(cur.cni)
	if err != nil {
		return err
	}
	defer s.DB.CloseOpen(cur.cni)

	s.enqueueAI(sess, ctx)
	ctx.WalkGlobal(func(p *dbcontext.PI) {
		if p.Stop <= cur.lastSeen {
			return
		}
		s.enqueuePI(sess, ctx.CNI, p)
	})
	return nil
}

func (s *Server) enqueueAI(sess *Session, ctx *dbcontext.Context) {
	body := dbcontext.EncodeAIBlock(ctx.AI)
	hdr := wire.BlockIndHeader{Cni: ctx.CNI, BlockType: uint8(blockqueue.BlockAI)}.Marshal()
	frame, _ := wire.Build(wire.MsgBlockInd, append(hdr, body...))
	sess.out.Add(&blockqueue.Block{Type: blockqueue.BlockAI, Cni: ctx.CNI, Payload: frame})
}

func (s *Server) enqueuePI(sess *Session, cni uint16, p *dbcontext.PI) {
	body := dbcontext.EncodePIBlock(p)
	hdr := wire.BlockIndHeader{Cni: cni, BlockType: uint8(blockqueue.BlockPI)}.Marshal()
	frame, _ := wire.Build(wire.MsgBlockInd, append(hdr, body...))
	sess.out.Add(&blockqueue.Block{Type: blockqueue.BlockPI, Cni: cni, Payload: frame})
	if sess.tsc != nil {
		sess.tsc.AddPI(timescale.PIRange{Start: p.Start, Stop: p.Stop, Netwop: p.NetwopNo, BlockNo: p.BlockNo})
	}
}

func (s *Server) handleSteadyState(sess *Session, h wire.Header, body []byte) error {
	switch h.Type {
	case wire.MsgStatsReq:
		req, err := wire.UnmarshalStatsReq(body)
		if err != nil {
			return err
		}
		sess.extStats = req.ExtendedStats
		sess.wantVpsPdc = req.VpsPdcUpdates
		if req.Timescale && sess.tsc == nil {
			sess.tsc = timescale.New(sess.forwardCNI)
		}
		return nil
	case wire.MsgCloseInd:
		sess.closeAfter = true
		return nil
	default:
		return fmt.Errorf("%w: unexpected message %s in state %s", wire.ErrBadType, h.Type, sess.State)
	}
}

// BroadcastBlock fans a freshly acquired block out to every FORWARD
// session whose provider set includes it, or that is entitled to an AI
// update regardless of provider selection.
func (s *Server) BroadcastBlock(cni uint16, blockType blockqueue.BlockType, payload []byte) {
	for _, sess := range s.sessions {
		if sess.State != StateForward {
			continue
		}
		_, inSet := sess.lastSeen[cni]
		if !inSet && blockType != blockqueue.BlockAI {
			continue
		}
		hdr := wire.BlockIndHeader{Cni: cni, BlockType: uint8(blockType)}.Marshal()
		frame, err := wire.Build(wire.MsgBlockInd, append(hdr, payload...))
		if err != nil {
			continue
		}
		sess.out.Add(&blockqueue.Block{Type: blockType, Cni: cni, Payload: frame})
		if blockType == blockqueue.BlockAI {
			sess.cadence = wire.CadenceUpdate
			sess.lastStatsSent = time.Now()
		}
	}
}

// BroadcastVpsPdc notifies every session that requested VPS/PDC updates
// of a change in the currently-airing label.
func (s *Server) BroadcastVpsPdc(cni uint16, pil uint32) {
	for _, sess := range s.sessions {
		if sess.State != StateForward || !sess.wantVpsPdc {
			continue
		}
		if sess.lastVpsPdcCni == cni && sess.lastVpsPdcPil == pil {
			continue
		}
		sess.lastVpsPdcCni, sess.lastVpsPdcPil = cni, pil
		frame, err := wire.Build(wire.MsgVpsPdcInd, wire.VpsPdcInd{Cni: cni, Pil: pil}.Marshal())
		if err != nil {
			continue
		}
		sess.out.Add(&blockqueue.Block{Type: blockqueue.BlockAI, Cni: cni, Payload: frame})
	}
}

func (s *Server) flushOutbound(sess *Session) {
	for {
		b := sess.out.Get()
		if b == nil {
			break
		}
		sess.Conn.QueueWrite(b.Payload.([]byte))
	}

	if sess.cadence != wire.CadenceDone {
		s.flushStats(sess)
	}
	if sess.tsc != nil {
		sess.tsc.UnlockBuffers()
		for {
			ind, ok := sess.tsc.PopBuffer()
			if !ok {
				break
			}
			frame, err := wire.Build(wire.MsgTscInd, ind.Marshal())
			if err == nil {
				sess.Conn.QueueWrite(frame)
			}
		}
	}
}

func (s *Server) flushStats(sess *Session) {
	var body []byte
	switch sess.cadence {
	case wire.CadenceInitial:
		body = wire.StatsInitial{Cni: s.Stats.CurrentCNI(), Counters: s.Stats.Counters()}.Marshal()
	case wire.CadenceUpdate:
		body = wire.StatsUpdate{Cni: s.Stats.CurrentCNI(), Counters: s.Stats.Counters()}.Marshal()
	case wire.CadenceUpdateNoAI:
		body = wire.StatsUpdate{Cni: s.Stats.CurrentCNI(), NoAI: true, Counters: s.Stats.Counters()}.Marshal()
	default:
		return
	}
	frame, err := wire.Build(wire.MsgStatsInd, body)
	if err != nil {
		return
	}
	sess.Conn.QueueWrite(frame)
	sess.cadence = wire.CadenceDone
	sess.lastStatsSent = time.Now()
}
