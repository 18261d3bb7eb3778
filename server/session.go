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

// Package server implements the per-client session side of the wire
// protocol: the WAIT_CON_REQ -> WAIT_FWD_REQ -> DUMP_REQUESTED -> FORWARD
// lifecycle (StateDumpAcq is declared but no transition enters it),
// dump-then-forward block streaming, and
// the select-loop fd-set construction with its per-session starvation
// guard. The per-client object lifecycle and the accept-loop/
// session-table shape are adapted from a goroutine-per-client model into
// single cooperative session objects pumped by one external select loop.
package server

import (
	"time"

	"github.com/tomzo/nxtvepgd/blockqueue"
	"github.com/tomzo/nxtvepgd/nettransport"
	"github.com/tomzo/nxtvepgd/timescale"
	"github.com/tomzo/nxtvepgd/wire"
)

// SessionState is one stage of the per-client lifecycle.
type SessionState int

const (
	StateWaitConReq SessionState = iota
	StateWaitFwdReq
	StateDumpRequested
	StateDumpAcq
	StateForward
)

func (s SessionState) String() string {
	switch s {
	case StateWaitConReq:
		return "WAIT_CON_REQ"
	case StateWaitFwdReq:
		return "WAIT_FWD_REQ"
	case StateDumpRequested:
		return "DUMP_REQUESTED"
	case StateDumpAcq:
		return "DUMP_ACQ"
	case StateForward:
		return "FORWARD"
	default:
		return "UNKNOWN"
	}
}

// MaxPumpMessages caps how many complete messages one session may have
// dispatched per select-loop iteration, so one chatty or replaying
// client cannot starve the others sharing the loop.
const MaxPumpMessages = 50

// StatsNoReceptionInterval is how often a "no reception" STATS_IND is
// sent while forwarding a provider that hasn't produced an AI update.
const StatsNoReceptionInterval = 15 * time.Second

// providerCursor tracks one client-requested provider's dump progress.
type providerCursor struct {
	cni      uint16
	lastSeen uint32
}

// Session is one connected client's server-side state.
type Session struct {
	Conn  *nettransport.Conn
	State SessionState
	Swap  bool

	forwardCNI   uint16 // 0 = "whatever is being acquired"
	extStats     bool
	wantTsc      bool
	wantVpsPdc   bool
	lastSeen     map[uint16]uint32
	dumpQueue    []providerCursor
	curDumpCNI   uint16
	curDumpTime  uint32

	out  *blockqueue.Queue
	tsc  *timescale.Queue

	cadence       wire.StatsCadence
	lastStatsSent time.Time
	lastVpsPdcCni uint16
	lastVpsPdcPil uint32

	textQuery   bool
	closeAfter  bool
	pending     [][]byte
}

func newSession(conn *nettransport.Conn) *Session {
	return &Session{
		Conn:          conn,
		State:         StateWaitConReq,
		out:           blockqueue.New(),
		lastStatsSent: time.Now(),
	}
}

// WantsWrite reports whether this session needs a writable readiness
// event: pending socket output, queued outbound blocks, or pending
// stats/VPS notifications.
func (s *Session) WantsWrite() bool {
	if s.Conn.HasPendingWrite() {
		return true
	}
	if s.out.Count() > 0 {
		return true
	}
	return s.cadence != wire.CadenceDone
}
