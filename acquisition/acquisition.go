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

// Package acquisition implements the top-level acquisition state machine
// (OFF -> WAIT_BI -> WAIT_AI -> RUNNING), dispatching decoded AI/BI/PI
// blocks into the block queue and the open database context, driving the
// cycle scheduler, and applying queue-overflow backpressure.
package acquisition

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tomzo/nxtvepgd/blockqueue"
	"github.com/tomzo/nxtvepgd/cycle"
	"github.com/tomzo/nxtvepgd/dbcontext"
	"github.com/tomzo/nxtvepgd/driver"
	"github.com/tomzo/nxtvepgd/merge"
)

// State is the top-level acquisition phase.
type State int

const (
	StateOff State = iota
	StateWaitBI
	StateWaitAI
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateOff:
		return "OFF"
	case StateWaitBI:
		return "WAIT_BI"
	case StateWaitAI:
		return "WAIT_AI"
	case StateRunning:
		return "RUNNING"
	default:
		return "UNKNOWN"
	}
}

// QueueOverflowLen is the pending-block count above which the UI/server
// connection must be locked until the backlog drains.
const QueueOverflowLen = 250

// DumpInterval is how often a dirty open database is flushed to disk.
const DumpInterval = 60 * time.Second

// BlockCodec decodes the opaque payload bytes a driver.Decoder emits for
// BI/AI events into the structured blocks this daemon understands. The
// decoder itself only assembles raw teletext block bytes; interpreting
// them is this daemon's concern, not the hardware boundary's.
type BlockCodec interface {
	DecodeAI(payload []byte) (*dbcontext.AI, error)
	DecodeBI(payload []byte) (pageStart, pageStop int, err error)
}

// Metrics are the Prometheus counters/gauges acquisition exposes.
type Metrics struct {
	BlocksReceived  prometheus.Counter
	QueueOverflows  prometheus.Counter
	ChannelChanges  prometheus.Counter
	CycleAdvances   prometheus.Counter
}

// NewMetrics registers acquisition's counters with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BlocksReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nxtvepgd_blocks_received_total",
			Help: "EPG blocks received from the teletext decoder.",
		}),
		QueueOverflows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nxtvepgd_queue_overflows_total",
			Help: "Times the acquisition block queue exceeded its backpressure threshold.",
		}),
		ChannelChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nxtvepgd_channel_changes_total",
			Help: "Detected or requested channel changes.",
		}),
		CycleAdvances: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nxtvepgd_cycle_advances_total",
			Help: "Acquisition cycle phase advances.",
		}),
	}
	reg.MustRegister(m.BlocksReceived, m.QueueOverflows, m.ChannelChanges, m.CycleAdvances)
	return m
}

// MergeRebuildInterval is how often a FOLLOW_MERGED acquisition
// re-derives its virtual database from its configured source providers.
const MergeRebuildInterval = 5 * time.Minute

var errNoMergeConfig = fmt.Errorf("acquisition: FOLLOW_MERGED mode requires a MergeCfg")

// Manager is the top-level acquisition coordinator for one capture
// source.
type Manager struct {
	State State
	Mode  cycle.AcqMode

	Decoder driver.Decoder
	Codec   BlockCodec
	DB      *dbcontext.Manager
	Queue   *blockqueue.Queue
	Cycle   *cycle.Scheduler
	Metrics *Metrics

	// MergeCfg configures FOLLOW_MERGED acquisition: it names the source
	// providers RebuildMerged combines into this Manager's virtual
	// database instead of tuning for a single broadcaster's own CNI.
	MergeCfg *merge.Config

	ctx            *dbcontext.Context
	page, appID    int
	dumpTime       time.Time
	mergeTime      time.Time
	chanChangeTime time.Time
	locked         bool
}

// NewManager wires a Manager for one capture source acquiring in mode.
func NewManager(decoder driver.Decoder, codec BlockCodec, db *dbcontext.Manager, metrics *Metrics, mode cycle.AcqMode) *Manager {
	return &Manager{
		State:   StateOff,
		Mode:    mode,
		Decoder: decoder,
		Codec:   codec,
		DB:      db,
		Queue:   blockqueue.New(),
		Metrics: metrics,
	}
}

// Start begins acquisition for cni, requesting page/appID from the
// decoder and entering the cycle's mode-appropriate starting phase.
func (m *Manager) Start(now time.Time, cni uint16, page, appID int) error {
	m.page, m.appID = page, appID
	if err := m.Decoder.Start(page, appID, false); err != nil {
		return err
	}
	m.ctx = m.DB.CreateDummy(cni)
	m.Cycle = cycle.NewScheduler(now, m.Mode)
	m.State = StateWaitBI
	m.chanChangeTime = now
	m.dumpTime = time.Time{}
	m.mergeTime = time.Time{}
	m.locked = false
	return nil
}

// Stop halts acquisition and flushes the current database if dirty.
func (m *Manager) Stop() error {
	m.Decoder.Stop()
	m.State = StateOff
	if m.ctx != nil && m.ctx.State == dbcontext.StateOpen && m.ctx.Dirty() {
		return dbcontext.Dump(m.ctx)
	}
	return nil
}

// HandleEvent dispatches one decoded event from the driver, advancing
// the WAIT_BI -> WAIT_AI -> RUNNING state machine.
func (m *Manager) HandleEvent(ev driver.DecodedEvent) error {
	m.Metrics.BlocksReceived.Inc()
	switch ev.Event {
	case driver.EventBI:
		pageStart, pageStop, err := m.Codec.DecodeBI(ev.Payload)
		if err != nil {
			return err
		}
		m.Queue.Add(&blockqueue.Block{Type: blockqueue.BlockBI, Cni: m.ctx.CNI, Payload: [2]int{pageStart, pageStop}})
		if m.State == StateWaitBI {
			m.State = StateWaitAI
		}
	case driver.EventAI:
		ai, err := m.Codec.DecodeAI(ev.Payload)
		if err != nil {
			return err
		}
		m.Queue.Add(&blockqueue.Block{Type: blockqueue.BlockAI, Cni: m.ctx.CNI, Payload: ai})
		m.Cycle.RecordAI()
	case driver.EventChannelChange:
		m.channelChanged(ev.At)
	}
	return nil
}

// IngestPI queues one fully decoded Programme Item for insertion into the
// open database on the next ProcessBlocks call. Teletext
// page-to-PI parsing is a separate concern from block dispatch and is
// not performed by this package.
func (m *Manager) IngestPI(pi dbcontext.PI) {
	m.Queue.Add(&blockqueue.Block{Type: blockqueue.BlockPI, Cni: m.ctx.CNI, Payload: pi})
}

func (m *Manager) channelChanged(now time.Time) {
	m.Metrics.ChannelChanges.Inc()
	m.chanChangeTime = now
	m.State = StateWaitBI
	m.Queue.Clear()
}

// handleAI dispatches a freshly decoded AI block: an AI with CNI 0 never
// identifies a real provider and is dropped; the first AI seen for a
// still-empty context adopts it in place; an AI carrying the same CNI as
// the open context is a version or schedule-range update merged into it;
// a different CNI is a provider change, switching databases and resetting
// stream state.
func (m *Manager) handleAI(ai *dbcontext.AI) {
	if ai.CNI == 0 {
		return
	}
	switch {
	case m.ctx == nil || m.ctx.AI == nil:
		m.adoptAI(ai)
	case ai.CNI == m.ctx.AI.CNI:
		m.mergeAIUpdate(ai)
	default:
		m.switchProvider(ai)
	}
}

// adoptAI installs ai as the first AI for the context acquisition is
// currently populating.
func (m *Manager) adoptAI(ai *dbcontext.AI) {
	if m.ctx == nil || ai.CNI != m.ctx.CNI {
		m.ctx = m.DB.CreateDummy(ai.CNI)
	}
	m.ctx.AI = ai
	m.DB.AdoptAcquired(m.ctx)
	m.State = StateRunning
}

// mergeAIUpdate folds a same-provider AI's version/range change into the
// already-open context without disturbing its acquired PI or cycle state.
func (m *Manager) mergeAIUpdate(ai *dbcontext.AI) {
	m.ctx.AI = ai
}

// switchProvider treats ai as a different broadcaster than the one
// currently open: the stream/queue state is reset (mode NETWORK tracks
// several providers at once and keeps its queue across the switch), the
// database is swapped to ai's CNI, and acquisition returns to WAIT_BI,
// except in mode NETWORK, which never waits for a BI and stays RUNNING.
func (m *Manager) switchProvider(ai *dbcontext.AI) {
	m.Metrics.ChannelChanges.Inc()
	if m.Mode != cycle.ModeNetwork {
		m.Queue.Clear()
	}
	m.ctx = m.DB.CreateDummy(ai.CNI)
	m.ctx.AI = ai
	m.DB.AdoptAcquired(m.ctx)
	if m.Mode == cycle.ModeNetwork {
		m.State = StateRunning
	} else {
		m.State = StateWaitBI
	}
}

// RebuildMerged recomputes this Manager's virtual database from
// MergeCfg's source providers, opening each long enough to read its
// current AI/PI and closing it again afterward. It is the FOLLOW_MERGED
// counterpart to the single-provider AI dispatch above: the merged
// "provider" never receives its own AI/BI/PI blocks from the decoder, so
// its database is periodically rebuilt here instead.
func (m *Manager) RebuildMerged(mergedCNI uint16) error {
	if m.MergeCfg == nil {
		return errNoMergeConfig
	}
	sources := make([]*dbcontext.Context, len(m.MergeCfg.SourceCNIs))
	for i, cni := range m.MergeCfg.SourceCNIs {
		// A source not yet acquired at all should not stall the merge;
		// FailRetDummy gives it an empty placeholder instead of erroring,
		// so the merged network table still settles once it does arrive.
		ctx, err := m.DB.OpenFailMode(cni, dbcontext.FailRetDummy)
		if err != nil {
			continue
		}
		sources[i] = ctx
		defer m.DB.CloseOpen(cni)
	}
	ai, mc, err := merge.MergeAI(sources, *m.MergeCfg)
	if err != nil {
		return fmt.Errorf("acquisition: merging AI: %w", err)
	}
	dest := m.DB.CreateDummy(mergedCNI)
	dest.AI = ai
	dest.Merge = mc
	merge.MergeAllPI(dest, mc, sources, m.MergeCfg)
	m.DB.AdoptAcquired(dest)
	m.ctx = dest
	m.State = StateRunning
	return nil
}

// ProcessBlocks drains the queue into the open database context,
// applying the AI block (switching the context from DUMMY to OPEN on the
// first one) and every queued PI. It returns true once the queue length
// crosses QueueOverflowLen, signalling callers to lock the UI/server
// connection until it drains.
func (m *Manager) ProcessBlocks() (overflow bool) {
	overflow = m.Queue.Count() >= QueueOverflowLen
	for {
		b := m.Queue.Get()
		if b == nil {
			break
		}
		switch b.Type {
		case blockqueue.BlockAI:
			m.handleAI(b.Payload.(*dbcontext.AI))
		case blockqueue.BlockPI:
			if m.ctx.State == dbcontext.StateOpen {
				pi := b.Payload.(dbcontext.PI)
				m.ctx.InsertPI(pi)
			}
		}
	}
	if overflow && !m.locked {
		m.Metrics.QueueOverflows.Inc()
	}
	m.locked = overflow
	return overflow
}

// Locked reports whether the block queue overflow backpressure is
// currently engaged.
func (m *Manager) Locked() bool { return m.locked }

// Idle performs periodic housekeeping: flushing a dirty open database
// every DumpInterval and advancing the cycle scheduler when its current
// phase's completion criteria are met.
func (m *Manager) Idle(now time.Time) error {
	if m.State != StateRunning {
		return nil
	}
	if m.ctx != nil && m.ctx.Dirty() && now.Sub(m.dumpTime) >= DumpInterval {
		if err := dbcontext.Dump(m.ctx); err != nil {
			return err
		}
		m.dumpTime = now
	}
	if m.Cycle != nil && m.Cycle.ShouldAdvance(now) {
		m.Cycle.Advance(now)
		m.Metrics.CycleAdvances.Inc()
	}
	if m.Mode == cycle.ModeFollowMerged && m.MergeCfg != nil && now.Sub(m.mergeTime) >= MergeRebuildInterval {
		if err := m.RebuildMerged(m.ctx.CNI); err != nil {
			return err
		}
		m.mergeTime = now
	}
	return nil
}

// CurrentContext returns the database context currently being acquired,
// or nil before Start.
func (m *Manager) CurrentContext() *dbcontext.Context { return m.ctx }
