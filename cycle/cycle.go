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

// Package cycle implements the acquisition cycle phase scheduler:
// NOWNEXT -> STREAM1 -> STREAM2 -> MONITOR, advancing each phase once its
// network-coverage variance has settled.
package cycle

import (
	"time"

	"github.com/eclesh/welford"
)

// Phase is one stage of the acquisition cycle.
type Phase int

const (
	PhaseNowNext Phase = iota
	PhaseStream1
	PhaseStream2
	PhaseMonitor
)

func (p Phase) String() string {
	switch p {
	case PhaseNowNext:
		return "NOWNEXT"
	case PhaseStream1:
		return "STREAM1"
	case PhaseStream2:
		return "STREAM2"
	case PhaseMonitor:
		return "MONITOR"
	default:
		return "UNKNOWN"
	}
}

// AcqMode is the acquisition strategy selected for a capture source,
// matching the original acq_mode enum ordering: the six tuning modes
// first (follow the UI, follow a merged database, or one of the cyclic
// variants), then the three non-tuning modes.
type AcqMode uint32

const (
	ModeFollowUI AcqMode = iota
	ModeFollowMerged
	ModeCyclic2
	ModeCyclic012
	ModeCyclic02
	ModeCyclic12
	ModeNetwork
	ModeExternal
	ModePassive

	// modeForcedPassive is a transient state the acquisition master
	// switches to on its own (device busy, no permission) and never a
	// user-configurable mode, so it stays unexported.
	modeForcedPassive
)

func (m AcqMode) String() string {
	switch m {
	case ModeFollowUI:
		return "FOLLOW_UI"
	case ModeFollowMerged:
		return "FOLLOW_MERGED"
	case ModeCyclic2:
		return "CYCLIC_2"
	case ModeCyclic012:
		return "CYCLIC_012"
	case ModeCyclic02:
		return "CYCLIC_02"
	case ModeCyclic12:
		return "CYCLIC_12"
	case ModeNetwork:
		return "NETWORK"
	case ModeExternal:
		return "EXTERNAL"
	case ModePassive:
		return "PASSIVE"
	case modeForcedPassive:
		return "FORCED_PASSIVE"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether m is one of the user-configurable modes.
// modeForcedPassive is deliberately excluded: it is only ever reached at
// runtime, never accepted from configuration.
func (m AcqMode) Valid() bool {
	return m <= ModePassive
}

// StartPhase returns the cycle phase acquisition enters first under
// mode, mirroring the original's per-mode starting-phase table. Cyclic
// modes that tune all or most networks start from NOWNEXT or STREAM1 so
// their early phases aren't skipped; modes that never cycle through the
// full network list (following the UI's current channel, or a merged
// database that is already complete) start at STREAM2, since NOWNEXT and
// STREAM1 exist to bootstrap exactly that list.
func StartPhase(mode AcqMode) Phase {
	switch mode {
	case ModeCyclic012, ModeCyclic02:
		return PhaseNowNext
	case ModeCyclic12:
		return PhaseStream1
	case ModeFollowUI, ModeFollowMerged, ModeCyclic2:
		return PhaseStream2
	default:
		return PhaseNowNext
	}
}

// Timing and threshold constants.
const (
	NowNextTimeout = 5 * time.Minute
	Stream1Timeout = 12 * time.Minute
	Stream2Timeout = 35 * time.Minute

	NowNextTimeoutAICount = 5

	MinCycleQuote       = 0.33
	MinCycleVariance    = 0.25
	MaxCycleVarDiff     = 0.01
	MaxCycleAcqRepCount = 1.1

	// VarianceHistCount bounds the rolling window used to judge whether
	// a stream's variance has stopped trending.
	VarianceHistCount = 5
)

// streamStats tracks one of the two PI streams (stream 0 covers "now and
// next", stream 1 covers the rest of the schedule) across a cycle.
type streamStats struct {
	ai             int
	sinceAcq       int
	avgAcqRepCount float64
	welf           *welford.Stats

	hist     [VarianceHistCount]float64
	histLen  int
	histNext int
}

func newStreamStats() *streamStats {
	return &streamStats{welf: welford.New()}
}

// recordVariance folds one new coverage-repeat-count sample into the
// stream's running variance and its stability history ring buffer.
func (s *streamStats) recordVariance(repCount float64) {
	s.welf.Add(repCount)
	s.hist[s.histNext] = s.welf.Variance()
	s.histNext = (s.histNext + 1) % VarianceHistCount
	if s.histLen < VarianceHistCount {
		s.histLen++
	}
}

func (s *streamStats) variance() float64 {
	return s.welf.Variance()
}

// stable reports whether the variance history's min/max spread has
// settled below MaxCycleVarDiff, requiring a full window of samples
// first.
func (s *streamStats) stable() bool {
	if s.histLen < VarianceHistCount {
		return false
	}
	min, max := s.hist[0], s.hist[0]
	for _, v := range s.hist {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return max-min < MaxCycleVarDiff
}

func (s *streamStats) quote() float64 {
	if s.ai == 0 {
		return 100.0
	}
	return float64(s.sinceAcq) / float64(s.ai)
}

// Scheduler drives the acquisition cycle phase machine for one open
// database.
type Scheduler struct {
	Phase     Phase
	StartTime time.Time

	AICount           int
	NowMaxAcqRepCount int

	streams [2]*streamStats
}

// NewScheduler returns a Scheduler for mode, starting at now in the
// phase StartPhase(mode) selects.
func NewScheduler(now time.Time, mode AcqMode) *Scheduler {
	return &Scheduler{
		Phase:     StartPhase(mode),
		StartTime: now,
		streams:   [2]*streamStats{newStreamStats(), newStreamStats()},
	}
}

// RecordAI notes the arrival of one AI block, used by the NOWNEXT
// advance criterion.
func (s *Scheduler) RecordAI() {
	s.AICount++
}

// RecordRepCount folds one netwop's "acquisition repeat count" sample
// (how many times that netwop's now/next has been reacquired this
// cycle) into the given stream's statistics.
func (s *Scheduler) RecordRepCount(streamIdx int, repCount float64) {
	s.streams[streamIdx].recordVariance(repCount)
	s.streams[streamIdx].avgAcqRepCount = s.streams[streamIdx].welf.Mean()
	if streamIdx == 0 && int(repCount) > s.NowMaxAcqRepCount {
		s.NowMaxAcqRepCount = int(repCount)
	}
}

// RecordCoverage updates a stream's AI/sinceAcq counters, the inputs to
// the completeness "quote" used by the STREAM1/STREAM2/MONITOR advance
// criteria.
func (s *Scheduler) RecordCoverage(streamIdx int, ai, sinceAcq int) {
	s.streams[streamIdx].ai = ai
	s.streams[streamIdx].sinceAcq = sinceAcq
}

// ShouldAdvance evaluates the current phase's advance criterion against
// now, mirroring EpgAcqNxtv_AdvanceCyclePhase's per-phase OR-of-conditions
// structure. It does not mutate state; call Advance once
// this returns true.
func (s *Scheduler) ShouldAdvance(now time.Time) bool {
	elapsed := now.Sub(s.StartTime)

	switch s.Phase {
	case PhaseNowNext:
		advance := s.NowMaxAcqRepCount >= 2 ||
			(s.NowMaxAcqRepCount == 0 && s.AICount >= NowNextTimeoutAICount)
		return advance || elapsed >= NowNextTimeout

	case PhaseStream1:
		st := s.streams[0]
		advance := st.quote() >= MinCycleQuote &&
			st.variance() < MinCycleVariance &&
			(st.stable() || st.variance() == 0.0)
		advance = advance ||
			s.streams[0].avgAcqRepCount >= MaxCycleAcqRepCount ||
			s.streams[1].avgAcqRepCount >= MaxCycleAcqRepCount
		return advance || elapsed >= Stream1Timeout

	case PhaseStream2, PhaseMonitor:
		st0, st1 := s.streams[0], s.streams[1]
		totalAI := st0.ai + st1.ai
		quote := 100.0
		if totalAI > 0 {
			quote = float64(st0.sinceAcq+st1.sinceAcq) / float64(totalAI)
		}
		advance := quote >= MinCycleQuote &&
			st0.variance() < MinCycleVariance &&
			st1.variance() < MinCycleVariance &&
			st0.stable() && st1.stable()
		advance = advance || st1.avgAcqRepCount >= MaxCycleAcqRepCount
		return advance || elapsed >= Stream2Timeout

	default:
		return true
	}
}

// Advance moves to the next phase (MONITOR repeats on itself) and resets
// the per-cycle clock and NOWNEXT counters.
func (s *Scheduler) Advance(now time.Time) {
	switch s.Phase {
	case PhaseNowNext:
		s.Phase = PhaseStream1
	case PhaseStream1:
		s.Phase = PhaseStream2
	case PhaseStream2:
		s.Phase = PhaseMonitor
	case PhaseMonitor:
		// stays in MONITOR; the acquisition module restarts a fresh
		// cycle (back to NOWNEXT) on provider or channel change instead.
	}
	s.StartTime = now
	s.AICount = 0
	s.NowMaxAcqRepCount = 0
}

// Variance returns stream streamIdx's current running variance, exposed
// for statistics reporting.
func (s *Scheduler) Variance(streamIdx int) float64 {
	return s.streams[streamIdx].variance()
}
