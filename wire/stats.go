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

package wire

import "fmt"

// StatsVariant discriminates the three STATS_IND sub-layouts. Every
// counter here is a plain 32-bit field; no struct-alignment-sensitive
// packing is used.
type StatsVariant uint8

const (
	StatsVariantMinimal StatsVariant = iota
	StatsVariantInitial
	StatsVariantUpdate
)

// StatsCadence mirrors the per-session cadence state on the server side
// for one client.
type StatsCadence uint8

const (
	CadenceDone StatsCadence = iota
	CadenceInitial
	CadenceUpdate
	CadenceUpdateNoAI
)

// StatsMinimal is sent while no AI has ever been received for the
// forwarded provider: just enough for the client to show "acquiring".
type StatsMinimal struct {
	AcqMode        uint8
	PassiveReason  uint8
	VpsPdcCni      uint16
	VpsPdcPil      uint32
}

const statsMinimalLen = 8

var statsMinimalSchema = schema{{2, 2}, {4, 4}}

func (s StatsMinimal) Marshal() []byte {
	b := make([]byte, statsMinimalLen)
	b[0] = s.AcqMode
	b[1] = s.PassiveReason
	host.PutUint16(b[2:4], s.VpsPdcCni)
	host.PutUint32(b[4:8], s.VpsPdcPil)
	return b
}

func UnmarshalStatsMinimal(body []byte) (StatsMinimal, error) {
	if len(body) < statsMinimalLen {
		return StatsMinimal{}, fmt.Errorf("%w: stats minimal too short", ErrBadLength)
	}
	return StatsMinimal{
		AcqMode:       body[0],
		PassiveReason: body[1],
		VpsPdcCni:     host.Uint16(body[2:4]),
		VpsPdcPil:     host.Uint32(body[4:8]),
	}, nil
}

// StatsCounters is the common counter block shared by Initial and Update
// variants; it mirrors the ACQSTAT text-query keys.
type StatsCounters struct {
	TtxAcqDurationSec uint32
	AiMinSec          uint32
	AiAvgSec          uint32
	AiMaxSec          uint32
	EpgPagesPerSec    uint32
	TtxPagesLost      uint32
	TtxPagesGot       uint32
	TtxPkgLost        uint32
	TtxPkgGot         uint32
	EpgBlocksDropped  uint32
	EpgBlocksGot      uint32
	EpgCharsBlanked   uint32
	EpgCharsGot       uint32
}

const statsCountersLen = 13 * 4

func (c StatsCounters) marshalInto(b []byte) {
	vals := []uint32{
		c.TtxAcqDurationSec, c.AiMinSec, c.AiAvgSec, c.AiMaxSec,
		c.EpgPagesPerSec, c.TtxPagesLost, c.TtxPagesGot, c.TtxPkgLost,
		c.TtxPkgGot, c.EpgBlocksDropped, c.EpgBlocksGot, c.EpgCharsBlanked,
		c.EpgCharsGot,
	}
	for i, v := range vals {
		host.PutUint32(b[i*4:i*4+4], v)
	}
}

func unmarshalCounters(b []byte) StatsCounters {
	get := func(i int) uint32 { return host.Uint32(b[i*4: i*4+4]) }
	return StatsCounters{
		TtxAcqDurationSec: get(0), AiMinSec: get(1), AiAvgSec: get(2), AiMaxSec: get(3),
		EpgPagesPerSec: get(4), TtxPagesLost: get(5), TtxPagesGot: get(6), TtxPkgLost: get(7),
		TtxPkgGot: get(8), EpgBlocksDropped: get(9), EpgBlocksGot: get(10), EpgCharsBlanked: get(11),
		EpgCharsGot: get(12),
	}
}

func countersSchema(base int) schema {
	s := make(schema, 13)
	for i := range s {
		s[i] = fieldSpec{base + i*4, 4}
	}
	return s
}

// StatsInitial is sent the first time a client forwards a provider that
// already has an AI: a full snapshot, no deltas.
type StatsInitial struct {
	Cni      uint16
	Counters StatsCounters
}

const statsInitialLen = 2 + statsCountersLen

var statsInitialSchema = append(schema{{0, 2}}, countersSchema(2)...)

func (s StatsInitial) Marshal() []byte {
	b := make([]byte, statsInitialLen)
	host.PutUint16(b[0:2], s.Cni)
	s.Counters.marshalInto(b[2:])
	return b
}

func UnmarshalStatsInitial(body []byte) (StatsInitial, error) {
	if len(body) < statsInitialLen {
		return StatsInitial{}, fmt.Errorf("%w: stats initial too short", ErrBadLength)
	}
	return StatsInitial{Cni: host.Uint16(body[0:2]), Counters: unmarshalCounters(body[2:])}, nil
}

// StatsUpdate is sent on every subsequent AI while forwarding a provider,
// or periodically (every 15s) with NoAI set when reception has
// stalled.
type StatsUpdate struct {
	Cni      uint16
	NoAI     bool
	Counters StatsCounters
}

const statsUpdateLen = 2 + 1 + 1 /*pad*/ + statsCountersLen

var statsUpdateSchema = append(schema{{0, 2}}, countersSchema(4)...)

func (s StatsUpdate) Marshal() []byte {
	b := make([]byte, statsUpdateLen)
	host.PutUint16(b[0:2], s.Cni)
	if s.NoAI {
		b[2] = 1
	}
	s.Counters.marshalInto(b[4:])
	return b
}

func UnmarshalStatsUpdate(body []byte) (StatsUpdate, error) {
	if len(body) < statsUpdateLen {
		return StatsUpdate{}, fmt.Errorf("%w: stats update too short", ErrBadLength)
	}
	return StatsUpdate{
		Cni:      host.Uint16(body[0:2]),
		NoAI:     body[2] != 0,
		Counters: unmarshalCounters(body[4:]),
	}, nil
}

// StatsBodyLen returns the fixed body length for a STATS_IND variant, so
// a receiver that has only the variant discriminator (out of band, via
// the session's cadence state) can size its read buffer.
func StatsBodyLen(v StatsVariant) int {
	switch v {
	case StatsVariantMinimal:
		return statsMinimalLen
	case StatsVariantInitial:
		return statsInitialLen
	case StatsVariantUpdate:
		return statsUpdateLen
	default:
		return 0
	}
}
