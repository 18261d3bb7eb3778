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

import (
	"encoding/binary"
	"fmt"
)

// host is the byte order message bodies are built in before any swap is
// applied to match a peer of different endianness.
var host = binary.NativeEndian

const serviceMagicFieldLen = 24

// ConnectMessage is the body of both CONNECT_REQ and CONNECT_CNF.
type ConnectMessage struct {
	EndianMagic   uint16
	CompatVersion uint32
	SwVersion     uint32
	Pid           uint32
	Compat32      bool
	UTF8          bool
}

var connectSchema = schema{{26, 4}, {30, 4}, {34, 4}}

// ConnectBodyLen is the fixed wire size of a CONNECT_REQ/CNF body.
const ConnectBodyLen = serviceMagicFieldLen + 2 + 4 + 4 + 4 + 1 + 1

// Marshal encodes m in host byte order, ready for framing.
func (m ConnectMessage) Marshal() []byte {
	b := make([]byte, ConnectBodyLen)
	copy(b[0:serviceMagicFieldLen], []byte(ServiceMagic))
	// EndianMagic is always written in our own native order: it is the
	// peer's job to detect a mismatch by comparing raw bytes, not ours.
	host.PutUint16(b[24:26], m.EndianMagic)
	host.PutUint32(b[26:30], m.CompatVersion)
	host.PutUint32(b[30:34], m.SwVersion)
	host.PutUint32(b[34:38], m.Pid)
	if m.Compat32 {
		b[38] = 1
	}
	if m.UTF8 {
		b[39] = 1
	}
	return b
}

// DetectSwap inspects the raw EndianMagic bytes of a CONNECT_REQ/CNF body
// and reports whether the sender's endianness differs from ours.
func DetectSwap(body []byte) (swap bool, err error) {
	if len(body) < ConnectBodyLen {
		return false, fmt.Errorf("%w: connect body too short (%d)", ErrBadLength, len(body))
	}
	raw := body[24:26]
	native := uint16(raw[0]) | uint16(raw[1])<<8
	if host == binary.BigEndian {
		native = uint16(raw[1]) | uint16(raw[0])<<8
	}
	switch native {
	case EndianMagic:
		return false, nil
	case swap16(EndianMagic):
		return true, nil
	default:
		return false, fmt.Errorf("%w: bad endian magic %#04x", ErrBadMagic, native)
	}
}

func swap16(v uint16) uint16 {
	return v<<8 | v>>8
}

// UnmarshalConnect decodes a CONNECT_REQ/CNF body that has already been
// byte-swapped into host order by the generic SwapBody pass (except for
// the service magic, which is ASCII and is validated separately).
func UnmarshalConnect(body []byte) (ConnectMessage, string, error) {
	if len(body) < ConnectBodyLen {
		return ConnectMessage{}, "", fmt.Errorf("%w: connect body too short (%d)", ErrBadLength, len(body))
	}
	magic := string(body[0:serviceMagicFieldLen])
	m := ConnectMessage{
		EndianMagic:   host.Uint16(body[24:26]),
		CompatVersion: host.Uint32(body[26:30]),
		SwVersion:     host.Uint32(body[30:34]),
		Pid:           host.Uint32(body[34:38]),
		Compat32:      body[38] != 0,
		UTF8:          body[39] != 0,
	}
	return m, magic, nil
}

// ValidateServiceMagic checks the leading bytes of a connect body against
// ServiceMagic, tolerating trailing zero-padding.
func ValidateServiceMagic(magic string) error {
	want := []byte(ServiceMagic)
	got := []byte(magic)
	if len(got) < len(want) {
		return fmt.Errorf("%w: short service magic", ErrBadMagic)
	}
	for i := range want {
		if got[i] != want[i] {
			return fmt.Errorf("%w: service magic mismatch", ErrBadMagic)
		}
	}
	return nil
}

// ForwardReq is the body of FORWARD_REQ: the client's known providers
// and the timestamp it last saw each at, plus the CNI it wants live
// forwarding for (0 = "whatever is being acquired").
type ForwardReq struct {
	ForwardCni  uint16
	Cnis        []uint16
	LastSeen    []uint32 // parallel to Cnis
	ExtStats    bool
	WantTsc     bool
	WantVpsPdc  bool
}

func (m ForwardReq) Marshal() []byte {
	n := len(m.Cnis)
	b := make([]byte, 4+2*n+4*n+1)
	host.PutUint16(b[0:2], m.ForwardCni)
	host.PutUint16(b[2:4], uint16(n))
	off := 4
	for _, c := range m.Cnis {
		host.PutUint16(b[off:off+2], c)
		off += 2
	}
	for _, t := range m.LastSeen {
		host.PutUint32(b[off:off+4], t)
		off += 4
	}
	var flags byte
	if m.ExtStats {
		flags |= 1
	}
	if m.WantTsc {
		flags |= 2
	}
	if m.WantVpsPdc {
		flags |= 4
	}
	b[off] = flags
	return b
}

func UnmarshalForwardReq(body []byte) (ForwardReq, error) {
	if len(body) < 4 {
		return ForwardReq{}, fmt.Errorf("%w: forward req too short", ErrBadLength)
	}
	m := ForwardReq{ForwardCni: host.Uint16(body[0:2])}
	n := int(host.Uint16(body[2:4]))
	need := 4 + 2*n + 4*n + 1
	if len(body) < need {
		return ForwardReq{}, fmt.Errorf("%w: forward req truncated", ErrBadLength)
	}
	off := 4
	m.Cnis = make([]uint16, n)
	for i := 0; i < n; i++ {
		m.Cnis[i] = host.Uint16(body[off: off+2])
		off += 2
	}
	m.LastSeen = make([]uint32, n)
	for i := 0; i < n; i++ {
		m.LastSeen[i] = host.Uint32(body[off: off+4])
		off += 4
	}
	flags := body[off]
	m.ExtStats = flags&1 != 0
	m.WantTsc = flags&2 != 0
	m.WantVpsPdc = flags&4 != 0
	return m, nil
}

// SwapForwardReq swaps a raw FORWARD_REQ body in place, given it is
// still in the sender's byte order (the 16-bit count prefix has to be
// swapped first in order to know how many further entries follow).
func SwapForwardReq(body []byte) error {
	if len(body) < 4 {
		return fmt.Errorf("%w: forward req too short", ErrBadLength)
	}
	swapBytes(body, 0, 2)
	swapBytes(body, 2, 2)
	n := int(host.Uint16(body[2:4]))
	off := 4
	need := 4 + 2*n + 4*n + 1
	if len(body) < need {
		return fmt.Errorf("%w: forward req truncated", ErrBadLength)
	}
	for i := 0; i < n; i++ {
		swapBytes(body, off, 2)
		off += 2
	}
	for i := 0; i < n; i++ {
		swapBytes(body, off, 4)
		off += 4
	}
	return nil
}

// ForwardCnf acknowledges a FORWARD_REQ.
type ForwardCnf struct {
	OK     bool
	Reason uint8
}

func (m ForwardCnf) Marshal() []byte {
	b := make([]byte, 2)
	if m.OK {
		b[0] = 1
	}
	b[1] = m.Reason
	return b
}

func UnmarshalForwardCnf(body []byte) (ForwardCnf, error) {
	if len(body) < 2 {
		return ForwardCnf{}, fmt.Errorf("%w: forward cnf too short", ErrBadLength)
	}
	return ForwardCnf{OK: body[0] != 0, Reason: body[1]}, nil
}

var forwardReqSchema = schema{} // handled dynamically, see SwapForwardReq
var forwardCnfSchema = schema{} // no multi-byte fields

// ForwardInd announces the provider currently being acquired.
type ForwardInd struct {
	Cni uint16
}

var forwardIndSchema = schema{{0, 2}}

func (m ForwardInd) Marshal() []byte {
	b := make([]byte, 2)
	host.PutUint16(b, m.Cni)
	return b
}

func UnmarshalForwardInd(body []byte) (ForwardInd, error) {
	if len(body) < 2 {
		return ForwardInd{}, fmt.Errorf("%w: forward ind too short", ErrBadLength)
	}
	return ForwardInd{Cni: host.Uint16(body[0:2])}, nil
}

// BlockIndHeader prefixes every BLOCK_IND body. The remainder of the
// body is an opaque dump-format block record (see package dbcontext),
// whose fields that package always encodes big-endian, so it needs no
// byte-swapping on either side.
type BlockIndHeader struct {
	Cni       uint16
	BlockType uint8
	Reserved  uint8
}

const BlockIndHeaderLen = 4

var blockIndSchema = schema{{0, 2}}

func (h BlockIndHeader) Marshal() []byte {
	b := make([]byte, BlockIndHeaderLen)
	host.PutUint16(b[0:2], h.Cni)
	b[2] = h.BlockType
	b[3] = h.Reserved
	return b
}

func UnmarshalBlockIndHeader(body []byte) (BlockIndHeader, error) {
	if len(body) < BlockIndHeaderLen {
		return BlockIndHeader{}, fmt.Errorf("%w: block ind header too short", ErrBadLength)
	}
	return BlockIndHeader{
		Cni:       host.Uint16(body[0:2]),
		BlockType: body[2],
		Reserved:  body[3],
	}, nil
}

// TscEntry is one timescale-queue range summary.
type TscEntry struct {
	StartOffMins uint16
	DurationMins uint16
	Netwop       uint8
	Flags        uint8
	BlockIdx     uint16
	ConcatCount  uint8
}

const tscEntryLen = 9

// TscInd carries a batch of TscEntry for one provider.
type TscInd struct {
	Cni      uint16
	BaseTime uint32
	Entries  []TscEntry
}

var tscIndSchema = schema{} // handled dynamically, see SwapTscInd

func (m TscInd) Marshal() []byte {
	b := make([]byte, 8+tscEntryLen*len(m.Entries))
	host.PutUint16(b[0:2], m.Cni)
	host.PutUint16(b[2:4], uint16(len(m.Entries)))
	host.PutUint32(b[4:8], m.BaseTime)
	off := 8
	for _, e := range m.Entries {
		host.PutUint16(b[off:off+2], e.StartOffMins)
		host.PutUint16(b[off+2:off+4], e.DurationMins)
		b[off+4] = e.Netwop
		b[off+5] = e.Flags
		host.PutUint16(b[off+6:off+8], e.BlockIdx)
		b[off+8] = e.ConcatCount
		off += tscEntryLen
	}
	return b
}

func UnmarshalTscInd(body []byte) (TscInd, error) {
	if len(body) < 8 {
		return TscInd{}, fmt.Errorf("%w: tsc ind too short", ErrBadLength)
	}
	n := int(host.Uint16(body[2:4]))
	need := 8 + tscEntryLen*n
	if len(body) < need {
		return TscInd{}, fmt.Errorf("%w: tsc ind truncated", ErrBadLength)
	}
	m := TscInd{Cni: host.Uint16(body[0:2]), BaseTime: host.Uint32(body[4:8])}
	off := 8
	m.Entries = make([]TscEntry, n)
	for i := 0; i < n; i++ {
		m.Entries[i] = TscEntry{
			StartOffMins: host.Uint16(body[off: off+2]),
			DurationMins: host.Uint16(body[off+2: off+4]),
			Netwop:       body[off+4],
			Flags:        body[off+5],
			BlockIdx:     host.Uint16(body[off+6: off+8]),
			ConcatCount:  body[off+8],
		}
		off += tscEntryLen
	}
	return m, nil
}

// SwapTscInd swaps a raw TSC_IND body in place.
func SwapTscInd(body []byte) error {
	if len(body) < 8 {
		return fmt.Errorf("%w: tsc ind too short", ErrBadLength)
	}
	swapBytes(body, 0, 2)
	swapBytes(body, 2, 2)
	swapBytes(body, 4, 4)
	n := int(host.Uint16(body[2:4]))
	off := 8
	need := 8 + tscEntryLen*n
	if len(body) < need {
		return fmt.Errorf("%w: tsc ind truncated", ErrBadLength)
	}
	for i := 0; i < n; i++ {
		swapBytes(body, off, 2)
		swapBytes(body, off+2, 2)
		swapBytes(body, off+6, 2)
		off += tscEntryLen
	}
	return nil
}

// StatsReq carries the client's requested extra cadences.
type StatsReq struct {
	ExtendedStats bool
	Timescale     bool
	VpsPdcUpdates bool
}

func (m StatsReq) Marshal() []byte {
	var b [1]byte
	if m.ExtendedStats {
		b[0] |= 1
	}
	if m.Timescale {
		b[0] |= 2
	}
	if m.VpsPdcUpdates {
		b[0] |= 4
	}
	return b[:]
}

func UnmarshalStatsReq(body []byte) (StatsReq, error) {
	if len(body) < 1 {
		return StatsReq{}, fmt.Errorf("%w: stats req too short", ErrBadLength)
	}
	return StatsReq{
		ExtendedStats: body[0]&1 != 0,
		Timescale:     body[0]&2 != 0,
		VpsPdcUpdates: body[0]&4 != 0,
	}, nil
}

// VpsPdcInd announces a change in the currently-airing VPS/PDC label.
type VpsPdcInd struct {
	Cni uint16
	Pil uint32
}

var vpsPdcIndSchema = schema{{0, 2}, {2, 4}}

func (m VpsPdcInd) Marshal() []byte {
	b := make([]byte, 6)
	host.PutUint16(b[0:2], m.Cni)
	host.PutUint32(b[2:6], m.Pil)
	return b
}

func UnmarshalVpsPdcInd(body []byte) (VpsPdcInd, error) {
	if len(body) < 6 {
		return VpsPdcInd{}, fmt.Errorf("%w: vps/pdc ind too short", ErrBadLength)
	}
	return VpsPdcInd{Cni: host.Uint16(body[0:2]), Pil: host.Uint32(body[2:6])}, nil
}

// DbUpdInd announces that a provider's AI version counters changed.
type DbUpdInd struct {
	Cni        uint16
	Version    uint16
	VersionSwo uint16
}

var dbUpdIndSchema = schema{{0, 2}, {2, 2}, {4, 2}}

func (m DbUpdInd) Marshal() []byte {
	b := make([]byte, 6)
	host.PutUint16(b[0:2], m.Cni)
	host.PutUint16(b[2:4], m.Version)
	host.PutUint16(b[4:6], m.VersionSwo)
	return b
}

func UnmarshalDbUpdInd(body []byte) (DbUpdInd, error) {
	if len(body) < 6 {
		return DbUpdInd{}, fmt.Errorf("%w: db upd ind too short", ErrBadLength)
	}
	return DbUpdInd{
		Cni:        host.Uint16(body[0:2]),
		Version:    host.Uint16(body[2:4]),
		VersionSwo: host.Uint16(body[4:6]),
	}, nil
}

// DumpInd marks the end of one provider's dump stream within
// DUMP_REQUESTED processing.
type DumpInd struct {
	Cni uint16
}

func (m DumpInd) Marshal() []byte {
	b := make([]byte, 2)
	host.PutUint16(b, m.Cni)
	return b
}

func UnmarshalDumpInd(body []byte) (DumpInd, error) {
	if len(body) < 2 {
		return DumpInd{}, fmt.Errorf("%w: dump ind too short", ErrBadLength)
	}
	return DumpInd{Cni: host.Uint16(body[0:2])}, nil
}

// CloseReason enumerates why a CLOSE_IND was sent.
type CloseReason uint8

const (
	CloseNormal CloseReason = iota
	CloseProtocolError
	CloseServerShutdown
	CloseVersionMismatch
)

// CloseInd is sent by either side to authoritatively end a connection.
type CloseInd struct {
	Reason CloseReason
}

func (m CloseInd) Marshal() []byte {
	return []byte{byte(m.Reason)}
}

func UnmarshalCloseInd(body []byte) (CloseInd, error) {
	if len(body) < 1 {
		return CloseInd{}, fmt.Errorf("%w: close ind too short", ErrBadLength)
	}
	return CloseInd{Reason: CloseReason(body[0])}, nil
}
