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

// Package wire implements the length-prefixed, endian-negotiated framed
// protocol used between the acquisition daemon and its clients: header
// layout, message type registry, connect handshake, and the generic
// schema-driven byte-swap routine that lets a single receiver talk to
// peers of either endianness.
package wire

import (
	"errors"
	"fmt"

	version "github.com/hashicorp/go-version"
)

// HeaderSize is the fixed size, in bytes, of every message header.
const HeaderSize = 4

// MaxBodySize is the largest body this protocol will ever frame. Bodies
// of length >= 64KiB, or headers claiming a total length < HeaderSize,
// are rejected outright.
const MaxBodySize = 64*1024 - 1

// ServiceMagic identifies this protocol's family to a connecting peer.
const ServiceMagic = "NEXTVIEW-DB by TOMZO\n"

// EndianMagic is written by the sender in its native byte order; a
// receiver that reads it byte-swapped knows the peer is of the opposite
// endianness and must swap every subsequent multi-byte field.
const EndianMagic uint16 = 0xAA55

// SwVersion is this build's software version, carried in CONNECT_REQ/CNF.
const SwVersion uint32 = 0x00010000

// CompatVersion is the protocol version this build speaks. CheckVersion
// parses a peer's version with github.com/hashicorp/go-version and
// accepts it only if its major component equals this one's.
const CompatVersion = "1.0.0"

// CompatVersionPacked is CompatVersion encoded the way CONNECT_REQ/CNF
// carries it on the wire: one byte per major/minor component, a 16-bit
// patch component.
const CompatVersionPacked uint32 = 0x01000000

// FormatPackedVersion renders a CONNECT_REQ/CNF-style packed version
// field as a dotted string suitable for CheckVersion.
func FormatPackedVersion(v uint32) string {
	return fmt.Sprintf("%d.%d.%d", byte(v>>24), byte(v>>16), v&0xFFFF)
}

// MsgType identifies the kind of message a frame carries.
type MsgType uint8

// MsgType constants carry a Msg prefix because several of them would
// otherwise collide with the identically-named body struct defined for
// that message (ForwardReq, TscInd, StatsReq,...).
const (
	MsgConnectReq MsgType = iota + 1
	MsgConnectCnf
	MsgConqueryCnf
	MsgForwardReq
	MsgForwardCnf
	MsgForwardInd
	MsgBlockInd
	MsgTscInd
	MsgStatsReq
	MsgStatsInd
	MsgVpsPdcInd
	MsgDbUpdInd
	MsgDumpInd
	MsgCloseInd
)

func (t MsgType) String() string {
	switch t {
	case MsgConnectReq:
		return "CONNECT_REQ"
	case MsgConnectCnf:
		return "CONNECT_CNF"
	case MsgConqueryCnf:
		return "CONQUERY_CNF"
	case MsgForwardReq:
		return "FORWARD_REQ"
	case MsgForwardCnf:
		return "FORWARD_CNF"
	case MsgForwardInd:
		return "FORWARD_IND"
	case MsgBlockInd:
		return "BLOCK_IND"
	case MsgTscInd:
		return "TSC_IND"
	case MsgStatsReq:
		return "STATS_REQ"
	case MsgStatsInd:
		return "STATS_IND"
	case MsgVpsPdcInd:
		return "VPS_PDC_IND"
	case MsgDbUpdInd:
		return "DB_UPD_IND"
	case MsgDumpInd:
		return "DUMP_IND"
	case MsgCloseInd:
		return "CLOSE_IND"
	default:
		return fmt.Sprintf("MsgType(%d)", uint8(t))
	}
}

// Error kinds returned across this package.
var (
	ErrBadLength = errors.New("protocol-bad-length")
	ErrBadType   = errors.New("protocol-bad-type")
	ErrBadMagic  = errors.New("protocol-bad-magic")
)

// ProtocolError wraps one of the sentinel errors above with the offending
// header, for logging at the call site.
type ProtocolError struct {
	Err    error
	Header Header
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%v (type=%s length=%d)", e.Err, e.Header.Type, e.Header.Length)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// Header is the fixed 4-byte frame header: total message length
// (including the header itself), message type, and a reserved byte.
type Header struct {
	Length   uint16
	Type     MsgType
	Reserved byte
}

// compatVersion is parsed once; a parse failure of our own constant is a
// programmer error.
var compatVersion = version.Must(version.NewVersion(CompatVersion))

// CheckVersion reports whether a peer-advertised protocol version string
// is compatible with this build.
func CheckVersion(peer string) error {
	v, err := version.NewVersion(peer)
	if err != nil {
		return fmt.Errorf("%w: unparseable peer version %q", ErrBadMagic, peer)
	}
	if v.Segments()[0] != compatVersion.Segments()[0] {
		return fmt.Errorf("%w: peer protocol version %s incompatible with %s", ErrBadMagic, v, compatVersion)
	}
	return nil
}
