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

// fieldSpec describes one multi-byte integer field within a message
// body: its byte offset and width. Swapping a message is then just
// "reverse these byte ranges", driven by the schema for its type instead
// of bespoke per-field code.
type fieldSpec struct {
	Offset int
	Width  int
}

// schema maps a message type to the list of integer fields that need
// byte-swapping when the peer's endianness differs from ours. Fields not
// listed (strings, byte arrays, single bytes) are left untouched.
type schema []fieldSpec

var schemas = map[MsgType]schema{
	MsgConnectReq: connectSchema,
	MsgConnectCnf: connectSchema,
	MsgForwardReq: forwardReqSchema,
	MsgForwardCnf: forwardCnfSchema,
	MsgForwardInd: forwardIndSchema,
	MsgBlockInd:   blockIndSchema,
	MsgTscInd:     tscIndSchema,
	MsgVpsPdcInd:  vpsPdcIndSchema,
	MsgDbUpdInd:   dbUpdIndSchema,
	MsgDumpInd:    {{0, 2}},
}

// statsSchemas is keyed by StatsVariant rather than MsgType because all
// three STATS_IND sub-variants share one MsgType but have distinct fixed
// lengths and field layouts.
var statsSchemas = map[StatsVariant]schema{
	StatsVariantMinimal: statsMinimalSchema,
	StatsVariantInitial: statsInitialSchema,
	StatsVariantUpdate:  statsUpdateSchema,
}

// swapBytes reverses the byte order of buf[off:off+width] in place.
func swapBytes(buf []byte, off, width int) {
	lo, hi := off, off+width-1
	for lo < hi {
		buf[lo], buf[hi] = buf[hi], buf[lo]
		lo++
		hi--
	}
}

// applySchema swaps every field described by s within buf. Callers must
// ensure buf is at least as long as the schema requires; a short buffer
// is a framing bug caught earlier by length validation, so this panics
// rather than silently truncating.
func applySchema(buf []byte, s schema) {
	for _, f := range s {
		if f.Offset+f.Width > len(buf) {
			panic("wire: schema field out of range of message body")
		}
		swapBytes(buf, f.Offset, f.Width)
	}
}

// SwapBody byte-swaps every multi-byte integer field of a message body
// of the given type, using the schema registered for it. Unknown types
// (ConqueryCnf, StatsReq, CloseInd carry no multi-byte payload
// needing a schema) are a no-op.
func SwapBody(t MsgType, body []byte) {
	if s, ok := schemas[t]; ok {
		applySchema(body, s)
	}
}

// SwapStatsBody byte-swaps a STATS_IND body given its sub-variant.
func SwapStatsBody(v StatsVariant, body []byte) {
	if s, ok := statsSchemas[v]; ok {
		applySchema(body, s)
	}
}
