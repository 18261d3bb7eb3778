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

// Package driver defines the boundary between the acquisition control
// logic and the hardware it depends on: a TV tuner card and a teletext
// packet decoder/slicer. Neither is implemented here; both are external
// collaborators supplied by the host platform.
package driver

import "time"

// SlicerType enumerates the teletext bit-slicer implementations a card
// may support, ordered from simplest/least tolerant to most tolerant.
type SlicerType int

const (
	SlicerHardware SlicerType = iota
	SlicerZvbi
	SlicerFullSoftware
)

// InputSource identifies the kind of input currently selected on the
// capture card.
type InputSource int

const (
	InputUnknown InputSource = iota
	InputTuner
	InputComposite
	InputSVideo
)

// TuneResult reports the outcome of a tune request.
type TuneResult struct {
	OK      bool
	IsTuner bool
}

// Tuner is the hardware boundary a real capture card implements.
// talk to a physical or virtual TV capture card.
type Tuner interface {
	// Configure selects the card and priority/profile to use for
	// subsequent Tune calls.
	Configure(cardIndex int, source InputSource, priority int) error
	// Tune attempts to tune the given input to freq (Hz). The result's
	// IsTuner is false if the currently selected input is not a tuner at
	// all (e.g. composite/S-Video input).
	Tune(source InputSource, freqHz uint32) (TuneResult, error)
	// QueryChannel asks the card (or a TV application sharing it) what
	// is currently tuned.
	QueryChannel() (freqHz uint32, source InputSource, isTuner bool, err error)
	// SelectSlicer switches the active bit-slicer implementation.
	SelectSlicer(t SlicerType) error
	// StartAcq/StopAcq bracket a period during which the decoder will
	// be pulling packets from this card.
	StartAcq() error
	StopAcq() error
	// CheckCardParams validates a card index/input combination without
	// side effects, used at startup and on config reload.
	CheckCardParams(cardIndex int, source InputSource) error
	// QueryChannelToken reports whether a higher-priority client (for
	// example a TV viewing application) currently wants the device,
	// meaning this daemon should back off.
	QueryChannelToken() bool
}

// PageEvent is emitted by a Decoder while it is running.
type PageEvent int

const (
	// EventBI signals a Bundle Information packet was assembled.
	EventBI PageEvent = iota
	// EventAI signals an Application Information packet was assembled.
	EventAI
	// EventChannelChange signals a page-header discontinuity consistent
	// with a channel change (someone else retuned the shared device).
	EventChannelChange
)

// DecodedEvent carries a PageEvent plus its opaque payload bytes. The
// payload format (AI/BI block encoding) is owned by the caller, not by
// the decoder; the decoder only delivers bytes is extracted from teletext
// packets.
type DecodedEvent struct {
	Event   PageEvent
	Payload []byte
	At      time.Time
}

// Decoder is the teletext packet decoder/slicer boundary. It turns a
// byte stream from the VBI device into page packets and assembles
// AI/BI blocks, emitting DecodedEvent values on Events().
type Decoder interface {
	// Start begins decoding the given teletext page for the given EPG
	// application ID. If waitForAI is set, BI-only delivery is
	// suppressed until an AI has also been seen.
	Start(page int, appID int, waitForAI bool) error
	Stop()
	// ProcessPackets drains any packets accumulated since the last
	// call and reports whether anything changed (an event is ready on
	// Events()).
	ProcessPackets() (changed bool, err error)
	// CheckSlicerQuality reports whether the current slicer is
	// recovering a usable fraction of packets.
	CheckSlicerQuality() (ok bool, err error)
	// GetMipPageNo returns the teletext magazine index page number, if
	// the stream carries one, else 0.
	GetMipPageNo() (int, error)
	// GetCNIAndPIL returns the most recently observed VPS/PDC CNI and
	// PIL announcement, if any.
	GetCNIAndPIL() (cni uint16, pil uint32, ok bool)
	// Events returns the channel on which decoded events are
	// delivered. The channel is closed when Stop is called.
	Events() <-chan DecodedEvent
}
