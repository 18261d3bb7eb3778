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

// Package tuner drives one capture source through the driver.Tuner
// boundary: active tuning with forced-passive fallback, and escalation
// through slicer types when packet quality degrades.
package tuner

import (
	"time"

	"github.com/tomzo/nxtvepgd/driver"
)

// State mirrors the per-source capture state machine.
type State int

const (
	StateOff State = iota
	StateStartup
	StateGrab
	StateGrabPassive
	StateIdle
)

func (s State) String() string {
	switch s {
	case StateOff:
		return "OFF"
	case StateStartup:
		return "STARTUP"
	case StateGrab:
		return "GRAB"
	case StateGrabPassive:
		return "GRAB_PASSIVE"
	case StateIdle:
		return "IDLE"
	default:
		return "UNKNOWN"
	}
}

// PassiveReason records why a source fell back to passive capture
// instead of actively tuning.
type PassiveReason int

const (
	PassiveNone PassiveReason = iota
	PassiveNoTuner
	PassiveNoPermission
	PassiveDeviceBusy
	PassiveForced
)

func (r PassiveReason) String() string {
	switch r {
	case PassiveNone:
		return "none"
	case PassiveNoTuner:
		return "no tuner on this input"
	case PassiveNoPermission:
		return "access denied"
	case PassiveDeviceBusy:
		return "device busy"
	case PassiveForced:
		return "forced by configuration"
	default:
		return "unknown"
	}
}

// SlicerCheckInterval is the minimum time between slicer-quality checks
// after a channel change.
const SlicerCheckInterval = 20 * time.Second

// slicerEscalation is hardware -> zvbi -> full-software, the order in
// which increasingly CPU-expensive but more tolerant decoders are tried
// once the current one reports poor quality.
var slicerEscalation = []driver.SlicerType{
	driver.SlicerHardware,
	driver.SlicerZvbi,
	driver.SlicerFullSoftware,
}

// Controller drives one tuner/decoder pair through tuning, forced-passive
// fallback, and slicer escalation.
type Controller struct {
	Tuner   driver.Tuner
	Decoder driver.Decoder

	State         State
	PassiveReason PassiveReason
	ForcePassive  bool

	slicerIdx       int
	chanChangeAt    time.Time
	lastSlicerCheck time.Time
}

// NewController returns a Controller bound to t and d, starting with the
// hardware slicer.
func NewController(t driver.Tuner, d driver.Decoder) *Controller {
	return &Controller{Tuner: t, Decoder: d, State: StateOff, slicerIdx: 0}
}

// CurrentSlicer returns the slicer type currently selected.
func (c *Controller) CurrentSlicer() driver.SlicerType {
	return slicerEscalation[c.slicerIdx]
}

// Tune attempts to actively tune freqHz on cardIndex/source. On any
// tuner error it downgrades to passive capture with a reason derived
// from the driver's error, mirroring EpgAcqTtx_UpdateProvider's
// active-then-fallback sequencing.
func (c *Controller) Tune(cardIndex int, source driver.InputSource, freqHz uint32) error {
	if c.ForcePassive {
		c.PassiveReason = PassiveForced
		c.State = StateGrabPassive
		return nil
	}
	if err := c.Tuner.Configure(cardIndex, source, 0); err != nil {
		c.PassiveReason = PassiveNoPermission
		c.State = StateGrabPassive
		return nil
	}
	res, err := c.Tuner.Tune(source, freqHz)
	if err != nil || !res.OK {
		if !res.IsTuner {
			c.PassiveReason = PassiveNoTuner
		} else {
			c.PassiveReason = PassiveDeviceBusy
		}
		c.State = StateGrabPassive
		return nil
	}
	c.PassiveReason = PassiveNone
	c.State = StateGrab
	return nil
}

// DetectSource queries the current tuned frequency in passive mode, used
// when the capture source has no controllable tuner.
func (c *Controller) DetectSource() (freqHz uint32, source driver.InputSource, err error) {
	freqHz, source, _, err = c.Tuner.QueryChannel()
	return freqHz, source, err
}

// ChannelChanged resets the slicer-check timer, called whenever the
// capture source changes.
func (c *Controller) ChannelChanged(now time.Time) {
	c.chanChangeAt = now
	c.slicerIdx = 0
	c.Tuner.SelectSlicer(c.CurrentSlicer())
}

// CheckSlicer re-evaluates decode quality no more often than
// SlicerCheckInterval after the last channel change, escalating to the
// next slicer type on failure. It returns true if the slicer changed.
func (c *Controller) CheckSlicer(now time.Time) (bool, error) {
	if now.Before(c.chanChangeAt.Add(SlicerCheckInterval)) {
		return false, nil
	}
	if now.Before(c.lastSlicerCheck.Add(SlicerCheckInterval)) {
		return false, nil
	}
	c.lastSlicerCheck = now

	ok, err := c.Decoder.CheckSlicerQuality()
	if err != nil {
		return false, err
	}
	if ok {
		return false, nil
	}
	if c.slicerIdx >= len(slicerEscalation)-1 {
		return false, nil
	}
	c.slicerIdx++
	if err := c.Tuner.SelectSlicer(c.CurrentSlicer()); err != nil {
		return false, err
	}
	return true, nil
}

// Stop halts acquisition and returns the source to the idle state.
func (c *Controller) Stop() error {
	c.State = StateOff
	return c.Tuner.StopAcq()
}
