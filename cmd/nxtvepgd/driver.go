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

package main

import (
	log "github.com/sirupsen/logrus"

	"github.com/tomzo/nxtvepgd/driver"
)

// buildDriver returns the driver.Tuner/driver.Decoder pair this process
// will run against. Neither the VBI capture path nor the teletext
// slicer is implemented here (driver implementations are an explicit
// non-goal: the repo defines the boundary, not a card driver), so a
// daemon built from this tree always runs against passiveDriver, which
// never finds a tuner and never decodes a packet. A demoFile is
// accepted on the command line for forward compatibility with a future
// file-backed Decoder, but reading one is not implemented; a non-empty
// value only changes the startup log line.
func buildDriver(demoFile string) (driver.Tuner, driver.Decoder, error) {
	if demoFile != "" {
		log.Warningf("driver: -demo %s requested but no file-backed decoder is implemented; running passive", demoFile)
	}
	return passiveDriver{}, passiveDriver{}, nil
}

// passiveDriver implements both driver.Tuner and driver.Decoder as a
// permanent no-op: every tune attempt reports "not a tuner" and no
// packets ever arrive. tuner.Controller treats this exactly like real
// hardware stuck on a non-tuner input, which is the correct way for the
// acquisition state machine to degrade when no capture device exists.
type passiveDriver struct{}

func (passiveDriver) Configure(cardIndex int, source driver.InputSource, priority int) error {
	return nil
}

func (passiveDriver) Tune(source driver.InputSource, freqHz uint32) (driver.TuneResult, error) {
	return driver.TuneResult{OK: false, IsTuner: false}, nil
}

func (passiveDriver) QueryChannel() (freqHz uint32, source driver.InputSource, isTuner bool, err error) {
	return 0, driver.InputUnknown, false, nil
}

func (passiveDriver) SelectSlicer(t driver.SlicerType) error { return nil }
func (passiveDriver) StartAcq() error                        { return nil }
func (passiveDriver) StopAcq() error                         { return nil }
func (passiveDriver) CheckCardParams(cardIndex int, source driver.InputSource) error {
	return nil
}
func (passiveDriver) QueryChannelToken() bool { return false }

func (passiveDriver) Start(page int, appID int, waitForAI bool) error { return nil }
func (passiveDriver) Stop()                                           {}
func (passiveDriver) ProcessPackets() (changed bool, err error)       { return false, nil }
func (passiveDriver) CheckSlicerQuality() (ok bool, err error)        { return true, nil }
func (passiveDriver) GetMipPageNo() (int, error)                      { return 0, nil }
func (passiveDriver) GetCNIAndPIL() (cni uint16, pil uint32, ok bool) { return 0, 0, false }
func (passiveDriver) Events() <-chan driver.DecodedEvent              { return nil }
