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
	"time"

	"github.com/tomzo/nxtvepgd/acquisition"
	"github.com/tomzo/nxtvepgd/tuner"
	"github.com/tomzo/nxtvepgd/wire"
)

// daemonStats adapts acquisition.Manager and tuner.Controller to
// server.StatsSource, the read-only view the server package needs to
// answer ACQSTAT/PID text queries and build STATS_IND updates.
type daemonStats struct {
	acq       *acquisition.Manager
	tune      *tuner.Controller
	startedAt time.Time
	counters  wire.StatsCounters
}

func newDaemonStats(acq *acquisition.Manager, tune *tuner.Controller) *daemonStats {
	return &daemonStats{acq: acq, tune: tune, startedAt: time.Now()}
}

func (d *daemonStats) AcqMode() uint8 {
	if d.acq.State == acquisition.StateOff {
		return 0
	}
	return 1
}

func (d *daemonStats) PassiveReasonCode() uint8 {
	return uint8(d.tune.PassiveReason)
}

func (d *daemonStats) VpsPdc() (cni uint16, pil uint32) {
	if d.tune.Decoder == nil {
		return 0, 0
	}
	cni, pil, _ = d.tune.Decoder.GetCNIAndPIL()
	return cni, pil
}

func (d *daemonStats) Counters() wire.StatsCounters {
	d.counters.TtxAcqDurationSec = uint32(time.Since(d.startedAt).Seconds())
	return d.counters
}

func (d *daemonStats) CurrentCNI() uint16 {
	ctx := d.acq.CurrentContext()
	if ctx == nil {
		return 0
	}
	return ctx.CNI
}

// recordBlock adds got and dropped to the cumulative block counters
// after the acquisition manager reports having drained its queue;
// called once per main-loop tick rather than per block.
func (d *daemonStats) recordBlock(got, dropped uint32) {
	d.counters.EpgBlocksGot += got
	d.counters.EpgBlocksDropped += dropped
}
