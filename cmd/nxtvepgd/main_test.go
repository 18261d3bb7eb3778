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
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/tomzo/nxtvepgd/dbcontext"
	"github.com/tomzo/nxtvepgd/driver"
	"github.com/tomzo/nxtvepgd/server"
	"github.com/tomzo/nxtvepgd/wire"
)

func TestParsePort(t *testing.T) {
	p, err := parsePort("8080")
	require.NoError(t, err)
	assert.Equal(t, 8080, p)

	_, err = parsePort("not-a-port")
	assert.Error(t, err)
}

func TestAiBiCodecDecodeBI(t *testing.T) {
	pageStart, pageStop, err := aiBiCodec{}.DecodeBI([]byte{0x03, 0x00, 0x03, 0x99})
	require.NoError(t, err)
	assert.Equal(t, 0x300, pageStart)
	assert.Equal(t, 0x399, pageStop)

	_, _, err = aiBiCodec{}.DecodeBI([]byte{0x03})
	assert.Error(t, err)
}

func TestPassiveDriverReportsNoTuner(t *testing.T) {
	var d passiveDriver

	res, err := d.Tune(driver.InputTuner, 0)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.False(t, res.IsTuner)

	_, _, isTuner, err := d.QueryChannel()
	require.NoError(t, err)
	assert.False(t, isTuner)

	cni, pil, ok := d.GetCNIAndPIL()
	assert.Zero(t, cni)
	assert.Zero(t, pil)
	assert.False(t, ok)
	assert.Nil(t, d.Events())
}

func TestBuildDriverAcceptsDemoFlagButStaysPassive(t *testing.T) {
	tun, dec, err := buildDriver("/tmp/some-dump.epg")
	require.NoError(t, err)
	assert.Equal(t, passiveDriver{}, tun)
	assert.Equal(t, passiveDriver{}, dec)
}

type fakeStats struct{}

func (fakeStats) AcqMode() uint8                   { return 0 }
func (fakeStats) PassiveReasonCode() uint8         { return 0 }
func (fakeStats) VpsPdc() (cni uint16, pil uint32) { return 0, 0 }
func (fakeStats) Counters() wire.StatsCounters     { return wire.StatsCounters{} }
func (fakeStats) CurrentCNI() uint16               { return 0 }

func TestBuildPollFdsListsListenSocketsAsReadable(t *testing.T) {
	db := dbcontext.NewManager(t.TempDir())
	srv := server.NewServer(db, fakeStats{}, server.NewMetrics(prometheus.NewRegistry()))

	pfds := buildPollFds([]int{11, 22}, srv)
	require.Len(t, pfds, 2)
	for _, pfd := range pfds {
		assert.Equal(t, int16(unix.POLLIN), pfd.Events)
	}
}

func TestDispatchPollIgnoresFdsWithNoRevents(t *testing.T) {
	db := dbcontext.NewManager(t.TempDir())
	srv := server.NewServer(db, fakeStats{}, server.NewMetrics(prometheus.NewRegistry()))

	pfds := []unix.PollFd{{Fd: 11, Events: unix.POLLIN, Revents: 0}}
	// Must not panic or attempt to accept/pump on a quiescent fd.
	dispatchPoll(pfds, []int{11}, srv)
}
