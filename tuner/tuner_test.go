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

package tuner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/tomzo/nxtvepgd/driver"
)

func TestTuneSuccessEntersGrab(t *testing.T) {
	ctrl := gomock.NewController(t)
	ft := NewMockTuner(ctrl)
	fd := NewMockDecoder(ctrl)
	ft.EXPECT().Configure(0, driver.InputTuner, 0).Return(nil)
	ft.EXPECT().Tune(driver.InputTuner, uint32(474_000_000)).Return(driver.TuneResult{OK: true, IsTuner: true}, nil)
	c := NewController(ft, fd)

	require.NoError(t, c.Tune(0, driver.InputTuner, 474_000_000))
	assert.Equal(t, StateGrab, c.State)
	assert.Equal(t, PassiveNone, c.PassiveReason)
}

func TestTuneFailureOnNonTunerInputFallsPassive(t *testing.T) {
	ctrl := gomock.NewController(t)
	ft := NewMockTuner(ctrl)
	fd := NewMockDecoder(ctrl)
	ft.EXPECT().Configure(0, driver.InputComposite, 0).Return(nil)
	ft.EXPECT().Tune(driver.InputComposite, uint32(0)).Return(driver.TuneResult{OK: false, IsTuner: false}, nil)
	c := NewController(ft, fd)

	require.NoError(t, c.Tune(0, driver.InputComposite, 0))
	assert.Equal(t, StateGrabPassive, c.State)
	assert.Equal(t, PassiveNoTuner, c.PassiveReason)
}

func TestForcePassiveSkipsTuning(t *testing.T) {
	ctrl := gomock.NewController(t)
	ft := NewMockTuner(ctrl)
	fd := NewMockDecoder(ctrl)
	c := NewController(ft, fd)
	c.ForcePassive = true

	require.NoError(t, c.Tune(0, driver.InputTuner, 474_000_000))
	assert.Equal(t, StateGrabPassive, c.State)
	assert.Equal(t, PassiveForced, c.PassiveReason)
}

func TestCheckSlicerEscalatesOnPoorQuality(t *testing.T) {
	ctrl := gomock.NewController(t)
	ft := NewMockTuner(ctrl)
	fd := NewMockDecoder(ctrl)

	var selected driver.SlicerType
	ft.EXPECT().SelectSlicer(driver.SlicerHardware).DoAndReturn(func(st driver.SlicerType) error {
		selected = st
		return nil
	})
	fd.EXPECT().CheckSlicerQuality().Return(false, nil)
	ft.EXPECT().SelectSlicer(driver.SlicerZvbi).DoAndReturn(func(st driver.SlicerType) error {
		selected = st
		return nil
	})

	c := NewController(ft, fd)
	now := time.Unix(1_700_000_000, 0)
	c.ChannelChanged(now)
	assert.Equal(t, driver.SlicerHardware, selected)

	changed, err := c.CheckSlicer(now.Add(SlicerCheckInterval))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, driver.SlicerZvbi, c.CurrentSlicer())
	assert.Equal(t, driver.SlicerZvbi, selected)
}

func TestCheckSlicerNoOpWhenGoodQuality(t *testing.T) {
	ctrl := gomock.NewController(t)
	ft := NewMockTuner(ctrl)
	fd := NewMockDecoder(ctrl)
	ft.EXPECT().SelectSlicer(driver.SlicerHardware).Return(nil)
	fd.EXPECT().CheckSlicerQuality().Return(true, nil)

	c := NewController(ft, fd)
	now := time.Unix(1_700_000_000, 0)
	c.ChannelChanged(now)

	changed, err := c.CheckSlicer(now.Add(SlicerCheckInterval))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, driver.SlicerHardware, c.CurrentSlicer())
}

func TestCheckSlicerRespectsInterval(t *testing.T) {
	ctrl := gomock.NewController(t)
	ft := NewMockTuner(ctrl)
	fd := NewMockDecoder(ctrl)
	ft.EXPECT().SelectSlicer(driver.SlicerHardware).Return(nil)

	c := NewController(ft, fd)
	now := time.Unix(1_700_000_000, 0)
	c.ChannelChanged(now)

	changed, err := c.CheckSlicer(now.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, changed, "must not check before the interval elapses")
}
