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

package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tomzo/nxtvepgd/cycle"
	"github.com/tomzo/nxtvepgd/dbcontext"
	"github.com/tomzo/nxtvepgd/merge"
)

// CompatVersion is the rc-file format version this package writes.
// Bumped only when a section layout changes in an incompatible way.
const CompatVersion = 1

// version is the daemon version string stamped into new rc-files.
const version = "1.0.0"

// AcqMode is the acquisition strategy an rc-file's acq_mode key selects.
// The concrete enum lives in package cycle, since the cycle scheduler is
// what the mode actually governs (its starting phase); config only
// re-exports the constants so callers need not import cycle directly
// for the common cases.
type AcqMode = cycle.AcqMode

// Acquisition modes, matching the original's acq_mode enum ordering.
const (
	AcqModeFollowUI     = cycle.ModeFollowUI
	AcqModeFollowMerged = cycle.ModeFollowMerged
	AcqModeCyclic2      = cycle.ModeCyclic2
	AcqModeCyclic012    = cycle.ModeCyclic012
	AcqModeCyclic02     = cycle.ModeCyclic02
	AcqModeCyclic12     = cycle.ModeCyclic12
	AcqModeNetwork      = cycle.ModeNetwork
	AcqModeExternal     = cycle.ModeExternal
	AcqModePassive      = cycle.ModePassive
)

// VersionSection is `[VERSION]`: which format wrote the file, so a
// future reader can detect and migrate an older layout.
type VersionSection struct {
	CompatVersion  uint32 `ini:"rc_compat_version"`
	NxtvepgVersion string `ini:"rc_nxtvepg_version"`
}

func (s VersionSection) Validate() error { return nil }

// AcquisitionSection is `[ACQUISITION]`: how acquisition starts and
// which mode it runs in absent an explicit override.
type AcquisitionSection struct {
	AcqMode  cycle.AcqMode `ini:"acq_mode"`
	AcqStart uint32        `ini:"acq_start"`
}

func (s AcquisitionSection) Validate() error {
	if !s.AcqMode.Valid() {
		return fmt.Errorf("config: [ACQUISITION] acq_mode %d out of range", s.AcqMode)
	}
	return nil
}

// TeletextGrabberSection is `[TELETEXT GRABBER]`: the page range and
// duration the grabber scans per cycle.
type TeletextGrabberSection struct {
	TtxEnable     bool   `ini:"ttx_enable"`
	TtxStartPage  uint32 `ini:"ttx_start_pg"`
	TtxEndPage    uint32 `ini:"ttx_end_pg"`
	TtxOverviewPg uint32 `ini:"ttx_ov_pg"`
	TtxDuration   uint32 `ini:"ttx_duration"`
	KeepTtxData   bool   `ini:"keep_ttx_data"`
}

func (s TeletextGrabberSection) Validate() error {
	if s.TtxEnable && s.TtxStartPage > s.TtxEndPage {
		return fmt.Errorf("config: [TELETEXT GRABBER] ttx_start_pg %#x > ttx_end_pg %#x", s.TtxStartPage, s.TtxEndPage)
	}
	return nil
}

// DatabaseSection is `[DATABASE]`: provider selection, merge
// membership, and per-attribute merge source priority. The list-valued
// keys are kept as raw whitespace-separated hex strings (go-ini's
// struct-tag slice support assumes comma-delimited values, which this
// format does not use) and decoded on demand by SelectedProviders,
// MergeSourceCNIs and MergeConfig.
type DatabaseSection struct {
	PIExpireCutoff uint32 `ini:"piexpire_cutoff"`
	AutoMergeTTX   bool   `ini:"auto_merge_ttx"`
	ProvSelection  string `ini:"prov_selection"`
	ProvMergeCNIs  string `ini:"prov_merge_cnis"`
	MergeTitle     string `ini:"prov_merge_cftitle"`
	MergeDescr     string `ini:"prov_merge_cfdescr"`
	MergeThemes    string `ini:"prov_merge_cfthemes"`
	MergeEditorial string `ini:"prov_merge_cfeditorial"`
	MergeParental  string `ini:"prov_merge_cfparental"`
	MergeSound     string `ini:"prov_merge_cfsound"`
	MergeFormat    string `ini:"prov_merge_cfformat"`
	MergeRepeat    string `ini:"prov_merge_cfrepeat"`
	MergeSubt      string `ini:"prov_merge_cfsubt"`
	MergeMisc      string `ini:"prov_merge_cfmisc"`
	MergeVPS       string `ini:"prov_merge_cfvps"`
}

func (s DatabaseSection) Validate() error {
	_, err := s.cniList(s.ProvSelection)
	return err
}

func (s DatabaseSection) cniList(v string) ([]uint16, error) {
	fields := strings.Fields(v)
	if len(fields) == 0 {
		return nil, nil
	}
	out := make([]uint16, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.ParseUint(f, 0, 16)
		if err != nil {
			return nil, fmt.Errorf("config: bad CNI %q: %w", f, err)
		}
		out = append(out, uint16(n))
	}
	return out, nil
}

// SelectedProviders returns the provider CNIs prov_selection names.
func (s DatabaseSection) SelectedProviders() ([]uint16, error) { return s.cniList(s.ProvSelection) }

// MergeSourceCNIs returns the CNIs that make up the merged database.
func (s DatabaseSection) MergeSourceCNIs() ([]uint16, error) { return s.cniList(s.ProvMergeCNIs) }

// MergeConfig builds a merge.Config from the per-attribute priority
// keys, in the order dbcontext.AttrClass enumerates them.
func (s DatabaseSection) MergeConfig() (merge.Config, error) {
	cnis, err := s.MergeSourceCNIs()
	if err != nil {
		return merge.Config{}, err
	}
	cfg := merge.Config{SourceCNIs: cnis, Priority: map[dbcontext.AttrClass][]uint16{}}
	byClass := map[dbcontext.AttrClass]string{
		dbcontext.AttrTitle:         s.MergeTitle,
		dbcontext.AttrDescription:   s.MergeDescr,
		dbcontext.AttrThemes:        s.MergeThemes,
		dbcontext.AttrEditorial:     s.MergeEditorial,
		dbcontext.AttrParental:      s.MergeParental,
		dbcontext.AttrSound:         s.MergeSound,
		dbcontext.AttrFormat:        s.MergeFormat,
		dbcontext.AttrRepeat:        s.MergeRepeat,
		dbcontext.AttrSubtitles:     s.MergeSubt,
		dbcontext.AttrOtherFeatures: s.MergeMisc,
		dbcontext.AttrVPSPIL:        s.MergeVPS,
	}
	for class, raw := range byClass {
		if raw == "" {
			continue
		}
		list, err := s.cniList(raw)
		if err != nil {
			return merge.Config{}, err
		}
		cfg.Priority[class] = list
	}
	return cfg, nil
}

// ClientServerSection is `[CLIENT SERVER]`: the remote-control/server
// listener configuration.
type ClientServerSection struct {
	NetAcqEnable bool   `ini:"netacq_enable"`
	DoTCPIP      bool   `ini:"do_tcp_ip"`
	HostName     string `ini:"host_name"`
	Port         string `ini:"port"`
	MaxConn      uint32 `ini:"max_conn"`
}

func (s ClientServerSection) Validate() error {
	if s.DoTCPIP && s.Port == "" {
		return fmt.Errorf("config: [CLIENT SERVER] do_tcp_ip set without port")
	}
	return nil
}

// TVCardsSection is `[TV CARDS]`: the VBI capture device selection
// handed to driver.Tuner.Configure.
type TVCardsSection struct {
	DrvType    uint32 `ini:"drv_type"`
	CardIdx    uint32 `ini:"card_idx"`
	Input      uint32 `ini:"input"`
	AcqPrio    uint32 `ini:"acq_prio"`
	SlicerType uint32 `ini:"slicer_type"`
}

func (s TVCardsSection) Validate() error { return nil }

// TVApplicationSection is `[TV APPLICATION]`: the companion TV viewer
// the daemon can hand channel-change control to. Windows-only fields
// from the original (tvapp_win/tvpath_win) are dropped: non-goal per
// the platform scope of this port.
type TVApplicationSection struct {
	TVAppUnix uint32 `ini:"tvapp_unix"`
	TVPath    string `ini:"tvpath_unix"`
}

func (s TVApplicationSection) Validate() error { return nil }
