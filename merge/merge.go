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

// Package merge builds a single virtual provider database out of several
// real ones: AI network-table union and per-network PI merge by a
// fuzzy time/title match predicate, resolving each attribute from an
// independently configurable source priority order.
package merge

import (
	"sort"
	"strings"

	"github.com/tomzo/nxtvepgd/dbcontext"
)

// MaxServiceNameLen bounds the concatenated merged provider name.
const MaxServiceNameLen = 300

// Config drives one merge: which source CNIs participate, in what
// prevalence order, and which source supplies each attribute class when
// more than one candidate PI matches.
type Config struct {
	SourceCNIs []uint16
	Priority   map[dbcontext.AttrClass][]uint16 // by CNI, highest priority first
}

// priorityOrder returns cfg's priority list for attr translated to
// source-slice indices, falling back to cfg.SourceCNIs order if attr has
// no explicit entry.
func (cfg *Config) priorityOrder(attr dbcontext.AttrClass, cniToIdx map[uint16]int) []int {
	cnis, ok := cfg.Priority[attr]
	if !ok {
		cnis = cfg.SourceCNIs
	}
	order := make([]int, 0, len(cnis))
	for _, cni := range cnis {
		if idx, ok := cniToIdx[cni]; ok {
			order = append(order, idx)
		}
	}
	return order
}

// MergeAI builds the merged network table: the union of networks across
// sources, matched by CNI, in the order of cfg.SourceCNIs. It returns the
// merged AI plus the MergeContext needed to drive MergePI.
func MergeAI(sources []*dbcontext.Context, cfg Config) (*dbcontext.AI, *dbcontext.MergeContext, error) {
	if len(sources) == 0 {
		return nil, nil, errNoSources
	}
	cniToIdx := make(map[uint16]int, len(sources))
	for i, s := range sources {
		cniToIdx[s.CNI] = i
	}

	var names []string
	var networks []dbcontext.Network
	netIdxByCNI := make(map[uint16]int)

	for _, s := range sources {
		if s.AI == nil {
			continue
		}
		names = append(names, s.AI.ServiceName)
		for _, n := range s.AI.Networks {
			if _, ok := netIdxByCNI[n.CNI]; ok {
				continue
			}
			netIdxByCNI[n.CNI] = len(networks)
			networks = append(networks, n)
		}
	}

	netMap := make([][]int, len(networks))
	for i := range netMap {
		netMap[i] = make([]int, len(sources))
		for j := range netMap[i] {
			netMap[i][j] = -1
		}
	}
	for si, s := range sources {
		if s.AI == nil {
			continue
		}
		for localIdx, n := range s.AI.Networks {
			targetIdx := netIdxByCNI[n.CNI]
			netMap[targetIdx][si] = localIdx
		}
	}

	serviceName := strings.Join(names, " / ")
	if len(serviceName) > MaxServiceNameLen {
		serviceName = serviceName[:MaxServiceNameLen]
	}

	ai := &dbcontext.AI{ServiceName: serviceName, Networks: networks, Version: 1}
	mc := &dbcontext.MergeContext{
		SourceCNIs: cfg.SourceCNIs,
		NetMap:     netMap,
		Priority:   cfg.Priority,
	}
	return ai, mc, nil
}

var errNoSources = mergeErr("merge requires at least one source database")

type mergeErr string

func (e mergeErr) Error() string { return string(e) }

// candidate is one source's PI competing to contribute to a merged slot.
type candidate struct {
	srcIdx int
	pi     *dbcontext.PI
}

// piMatch reports whether b plausibly describes the same broadcast as a,
// by overlap-weighted time comparison and case-insensitive title
// prefix/closeness.
func piMatch(a, b *dbcontext.PI) bool {
	if a.Start == b.Start && a.Stop == b.Stop {
		return true
	}
	ovl := int64(min32(a.Stop, b.Stop)) - int64(max32(a.Start, b.Start))
	rt1 := int64(b.Stop) - int64(b.Start)
	rt2 := int64(a.Stop) - int64(a.Start)
	rtMin, rtMax := rt1, rt2
	if rtMin > rtMax {
		rtMin, rtMax = rtMax, rtMin
	}

	diff := int64(b.Start) - int64(a.Start)
	if diff < 0 {
		diff = -diff
	}

	overlapsEnough := ovl > rtMax/2 && rtMin+rtMin/2 >= rtMax
	missingStopSpecialCase := rtMin == 1 && diff < 20*60
	if !overlapsEnough && !missingStopSpecialCase {
		return false
	}

	at, bt := strings.ToLower(a.Title), strings.ToLower(b.Title)
	shorter, longer := at, bt
	if len(bt) < len(at) {
		shorter, longer = bt, at
	}
	if strings.HasPrefix(longer, shorter) {
		rest := strings.TrimLeft(longer[len(shorter):], " \t")
		if rest == "" || !isAlnum(rune(rest[0])) {
			return true
		}
		if longer[len(shorter):] != "" && longer[len(shorter)] == ' ' && len(shorter) >= 20 {
			return true
		}
	}
	stopDiff := int64(b.Stop) - int64(a.Stop)
	if stopDiff < 0 {
		stopDiff = -stopDiff
	}
	if (at == "" || bt == "") && diff < 5*60 && stopDiff < 5*60 {
		return true
	}
	return false
}

func isAlnum(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func min32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

func max32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

// mergeOne combines a group of matched candidate PI — all describing the
// same broadcast on the merged network netIdx — into a single PI,
// resolving each attribute class from cfg's priority order.
func mergeOne(group []candidate, netIdx int, cfg *Config, cniToIdx map[uint16]int) dbcontext.PI {
	first := group[0].pi
	out := dbcontext.PI{
		NetwopNo: first.NetwopNo, // caller remaps to the merged netwop before insert
		Start:    first.Start,
		Stop:     first.Stop,
	}
	for _, c := range group {
		out.MergeSources = append(out.MergeSources, uint8(c.srcIdx))
	}

	pick := func(attr dbcontext.AttrClass, want func(*dbcontext.PI) bool) *dbcontext.PI {
		for _, idx := range cfg.priorityOrder(attr, cniToIdx) {
			for _, c := range group {
				if c.srcIdx == idx && want(c.pi) {
					return c.pi
				}
			}
		}
		return group[0].pi
	}
	nonEmptyTitle := func(p *dbcontext.PI) bool { return p.Title != "" }
	nonEmptyDesc := func(p *dbcontext.PI) bool { return p.Description != "" }
	anyPI := func(*dbcontext.PI) bool { return true }

	out.Title = pick(dbcontext.AttrTitle, nonEmptyTitle).Title
	out.Description = pick(dbcontext.AttrDescription, nonEmptyDesc).Description
	out.Themes = pick(dbcontext.AttrThemes, anyPI).Themes
	out.SortCriteria = pick(dbcontext.AttrSortCriteria, anyPI).SortCriteria
	out.EditorialRating = pick(dbcontext.AttrEditorial, anyPI).EditorialRating
	out.ParentalRating = pick(dbcontext.AttrParental, anyPI).ParentalRating
	out.Features = pick(dbcontext.AttrFormat, anyPI).Features
	out.PIL = pick(dbcontext.AttrVPSPIL, func(p *dbcontext.PI) bool { return p.PIL != 0 }).PIL

	// widest time span of the whole group, in case matched entries
	// disagree slightly on exact boundaries.
	for _, c := range group {
		if c.pi.Start < out.Start {
			out.Start = c.pi.Start
		}
		if c.pi.Stop > out.Stop {
			out.Stop = c.pi.Stop
		}
	}
	return out
}

// MergePI rebuilds dest's entire PI timeline for one merged network from
// scratch, given the raw (unmatched) PI list of each source restricted
// to the network matching netIdx via mc.NetMap. sourceByIdx[i] must be the
// context whose CNI is mc.SourceCNIs[i], or nil if not currently open.
func MergePI(dest *dbcontext.Context, netIdx int, mc *dbcontext.MergeContext, sourceByIdx []*dbcontext.Context, cfg *Config) {
	cniToIdx := make(map[uint16]int, len(mc.SourceCNIs))
	for i, cni := range mc.SourceCNIs {
		cniToIdx[cni] = i
	}

	var pool []candidate
	for si, ctx := range sourceByIdx {
		if ctx == nil || si >= len(mc.NetMap[netIdx]) {
			continue
		}
		localNet := mc.NetMap[netIdx][si]
		if localNet < 0 {
			continue
		}
		ctx.WalkNetwork(localNet, func(p *dbcontext.PI) {
			pool = append(pool, candidate{srcIdx: si, pi: p})
		})
	}

	used := make([]bool, len(pool))
	type groupResult struct {
		pi     dbcontext.PI
		minSrc int
	}
	var candidates []groupResult
	for i, ref := range pool {
		if used[i] {
			continue
		}
		group := []candidate{ref}
		used[i] = true
		minSrc := ref.srcIdx
		for j := i + 1; j < len(pool); j++ {
			if used[j] || pool[j].srcIdx == ref.srcIdx {
				continue
			}
			if piMatch(ref.pi, pool[j].pi) {
				group = append(group, pool[j])
				used[j] = true
				if pool[j].srcIdx < minSrc {
					minSrc = pool[j].srcIdx
				}
			}
		}
		merged := mergeOne(group, netIdx, cfg, cniToIdx)
		merged.NetwopNo = uint8(netIdx)
		candidates = append(candidates, groupResult{pi: merged, minSrc: minSrc})
	}

	// Walk candidates in chronological (start-time) order, highest-priority
	// source first on ties, so "previously emitted" and "higher-priority
	// source" below refer to this processing order rather than pool order.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].pi.Start != candidates[j].pi.Start {
			return candidates[i].pi.Start < candidates[j].pi.Start
		}
		return candidates[i].minSrc < candidates[j].minSrc
	})

	var prevStop uint32
	hasPrev := false
	for i, c := range candidates {
		if hasPrev && c.pi.Start < prevStop {
			// Conflicts with the already-emitted previous block: the
			// higher-priority provider's times take precedence.
			continue
		}
		conflict := false
		for j := i + 1; j < len(candidates); j++ {
			other := candidates[j]
			if other.minSrc < c.minSrc && other.pi.Start < c.pi.Stop {
				conflict = true
				break
			}
		}
		if conflict {
			continue
		}
		dest.InsertPI(c.pi)
		prevStop = c.pi.Stop
		hasPrev = true
	}
}

// MergeAllPI rebuilds every merged network's PI timeline.
func MergeAllPI(dest *dbcontext.Context, mc *dbcontext.MergeContext, sourceByIdx []*dbcontext.Context, cfg *Config) {
	dest.FreeAllPI()
	for netIdx := range mc.NetMap {
		MergePI(dest, netIdx, mc, sourceByIdx, cfg)
	}
}
