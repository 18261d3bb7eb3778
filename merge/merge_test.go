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

package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomzo/nxtvepgd/dbcontext"
)

func openSource(cni uint16, name string, netCNI uint16) *dbcontext.Context {
	// dbcontext has no exported constructor for a fresh populated
	// context outside the package, so build via the manager's public
	// surface: a DUMMY context from CreateDummy on a manager with no
	// directory, with its AI filled in directly.
	m := dbcontext.NewManager("")
	ctx := m.CreateDummy(cni)
	ctx.AI = &dbcontext.AI{
		ServiceName: name,
		Networks:    []dbcontext.Network{{CNI: netCNI, Name: "Shared Net"}},
	}
	return ctx
}

func TestMergeAIUnionsNetworksByCNI(t *testing.T) {
	a := openSource(1, "Provider A", 0x0D94)
	b := openSource(2, "Provider B", 0x0D94)
	c := openSource(3, "Provider C", 0x0D95)

	cfg := Config{SourceCNIs: []uint16{1, 2, 3}}
	ai, mc, err := MergeAI([]*dbcontext.Context{a, b, c}, cfg)
	require.NoError(t, err)

	assert.Len(t, ai.Networks, 2, "shared CNI 0x0D94 must not duplicate")
	assert.Equal(t, "Provider A / Provider B / Provider C", ai.ServiceName)
	assert.Len(t, mc.NetMap, 2)
}

func TestPiMatchExactTimes(t *testing.T) {
	a := &dbcontext.PI{Start: 1000, Stop: 2000, Title: "News"}
	b := &dbcontext.PI{Start: 1000, Stop: 2000, Title: "Different Title Entirely"}
	assert.True(t, piMatch(a, b))
}

func TestPiMatchOverlapAndTitlePrefix(t *testing.T) {
	a := &dbcontext.PI{Start: 1000, Stop: 4600, Title: "The Simpsons"}
	b := &dbcontext.PI{Start: 1100, Stop: 4700, Title: "The Simpsons (season 5)"}
	assert.True(t, piMatch(a, b))
}

func TestPiMatchRejectsUnrelated(t *testing.T) {
	a := &dbcontext.PI{Start: 1000, Stop: 2000, Title: "News"}
	b := &dbcontext.PI{Start: 50000, Stop: 52000, Title: "Movie Night"}
	assert.False(t, piMatch(a, b))
}

func TestMergePIMergesOverlappingEntries(t *testing.T) {
	a := openSource(1, "A", 0x0D94)
	a.InsertPI(dbcontext.PI{NetwopNo: 0, BlockNo: 1, Start: 1000, Stop: 2000, Title: "News", Description: "From A"})
	b := openSource(2, "B", 0x0D94)
	b.InsertPI(dbcontext.PI{NetwopNo: 0, BlockNo: 1, Start: 1000, Stop: 2000, Title: "News", Description: "From B"})

	cfg := Config{
		SourceCNIs: []uint16{1, 2},
		Priority:   map[dbcontext.AttrClass][]uint16{dbcontext.AttrDescription: {2, 1}},
	}
	ai, mc, err := MergeAI([]*dbcontext.Context{a, b}, cfg)
	require.NoError(t, err)

	dest := openSource(0xFFFF, ai.ServiceName, 0)
	dest.AI = ai
	MergeAllPI(dest, mc, []*dbcontext.Context{a, b}, &cfg)

	assert.Equal(t, 1, dest.GlobalCount(), "matched PI from both sources must collapse into one")
	dest.WalkGlobal(func(p *dbcontext.PI) {
		assert.Equal(t, "From B", p.Description, "priority list prefers source 2 for description")
		assert.ElementsMatch(t, []uint8{0, 1}, p.MergeSources)
	})
}

func TestMergePIDropsLowerPriorityBlockConflictingWithPreviousEmit(t *testing.T) {
	// Source 1 (higher priority) splits the hour into two broadcasts;
	// source 2 (lower priority) reports it as one long block that
	// doesn't plausibly match either half. The long block must not
	// survive merging once it would overlap the higher-priority
	// source's own, already-accounted-for schedule.
	a := openSource(1, "A", 0x0D94)
	a.InsertPI(dbcontext.PI{NetwopNo: 0, BlockNo: 1, Start: 0, Stop: 1800, Title: "Morning News"})
	a.InsertPI(dbcontext.PI{NetwopNo: 0, BlockNo: 2, Start: 1800, Stop: 3600, Title: "Late Show"})
	b := openSource(2, "B", 0x0D94)
	b.InsertPI(dbcontext.PI{NetwopNo: 0, BlockNo: 1, Start: 0, Stop: 3600, Title: "Long Block"})

	cfg := Config{SourceCNIs: []uint16{1, 2}}
	ai, mc, err := MergeAI([]*dbcontext.Context{a, b}, cfg)
	require.NoError(t, err)

	dest := openSource(0xFFFF, ai.ServiceName, 0)
	dest.AI = ai
	MergeAllPI(dest, mc, []*dbcontext.Context{a, b}, &cfg)

	var titles []string
	dest.WalkGlobal(func(p *dbcontext.PI) { titles = append(titles, p.Title) })
	assert.Equal(t, []string{"Morning News", "Late Show"}, titles, "source 2's conflicting block must be dropped, not merged as a third entry")
}

func TestMergePIKeepsDistinctBroadcastsSeparate(t *testing.T) {
	a := openSource(1, "A", 0x0D94)
	a.InsertPI(dbcontext.PI{NetwopNo: 0, BlockNo: 1, Start: 1000, Stop: 2000, Title: "Morning Show"})
	b := openSource(2, "B", 0x0D94)
	b.InsertPI(dbcontext.PI{NetwopNo: 0, BlockNo: 1, Start: 50000, Stop: 52000, Title: "Late Movie"})

	cfg := Config{SourceCNIs: []uint16{1, 2}}
	ai, mc, err := MergeAI([]*dbcontext.Context{a, b}, cfg)
	require.NoError(t, err)

	dest := openSource(0xFFFF, ai.ServiceName, 0)
	dest.AI = ai
	MergeAllPI(dest, mc, []*dbcontext.Context{a, b}, &cfg)

	assert.Equal(t, 2, dest.GlobalCount())
}
