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

// Package dbcontext implements the reference-counted cache of
// per-provider databases, their ERROR/DUMMY/STAT/PEEK/OPEN
// lifecycle, the PI/AI data model, and the on-disk dump
// format with endian-independent reload.
package dbcontext

import "time"

// MaxThemes and MaxSortCriteria bound the per-PI theme/sort-criterion
// sets.
const (
	MaxThemes        = 8
	MaxSortCriteria  = 8
	MaxMergedSources = 10 // merge context source count limit
)

// Features is a bitset of PI attributes.
type Features uint16

const (
	FeatureMonoAudio Features = 1 << iota
	FeatureStereoAudio
	Feature2ChanAudio
	FeatureWidescreen
	FeatureHD
	FeatureRepeat
	FeatureSubtitles
	FeatureEncrypted
	FeatureLive
)

// PI is the atomic Programme Item record.
type PI struct {
	NetwopNo        uint8
	BlockNo         uint16
	Start, Stop     uint32 // unix seconds
	ParentalRating  uint8
	EditorialRating uint8
	Themes          []uint8 // up to MaxThemes
	SortCriteria    []uint8 // up to MaxSortCriteria
	Features        Features
	PIL             uint32 // packed day/month/hour/minute
	Title           string
	Description     string
	MergeSources    []uint8 // ordered source provider indices, merged records only

	// arena bookkeeping; nilIdx (-1) means "no link".
	idx                    int
	globalPrev, globalNext int
	netPrev, netNext       int
}

// Valid reports the structural invariants a PI must satisfy given the
// network count it is supposed to fit within.
func (p *PI) Valid(netwopCount int) bool {
	if p.Start >= p.Stop {
		return false
	}
	if int(p.NetwopNo) >= netwopCount {
		return false
	}
	if p.Title == "" {
		return false
	}
	if len(p.Themes) > MaxThemes || len(p.SortCriteria) > MaxSortCriteria {
		return false
	}
	if len(p.MergeSources) > MaxMergedSources {
		return false
	}
	return true
}

// Network is one entry of an AI's network table.
type Network struct {
	CNI      uint16
	Lang     uint8
	Name     string
	StartNo  uint16
	StopNo   uint16
	DayCount uint8
}

// AI is the Application Information block: per-provider metadata.
type AI struct {
	// CNI is the provider's own network identifier, as carried in the AI
	// block header. It is what the acquisition master compares against a
	// context's current CNI to decide whether an incoming AI is a
	// version/range update to the same provider or a channel change to a
	// different one; it is not derived from Networks, which lists every
	// network this provider's EPG covers (frequently including itself).
	CNI         uint16
	ServiceName string
	Networks    []Network
	Version     uint16
	VersionSwo  uint16
}

// NetwopCount returns len(Networks), the bound PI.NetwopNo must respect.
func (a *AI) NetwopCount() int {
	if a == nil {
		return 0
	}
	return len(a.Networks)
}

// NetworkByCNI finds a network's index by CNI, or -1.
func (a *AI) NetworkByCNI(cni uint16) int {
	for i, n := range a.Networks {
		if n.CNI == cni {
			return i
		}
	}
	return -1
}

// piArena owns all PI records for one Context as an index-addressed
// slice, with two independent pairs of doubly-linked prev/next fields
// per node: the global time-ordered chain and the per-network chain.
// Destruction is arena-wide.
type piArena struct {
	nodes []PI
	free  []int
}

const nilIdx = -1

func newArena() *piArena {
	return &piArena{}
}

func (a *piArena) alloc(p PI) int {
	p.globalPrev, p.globalNext = nilIdx, nilIdx
	p.netPrev, p.netNext = nilIdx, nilIdx
	if n := len(a.free); n > 0 {
		idx := a.free[n-1]
		a.free = a.free[:n-1]
		p.idx = idx
		a.nodes[idx] = p
		return idx
	}
	p.idx = len(a.nodes)
	a.nodes = append(a.nodes, p)
	return p.idx
}

func (a *piArena) get(idx int) *PI {
	if idx == nilIdx {
		return nil
	}
	return &a.nodes[idx]
}

func (a *piArena) free_(idx int) {
	a.free = append(a.free, idx)
}

func (a *piArena) reset() {
	a.nodes = nil
	a.free = nil
}

// MergeContext describes how a merged database's PI/AI were assembled
// from multiple source databases.
type MergeContext struct {
	SourceCNIs []uint16 // prevalence order: lower index wins time conflicts

	// NetMap[targetNetIdx] gives, per source index, that source's local
	// network index contributing to targetNetIdx, or -1 if it doesn't.
	NetMap [][]int

	// Priority[attr] is an ordered list of source indices, highest
	// priority first, used to pick which source supplies each attribute
	// class for a merged PI.
	Priority map[AttrClass][]int
}

// AttrClass enumerates the attribute classes with independent priority
// vectors in a merge.
type AttrClass int

const (
	AttrTitle AttrClass = iota
	AttrDescription
	AttrThemes
	AttrSortCriteria
	AttrEditorial
	AttrParental
	AttrSound
	AttrFormat
	AttrRepeat
	AttrSubtitles
	AttrOtherFeatures
	AttrVPSPIL
)

// State is one of the five context cache states.
type State int

const (
	StateError State = iota
	StateDummy
	StateStat
	StatePeek
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateError:
		return "ERROR"
	case StateDummy:
		return "DUMMY"
	case StateStat:
		return "STAT"
	case StatePeek:
		return "PEEK"
	case StateOpen:
		return "OPEN"
	default:
		return "UNKNOWN"
	}
}

// Context is one provider's cached database entry.
type Context struct {
	CNI   uint16
	State State

	AI    *AI
	arena *piArena

	globalHead, globalTail int
	netHead, netTail       []int // per-network chain heads/tails, len == len(AI.Networks)
	obsoleteHead           int

	TunerFreq    uint32
	PageNo       int
	AppID        int
	LastAcquired time.Time

	Merge *MergeContext

	OpenRefCount int
	PeekRefCount int

	Mtime    time.Time // STAT: file modification time
	ErrKind  ErrorKind
	errShown bool

	dirty bool
	Path  string

	// Locked is the advisory "db lock" flag. No code in this module
	// reads it: the acquisition writer inserts PI whether or not it is
	// set.
	Locked bool
}

func newContext(cni uint16, state State) *Context {
	return &Context{
		CNI:          cni,
		State:        state,
		arena:        newArena(),
		globalHead:   nilIdx,
		globalTail:   nilIdx,
		obsoleteHead: nilIdx,
	}
}

// IsDummy reports whether this is the sentinel empty context (no AI, no
// PI, refcounted like any other entry).
func (c *Context) IsDummy() bool {
	return c.State == StateDummy
}

// IsMerged reports whether this context has an attached merge context.
func (c *Context) IsMerged() bool {
	return c.Merge != nil
}

// resetNetChains (re)allocates per-network head/tail slices to match the
// current AI's network count.
func (c *Context) resetNetChains() {
	n := c.AI.NetwopCount()
	c.netHead = make([]int, n)
	c.netTail = make([]int, n)
	for i := range c.netHead {
		c.netHead[i] = nilIdx
		c.netTail[i] = nilIdx
	}
}

// InsertPI inserts p into both the global chain (sorted by start_time,
// then netwop_no) and its per-network chain (sorted by block_no),
// maintaining the arena's ordering invariants. Returns the arena index.
func (c *Context) InsertPI(p PI) int {
	idx := c.arena.alloc(p)
	c.ensureNetCapacity(int(p.NetwopNo) + 1)
	c.insertGlobal(idx)
	c.insertNet(idx)
	c.dirty = true
	return idx
}

// ensureNetCapacity grows the per-network chain slices to cover netwop
// indices up to n-1. resetNetChains sizes the slices from the AI on its
// own; InsertPI calls this defensively for callers that build a
// Context's PI chains before its AI is fully wired up (e.g. merge's
// scratch contexts).
func (c *Context) ensureNetCapacity(n int) {
	if n <= len(c.netHead) {
		return
	}
	grown, grownTail := make([]int, n), make([]int, n)
	copy(grown, c.netHead)
	copy(grownTail, c.netTail)
	for i := len(c.netHead); i < n; i++ {
		grown[i] = nilIdx
		grownTail[i] = nilIdx
	}
	c.netHead, c.netTail = grown, grownTail
}

func (c *Context) insertGlobal(idx int) {
	node := c.arena.get(idx)
	if c.globalHead == nilIdx {
		c.globalHead, c.globalTail = idx, idx
		return
	}
	// Walk from tail backward while the new node sorts earlier; dump
	// reload and incremental merge both append near the tail, so this
	// is effectively O(1) amortized in practice despite being O(n)
	// worst case.
	cur := c.globalTail
	for cur != nilIdx {
		curNode := c.arena.get(cur)
		if less(curNode, node) || (curNode.Start == node.Start && curNode.NetwopNo == node.NetwopNo) {
			break
		}
		cur = curNode.globalPrev
	}
	if cur == nilIdx {
		node.globalNext = c.globalHead
		c.arena.get(c.globalHead).globalPrev = idx
		c.globalHead = idx
		return
	}
	curNode := c.arena.get(cur)
	node.globalPrev = cur
	node.globalNext = curNode.globalNext
	if curNode.globalNext != nilIdx {
		c.arena.get(curNode.globalNext).globalPrev = idx
	} else {
		c.globalTail = idx
	}
	curNode.globalNext = idx
}

func less(a, b *PI) bool {
	if a.Start != b.Start {
		return a.Start < b.Start
	}
	return a.NetwopNo < b.NetwopNo
}

func (c *Context) insertNet(idx int) {
	node := c.arena.get(idx)
	n := int(node.NetwopNo)
	if n >= len(c.netHead) {
		return
	}
	if c.netHead[n] == nilIdx {
		c.netHead[n], c.netTail[n] = idx, idx
		return
	}
	cur := c.netTail[n]
	for cur != nilIdx {
		curNode := c.arena.get(cur)
		if curNode.BlockNo <= node.BlockNo {
			break
		}
		cur = curNode.netPrev
	}
	if cur == nilIdx {
		node.netNext = c.netHead[n]
		c.arena.get(c.netHead[n]).netPrev = idx
		c.netHead[n] = idx
		return
	}
	curNode := c.arena.get(cur)
	node.netPrev = cur
	node.netNext = curNode.netNext
	if curNode.netNext != nilIdx {
		c.arena.get(curNode.netNext).netPrev = idx
	} else {
		c.netTail[n] = idx
	}
	curNode.netNext = idx
}

// RemovePI unlinks and frees the PI at idx from both chains.
func (c *Context) RemovePI(idx int) {
	node := c.arena.get(idx)
	if node == nil {
		return
	}
	if node.globalPrev != nilIdx {
		c.arena.get(node.globalPrev).globalNext = node.globalNext
	} else {
		c.globalHead = node.globalNext
	}
	if node.globalNext != nilIdx {
		c.arena.get(node.globalNext).globalPrev = node.globalPrev
	} else {
		c.globalTail = node.globalPrev
	}

	n := int(node.NetwopNo)
	if n < len(c.netHead) {
		if node.netPrev != nilIdx {
			c.arena.get(node.netPrev).netNext = node.netNext
		} else {
			c.netHead[n] = node.netNext
		}
		if node.netNext != nilIdx {
			c.arena.get(node.netNext).netPrev = node.netPrev
		} else {
			c.netTail[n] = node.netPrev
		}
	}
	c.arena.free_(idx)
	c.dirty = true
}

// WalkGlobal calls yield for every PI in global (start_time, netwop_no)
// order.
func (c *Context) WalkGlobal(yield func(*PI)) {
	for idx := c.globalHead; idx != nilIdx; {
		node := c.arena.get(idx)
		next := node.globalNext
		yield(node)
		idx = next
	}
}

// WalkNetwork calls yield for every PI of network n in block_no order.
func (c *Context) WalkNetwork(n int, yield func(*PI)) {
	if n < 0 || n >= len(c.netHead) {
		return
	}
	for idx := c.netHead[n]; idx != nilIdx; {
		node := c.arena.get(idx)
		next := node.netNext
		yield(node)
		idx = next
	}
}

// GlobalCount returns the number of PI currently in the global chain.
func (c *Context) GlobalCount() int {
	n := 0
	c.WalkGlobal(func(*PI) { n++ })
	return n
}

// FreeAllPI empties both chains and the arena, used when downgrading
// OPEN to PEEK or destroying a context.
func (c *Context) FreeAllPI() {
	c.arena.reset()
	c.globalHead, c.globalTail = nilIdx, nilIdx
	for i := range c.netHead {
		c.netHead[i], c.netTail[i] = nilIdx, nilIdx
	}
	c.obsoleteHead = nilIdx
}

// Dirty reports whether this context has unsaved changes since the last
// Dump.
func (c *Context) Dirty() bool { return c.dirty }

// MarkClean clears the dirty flag after a successful dump.
func (c *Context) MarkClean() { c.dirty = false }
