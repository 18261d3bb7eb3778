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

package client

import "github.com/tomzo/nxtvepgd/wire"

// pendingStat is one received STATS_IND, held until the block queue it
// describes has fully drained: a stats snapshot is only meaningful once
// the blocks it counts have actually arrived and been applied.
type pendingStat struct {
	variant wire.StatsVariant
	minimal wire.StatsMinimal
	initial wire.StatsInitial
	update  wire.StatsUpdate
}

// Stats returns the most recently applied stats indication and its
// variant. ok is false until the first STATS_IND has cleared the queue.
func (c *Client) Stats() (variant wire.StatsVariant, minimal wire.StatsMinimal, initial wire.StatsInitial, update wire.StatsUpdate, ok bool) {
	if !c.haveStats {
		return 0, wire.StatsMinimal{}, wire.StatsInitial{}, wire.StatsUpdate{}, false
	}
	return c.latestStats.variant, c.latestStats.minimal, c.latestStats.initial, c.latestStats.update, true
}

// handleStatsInd decodes a STATS_IND body, whose variant is determined
// purely by its length (minimal/initial/update bodies are all distinct
// sizes), and queues it rather than applying it immediately.
func (c *Client) handleStatsInd(body []byte) error {
	var ps pendingStat
	switch len(body) {
	case wire.StatsBodyLen(wire.StatsVariantMinimal):
		m, err := wire.UnmarshalStatsMinimal(body)
		if err != nil {
			return err
		}
		ps = pendingStat{variant: wire.StatsVariantMinimal, minimal: m}
	case wire.StatsBodyLen(wire.StatsVariantInitial):
		i, err := wire.UnmarshalStatsInitial(body)
		if err != nil {
			return err
		}
		ps = pendingStat{variant: wire.StatsVariantInitial, initial: i}
	case wire.StatsBodyLen(wire.StatsVariantUpdate):
		u, err := wire.UnmarshalStatsUpdate(body)
		if err != nil {
			return err
		}
		ps = pendingStat{variant: wire.StatsVariantUpdate, update: u}
	default:
		return &wire.ProtocolError{Err: wire.ErrBadLength}
	}
	c.pendingStats = append(c.pendingStats, ps)
	c.applyReadyStats()
	return nil
}

// applyReadyStats flushes every queued stats indication once the block
// queue is empty: the blocks a STATS_IND counts may still be in flight
// behind it, so applying early would show a premature count to the GUI.
func (c *Client) applyReadyStats() {
	if c.in.Count() > 0 {
		return
	}
	for _, ps := range c.pendingStats {
		c.latestStats = ps
		c.haveStats = true
		c.sink.StatsUpdate()
	}
	c.pendingStats = c.pendingStats[:0]
}
