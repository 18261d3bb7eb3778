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

package server

import (
	"fmt"
	"os"
	"strings"

	"github.com/tomzo/nxtvepgd/wire"
)

// textQueryReply builds the CONQUERY_CNF body for the short ASCII
// queries a CONNECT_REQ can carry instead of a real handshake: ACQSTAT
// (a key-value acquisition status block) and PID (this process's pid).
func (s *Server) textQueryReply(query string) string {
	switch query {
	case wire.TextQueryPID:
		return fmt.Sprintf("PID %d\n", os.Getpid())
	case wire.TextQueryACQSTAT:
		return s.acqStatReply()
	default:
		return ""
	}
}

func (s *Server) acqStatReply() string {
	if s.Stats == nil {
		return "Acq mode: off\n"
	}
	vpsCni, vpsPil := s.Stats.VpsPdc()
	c := s.Stats.Counters()

	var b strings.Builder
	fmt.Fprintf(&b, "Acq mode: %d\n", s.Stats.AcqMode())
	fmt.Fprintf(&b, "Passive reason: %d\n", s.Stats.PassiveReasonCode())
	fmt.Fprintf(&b, "Channel VPS/PDC CNI: %04x\n", vpsCni)
	fmt.Fprintf(&b, "Channel VPS/PDC PIL: %08x\n", vpsPil)
	fmt.Fprintf(&b, "Teletext acq duration: %d\n", c.TtxAcqDurationSec)
	fmt.Fprintf(&b, "AI min/avg/max [sec]: %d/%d/%d\n", c.AiMinSec, c.AiAvgSec, c.AiMaxSec)
	fmt.Fprintf(&b, "EPG pages/sec: %d\n", c.EpgPagesPerSec)
	fmt.Fprintf(&b, "TTX lost/got pages: %d/%d\n", c.TtxPagesLost, c.TtxPagesGot)
	fmt.Fprintf(&b, "TTX lost/got pkg: %d/%d\n", c.TtxPkgLost, c.TtxPkgGot)
	fmt.Fprintf(&b, "EPG dropped/got blocks: %d/%d\n", c.EpgBlocksDropped, c.EpgBlocksGot)
	fmt.Fprintf(&b, "EPG blanked/got chars: %d/%d\n", c.EpgCharsBlanked, c.EpgCharsGot)
	return b.String()
}
