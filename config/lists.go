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
	"bufio"
	"fmt"
	"strconv"
	"strings"
)

// The four sections below are dynamic record lists rather than
// key = value maps: each non-blank line is one record of
// whitespace-separated fields, the last of which may itself contain
// spaces (a display name or file path). This mirrors the original
// rc-file's RCPARSE_ALLOC sections, one struct-sized record grown per
// line instead of one key per field.

// NetworkOrder is one line of `[NETWORK ORDER]`: the network display
// order a provider's PI should be presented in, or removed from.
type NetworkOrder struct {
	ProvCNI uint16
	AddSub  bool // true adds the list, false removes it
	NetCNIs []uint16
}

// NetworkName is one line of `[NETWORK NAMES]`: a user-assigned display
// name overriding a network's AI-supplied name.
type NetworkName struct {
	NetCNI   uint16
	NetFlags uint32
	Name     string
}

// XMLTVProvider is one line of `[XMLTV PROVIDERS]`: a provider sourced
// from a local XMLTV file rather than teletext acquisition.
type XMLTVProvider struct {
	ProvCNI uint16
	ATime   uint32
	ACount  uint32
	Path    string
}

// XMLTVNetwork is one line of `[XMLTV NETWORKS]`: the CNI a provider's
// XMLTV channel id maps to.
type XMLTVNetwork struct {
	ProvCNI uint16
	NetCNI  uint16
	ChnID   string
}

func scanLines(body string) []string {
	var lines []string
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

func parseUint(s string, bits int) (uint64, error) {
	return strconv.ParseUint(s, 0, bits)
}

func parseNetworkOrder(body string) ([]NetworkOrder, error) {
	var out []NetworkOrder
	for _, line := range scanLines(body) {
		f := strings.Fields(line)
		if len(f) < 2 {
			return nil, fmt.Errorf("short record %q", line)
		}
		cni, err := parseUint(f[0], 16)
		if err != nil {
			return nil, fmt.Errorf("prov_cni %q: %w", f[0], err)
		}
		addSub, err := parseUint(f[1], 8)
		if err != nil {
			return nil, fmt.Errorf("add_sub %q: %w", f[1], err)
		}
		nets := make([]uint16, 0, len(f)-2)
		for _, tok := range f[2:] {
			n, err := parseUint(tok, 16)
			if err != nil {
				return nil, fmt.Errorf("net_cni %q: %w", tok, err)
			}
			nets = append(nets, uint16(n))
		}
		out = append(out, NetworkOrder{ProvCNI: uint16(cni), AddSub: addSub != 0, NetCNIs: nets})
	}
	return out, nil
}

func encodeNetworkOrder(recs []NetworkOrder) string {
	var b strings.Builder
	for _, r := range recs {
		addSub := 0
		if r.AddSub {
			addSub = 1
		}
		fmt.Fprintf(&b, "0x%04x %d", r.ProvCNI, addSub)
		for _, n := range r.NetCNIs {
			fmt.Fprintf(&b, " 0x%04x", n)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func parseNetworkNames(body string) ([]NetworkName, error) {
	var out []NetworkName
	for _, line := range scanLines(body) {
		f := strings.SplitN(line, " ", 3)
		if len(f) < 3 {
			return nil, fmt.Errorf("short record %q", line)
		}
		cni, err := parseUint(f[0], 16)
		if err != nil {
			return nil, fmt.Errorf("net_cni %q: %w", f[0], err)
		}
		flags, err := parseUint(f[1], 32)
		if err != nil {
			return nil, fmt.Errorf("net_flags %q: %w", f[1], err)
		}
		out = append(out, NetworkName{NetCNI: uint16(cni), NetFlags: uint32(flags), Name: strings.TrimSpace(f[2])})
	}
	return out, nil
}

func encodeNetworkNames(recs []NetworkName) string {
	var b strings.Builder
	for _, r := range recs {
		fmt.Fprintf(&b, "0x%04x %d %s\n", r.NetCNI, r.NetFlags, r.Name)
	}
	return b.String()
}

func parseXMLTVProviders(body string) ([]XMLTVProvider, error) {
	var out []XMLTVProvider
	for _, line := range scanLines(body) {
		f := strings.SplitN(line, " ", 4)
		if len(f) < 4 {
			return nil, fmt.Errorf("short record %q", line)
		}
		cni, err := parseUint(f[0], 16)
		if err != nil {
			return nil, fmt.Errorf("prov_cni %q: %w", f[0], err)
		}
		atime, err := parseUint(f[1], 32)
		if err != nil {
			return nil, fmt.Errorf("atime %q: %w", f[1], err)
		}
		acount, err := parseUint(f[2], 32)
		if err != nil {
			return nil, fmt.Errorf("acount %q: %w", f[2], err)
		}
		out = append(out, XMLTVProvider{ProvCNI: uint16(cni), ATime: uint32(atime), ACount: uint32(acount), Path: strings.TrimSpace(f[3])})
	}
	return out, nil
}

func encodeXMLTVProviders(recs []XMLTVProvider) string {
	var b strings.Builder
	for _, r := range recs {
		fmt.Fprintf(&b, "0x%04x %d %d %s\n", r.ProvCNI, r.ATime, r.ACount, r.Path)
	}
	return b.String()
}

func parseXMLTVNetworks(body string) ([]XMLTVNetwork, error) {
	var out []XMLTVNetwork
	for _, line := range scanLines(body) {
		f := strings.SplitN(line, " ", 3)
		if len(f) < 3 {
			return nil, fmt.Errorf("short record %q", line)
		}
		provCNI, err := parseUint(f[0], 16)
		if err != nil {
			return nil, fmt.Errorf("prov_cni %q: %w", f[0], err)
		}
		netCNI, err := parseUint(f[1], 16)
		if err != nil {
			return nil, fmt.Errorf("net_cni %q: %w", f[1], err)
		}
		out = append(out, XMLTVNetwork{ProvCNI: uint16(provCNI), NetCNI: uint16(netCNI), ChnID: strings.TrimSpace(f[2])})
	}
	return out, nil
}

func encodeXMLTVNetworks(recs []XMLTVNetwork) string {
	var b strings.Builder
	for _, r := range recs {
		fmt.Fprintf(&b, "0x%04x 0x%04x %s\n", r.ProvCNI, r.NetCNI, r.ChnID)
	}
	return b.String()
}
