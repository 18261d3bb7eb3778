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

// Package config reads and rewrites the daemon's INI-like rc-file: a
// handful of sections owned by this module, decoded into typed structs,
// plus whatever other sections the file happens to carry, preserved
// byte-identical across a load/save round trip.
package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/go-ini/ini"
)

// ownedSections lists the section names this module understands. Every
// other section encountered in the file is treated as foreign and kept
// as a raw, unparsed body.
var ownedSections = []string{
	"VERSION",
	"ACQUISITION",
	"TELETEXT GRABBER",
	"DATABASE",
	"CLIENT SERVER",
	"TV CARDS",
	"TV APPLICATION",
	"NETWORK ORDER",
	"NETWORK NAMES",
	"XMLTV PROVIDERS",
	"XMLTV NETWORKS",
}

// listSections are owned sections whose body is a sequence of
// whitespace-separated record lines rather than key = value pairs.
var listSections = []string{
	"NETWORK ORDER",
	"NETWORK NAMES",
	"XMLTV PROVIDERS",
	"XMLTV NETWORKS",
}

func isOwned(name string) bool {
	for _, n := range ownedSections {
		if n == name {
			return true
		}
	}
	return false
}

// Config is the fully decoded rc-file: the sections this module owns,
// plus every foreign section kept around for a faithful rewrite.
type Config struct {
	Version      VersionSection
	Acquisition  AcquisitionSection
	Teletext     TeletextGrabberSection
	Database     DatabaseSection
	ClientServer ClientServerSection
	TVCards      TVCardsSection
	TVApp        TVApplicationSection

	NetworkOrder   []NetworkOrder
	NetworkNames   []NetworkName
	XMLTVProviders []XMLTVProvider
	XMLTVNetworks  []XMLTVNetwork

	// foreign holds every section this module does not own, keyed by
	// section name, verbatim as read from disk.
	foreign map[string]string
	// foreignOrder preserves the order sections appeared in, so a
	// rewrite doesn't reshuffle the file.
	foreignOrder []string
}

// Default returns a Config populated with the same defaults the daemon
// ships with when no rc-file exists yet.
func Default() Config {
	return Config{
		Version:     VersionSection{CompatVersion: CompatVersion, NxtvepgVersion: version},
		Acquisition: AcquisitionSection{AcqMode: AcqModeFollowUI},
		Teletext:    TeletextGrabberSection{TtxEnable: true, TtxStartPage: 0x300, TtxEndPage: 0x399, TtxDuration: 30},
		ClientServer: ClientServerSection{DoTCPIP: false, MaxConn: 10},
	}
}

// Load reads and decodes an rc-file. A missing file is returned as an
// error wrapping fs.ErrNotExist; callers that want first-run defaults
// test for it with errors.Is.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes rc-file content already read into memory.
func Parse(raw []byte) (Config, error) {
	probe, err := ini.LoadSources(ini.LoadOptions{AllowBooleanKeys: true}, raw)
	if err != nil {
		return Config{}, fmt.Errorf("config: parse: %w", err)
	}

	var foreignNames []string
	for _, name := range probe.SectionStrings() {
		if name == ini.DefaultSection {
			continue
		}
		if !isOwned(name) {
			foreignNames = append(foreignNames, name)
		}
	}

	unparsed := append(append([]string{}, foreignNames...), listSections...)
	f, err := ini.LoadSources(ini.LoadOptions{AllowBooleanKeys: true, UnparseableSections: unparsed}, raw)
	if err != nil {
		return Config{}, fmt.Errorf("config: reparse: %w", err)
	}

	cfg := Config{foreign: map[string]string{}}
	for _, name := range foreignNames {
		cfg.foreign[name] = f.Section(name).Body()
	}
	cfg.foreignOrder = foreignNames

	if err := mapOwnedSection(f, "VERSION", &cfg.Version); err != nil {
		return Config{}, err
	}
	if err := mapOwnedSection(f, "ACQUISITION", &cfg.Acquisition); err != nil {
		return Config{}, err
	}
	if err := mapOwnedSection(f, "TELETEXT GRABBER", &cfg.Teletext); err != nil {
		return Config{}, err
	}
	if err := mapOwnedSection(f, "DATABASE", &cfg.Database); err != nil {
		return Config{}, err
	}
	if err := mapOwnedSection(f, "CLIENT SERVER", &cfg.ClientServer); err != nil {
		return Config{}, err
	}
	if err := mapOwnedSection(f, "TV CARDS", &cfg.TVCards); err != nil {
		return Config{}, err
	}
	if err := mapOwnedSection(f, "TV APPLICATION", &cfg.TVApp); err != nil {
		return Config{}, err
	}

	if s := f.Section("NETWORK ORDER"); s != nil {
		cfg.NetworkOrder, err = parseNetworkOrder(s.Body())
		if err != nil {
			return Config{}, fmt.Errorf("config: [NETWORK ORDER]: %w", err)
		}
	}
	if s := f.Section("NETWORK NAMES"); s != nil {
		cfg.NetworkNames, err = parseNetworkNames(s.Body())
		if err != nil {
			return Config{}, fmt.Errorf("config: [NETWORK NAMES]: %w", err)
		}
	}
	if s := f.Section("XMLTV PROVIDERS"); s != nil {
		cfg.XMLTVProviders, err = parseXMLTVProviders(s.Body())
		if err != nil {
			return Config{}, fmt.Errorf("config: [XMLTV PROVIDERS]: %w", err)
		}
	}
	if s := f.Section("XMLTV NETWORKS"); s != nil {
		cfg.XMLTVNetworks, err = parseXMLTVNetworks(s.Body())
		if err != nil {
			return Config{}, fmt.Errorf("config: [XMLTV NETWORKS]: %w", err)
		}
	}

	return cfg, nil
}

// mapOwnedSection decodes a section into v when present; a section the
// file simply doesn't carry yet leaves v at its zero value.
func mapOwnedSection(f *ini.File, name string, v interface{}) error {
	if !f.HasSection(name) {
		return nil
	}
	if err := f.Section(name).MapTo(v); err != nil {
		return fmt.Errorf("config: [%s]: %w", name, err)
	}
	return nil
}

// Validate runs every owned section's Validate method.
func (c Config) Validate() error {
	for _, v := range []interface{ Validate() error }{
		c.Version, c.Acquisition, c.Teletext, c.Database, c.ClientServer, c.TVCards, c.TVApp,
	} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Save re-encodes the config, rewriting owned sections from their
// current struct values and copying every foreign section back
// verbatim, in the order it was first seen.
func (c Config) Save(path string) error {
	buf, err := c.Encode()
	if err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}

// Encode is Save without the filesystem write, split out for testing
// round trips without a temp file.
func (c Config) Encode() (*bytes.Buffer, error) {
	f := ini.Empty()

	type ownedWrite struct {
		name string
		v    interface{}
	}
	owned := []ownedWrite{
		{"VERSION", &c.Version},
		{"ACQUISITION", &c.Acquisition},
		{"TELETEXT GRABBER", &c.Teletext},
		{"DATABASE", &c.Database},
		{"CLIENT SERVER", &c.ClientServer},
		{"TV CARDS", &c.TVCards},
		{"TV APPLICATION", &c.TVApp},
	}
	for _, ow := range owned {
		s, err := f.NewSection(ow.name)
		if err != nil {
			return nil, fmt.Errorf("config: section %s: %w", ow.name, err)
		}
		if err := s.ReflectFrom(ow.v); err != nil {
			return nil, fmt.Errorf("config: encode %s: %w", ow.name, err)
		}
	}

	if body := encodeNetworkOrder(c.NetworkOrder); body != "" {
		if err := newRawSection(f, "NETWORK ORDER", body); err != nil {
			return nil, err
		}
	}
	if body := encodeNetworkNames(c.NetworkNames); body != "" {
		if err := newRawSection(f, "NETWORK NAMES", body); err != nil {
			return nil, err
		}
	}
	if body := encodeXMLTVProviders(c.XMLTVProviders); body != "" {
		if err := newRawSection(f, "XMLTV PROVIDERS", body); err != nil {
			return nil, err
		}
	}
	if body := encodeXMLTVNetworks(c.XMLTVNetworks); body != "" {
		if err := newRawSection(f, "XMLTV NETWORKS", body); err != nil {
			return nil, err
		}
	}

	for _, name := range c.foreignOrder {
		if err := newRawSection(f, name, c.foreign[name]); err != nil {
			return nil, err
		}
	}

	ini.PrettyFormat = false
	ini.PrettySection = false
	buf := &bytes.Buffer{}
	if _, err := f.WriteTo(buf); err != nil {
		return nil, fmt.Errorf("config: write: %w", err)
	}
	return buf, nil
}

func newRawSection(f *ini.File, name, body string) error {
	s, err := f.NewRawSection(name, body)
	if err != nil {
		return fmt.Errorf("config: raw section %s: %w", name, err)
	}
	_ = s
	return nil
}
