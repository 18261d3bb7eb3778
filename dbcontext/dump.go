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

package dbcontext

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash"
)

// dumpMagic identifies a provider dump file; dumpVersion gates forward
// compatibility.
var dumpMagic = [8]byte{'N', 'X', 'T', 'V', 'D', 'B', '0', '1'}

const dumpVersion uint16 = 1

type corruptError struct{ msg string }

func (e *corruptError) Error() string { return e.msg }

type versionError struct{ got uint16 }

func (e *versionError) Error() string {
	return fmt.Sprintf("unsupported dump version %d, want %d", e.got, dumpVersion)
}

// Dump serializes ctx's AI and every PI in global-chain order to
// ctx.Path, using a length-prefixed binary layout closely mirroring the
// block-stream format, terminated by an xxhash64 checksum
// of everything preceding it (grounds the 60-second periodic dump
// housekeeping in a cheap, corruption-detecting format). The file is
// written to a temp path and renamed into place so a crash mid-dump
// never corrupts the previous good copy.
func Dump(ctx *Context) error {
	var buf bytes.Buffer
	buf.Write(dumpMagic[:])
	writeU16(&buf, dumpVersion)
	writeU16(&buf, ctx.CNI)
	writeU32(&buf, ctx.TunerFreq)
	writeU32(&buf, uint32(ctx.PageNo))
	writeU32(&buf, uint32(ctx.AppID))
	writeU16(&buf, ctx.AI.CNI)
	writeString16(&buf, ctx.AI.ServiceName)
	writeU16(&buf, uint16(len(ctx.AI.Networks)))
	for _, n := range ctx.AI.Networks {
		writeU16(&buf, n.CNI)
		buf.WriteByte(n.Lang)
		writeString8(&buf, n.Name)
		writeU16(&buf, n.StartNo)
		writeU16(&buf, n.StopNo)
		buf.WriteByte(n.DayCount)
	}

	countOff := buf.Len()
	writeU32(&buf, 0) // patched below
	var count uint32
	ctx.WalkGlobal(func(p *PI) {
		writePI(&buf, p)
		count++
	})
	out := buf.Bytes()
	binary.BigEndian.PutUint32(out[countOff:], count)

	sum := xxhash.Sum64(out)
	var sumBytes [8]byte
	binary.BigEndian.PutUint64(sumBytes[:], sum)
	out = append(out, sumBytes[:]...)

	tmp := ctx.Path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(out); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, ctx.Path); err != nil {
		return err
	}
	ctx.MarkClean()
	return nil
}

// loadHeader reads only the AI portion of a dump, used by Peek.
func loadHeader(path string) (*AI, *dumpHeader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	r := bufio.NewReader(f)
	h, ai, err := readHeader(r)
	if err != nil {
		return nil, nil, err
	}
	return ai, h, nil
}

// Reload reads a complete dump file back into an AI and its PI records
// in on-disk order.
func Reload(path string) (*AI, []PI, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	if len(raw) < 8 {
		return nil, nil, &corruptError{"dump file too short"}
	}
	sum := binary.BigEndian.Uint64(raw[len(raw)-8:])
	body := raw[:len(raw)-8]
	if xxhash.Sum64(body) != sum {
		return nil, nil, &corruptError{"checksum mismatch"}
	}

	r := bytes.NewReader(body)
	_, ai, err := readHeader(bufio.NewReader(r))
	if err != nil {
		return nil, nil, err
	}

	// readHeader consumed from its own buffered reader, not r, so
	// re-derive the PI section offset directly.
	piData, err := piSectionAfterHeader(body, ai)
	if err != nil {
		return nil, nil, err
	}
	pr := bytes.NewReader(piData)
	var count uint32
	if err := binary.Read(pr, binary.BigEndian, &count); err != nil {
		return nil, nil, &corruptError{"truncated PI count"}
	}
	pis := make([]PI, 0, count)
	for i := uint32(0); i < count; i++ {
		p, err := readPI(pr)
		if err != nil {
			return nil, nil, &corruptError{fmt.Sprintf("truncated PI record %d: %v", i, err)}
		}
		pis = append(pis, p)
	}
	return ai, pis, nil
}

type dumpHeader struct {
	Version uint16
	Cni     uint16
	Freq    uint32
	PageNo  uint32
	AppID   uint32
}

func readHeader(r *bufio.Reader) (*dumpHeader, *AI, error) {
	var magic [8]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, nil, &corruptError{"truncated magic"}
	}
	if magic != dumpMagic {
		return nil, nil, &corruptError{"bad magic"}
	}
	h := &dumpHeader{}
	h.Version = readU16(r)
	if h.Version != dumpVersion {
		return nil, nil, &versionError{got: h.Version}
	}
	h.Cni = readU16(r)
	h.Freq = readU32(r)
	h.PageNo = readU32(r)
	h.AppID = readU32(r)

	ai := &AI{}
	ai.CNI = readU16(r)
	ai.ServiceName = readString16(r)
	netCount := readU16(r)
	ai.Networks = make([]Network, netCount)
	for i := range ai.Networks {
		n := &ai.Networks[i]
		n.CNI = readU16(r)
		n.Lang, _ = r.ReadByte()
		n.Name = readString8(r)
		n.StartNo = readU16(r)
		n.StopNo = readU16(r)
		n.DayCount, _ = r.ReadByte()
	}
	return h, ai, nil
}

// piSectionAfterHeader re-encodes just the header to learn its length,
// then slices the remainder of body. This avoids plumbing a shared
// cursor through bufio.Reader and a byte slice at once.
func piSectionAfterHeader(body []byte, ai *AI) ([]byte, error) {
	var hb bytes.Buffer
	hb.Write(dumpMagic[:])
	writeU16(&hb, dumpVersion)
	writeU16(&hb, 0)
	writeU32(&hb, 0)
	writeU32(&hb, 0)
	writeU32(&hb, 0)
	writeU16(&hb, ai.CNI)
	writeString16(&hb, ai.ServiceName)
	writeU16(&hb, uint16(len(ai.Networks)))
	for _, n := range ai.Networks {
		writeU16(&hb, n.CNI)
		hb.WriteByte(n.Lang)
		writeString8(&hb, n.Name)
		writeU16(&hb, n.StartNo)
		writeU16(&hb, n.StopNo)
		hb.WriteByte(n.DayCount)
	}
	if hb.Len() > len(body) {
		return nil, &corruptError{"header longer than file"}
	}
	return body[hb.Len():], nil
}

func writePI(buf *bytes.Buffer, p *PI) {
	buf.WriteByte(p.NetwopNo)
	writeU16(buf, p.BlockNo)
	writeU32(buf, p.Start)
	writeU32(buf, p.Stop)
	buf.WriteByte(p.ParentalRating)
	buf.WriteByte(p.EditorialRating)
	buf.WriteByte(uint8(len(p.Themes)))
	buf.Write(p.Themes)
	buf.WriteByte(uint8(len(p.SortCriteria)))
	buf.Write(p.SortCriteria)
	writeU16(buf, uint16(p.Features))
	writeU32(buf, p.PIL)
	writeString16(buf, p.Title)
	writeString16(buf, p.Description)
	buf.WriteByte(uint8(len(p.MergeSources)))
	buf.Write(p.MergeSources)
}

func readPI(r *bytes.Reader) (PI, error) {
	var p PI
	var err error
	if p.NetwopNo, err = r.ReadByte(); err != nil {
		return p, err
	}
	p.BlockNo = readU16r(r)
	p.Start = readU32r(r)
	p.Stop = readU32r(r)
	if p.ParentalRating, err = r.ReadByte(); err != nil {
		return p, err
	}
	if p.EditorialRating, err = r.ReadByte(); err != nil {
		return p, err
	}
	n, err := r.ReadByte()
	if err != nil {
		return p, err
	}
	if n > 0 {
		p.Themes = make([]byte, n)
		if _, err := io.ReadFull(r, p.Themes); err != nil {
			return p, err
		}
	}
	n, err = r.ReadByte()
	if err != nil {
		return p, err
	}
	if n > 0 {
		p.SortCriteria = make([]byte, n)
		if _, err := io.ReadFull(r, p.SortCriteria); err != nil {
			return p, err
		}
	}
	p.Features = Features(readU16r(r))
	p.PIL = readU32r(r)
	p.Title = readString16r(r)
	p.Description = readString16r(r)
	n, err = r.ReadByte()
	if err != nil {
		return p, err
	}
	if n > 0 {
		p.MergeSources = make([]byte, n)
		if _, err := io.ReadFull(r, p.MergeSources); err != nil {
			return p, err
		}
	}
	return p, nil
}

func writeU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeString8(buf *bytes.Buffer, s string) {
	buf.WriteByte(uint8(len(s)))
	buf.WriteString(s)
}

func writeString16(buf *bytes.Buffer, s string) {
	writeU16(buf, uint16(len(s)))
	buf.WriteString(s)
}

func readU16(r *bufio.Reader) uint16 {
	var b [2]byte
	io.ReadFull(r, b[:])
	return binary.BigEndian.Uint16(b[:])
}

func readU32(r *bufio.Reader) uint32 {
	var b [4]byte
	io.ReadFull(r, b[:])
	return binary.BigEndian.Uint32(b[:])
}

func readString8(r *bufio.Reader) string {
	n, _ := r.ReadByte()
	b := make([]byte, n)
	io.ReadFull(r, b)
	return string(b)
}

func readString16(r *bufio.Reader) string {
	n := readU16(r)
	b := make([]byte, n)
	io.ReadFull(r, b)
	return string(b)
}

func readU16r(r *bytes.Reader) uint16 {
	var b [2]byte
	io.ReadFull(r, b[:])
	return binary.BigEndian.Uint16(b[:])
}

func readU32r(r *bytes.Reader) uint32 {
	var b [4]byte
	io.ReadFull(r, b[:])
	return binary.BigEndian.Uint32(b[:])
}

func readString16r(r *bytes.Reader) string {
	n := readU16r(r)
	b := make([]byte, n)
	io.ReadFull(r, b)
	return string(b)
}
