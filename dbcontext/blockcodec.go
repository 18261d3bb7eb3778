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
	"bytes"
	"fmt"
	"io"
)

// EncodeAIBlock/EncodePIBlock give package server/client the same block
// encoding Dump/Reload use for the on-disk file, so a PI BLOCK_IND wire
// payload is byte-identical to the corresponding dump record, and an AI
// payload carries the dump header's AI fields followed by the version
// counters.

var errCorruptBlock = &corruptError{"corrupt wire block"}

// EncodeAIBlock serializes ai using the same field layout as the AI
// portion of a dump file header, plus its version counters.
func EncodeAIBlock(ai *AI) []byte {
	var buf bytes.Buffer
	writeU16(&buf, ai.CNI)
	writeString16(&buf, ai.ServiceName)
	writeU16(&buf, uint16(len(ai.Networks)))
	for _, n := range ai.Networks {
		writeU16(&buf, n.CNI)
		buf.WriteByte(n.Lang)
		writeString8(&buf, n.Name)
		writeU16(&buf, n.StartNo)
		writeU16(&buf, n.StopNo)
		buf.WriteByte(n.DayCount)
	}
	writeU16(&buf, ai.Version)
	writeU16(&buf, ai.VersionSwo)
	return buf.Bytes()
}

// DecodeAIBlock is the inverse of EncodeAIBlock.
func DecodeAIBlock(body []byte) (*AI, error) {
	r := bytes.NewReader(body)
	ai := &AI{}
	var err error
	if ai.CNI, err = readU16x(r); err != nil {
		return nil, fmt.Errorf("%w: %v", errCorruptBlock, err)
	}
	if ai.ServiceName, err = readString16x(r); err != nil {
		return nil, fmt.Errorf("%w: %v", errCorruptBlock, err)
	}
	netCount, err := readU16x(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errCorruptBlock, err)
	}
	ai.Networks = make([]Network, netCount)
	for i := range ai.Networks {
		n := &ai.Networks[i]
		if n.CNI, err = readU16x(r); err != nil {
			return nil, fmt.Errorf("%w: %v", errCorruptBlock, err)
		}
		if n.Lang, err = readByteX(r); err != nil {
			return nil, fmt.Errorf("%w: %v", errCorruptBlock, err)
		}
		if n.Name, err = readString8x(r); err != nil {
			return nil, fmt.Errorf("%w: %v", errCorruptBlock, err)
		}
		if n.StartNo, err = readU16x(r); err != nil {
			return nil, fmt.Errorf("%w: %v", errCorruptBlock, err)
		}
		if n.StopNo, err = readU16x(r); err != nil {
			return nil, fmt.Errorf("%w: %v", errCorruptBlock, err)
		}
		if n.DayCount, err = readByteX(r); err != nil {
			return nil, fmt.Errorf("%w: %v", errCorruptBlock, err)
		}
	}
	if ai.Version, err = readU16x(r); err != nil {
		return nil, fmt.Errorf("%w: %v", errCorruptBlock, err)
	}
	if ai.VersionSwo, err = readU16x(r); err != nil {
		return nil, fmt.Errorf("%w: %v", errCorruptBlock, err)
	}
	return ai, nil
}

// EncodePIBlock serializes one PI using the on-disk record layout.
func EncodePIBlock(p *PI) []byte {
	var buf bytes.Buffer
	writePI(&buf, p)
	return buf.Bytes()
}

// DecodePIBlock is the inverse of EncodePIBlock.
func DecodePIBlock(body []byte) (PI, error) {
	p, err := readPI(bytes.NewReader(body))
	if err != nil {
		return PI{}, fmt.Errorf("%w: %v", errCorruptBlock, err)
	}
	return p, nil
}

func readByteX(r *bytes.Reader) (byte, error) { return r.ReadByte() }

func readU16x(r *bytes.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return uint16(b[0])<<8 | uint16(b[1]), nil
}

func readString8x(r *bytes.Reader) (string, error) {
	n, err := r.ReadByte()
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func readString16x(r *bytes.Reader) (string, error) {
	n, err := readU16x(r)
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}
