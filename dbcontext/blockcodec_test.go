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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAIBlockRoundTrip(t *testing.T) {
	ai := sampleAI()
	ai.VersionSwo = 7

	decoded, err := DecodeAIBlock(EncodeAIBlock(ai))
	require.NoError(t, err)
	assert.Equal(t, ai.ServiceName, decoded.ServiceName)
	assert.Equal(t, ai.Version, decoded.Version)
	assert.Equal(t, ai.VersionSwo, decoded.VersionSwo)
	require.Len(t, decoded.Networks, len(ai.Networks))
	for i, n := range ai.Networks {
		assert.Equal(t, n, decoded.Networks[i])
	}
}

func TestPIBlockRoundTrip(t *testing.T) {
	p := &PI{
		NetwopNo:        1,
		BlockNo:         42,
		Start:           1_700_000_000,
		Stop:            1_700_003_600,
		ParentalRating:  6,
		EditorialRating: 3,
		Themes:          []uint8{1, 2, 3},
		SortCriteria:    []uint8{9},
		Features:        FeatureWidescreen | FeatureStereoAudio,
		PIL:             0x1F083A2C,
		Title:           "Evening News",
		Description:     "Live coverage of the day's events.",
		MergeSources:    []uint8{0, 2},
	}

	decoded, err := DecodePIBlock(EncodePIBlock(p))
	require.NoError(t, err)
	assert.Equal(t, p.NetwopNo, decoded.NetwopNo)
	assert.Equal(t, p.BlockNo, decoded.BlockNo)
	assert.Equal(t, p.Start, decoded.Start)
	assert.Equal(t, p.Stop, decoded.Stop)
	assert.Equal(t, p.ParentalRating, decoded.ParentalRating)
	assert.Equal(t, p.EditorialRating, decoded.EditorialRating)
	assert.Equal(t, p.Themes, decoded.Themes)
	assert.Equal(t, p.SortCriteria, decoded.SortCriteria)
	assert.Equal(t, p.Features, decoded.Features)
	assert.Equal(t, p.PIL, decoded.PIL)
	assert.Equal(t, p.Title, decoded.Title)
	assert.Equal(t, p.Description, decoded.Description)
	assert.Equal(t, p.MergeSources, decoded.MergeSources)
}

func TestDecodeAIBlockRejectsTruncatedBody(t *testing.T) {
	full := EncodeAIBlock(sampleAI())
	_, err := DecodeAIBlock(full[:len(full)-3])
	require.Error(t, err)
}

func TestDecodePIBlockRejectsTruncatedBody(t *testing.T) {
	full := EncodePIBlock(&PI{Title: "Truncate Me", Description: "desc"})
	_, err := DecodePIBlock(full[:len(full)-2])
	require.Error(t, err)
}
