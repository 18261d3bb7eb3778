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

package cmd

import (
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func TestColorizeStatusValue(t *testing.T) {
	color.NoColor = false

	assert.Equal(t, color.YellowString("0"), colorizeStatusValue("Acq mode", "0"))
	assert.Equal(t, "1", colorizeStatusValue("Acq mode", "1"))

	assert.Equal(t, color.YellowString("3"), colorizeStatusValue("Passive reason", "3"))
	assert.Equal(t, "0", colorizeStatusValue("Passive reason", "0"))

	assert.Equal(t, color.RedString("12/340"), colorizeStatusValue("TTX lost/got pages", "12/340"))
	assert.Equal(t, "0/340", colorizeStatusValue("TTX lost/got pages", "0/340"))

	assert.Equal(t, "whatever", colorizeStatusValue("Unrecognized field", "whatever"))
}
