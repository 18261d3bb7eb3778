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

package blockqueue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFIFOOrder(t *testing.T) {
	q := New()
	q.Add(&Block{Type: BlockAI, Cni: 1})
	q.Add(&Block{Type: BlockPI, Cni: 1})
	q.Add(&Block{Type: BlockPI, Cni: 2})

	assert.Equal(t, 3, q.Count())
	assert.Equal(t, BlockAI, q.Peek().Type)

	b := q.Get()
	assert.Equal(t, BlockAI, b.Type)
	b = q.Get()
	assert.Equal(t, BlockPI, b.Type)
	assert.Equal(t, uint16(1), b.Cni)
	assert.Equal(t, 1, q.Count())
}

func TestGetByTypePreservesOrder(t *testing.T) {
	q := New()
	q.Add(&Block{Type: BlockPI, Cni: 1})
	q.Add(&Block{Type: BlockAI, Cni: 1})
	q.Add(&Block{Type: BlockPI, Cni: 2})

	ai := q.GetByType(BlockAI)
	assert.NotNil(t, ai)
	assert.Equal(t, BlockAI, ai.Type)

	first := q.Get()
	assert.Equal(t, BlockPI, first.Type)
	assert.Equal(t, uint16(1), first.Cni)
	second := q.Get()
	assert.Equal(t, uint16(2), second.Cni)
	assert.Nil(t, q.Get())
}

func TestGetByTypeMissing(t *testing.T) {
	q := New()
	q.Add(&Block{Type: BlockPI})
	assert.Nil(t, q.GetByType(BlockAI))
	assert.Equal(t, 1, q.Count())
}

func TestClear(t *testing.T) {
	q := New()
	q.Add(&Block{Type: BlockAI})
	q.Add(&Block{Type: BlockPI})
	q.Clear()
	assert.Equal(t, 0, q.Count())
	assert.Nil(t, q.Get())
	assert.Nil(t, q.Peek())
}
