// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package stackedmap_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kaonchain/kaon/stackedmap"
)

func TestStackedMap(t *testing.T) {
	assert := assert.New(t)

	src := make(map[string]string)
	src["base"] = "from-src"

	sm := stackedmap.New(func(key any) (any, bool, error) {
		v, ok := src[key.(string)]
		return v, ok, nil
	})

	sm.Push()
	sm.Put("k1", "v1")

	v, ok, err := sm.Get("k1")
	assert.Nil(err)
	assert.True(ok)
	assert.Equal("v1", v)

	v, ok, err = sm.Get("base")
	assert.Nil(err)
	assert.True(ok)
	assert.Equal("from-src", v)

	depth := sm.Push()
	sm.Put("k1", "v1'")

	v, _, _ = sm.Get("k1")
	assert.Equal("v1'", v)

	sm.PopTo(depth)
	v, _, _ = sm.Get("k1")
	assert.Equal("v1", v)

	sm.Pop()
	_, ok, _ = sm.Get("k1")
	assert.False(ok)
	assert.Zero(sm.Depth())
}

func TestJournal(t *testing.T) {
	sm := stackedmap.New(func(_ any) (any, bool, error) {
		return nil, false, nil
	})

	sm.Push()
	sm.Put("a", 1)
	sm.Push()
	sm.Put("b", 2)
	sm.Put("a", 3)

	var keys []string
	var values []int
	sm.Journal(func(k, v any) bool {
		keys = append(keys, k.(string))
		values = append(values, v.(int))
		return true
	})
	assert.Equal(t, []string{"a", "b", "a"}, keys)
	assert.Equal(t, []int{1, 2, 3}, values)

	// earlier writes survive a pop of the top level only
	sm.Pop()
	keys = keys[:0]
	sm.Journal(func(k, _ any) bool {
		keys = append(keys, k.(string))
		return true
	})
	assert.Equal(t, []string{"a"}, keys)
}
