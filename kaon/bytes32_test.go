// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package kaon_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kaonchain/kaon/kaon"
)

func TestParseBytes32(t *testing.T) {
	b32 := kaon.Blake2b([]byte("kaon"))

	parsed, err := kaon.ParseBytes32(b32.String())
	assert.Nil(t, err)
	assert.Equal(t, b32, parsed)

	parsed, err = kaon.ParseBytes32(b32.String()[2:])
	assert.Nil(t, err)
	assert.Equal(t, b32, parsed)

	_, err = kaon.ParseBytes32("0x")
	assert.NotNil(t, err)

	_, err = kaon.ParseBytes32("1x" + b32.String()[2:])
	assert.NotNil(t, err)
}

func TestBytes32JSON(t *testing.T) {
	b32 := kaon.Blake2b([]byte("json"))
	data, err := json.Marshal(&b32)
	assert.Nil(t, err)
	assert.Equal(t, `"`+b32.String()+`"`, string(data))

	var decoded kaon.Bytes32
	assert.Nil(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, b32, decoded)
}

func TestBytesToBytes32(t *testing.T) {
	assert.True(t, kaon.BytesToBytes32(nil).IsZero())
	assert.Equal(t, kaon.BytesToBytes32([]byte{1}), kaon.MustParseBytes32("0x0000000000000000000000000000000000000000000000000000000000000001"))
}
