// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package kaon_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kaonchain/kaon/kaon"
)

func TestParseAddress(t *testing.T) {
	addr := kaon.BytesToAddress([]byte("addr"))

	parsed, err := kaon.ParseAddress(addr.String())
	assert.Nil(t, err)
	assert.Equal(t, addr, parsed)

	parsed, err = kaon.ParseAddress(addr.String()[2:])
	assert.Nil(t, err)
	assert.Equal(t, addr, parsed)

	_, err = kaon.ParseAddress("0x123")
	assert.NotNil(t, err)

	_, err = kaon.ParseAddress("zz" + addr.String()[2:])
	assert.NotNil(t, err)
}

func TestCreateContractAddress(t *testing.T) {
	txID := kaon.Blake2b([]byte("tx"))

	a0 := kaon.CreateContractAddress(txID, 0)
	a1 := kaon.CreateContractAddress(txID, 1)
	assert.NotEqual(t, a0, a1)
	assert.Equal(t, a0, kaon.CreateContractAddress(txID, 0))
}
