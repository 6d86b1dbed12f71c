// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package validator defines the weighted validator set and the
// deterministic proposer schedule used by consensus.
package validator

import (
	"github.com/kaonchain/kaon/kaon"
)

// MaxValidators is the maximum number of validators in a set.
const MaxValidators = 1024

// MaxTotalWeight bounds the total voting weight of a set, preventing
// overflow in quorum arithmetic.
const MaxTotalWeight = uint64(1) << 60

// Validator is a consensus participant with voting weight.
type Validator struct {
	Address kaon.Address
	Weight  uint64
}
