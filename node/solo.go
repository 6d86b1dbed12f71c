// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package node

import "github.com/kaonchain/kaon/block"

// SoloComm drops all outbound consensus messages. A single-validator
// network reaches quorum on its own votes and needs no gossip.
type SoloComm struct{}

func (SoloComm) BroadcastProposal(*block.Proposal) {}

func (SoloComm) BroadcastVote(*block.Vote) {}
