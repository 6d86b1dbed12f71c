// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package crosschain relays finalized local blocks to a foreign chain
// and verifies foreign checkpoint proofs submitted back. The foreign
// chain is reached through the narrow Client interface; a deployment
// without a bridge uses the no-op client.
package crosschain

import (
	"context"

	"github.com/kaonchain/kaon/block"
	"github.com/kaonchain/kaon/kaon"
	"github.com/kaonchain/kaon/tx"
)

// Client submits checkpoints and event logs to the foreign chain.
type Client interface {
	// SetCheckpoint relays a finalized block header and its quorum
	// certificate.
	SetCheckpoint(ctx context.Context, header *block.Header, qc *block.QuorumCert) error
	// SetLogs relays the event logs of a finalized block.
	SetLogs(ctx context.Context, blockID kaon.Bytes32, logs []*tx.Log) error
}

// NoopClient discards all relays. It is the default when no bridge is
// configured.
type NoopClient struct{}

func (NoopClient) SetCheckpoint(context.Context, *block.Header, *block.QuorumCert) error {
	return nil
}

func (NoopClient) SetLogs(context.Context, kaon.Bytes32, []*tx.Log) error {
	return nil
}
