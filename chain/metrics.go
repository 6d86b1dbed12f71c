// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package chain

import "github.com/kaonchain/kaon/metrics"

var (
	metricBlockCommitted = metrics.LazyLoadCounter("chain_block_committed_count")
	metricBestNumber     = metrics.LazyLoadGauge("chain_best_block_number")
)
