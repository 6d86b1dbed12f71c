// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package consensus

import "github.com/kaonchain/kaon/metrics"

var (
	metricCommitCount    = metrics.LazyLoadCounter("consensus_block_commit_count")
	metricRoundGauge     = metrics.LazyLoadGauge("consensus_current_round")
	metricCommitDuration = metrics.LazyLoadHistogram("consensus_commit_duration_ms", metrics.Bucket10s)
)
