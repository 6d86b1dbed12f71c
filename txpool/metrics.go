// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package txpool

import "github.com/kaonchain/kaon/metrics"

var (
	metricTxAdded   = metrics.LazyLoadCounterVec("txpool_tx_added_count", []string{"source"})
	metricTxWashed  = metrics.LazyLoadCounter("txpool_tx_washed_count")
	metricPoolGauge = metrics.LazyLoadGauge("txpool_current_tx_count")
)
