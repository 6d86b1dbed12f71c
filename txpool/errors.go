// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package txpool

import "github.com/pkg/errors"

// Admission rejection reasons. Callers can classify them via the Is
// helpers below.
var (
	errKnownTx             = errors.New("known transaction")
	errTooLarge            = errors.New("tx too large")
	errWrongChain          = errors.New("chain id mismatch")
	errGasLimitExceeded    = errors.New("gas exceeds tx gas ceiling")
	errIntrinsicGasExceeds = errors.New("intrinsic gas exceeds provided gas")
	errNonceTooLow         = errors.New("nonce too low")
	errUnderpriced         = errors.New("replacement underpriced")
	errPoolFull            = errors.New("pool is full")
	errQuotaExceeded       = errors.New("account quota exceeded")
	errInsufficientBalance = errors.New("insufficient balance for pending cost")
)

func IsErrKnownTx(err error) bool {
	return errors.Cause(err) == errKnownTx
}

func IsErrTooLarge(err error) bool {
	return errors.Cause(err) == errTooLarge
}

func IsErrWrongChain(err error) bool {
	return errors.Cause(err) == errWrongChain
}

func IsErrNonceTooLow(err error) bool {
	return errors.Cause(err) == errNonceTooLow
}

func IsErrUnderpriced(err error) bool {
	return errors.Cause(err) == errUnderpriced
}

func IsErrPoolFull(err error) bool {
	return errors.Cause(err) == errPoolFull
}
