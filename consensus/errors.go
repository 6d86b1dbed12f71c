// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package consensus

// consensusError is a recoverable protocol disagreement: the offending
// message is dropped and the round machinery carries on.
type consensusError string

func (err consensusError) Error() string {
	return string(err)
}

// IsCritical reports whether the error stops the engine. Anything that is
// not a protocol disagreement (storage faults above all) is critical,
// since state consistency cannot be guaranteed past it.
func IsCritical(err error) bool {
	_, ok := err.(consensusError)
	return !ok
}
