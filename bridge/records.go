// Copyright (c) 2025 The Span developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package bridge

import (
	"encoding/binary"
	"math/big"

	"github.com/spanlabs/span/span"
)

func uint64Word(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

func amountWord(v *big.Int) []byte {
	return span.BytesToBytes32(v.Bytes()).Bytes()
}

// DepositRecord describes funds locked on a source network for release on a
// destination network. Immutable once inserted into the deposit tree.
type DepositRecord struct {
	Amount             *big.Int     `json:"amount"`
	AssetID            span.Bytes32 `json:"assetId"`
	Recipient          span.Address `json:"recipient"`
	DestinationNetwork uint64       `json:"destinationNetwork"`
}

// Leaf hashes the record, together with the source network and the index it
// was assigned, into a deposit tree leaf.
func (r *DepositRecord) Leaf(sourceNetwork, index uint64) span.Bytes32 {
	return span.Keccak256(
		uint64Word(sourceNetwork),
		uint64Word(index),
		amountWord(r.Amount),
		r.AssetID.Bytes(),
		r.Recipient.Bytes(),
		uint64Word(r.DestinationNetwork),
	)
}

// ClaimRecord describes the release of a deposit on its destination network.
type ClaimRecord struct {
	SourceDepositIndex uint64       `json:"sourceDepositIndex"`
	SourceNetwork      uint64       `json:"sourceNetwork"`
	SourceRoot         span.Bytes32 `json:"sourceRoot"`
	Claimer            span.Address `json:"claimer"`
	Recipient          span.Address `json:"recipient"`
	Amount             *big.Int     `json:"amount"`
	AssetID            span.Bytes32 `json:"assetId"`
	Timestamp          uint64       `json:"timestamp"`
	DestinationNetwork uint64       `json:"destinationNetwork"`
}

// Leaf hashes the record into a claim tree leaf.
func (r *ClaimRecord) Leaf() span.Bytes32 {
	return span.Keccak256(
		uint64Word(r.SourceDepositIndex),
		uint64Word(r.SourceNetwork),
		r.SourceRoot.Bytes(),
		r.Claimer.Bytes(),
		r.Recipient.Bytes(),
		amountWord(r.Amount),
		r.AssetID.Bytes(),
		uint64Word(r.Timestamp),
		uint64Word(r.DestinationNetwork),
	)
}

// Deposit reconstructs the deposit record this claim releases. Its leaf must
// prove membership under SourceRoot for the claim to be valid.
func (r *ClaimRecord) Deposit() *DepositRecord {
	return &DepositRecord{
		Amount:             r.Amount,
		AssetID:            r.AssetID,
		Recipient:          r.Recipient,
		DestinationNetwork: r.DestinationNetwork,
	}
}

// ClaimedKey identifies a deposit globally. At most one claim may ever be
// recorded per key.
func ClaimedKey(sourceNetwork, sourceDepositIndex uint64) span.Bytes32 {
	return span.Keccak256(uint64Word(sourceNetwork), uint64Word(sourceDepositIndex))
}
