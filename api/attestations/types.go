// Copyright (c) 2025 The Span developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package attestations

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/spanlabs/span/quorum"
	"github.com/spanlabs/span/span"
)

// SubmitRequest carries a single validator attestation.
type SubmitRequest struct {
	Caller      span.Address  `json:"caller"`
	NetworkID   uint64        `json:"networkID"`
	BlockNumber uint64        `json:"blockNumber"`
	BridgeRoot  span.Bytes32  `json:"bridgeRoot"`
	StateRoot   span.Bytes32  `json:"stateRoot"`
	Timestamp   uint64        `json:"timestamp"`
	Validator   span.Address  `json:"validator"`
	Signature   hexutil.Bytes `json:"signature"`
}

// AggregatedRequest carries an aggregated attestation for a participant set.
type AggregatedRequest struct {
	NetworkID           uint64         `json:"networkID"`
	BlockNumber         uint64         `json:"blockNumber"`
	BridgeRoot          span.Bytes32   `json:"bridgeRoot"`
	StateRoot           span.Bytes32   `json:"stateRoot"`
	Timestamp           uint64         `json:"timestamp"`
	Participants        []span.Address `json:"participants"`
	AggregatedSignature hexutil.Bytes  `json:"aggregatedSignature"`
	AggregatedPublicKey hexutil.Bytes  `json:"aggregatedPublicKey"`
}

// Tally reports the attestation count for a key and whether it reached quorum.
type Tally struct {
	Count     uint64 `json:"count"`
	Confirmed bool   `json:"confirmed"`
}

func convertTally(pc *quorum.PreConfirmation) *Tally {
	return &Tally{Count: pc.Count, Confirmed: pc.Confirmed}
}

func parseUint(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}
