// Copyright (c) 2025 The Span developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package bls

import (
	"encoding/binary"
	"io"

	"github.com/spanlabs/span/span"
)

// PossessionMessage is what a candidate validator signs to prove possession
// of its BLS secret key: the public key bound to the staking wallet.
func PossessionMessage(pk *PublicKey, wallet span.Address) []byte {
	msg := make([]byte, 0, PublicKeyLength+span.AddressLength)
	msg = append(msg, pk.Bytes()...)
	return append(msg, wallet.Bytes()...)
}

// ProvePossession signs the possession message under the PoP domain.
func (sk *SecretKey) ProvePossession(wallet span.Address) (*Signature, error) {
	return sk.Sign(PossessionMessage(sk.PublicKey(), wallet), span.DomainProofOfPossession)
}

// VerifyPossession checks a proof-of-possession for the given key and wallet.
func VerifyPossession(pk *PublicKey, wallet span.Address, proof *Signature) (bool, error) {
	return Verify(pk, PossessionMessage(pk, wallet), span.DomainProofOfPossession, proof)
}

// AttestationDigest is the canonical statement co-signed by attestors. It
// deliberately contains only fields shared by all validators so that one
// aggregated signature can cover the whole participant set.
func AttestationDigest(networkID uint64, blockNumber uint64, bridgeRoot, stateRoot span.Bytes32, timestamp uint64) []byte {
	return span.Blake2bFn(func(w io.Writer) {
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], networkID)
		w.Write(b[:])
		binary.BigEndian.PutUint64(b[:], blockNumber)
		w.Write(b[:])
		w.Write(bridgeRoot.Bytes())
		w.Write(stateRoot.Bytes())
		binary.BigEndian.PutUint64(b[:], timestamp)
		w.Write(b[:])
	}).Bytes()
}

// AttestationMessage is the individually-signed form: the shared digest bound
// to the attestor's key and wallet.
func AttestationMessage(pk *PublicKey, wallet span.Address, digest []byte) []byte {
	msg := make([]byte, 0, PublicKeyLength+span.AddressLength+len(digest))
	msg = append(msg, pk.Bytes()...)
	msg = append(msg, wallet.Bytes()...)
	return append(msg, digest...)
}
