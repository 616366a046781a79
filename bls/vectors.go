// Copyright (c) 2025 The Span developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package bls

import (
	"encoding/json"
	"math/big"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/spanlabs/span/span"
)

// TestVector is one entry of the collaborator-produced BLS fixture file.
// Group elements are given as big-endian coordinate words: G2 public keys as
// [x_re, x_im, y_re, y_im], G1 points as [x, y].
type TestVector struct {
	PrivateKey        string    `json:"private_key"`
	PublicKey         [4]string `json:"public_key"`
	ProofOfPossession [2]string `json:"proof_of_possession"`
	WalletAddress     string    `json:"wallet_address"`
	Domain            string    `json:"domain"`
	MessageHash       [2]string `json:"message_hash"`
}

// LoadVectors reads a fixture file holding a JSON array of test vectors.
func LoadVectors(path string) ([]TestVector, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read vector file")
	}
	var vectors []TestVector
	if err := json.Unmarshal(raw, &vectors); err != nil {
		return nil, errors.Wrap(err, "decode vector file")
	}
	return vectors, nil
}

func parseWord(s string) (*big.Int, error) {
	s = strings.TrimPrefix(s, "0x")
	v, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return nil, errors.Errorf("malformed hex word %q", s)
	}
	return v, nil
}

// DecodePublicKey assembles the G2 point from the vector's coordinate words.
func (v *TestVector) DecodePublicKey() (*PublicKey, error) {
	var pk PublicKey
	words := make([]*big.Int, 4)
	for i, w := range v.PublicKey {
		parsed, err := parseWord(w)
		if err != nil {
			return nil, err
		}
		words[i] = parsed
	}
	pk.p.X.A0.SetBigInt(words[0])
	pk.p.X.A1.SetBigInt(words[1])
	pk.p.Y.A0.SetBigInt(words[2])
	pk.p.Y.A1.SetBigInt(words[3])
	if !pk.p.IsOnCurve() {
		return nil, errors.New("public key not on curve")
	}
	return &pk, nil
}

// DecodeProof assembles the G1 proof-of-possession point.
func (v *TestVector) DecodeProof() (*Signature, error) {
	var sig Signature
	x, err := parseWord(v.ProofOfPossession[0])
	if err != nil {
		return nil, err
	}
	y, err := parseWord(v.ProofOfPossession[1])
	if err != nil {
		return nil, err
	}
	sig.p.X.SetBigInt(x)
	sig.p.Y.SetBigInt(y)
	if !sig.p.IsOnCurve() {
		return nil, errors.New("proof not on curve")
	}
	return &sig, nil
}

// DecodeWallet parses the staking wallet address.
func (v *TestVector) DecodeWallet() (span.Address, error) {
	addr, err := span.ParseAddress(v.WalletAddress)
	if err != nil {
		return span.Address{}, errors.Wrap(err, "wallet address")
	}
	return *addr, nil
}
