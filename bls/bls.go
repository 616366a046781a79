// Copyright (c) 2025 The Span developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package bls implements BLS signatures over BN254, with signatures in G1 and
// public keys in G2. Domain separation is carried by the hash-to-curve DST.
package bls

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/pkg/errors"

	"github.com/spanlabs/span/span"
)

const (
	// PublicKeyLength is the length of an uncompressed G2 public key.
	PublicKeyLength = 128
	// SignatureLength is the length of an uncompressed G1 signature.
	SignatureLength = 64
)

var (
	g2Gen    bn254.G2Affine
	g2GenNeg bn254.G2Affine
)

func init() {
	_, _, _, g2Gen = bn254.Generators()
	g2GenNeg.Neg(&g2Gen)
}

// SecretKey is a scalar of the fr field.
type SecretKey struct {
	s fr.Element
}

// PublicKey is a point of G2.
type PublicKey struct {
	p bn254.G2Affine
}

// Signature is a point of G1.
type Signature struct {
	p bn254.G1Affine
}

// GenerateKey creates a random secret key.
func GenerateKey() (*SecretKey, error) {
	var sk SecretKey
	if _, err := sk.s.SetRandom(); err != nil {
		return nil, errors.Wrap(err, "generate secret key")
	}
	return &sk, nil
}

// NewSecretKeyFromSeed derives a secret key from arbitrary seed bytes.
// The seed is hashed and reduced mod r, so any seed length works.
// Deterministic; meant for tests and tooling, not key ceremony.
func NewSecretKeyFromSeed(seed []byte) *SecretKey {
	var sk SecretKey
	digest := span.Blake2b([]byte("bls-seed"), seed)
	sk.s.SetBytes(digest.Bytes())
	if sk.s.IsZero() {
		sk.s.SetOne()
	}
	return &sk
}

// PublicKey returns the G2 public key matching the secret key.
func (sk *SecretKey) PublicKey() *PublicKey {
	var pk PublicKey
	var s big.Int
	sk.s.BigInt(&s)
	pk.p.ScalarMultiplicationBase(&s)
	return &pk
}

// Sign signs msg under the given domain separation tag.
func (sk *SecretKey) Sign(msg []byte, dst string) (*Signature, error) {
	h, err := bn254.HashToG1(msg, []byte(dst))
	if err != nil {
		return nil, errors.Wrap(err, "hash to curve")
	}
	var s big.Int
	sk.s.BigInt(&s)

	var sig Signature
	sig.p.ScalarMultiplication(&h, &s)
	return &sig, nil
}

// Verify checks sig over msg under the given domain separation tag.
// The check is e(sig, -g2) * e(H(msg), pk) == 1.
func Verify(pk *PublicKey, msg []byte, dst string, sig *Signature) (bool, error) {
	if pk == nil || sig == nil {
		return false, errors.New("nil key or signature")
	}
	h, err := bn254.HashToG1(msg, []byte(dst))
	if err != nil {
		return false, errors.Wrap(err, "hash to curve")
	}
	return bn254.PairingCheck(
		[]bn254.G1Affine{sig.p, h},
		[]bn254.G2Affine{g2GenNeg, pk.p},
	)
}

// AggregateSignatures sums the given signatures.
func AggregateSignatures(sigs ...*Signature) (*Signature, error) {
	if len(sigs) == 0 {
		return nil, errors.New("no signatures to aggregate")
	}
	var acc bn254.G1Jac
	acc.FromAffine(&sigs[0].p)
	for _, sig := range sigs[1:] {
		var p bn254.G1Jac
		p.FromAffine(&sig.p)
		acc.AddAssign(&p)
	}
	var out Signature
	out.p.FromJacobian(&acc)
	return &out, nil
}

// AggregatePublicKeys sums the given public keys.
func AggregatePublicKeys(pks ...*PublicKey) (*PublicKey, error) {
	if len(pks) == 0 {
		return nil, errors.New("no public keys to aggregate")
	}
	var acc bn254.G2Jac
	acc.FromAffine(&pks[0].p)
	for _, pk := range pks[1:] {
		var p bn254.G2Jac
		p.FromAffine(&pk.p)
		acc.AddAssign(&p)
	}
	var out PublicKey
	out.p.FromJacobian(&acc)
	return &out, nil
}

// Bytes returns the uncompressed encoding of the public key.
func (pk *PublicKey) Bytes() []byte {
	raw := pk.p.RawBytes()
	return raw[:]
}

// Equal reports whether two public keys are the same point.
func (pk *PublicKey) Equal(other *PublicKey) bool {
	return pk.p.Equal(&other.p)
}

// ParsePublicKey decodes a public key from compressed or uncompressed bytes.
// The point is subgroup-checked.
func ParsePublicKey(b []byte) (*PublicKey, error) {
	var pk PublicKey
	if _, err := pk.p.SetBytes(b); err != nil {
		return nil, errors.Wrap(err, "decode public key")
	}
	if pk.p.IsInfinity() {
		return nil, errors.New("public key is the point at infinity")
	}
	return &pk, nil
}

// Bytes returns the uncompressed encoding of the signature.
func (sig *Signature) Bytes() []byte {
	raw := sig.p.RawBytes()
	return raw[:]
}

// ParseSignature decodes a signature from compressed or uncompressed bytes.
func ParseSignature(b []byte) (*Signature, error) {
	var sig Signature
	if _, err := sig.p.SetBytes(b); err != nil {
		return nil, errors.Wrap(err, "decode signature")
	}
	return &sig, nil
}
