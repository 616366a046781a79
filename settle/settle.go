// Copyright (c) 2025 The Span developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package settle applies externally proven attestation verdicts: equivocators
// are slashed, honest attestors earn their proof reward, and the epoch
// counter advances. It is the only caller of the stake ledger's Slash and the
// only writer of attestation counters.
package settle

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	pkgerrors "github.com/pkg/errors"

	"github.com/spanlabs/span/log"
	"github.com/spanlabs/span/metrics"
	"github.com/spanlabs/span/span"
	"github.com/spanlabs/span/staker"
	"github.com/spanlabs/span/state"
	"github.com/spanlabs/span/storage"
)

var (
	logger = log.WithContext("pkg", "settle")

	metricFinalized = metrics.LazyLoadCounter("settlement_finalized_count")
	metricSlashed   = metrics.LazyLoadCounter("settlement_slash_count")
)

var (
	// ErrProofRejected is returned when the external verifier rejects the
	// settlement proof.
	ErrProofRejected = errors.New("settlement proof rejected")

	// ErrBadPublicValues is returned when the proof's public values cannot
	// be decoded.
	ErrBadPublicValues = errors.New("malformed public values")
)

// ProofVerifier is the boundary to the external proving system. It checks
// proof against publicValues under the given verification key and returns a
// non-nil error on any mismatch.
type ProofVerifier interface {
	Verify(verifyingKey span.Bytes32, publicValues, proof []byte) error
}

// VerifierFunc adapts a plain function to a ProofVerifier.
type VerifierFunc func(verifyingKey span.Bytes32, publicValues, proof []byte) error

func (f VerifierFunc) Verify(verifyingKey span.Bytes32, publicValues, proof []byte) error {
	return f(verifyingKey, publicValues, proof)
}

// Outcome is the decoded public-value payload of a settlement proof.
type Outcome struct {
	NetworkID       uint64         `json:"networkID"`
	Attestors       []span.Address `json:"attestors"`
	Equivocators    []span.Address `json:"equivocators"`
	ValidBridgeRoot span.Bytes32   `json:"validBridgeRoot"`
}

var outcomeArgs abi.Arguments

func init() {
	uint64Ty, _ := abi.NewType("uint64", "", nil)
	addrSliceTy, _ := abi.NewType("address[]", "", nil)
	bytes32Ty, _ := abi.NewType("bytes32", "", nil)
	outcomeArgs = abi.Arguments{
		{Name: "networkId", Type: uint64Ty},
		{Name: "attestors", Type: addrSliceTy},
		{Name: "equivocators", Type: addrSliceTy},
		{Name: "validBridgeRoot", Type: bytes32Ty},
	}
}

// EncodePublicValues ABI encodes an outcome, the inverse of DecodePublicValues.
func EncodePublicValues(o *Outcome) ([]byte, error) {
	attestors := make([]common.Address, len(o.Attestors))
	for i, a := range o.Attestors {
		attestors[i] = common.Address(a)
	}
	equivocators := make([]common.Address, len(o.Equivocators))
	for i, a := range o.Equivocators {
		equivocators[i] = common.Address(a)
	}
	return outcomeArgs.Pack(o.NetworkID, attestors, equivocators, [32]byte(o.ValidBridgeRoot))
}

// DecodePublicValues decodes the ABI coded public values of a proof.
func DecodePublicValues(publicValues []byte) (*Outcome, error) {
	values, err := outcomeArgs.Unpack(publicValues)
	if err != nil {
		return nil, pkgerrors.Wrap(ErrBadPublicValues, err.Error())
	}
	networkID, ok := values[0].(uint64)
	if !ok {
		return nil, ErrBadPublicValues
	}
	attestors, ok := values[1].([]common.Address)
	if !ok {
		return nil, ErrBadPublicValues
	}
	equivocators, ok := values[2].([]common.Address)
	if !ok {
		return nil, ErrBadPublicValues
	}
	root, ok := values[3].([32]byte)
	if !ok {
		return nil, ErrBadPublicValues
	}

	outcome := &Outcome{
		NetworkID:       networkID,
		ValidBridgeRoot: span.Bytes32(root),
	}
	for _, a := range attestors {
		outcome.Attestors = append(outcome.Attestors, span.Address(a))
	}
	for _, a := range equivocators {
		outcome.Equivocators = append(outcome.Equivocators, span.Address(a))
	}
	return outcome, nil
}

var slotEpoch = storage.NameToSlot("epoch")

// Finalizer verifies settlement proofs and applies their verdicts to the
// stake ledger.
type Finalizer struct {
	epoch        *storage.Uint256
	ledger       *staker.Staker
	verifier     ProofVerifier
	verifyingKey span.Bytes32
}

// New creates a finalizer bound to addr in state, applying verdicts to
// ledger. Proofs are checked by verifier under the fixed verifyingKey.
func New(addr span.Address, state *state.State, ledger *staker.Staker, verifier ProofVerifier, verifyingKey span.Bytes32) *Finalizer {
	context := storage.NewContext(addr, state)
	return &Finalizer{
		epoch:        storage.NewUint256(context, slotEpoch),
		ledger:       ledger,
		verifier:     verifier,
		verifyingKey: verifyingKey,
	}
}

// Epoch returns the current settlement epoch.
func (f *Finalizer) Epoch() (uint64, error) {
	epoch, err := f.epoch.Get()
	if err != nil {
		return 0, err
	}
	return epoch.Uint64(), nil
}

// Finalize verifies one settlement proof and applies its outcome: each
// equivocator is slashed at its pinned config's penalty (capped at its
// balance) and charged an invalid attestation; each honest attestor earns a
// valid attestation and its pinned config's proof reward. The epoch advances
// by one.
func (f *Finalizer) Finalize(publicValues, proof []byte, now uint64) (*Outcome, error) {
	if err := f.verifier.Verify(f.verifyingKey, publicValues, proof); err != nil {
		return nil, pkgerrors.Wrap(ErrProofRejected, err.Error())
	}
	outcome, err := DecodePublicValues(publicValues)
	if err != nil {
		return nil, err
	}

	for _, wallet := range outcome.Equivocators {
		if err := f.punish(wallet, now); err != nil {
			return nil, err
		}
	}
	for _, wallet := range outcome.Attestors {
		if err := f.reward(wallet); err != nil {
			return nil, err
		}
	}

	if err := f.epoch.Add(big.NewInt(1)); err != nil {
		return nil, err
	}

	metricFinalized().Add(1)
	epoch, err := f.Epoch()
	if err != nil {
		return nil, err
	}
	logger.Info("settlement finalized",
		"network", outcome.NetworkID, "root", outcome.ValidBridgeRoot,
		"attestors", len(outcome.Attestors), "equivocators", len(outcome.Equivocators), "epoch", epoch)
	return outcome, nil
}

func (f *Finalizer) punish(wallet span.Address, now uint64) error {
	v, err := f.ledger.Get(wallet)
	if err != nil {
		return err
	}
	if v == nil {
		// already exited, nothing left to take
		logger.Warn("equivocator no longer registered", "wallet", wallet)
		return nil
	}
	if err := f.ledger.RecordAttestationResult(wallet, false); err != nil {
		return err
	}

	cfg, err := f.ledger.GetConfig(v.ConfigHash)
	if err != nil {
		return err
	}
	penalty := new(big.Int).Set(cfg.IncorrectProofPenalty)
	if balance := v.Balance(); penalty.Cmp(balance) > 0 {
		penalty = balance
	}
	if penalty.Sign() == 0 {
		return nil
	}
	if _, _, err := f.ledger.Slash(wallet, penalty, now); err != nil {
		return err
	}
	metricSlashed().Add(1)
	return nil
}

func (f *Finalizer) reward(wallet span.Address) error {
	v, err := f.ledger.Get(wallet)
	if err != nil {
		return err
	}
	if v == nil {
		logger.Warn("attestor no longer registered", "wallet", wallet)
		return nil
	}
	if err := f.ledger.RecordAttestationResult(wallet, true); err != nil {
		return err
	}
	cfg, err := f.ledger.GetConfig(v.ConfigHash)
	if err != nil {
		return err
	}
	return f.ledger.CreditReward(wallet, cfg.CorrectProofReward)
}
