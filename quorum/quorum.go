// Copyright (c) 2025 The Span developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package quorum counts validator attestations over bridge roots and marks a
// root pre-confirmed once enough of the active set has signed it.
// Pre-confirmation is a fast economic signal only; it never touches the
// attestation counters that settlement maintains.
package quorum

import (
	"encoding/binary"
	"errors"

	pkgerrors "github.com/pkg/errors"

	"github.com/spanlabs/span/bls"
	"github.com/spanlabs/span/log"
	"github.com/spanlabs/span/metrics"
	"github.com/spanlabs/span/span"
	"github.com/spanlabs/span/staker"
	"github.com/spanlabs/span/state"
	"github.com/spanlabs/span/storage"
)

var (
	logger = log.WithContext("pkg", "quorum")

	metricAttestations = metrics.LazyLoadCounterVec("attestation_count", []string{"kind"})
	metricConfirmed    = metrics.LazyLoadCounter("root_confirmed_count")
)

var (
	// ErrCallerMismatch is returned when the submitter is not the attesting
	// validator.
	ErrCallerMismatch = errors.New("caller is not the attesting validator")

	// ErrValidatorNotActive is returned when the attesting validator is not
	// registered with Active status.
	ErrValidatorNotActive = errors.New("validator not active")

	// ErrInvalidSignature is returned when a BLS signature does not verify.
	ErrInvalidSignature = errors.New("invalid attestation signature")

	// ErrAlreadyAttested is returned when a validator already attested the
	// same key.
	ErrAlreadyAttested = errors.New("already attested")

	// ErrNoParticipants is returned for an aggregated submission with an
	// empty participant list.
	ErrNoParticipants = errors.New("no participants")

	// ErrPublicKeyMismatch is returned when the declared aggregated public
	// key does not equal the aggregate of the participants' registered keys.
	ErrPublicKeyMismatch = errors.New("aggregated public key mismatch")
)

var (
	slotAttested  = storage.NameToSlot("attested")
	slotPending   = storage.NameToSlot("preconfirmations")
	slotConfirmed = storage.NameToSlot("confirmed-roots")
)

// Key identifies one attestable statement: a bridge root observed on a
// network at a block height.
func Key(networkID, blockNumber uint64, bridgeRoot span.Bytes32) span.Bytes32 {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], networkID)
	binary.BigEndian.PutUint64(buf[8:], blockNumber)
	return span.Blake2b(buf[:8], bridgeRoot.Bytes(), buf[8:])
}

func rootKey(networkID uint64, bridgeRoot span.Bytes32) span.Bytes32 {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], networkID)
	return span.Blake2b(buf[:], bridgeRoot.Bytes())
}

func attestedKey(validator span.Address, key span.Bytes32) span.Bytes32 {
	return span.Blake2b(validator.Bytes(), key.Bytes())
}

// PreConfirmation is the per-key tally. Confirmed is write-once: it never
// resets even if the active set later grows past the recorded count.
type PreConfirmation struct {
	Count     uint64
	Confirmed bool
}

// ValidatorReader is the view of the stake ledger the engine needs.
type ValidatorReader interface {
	Get(wallet span.Address) (*staker.Validator, error)
	ActiveCount() (uint64, error)
}

// Engine is the attestation quorum engine for all networks sharing one state.
type Engine struct {
	context    *storage.Context
	attested   *storage.Mapping[span.Bytes32, bool]
	pending    *storage.Mapping[span.Bytes32, *PreConfirmation]
	confirmed  *storage.Mapping[span.Bytes32, bool]
	validators ValidatorReader
}

// New creates a quorum engine bound to addr in state, reading validator
// accounts through the given reader.
func New(addr span.Address, state *state.State, validators ValidatorReader) *Engine {
	context := storage.NewContext(addr, state)
	return &Engine{
		context:    context,
		attested:   storage.NewMapping[span.Bytes32, bool](context, slotAttested),
		pending:    storage.NewMapping[span.Bytes32, *PreConfirmation](context, slotPending),
		confirmed:  storage.NewMapping[span.Bytes32, bool](context, slotConfirmed),
		validators: validators,
	}
}

// Threshold returns the confirmation threshold for the given active
// validator count: ceil(0.67 x active).
func Threshold(activeCount uint64) uint64 {
	return (span.QuorumNumerator*activeCount + span.QuorumDenominator - 1) / span.QuorumDenominator
}

// IsConfirmed reports whether any block height confirmed bridgeRoot on
// networkID.
func (e *Engine) IsConfirmed(networkID uint64, bridgeRoot span.Bytes32) (bool, error) {
	ok, err := e.confirmed.Get(rootKey(networkID, bridgeRoot))
	if err != nil {
		return false, pkgerrors.Wrap(err, "failed to get confirmed root")
	}
	return ok, nil
}

// Get returns the tally for an attestation key.
func (e *Engine) Get(key span.Bytes32) (*PreConfirmation, error) {
	pc, err := e.pending.Get(key)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to get preconfirmation")
	}
	return pc, nil
}

// HasAttested reports whether validator already attested key.
func (e *Engine) HasAttested(validator span.Address, key span.Bytes32) (bool, error) {
	return e.attested.Has(attestedKey(validator, key))
}

func (e *Engine) activeValidator(wallet span.Address) (*staker.Validator, error) {
	v, err := e.validators.Get(wallet)
	if err != nil {
		return nil, err
	}
	if v == nil || v.Status != staker.StatusActive {
		return nil, ErrValidatorNotActive
	}
	return v, nil
}

// tally adds votes votes to the key's count and flips Confirmed once the
// count reaches the threshold.
func (e *Engine) tally(networkID, blockNumber uint64, bridgeRoot span.Bytes32, key span.Bytes32, votes uint64) error {
	pc, err := e.pending.Get(key)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to get preconfirmation")
	}
	pc.Count += votes

	if !pc.Confirmed {
		active, err := e.validators.ActiveCount()
		if err != nil {
			return err
		}
		if threshold := Threshold(active); threshold > 0 && pc.Count >= threshold {
			pc.Confirmed = true
			if err := e.confirmed.Set(rootKey(networkID, bridgeRoot), true); err != nil {
				return pkgerrors.Wrap(err, "failed to set confirmed root")
			}
			metricConfirmed().Add(1)
			logger.Info("bridge root confirmed",
				"network", networkID, "block", blockNumber, "root", bridgeRoot, "count", pc.Count)
		}
	}
	return e.pending.Set(key, pc)
}

// SubmitAttestation records a single validator's signature over a bridge
// root. The caller must be the attesting validator, the validator must be
// Active, and the signature must verify over the canonical attestation
// message under the validator's registered key.
func (e *Engine) SubmitAttestation(
	caller span.Address,
	networkID, blockNumber uint64,
	bridgeRoot, stateRoot span.Bytes32,
	timestamp uint64,
	validator span.Address,
	signature []byte,
) error {
	if caller != validator {
		return ErrCallerMismatch
	}
	v, err := e.activeValidator(validator)
	if err != nil {
		return err
	}

	key := Key(networkID, blockNumber, bridgeRoot)
	seen, err := e.HasAttested(validator, key)
	if err != nil {
		return err
	}
	if seen {
		return ErrAlreadyAttested
	}

	pk, err := bls.ParsePublicKey(v.PublicKey)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to parse registered key")
	}
	sig, err := bls.ParseSignature(signature)
	if err != nil {
		return pkgerrors.Wrap(ErrInvalidSignature, err.Error())
	}
	digest := bls.AttestationDigest(networkID, blockNumber, bridgeRoot, stateRoot, timestamp)
	ok, err := bls.Verify(pk, bls.AttestationMessage(pk, validator, digest), span.DomainAttestation, sig)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to verify attestation")
	}
	if !ok {
		return ErrInvalidSignature
	}

	if err := e.attested.Set(attestedKey(validator, key), true); err != nil {
		return pkgerrors.Wrap(err, "failed to set attested")
	}

	metricAttestations().AddWithLabel(1, map[string]string{"kind": "single"})
	logger.Debug("attestation recorded",
		"network", networkID, "block", blockNumber, "root", bridgeRoot, "validator", validator)
	return e.tally(networkID, blockNumber, bridgeRoot, key, 1)
}

// SubmitAggregated records one aggregated signature on behalf of a set of
// participants. Every participant must be Active and must not have attested
// the key yet; all checks run before any state is written, so the submission
// applies for all participants or none. The declared aggregated public key
// must equal the aggregate of the participants' registered keys, and the
// aggregated signature must verify over the attestation digest.
func (e *Engine) SubmitAggregated(
	networkID, blockNumber uint64,
	bridgeRoot, stateRoot span.Bytes32,
	timestamp uint64,
	participants []span.Address,
	aggregatedSignature, aggregatedPublicKey []byte,
) error {
	if len(participants) == 0 {
		return ErrNoParticipants
	}

	key := Key(networkID, blockNumber, bridgeRoot)
	seen := make(map[span.Address]bool, len(participants))
	keys := make([]*bls.PublicKey, 0, len(participants))
	for _, participant := range participants {
		if seen[participant] {
			return ErrAlreadyAttested
		}
		seen[participant] = true

		v, err := e.activeValidator(participant)
		if err != nil {
			return err
		}
		attested, err := e.HasAttested(participant, key)
		if err != nil {
			return err
		}
		if attested {
			return ErrAlreadyAttested
		}
		pk, err := bls.ParsePublicKey(v.PublicKey)
		if err != nil {
			return pkgerrors.Wrap(err, "failed to parse registered key")
		}
		keys = append(keys, pk)
	}

	declared, err := bls.ParsePublicKey(aggregatedPublicKey)
	if err != nil {
		return pkgerrors.Wrap(ErrPublicKeyMismatch, err.Error())
	}
	computed, err := bls.AggregatePublicKeys(keys...)
	if err != nil {
		return err
	}
	if !computed.Equal(declared) {
		return ErrPublicKeyMismatch
	}

	sig, err := bls.ParseSignature(aggregatedSignature)
	if err != nil {
		return pkgerrors.Wrap(ErrInvalidSignature, err.Error())
	}
	digest := bls.AttestationDigest(networkID, blockNumber, bridgeRoot, stateRoot, timestamp)
	ok, err := bls.Verify(computed, digest, span.DomainAttestation, sig)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to verify aggregated attestation")
	}
	if !ok {
		return ErrInvalidSignature
	}

	for _, participant := range participants {
		if err := e.attested.Set(attestedKey(participant, key), true); err != nil {
			return pkgerrors.Wrap(err, "failed to set attested")
		}
	}

	metricAttestations().AddWithLabel(int64(len(participants)), map[string]string{"kind": "aggregated"})
	logger.Debug("aggregated attestation recorded",
		"network", networkID, "block", blockNumber, "root", bridgeRoot, "participants", len(participants))
	return e.tally(networkID, blockNumber, bridgeRoot, key, uint64(len(participants)))
}
