// Copyright (c) 2025 The Span developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package staker

import (
	"math/big"

	"github.com/pkg/errors"

	"github.com/spanlabs/span/span"
	"github.com/spanlabs/span/state"
	"github.com/spanlabs/span/storage"
)

var (
	slotValidators    = storage.NameToSlot("validators")
	slotConfigs       = storage.NameToSlot("stake-configs")
	slotCurrentConfig = storage.NameToSlot("stake-config-current")
	// custody reserves, per staking asset
	slotPrincipalReserve = storage.NameToSlot("reserve-principal")
	slotRewardReserve    = storage.NameToSlot("reserve-reward")
	slotSlashedReserve   = storage.NameToSlot("reserve-slashed")
	// aggregates
	slotTotalStaked = storage.NameToSlot("total-staked")
	slotActiveCount = storage.NameToSlot("active-count")
	// validator registry linked list
	slotRegistryHead  = storage.NameToSlot("registry-head")
	slotRegistryTail  = storage.NameToSlot("registry-tail")
	slotRegistryCount = storage.NameToSlot("registry-count")
)

// ledgerStorage is the root storage of the stake ledger.
type ledgerStorage struct {
	context    *storage.Context
	validators *storage.Mapping[span.Address, *Validator]
	configs    *storage.Mapping[span.Bytes32, *Config]
	current    *storage.Bytes32

	principalReserve *storage.Mapping[span.Bytes32, *big.Int]
	rewardReserve    *storage.Mapping[span.Bytes32, *big.Int]
	slashedReserve   *storage.Mapping[span.Bytes32, *big.Int]

	totalStaked *storage.Uint256
	activeCount *storage.Uint256
}

func newLedgerStorage(addr span.Address, state *state.State) *ledgerStorage {
	context := storage.NewContext(addr, state)
	return &ledgerStorage{
		context:          context,
		validators:       storage.NewMapping[span.Address, *Validator](context, slotValidators),
		configs:          storage.NewMapping[span.Bytes32, *Config](context, slotConfigs),
		current:          storage.NewBytes32(context, slotCurrentConfig),
		principalReserve: storage.NewMapping[span.Bytes32, *big.Int](context, slotPrincipalReserve),
		rewardReserve:    storage.NewMapping[span.Bytes32, *big.Int](context, slotRewardReserve),
		slashedReserve:   storage.NewMapping[span.Bytes32, *big.Int](context, slotSlashedReserve),
		totalStaked:      storage.NewUint256(context, slotTotalStaked),
		activeCount:      storage.NewUint256(context, slotActiveCount),
	}
}

func (s *ledgerStorage) GetValidator(wallet span.Address) (*Validator, error) {
	v, err := s.validators.Get(wallet)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get validator")
	}
	if v.Stake == nil {
		v.Stake = new(big.Int)
	}
	if v.PendingReward == nil {
		v.PendingReward = new(big.Int)
	}
	if v.UnstakeAmount == nil {
		v.UnstakeAmount = new(big.Int)
	}
	return v, nil
}

func (s *ledgerStorage) SetValidator(wallet span.Address, entry *Validator) error {
	if err := s.validators.Set(wallet, entry); err != nil {
		return errors.Wrap(err, "failed to set validator")
	}
	return nil
}

func (s *ledgerStorage) DeleteValidator(wallet span.Address) error {
	if err := s.validators.Delete(wallet); err != nil {
		return errors.Wrap(err, "failed to delete validator")
	}
	return nil
}

func (s *ledgerStorage) GetConfig(hash span.Bytes32) (*Config, error) {
	c, err := s.configs.Get(hash)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get config")
	}
	if c.IsEmpty() {
		return nil, ErrConfigUnknown
	}
	return c, nil
}

func (s *ledgerStorage) SetConfig(c *Config) (span.Bytes32, error) {
	hash := c.Hash()
	if err := s.configs.Set(hash, c); err != nil {
		return span.Bytes32{}, errors.Wrap(err, "failed to set config")
	}
	return hash, nil
}

// CurrentConfig returns the active configuration version and its hash.
func (s *ledgerStorage) CurrentConfig() (*Config, span.Bytes32, error) {
	hash, err := s.current.Get()
	if err != nil {
		return nil, span.Bytes32{}, errors.Wrap(err, "failed to get current config hash")
	}
	c, err := s.GetConfig(hash)
	if err != nil {
		return nil, span.Bytes32{}, err
	}
	return c, hash, nil
}

func (s *ledgerStorage) reserve(m *storage.Mapping[span.Bytes32, *big.Int], asset span.Bytes32) (*big.Int, error) {
	balance, err := m.Get(asset)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get reserve")
	}
	if balance == nil {
		balance = new(big.Int)
	}
	return balance, nil
}

func (s *ledgerStorage) addReserve(m *storage.Mapping[span.Bytes32, *big.Int], asset span.Bytes32, amount *big.Int) error {
	balance, err := s.reserve(m, asset)
	if err != nil {
		return err
	}
	return m.Set(asset, balance.Add(balance, amount))
}

func (s *ledgerStorage) subReserve(m *storage.Mapping[span.Bytes32, *big.Int], asset span.Bytes32, amount *big.Int) error {
	balance, err := s.reserve(m, asset)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return errors.New("reserve underflow")
	}
	return m.Set(asset, balance.Sub(balance, amount))
}
