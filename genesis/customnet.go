// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package genesis

import (
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/kaonchain/kaon/kaon"
	"github.com/kaonchain/kaon/state"
	"github.com/kaonchain/kaon/validator"
)

// CustomGenesis is a user supplied network launch config.
type CustomGenesis struct {
	Name       string      `yaml:"name"`
	ChainID    uint64      `yaml:"chainId"`
	LaunchTime uint64      `yaml:"launchTime"`
	GasLimit   uint64      `yaml:"gasLimit"`
	Accounts   []Account   `yaml:"accounts"`
	Validators []Authority `yaml:"validators"`
}

// Account seeds an account into the genesis state.
type Account struct {
	Address string            `yaml:"address"`
	Balance string            `yaml:"balance"`
	Nonce   uint64            `yaml:"nonce"`
	Code    string            `yaml:"code"`
	Storage map[string]string `yaml:"storage"`
}

// Authority is a launch validator entry.
type Authority struct {
	Address string `yaml:"address"`
	Weight  uint64 `yaml:"weight"`
}

// LoadCustomGenesis decodes a YAML launch config. Unknown fields are
// rejected to catch typos early.
func LoadCustomGenesis(r io.Reader) (*CustomGenesis, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var cfg CustomGenesis
	if err := dec.Decode(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode genesis config")
	}
	return &cfg, nil
}

// NewCustomNet creates a genesis from a user supplied config.
func NewCustomNet(cfg *CustomGenesis) (*Genesis, error) {
	if cfg.ChainID == 0 {
		return nil, errors.New("chainId must not be 0")
	}
	if cfg.GasLimit < kaon.MinGasLimit {
		return nil, errors.Errorf("gasLimit must be at least %d", kaon.MinGasLimit)
	}
	if len(cfg.Validators) == 0 {
		return nil, errors.New("at least one validator required")
	}

	validators := make([]validator.Validator, 0, len(cfg.Validators))
	for _, v := range cfg.Validators {
		addr, err := kaon.ParseAddress(v.Address)
		if err != nil {
			return nil, errors.Wrapf(err, "validator %q", v.Address)
		}
		validators = append(validators, validator.Validator{Address: addr, Weight: v.Weight})
	}

	accounts := cfg.Accounts
	builder := new(Builder).
		ChainID(cfg.ChainID).
		Timestamp(cfg.LaunchTime).
		GasLimit(cfg.GasLimit).
		State(func(st *state.State) error {
			for _, acc := range accounts {
				if err := seedAccount(st, &acc); err != nil {
					return errors.Wrapf(err, "account %q", acc.Address)
				}
			}
			return nil
		})

	name := cfg.Name
	if name == "" {
		name = "customnet"
	}
	return newGenesis(builder, name, validators)
}

func seedAccount(st *state.State, acc *Account) error {
	addr, err := kaon.ParseAddress(acc.Address)
	if err != nil {
		return err
	}
	if acc.Balance != "" {
		balance, ok := math.ParseBig256(acc.Balance)
		if !ok || balance.Sign() < 0 {
			return errors.Errorf("invalid balance %q", acc.Balance)
		}
		if err := st.SetBalance(addr, balance); err != nil {
			return err
		}
	} else if err := st.SetBalance(addr, new(big.Int)); err != nil {
		return err
	}
	if acc.Nonce > 0 {
		if err := st.SetNonce(addr, acc.Nonce); err != nil {
			return err
		}
	}
	if acc.Code != "" {
		code, err := hexutil.Decode(acc.Code)
		if err != nil {
			return errors.Wrap(err, "invalid code")
		}
		if err := st.SetCode(addr, code); err != nil {
			return err
		}
	}
	for k, v := range acc.Storage {
		key, err := kaon.ParseBytes32(k)
		if err != nil {
			return errors.Wrapf(err, "storage key %q", k)
		}
		value, err := kaon.ParseBytes32(v)
		if err != nil {
			return errors.Wrapf(err, "storage value %q", v)
		}
		st.SetStorage(addr, key, value)
	}
	return nil
}
