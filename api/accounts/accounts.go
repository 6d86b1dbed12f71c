// Copyright (c) 2025 The Kaon developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package accounts

import (
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/kaonchain/kaon/api/utils"
	"github.com/kaonchain/kaon/chain"
	"github.com/kaonchain/kaon/kaon"
	"github.com/kaonchain/kaon/runtime"
	"github.com/kaonchain/kaon/state"
	"github.com/kaonchain/kaon/xenv"
)

type Accounts struct {
	repo         *chain.Repository
	stater       *state.Stater
	callGasLimit uint64
}

func New(repo *chain.Repository, stater *state.Stater, callGasLimit uint64) *Accounts {
	return &Accounts{repo, stater, callGasLimit}
}

// Account is the JSON rendering of an account's essentials.
type Account struct {
	Balance string `json:"balance"`
	Nonce   uint64 `json:"nonce"`
	HasCode bool   `json:"hasCode"`
}

// GetCodeResult wraps contract code.
type GetCodeResult struct {
	Code hexutil.Bytes `json:"code"`
}

// GetStorageResult wraps one storage slot.
type GetStorageResult struct {
	Value kaon.Bytes32 `json:"value"`
}

// CallData is the request body of a simulated call.
type CallData struct {
	Value    *math.HexOrDecimal256 `json:"value"`
	Data     hexutil.Bytes         `json:"data"`
	Gas      uint64                `json:"gas"`
	GasPrice *math.HexOrDecimal256 `json:"gasPrice"`
	Caller   *kaon.Address         `json:"caller"`
}

// CallResult is the outcome of a simulated call.
type CallResult struct {
	Data     hexutil.Bytes `json:"data"`
	GasUsed  uint64        `json:"gasUsed"`
	Reverted bool          `json:"reverted"`
	VMError  string        `json:"vmError"`
}

func (a *Accounts) handleGetAccount(w http.ResponseWriter, req *http.Request) error {
	addr, err := kaon.ParseAddress(mux.Vars(req)["address"])
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "address"))
	}
	st, _, err := a.stateAt(req)
	if err != nil {
		return err
	}

	balance, err := st.GetBalance(addr)
	if err != nil {
		return err
	}
	nonce, err := st.GetNonce(addr)
	if err != nil {
		return err
	}
	code, err := st.GetCode(addr)
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, &Account{
		Balance: balance.String(),
		Nonce:   nonce,
		HasCode: len(code) > 0,
	})
}

func (a *Accounts) handleGetCode(w http.ResponseWriter, req *http.Request) error {
	addr, err := kaon.ParseAddress(mux.Vars(req)["address"])
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "address"))
	}
	st, _, err := a.stateAt(req)
	if err != nil {
		return err
	}
	code, err := st.GetCode(addr)
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, &GetCodeResult{Code: code})
}

func (a *Accounts) handleGetStorage(w http.ResponseWriter, req *http.Request) error {
	addr, err := kaon.ParseAddress(mux.Vars(req)["address"])
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "address"))
	}
	key, err := kaon.ParseBytes32(mux.Vars(req)["key"])
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "key"))
	}
	st, _, err := a.stateAt(req)
	if err != nil {
		return err
	}
	value, err := st.GetStorage(addr, key)
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, &GetStorageResult{Value: value})
}

// handleCallContract simulates a call against a historical state. The
// state overlay is discarded afterwards, so this doubles as gas
// estimation.
func (a *Accounts) handleCallContract(w http.ResponseWriter, req *http.Request) error {
	var to *kaon.Address
	if addrStr, ok := mux.Vars(req)["address"]; ok {
		addr, err := kaon.ParseAddress(addrStr)
		if err != nil {
			return utils.BadRequest(errors.WithMessage(err, "address"))
		}
		to = &addr
	}

	var callData CallData
	if err := utils.ParseJSON(req.Body, &callData); err != nil {
		return utils.BadRequest(errors.WithMessage(err, "body"))
	}

	st, summary, err := a.stateAt(req)
	if err != nil {
		return err
	}
	header := summary.Header

	gas := callData.Gas
	if gas == 0 || gas > a.callGasLimit {
		gas = a.callGasLimit
	}
	var caller kaon.Address
	if callData.Caller != nil {
		caller = *callData.Caller
	}

	rt := runtime.New(st, &xenv.BlockContext{
		ChainID:     a.repo.ChainID(),
		Number:      header.Number(),
		ParentID:    header.ParentID(),
		Beneficiary: header.Beneficiary(),
		Time:        header.Timestamp(),
		GasLimit:    header.GasLimit(),
		GetBlockID: func(num uint64) kaon.Bytes32 {
			id, err := a.repo.GetBlockIDByNumber(num)
			if err != nil {
				return kaon.Bytes32{}
			}
			return id
		},
	})

	result, err := rt.ExecuteCall(to, callData.Data, gas, (*big.Int)(callData.Value), caller)
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "call"))
	}

	callResult := &CallResult{
		Data:     result.Data,
		GasUsed:  result.GasUsed,
		Reverted: result.Reverted,
	}
	if result.VMErr != nil {
		callResult.VMError = result.VMErr.Error()
	}
	return utils.WriteJSON(w, callResult)
}

// stateAt resolves the revision query arg to a state and header.
func (a *Accounts) stateAt(req *http.Request) (*state.State, *chain.BlockSummary, error) {
	revision, err := utils.ParseRevision(req.URL.Query().Get("revision"))
	if err != nil {
		return nil, nil, utils.BadRequest(errors.WithMessage(err, "revision"))
	}
	summary, err := utils.GetSummary(revision, a.repo)
	if err != nil {
		if a.repo.IsNotFound(err) {
			return nil, nil, utils.BadRequest(errors.WithMessage(err, "revision"))
		}
		return nil, nil, err
	}
	return a.stater.NewState(summary.Header.StateRoot()), summary, nil
}

// Mount attaches the endpoints to the router.
func (a *Accounts) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()
	sub.Path("/{address}").
		Methods(http.MethodGet).
		HandlerFunc(utils.WrapHandlerFunc(a.handleGetAccount))
	sub.Path("/{address}/code").
		Methods(http.MethodGet).
		HandlerFunc(utils.WrapHandlerFunc(a.handleGetCode))
	sub.Path("/{address}/storage/{key}").
		Methods(http.MethodGet).
		HandlerFunc(utils.WrapHandlerFunc(a.handleGetStorage))
	sub.Path("").
		Methods(http.MethodPost).
		HandlerFunc(utils.WrapHandlerFunc(a.handleCallContract))
	sub.Path("/{address}").
		Methods(http.MethodPost).
		HandlerFunc(utils.WrapHandlerFunc(a.handleCallContract))
}
