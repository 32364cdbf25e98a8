// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/vsys-labs/ledger/backend"
	"github.com/vsys-labs/ledger/common"
	"github.com/vsys-labs/ledger/common/amount"
)

// Names of the fixed maps of the store. Each observed address additionally
// owns one map named by the address's text form, keyed by height.
const (
	lastStatesMapName = "lastStates"
	includedTxMapName = "includedTx"
	heightMapName     = "height"
)

var heightMetaKey = []byte("height")

var heightSerializer = common.HeightSerializer{}

// StoredState is the account-balance database of the chain. It owns the
// substrate handle exclusively; writers (ProcessBlock, RollbackTo) run under
// a single writer lock, readers run concurrently under a read lock and see
// the last committed state.
type StoredState struct {
	db         backend.KVStore
	mu         sync.RWMutex
	fees       FeesDistribution
	lastStates backend.Map
	includedTx backend.Map
	meta       backend.Map
	log        *logrus.Entry
}

// OpenStoredState opens the state over the given substrate. The fees
// distribution is the consensus module's mapping from a block to the fee
// amounts credited to accounts; nil selects GeneratorFeesDistribution.
// An absent height key reads as height 0, the pre-genesis state.
func OpenStoredState(db backend.KVStore, fees FeesDistribution) (*StoredState, error) {
	if fees == nil {
		fees = GeneratorFeesDistribution
	}
	lastStates, err := db.OpenMap(lastStatesMapName)
	if err != nil {
		return nil, errors.Join(ErrSubstrateFailure, err)
	}
	includedTx, err := db.OpenMap(includedTxMapName)
	if err != nil {
		return nil, errors.Join(ErrSubstrateFailure, err)
	}
	meta, err := db.OpenMap(heightMapName)
	if err != nil {
		return nil, errors.Join(ErrSubstrateFailure, err)
	}
	return &StoredState{
		db:         db,
		fees:       fees,
		lastStates: lastStates,
		includedTx: includedTx,
		meta:       meta,
		log:        logrus.WithField("module", "ledger"),
	}, nil
}

// Close releases the substrate. Uncommitted writes are discarded.
func (s *StoredState) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// StateHeight provides the number of applied blocks.
func (s *StoredState) StateHeight() (common.Height, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.height()
}

// Balance provides the current balance of the account, zero for accounts
// never observed.
func (s *StoredState) Balance(address common.Address) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentBalance(address)
}

// BalanceAt provides the effective balance of the account at the given
// height: the minimum balance over the account's change rows from its latest
// row back to and including the row at or before the height. Funds received
// after the height are thereby not spendable yet.
func (s *StoredState) BalanceAt(address common.Address, height common.Height) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balanceAt(address, height)
}

// BalanceWithConfirmations provides the balance of the account spendable
// with the given number of confirmations at the current height.
func (s *StoredState) BalanceWithConfirmations(address common.Address, confirmations common.Height) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	height, err := s.height()
	if err != nil {
		return 0, err
	}
	return s.balanceAt(address, confirmationHeight(height, confirmations))
}

// BalanceWithConfirmationsAt is BalanceWithConfirmations evaluated at an
// explicit height instead of the current one.
func (s *StoredState) BalanceWithConfirmationsAt(address common.Address, confirmations, height common.Height) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balanceAt(address, confirmationHeight(height, confirmations))
}

func confirmationHeight(height, confirmations common.Height) common.Height {
	if confirmations >= height {
		return 1
	}
	return height - confirmations
}

// Included provides the height at which the transaction with the given
// signature was committed, if any.
func (s *StoredState) Included(signature common.Signature) (common.Height, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.included(signature)
}

// IncludedBefore is Included restricted to inclusions strictly below the
// given height.
func (s *StoredState) IncludedBefore(signature common.Signature, before common.Height) (common.Height, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	height, exists, err := s.included(signature)
	if err != nil || !exists || height >= before {
		return 0, false, err
	}
	return height, true, nil
}

// AccountTransactions lists the transactions that touched the account,
// most recent first, deduplicated by signature.
func (s *StoredState) AccountTransactions(address common.Address) ([]*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var transactions []*Transaction
	seen := map[string]bool{}
	err := s.walkChanges(address, func(height common.Height, row *AccountChange) (bool, error) {
		for _, reason := range row.Reasons {
			if reason.Kind != TransactionReasonKind {
				continue
			}
			key := reason.Tx.Signature.Key()
			if seen[key] {
				continue
			}
			seen[key] = true
			transactions = append(transactions, reason.Tx)
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return transactions, nil
}

// LastTransactionOf provides the most recent transaction sent by the account,
// or nil if the account never sent one. Transactions merely received do not
// count.
func (s *StoredState) LastTransactionOf(address common.Address) (*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastTransactionOf(address)
}

// ProcessBlock applies the block to the state as one atomic transaction:
// fees are credited per the fees distribution, transaction deltas are folded
// in, the resulting balances are checked non-negative, and all change rows,
// inclusion records and the advanced height are committed together. On any
// error the state is left unchanged.
func (s *StoredState) ProcessBlock(block *Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.applyBlock(block); err != nil {
		if rollbackErr := s.db.Rollback(); rollbackErr != nil {
			return errors.Join(err, rollbackErr)
		}
		return err
	}
	if err := s.db.Commit(); err != nil {
		if rollbackErr := s.db.Rollback(); rollbackErr != nil {
			return errors.Join(ErrSubstrateFailure, err, rollbackErr)
		}
		return errors.Join(ErrSubstrateFailure, err)
	}

	height, err := s.height()
	if err == nil {
		fields := logrus.Fields{
			"height":       height,
			"transactions": len(block.Transactions),
		}
		if dump, err := s.toJson(); err == nil {
			fields["hash"] = common.GetKeccak256Hash(dump)
		}
		s.log.WithFields(fields).Info("applied block")
	}
	return nil
}

// pendingChange accumulates the balance effect of a block on one account.
// Credits and debits are collected separately in 256-bit arithmetic, so a
// balance dipping negative mid-block and recovering is not rejected early.
type pendingChange struct {
	base    amount.Amount
	credit  amount.Amount
	debit   amount.Amount
	reasons []Reason
}

func (s *StoredState) applyBlock(block *Block) error {
	for _, tx := range block.Transactions {
		if _, exists, err := s.included(tx.Signature); err != nil {
			return err
		} else if exists {
			return fmt.Errorf("%w: %s", ErrDuplicateTransaction, tx.Signature)
		}
	}
	for _, tx := range block.Transactions {
		if err := tx.Check(); err != nil {
			return err
		}
	}
	var feeTotal uint64
	for _, tx := range block.Transactions {
		if feeTotal+tx.Fee < feeTotal {
			return fmt.Errorf("total fee of the block exceeds 64 bits")
		}
		feeTotal += tx.Fee
	}

	changes := map[common.Address]*pendingChange{}
	entry := func(address common.Address) (*pendingChange, error) {
		if change, exists := changes[address]; exists {
			return change, nil
		}
		balance, err := s.currentBalance(address)
		if err != nil {
			return nil, err
		}
		change := &pendingChange{base: amount.New(balance)}
		changes[address] = change
		return change, nil
	}

	for address, fee := range s.fees(block) {
		change, err := entry(address)
		if err != nil {
			return err
		}
		change.credit = amount.Add(change.credit, amount.New(fee))
		change.reasons = append(change.reasons, FeeCredit(fee))
	}

	for _, tx := range block.Transactions {
		deltas, err := tx.BalanceChanges()
		if err != nil {
			return err
		}
		for _, delta := range deltas {
			change, err := entry(delta.Account)
			if err != nil {
				return err
			}
			if delta.Delta >= 0 {
				change.credit = amount.Add(change.credit, amount.New(uint64(delta.Delta)))
			} else {
				change.debit = amount.Add(change.debit, amount.New(uint64(-delta.Delta)))
			}
			change.reasons = append([]Reason{TransactionReason(tx)}, change.reasons...)
		}
	}

	height, err := s.height()
	if err != nil {
		return err
	}
	newHeight := height + 1
	heightKey := heightSerializer.ToBytes(newHeight)

	addresses := maps.Keys(changes)
	slices.Sort(addresses)
	for _, address := range addresses {
		change := changes[address]
		total, overflow := amount.AddOverflow(change.base, change.credit)
		if overflow {
			return fmt.Errorf("balance overflow for account %s", address)
		}
		final, underflow := amount.SubUnderflow(total, change.debit)
		if underflow {
			return fmt.Errorf("%w: account %s", ErrNegativeBalance, address)
		}
		if !final.IsUint64() {
			return fmt.Errorf("balance of account %s exceeds 64 bits", address)
		}

		prevHeight, _, err := s.lastState(address)
		if err != nil {
			return err
		}
		row := AccountChange{
			Balance:    final.Uint64(),
			Reasons:    change.reasons,
			PrevHeight: prevHeight,
		}
		data, err := row.ToBytes()
		if err != nil {
			return err
		}
		accountMap, err := s.accountMap(address)
		if err != nil {
			return err
		}
		if err := accountMap.Put(heightKey, data); err != nil {
			return errors.Join(ErrSubstrateFailure, err)
		}
		if err := s.lastStates.Put(address.Bytes(), heightKey); err != nil {
			return errors.Join(ErrSubstrateFailure, err)
		}
	}

	for _, tx := range block.Transactions {
		if err := s.includedTx.Put(tx.Signature, heightKey); err != nil {
			return errors.Join(ErrSubstrateFailure, err)
		}
	}
	if err := s.meta.Put(heightMetaKey, heightKey); err != nil {
		return errors.Join(ErrSubstrateFailure, err)
	}
	return nil
}

// RollbackTo rewinds the state to the exact snapshot that existed at the
// target height, erasing all change rows and inclusion records above it.
// A no-op when the target is at or above the current height.
func (s *StoredState) RollbackTo(target common.Height) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.height()
	if err != nil {
		return err
	}
	if target >= current {
		return nil
	}

	if err := s.rewindTo(target); err != nil {
		if rollbackErr := s.db.Rollback(); rollbackErr != nil {
			return errors.Join(err, rollbackErr)
		}
		return err
	}
	if err := s.db.Commit(); err != nil {
		if rollbackErr := s.db.Rollback(); rollbackErr != nil {
			return errors.Join(ErrSubstrateFailure, err, rollbackErr)
		}
		return errors.Join(ErrSubstrateFailure, err)
	}

	s.log.WithFields(logrus.Fields{
		"from": current,
		"to":   target,
	}).Info("rolled back state")
	return nil
}

func (s *StoredState) rewindTo(target common.Height) error {
	addresses, err := s.lastStates.Keys()
	if err != nil {
		return errors.Join(ErrSubstrateFailure, err)
	}
	for _, key := range addresses {
		address := common.Address(key)
		accountMap, err := s.accountMap(address)
		if err != nil {
			return err
		}
		height, exists, err := s.lastState(address)
		if err != nil {
			return err
		}
		for exists && height > target {
			row, found, err := s.change(address, height)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("%w: missing change row of %s at height %d", ErrSubstrateFailure, address, height)
			}
			for _, reason := range row.Reasons {
				if reason.Kind != TransactionReasonKind {
					continue
				}
				if err := s.includedTx.Delete(reason.Tx.Signature); err != nil {
					return errors.Join(ErrSubstrateFailure, err)
				}
			}
			if err := accountMap.Delete(heightSerializer.ToBytes(height)); err != nil {
				return errors.Join(ErrSubstrateFailure, err)
			}
			if row.PrevHeight == 0 {
				if err := s.lastStates.Delete(address.Bytes()); err != nil {
					return errors.Join(ErrSubstrateFailure, err)
				}
				exists = false
			} else {
				if err := s.lastStates.Put(address.Bytes(), heightSerializer.ToBytes(row.PrevHeight)); err != nil {
					return errors.Join(ErrSubstrateFailure, err)
				}
				height = row.PrevHeight
			}
		}
	}
	if err := s.meta.Put(heightMetaKey, heightSerializer.ToBytes(target)); err != nil {
		return errors.Join(ErrSubstrateFailure, err)
	}
	return nil
}

// ToJSON dumps all non-zero balances as a JSON document with addresses as
// keys, in address order. Intended for debugging and RPC, not consensus.
func (s *StoredState) ToJSON() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.toJson()
}

// Hash provides a coarse Keccak256 checksum of the dump of all non-zero
// balances. Used for logging and debugging only; this is not a consensus
// hash.
func (s *StoredState) Hash() (common.Hash, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dump, err := s.toJson()
	if err != nil {
		return common.Hash{}, err
	}
	return common.GetKeccak256Hash(dump), nil
}

// ---------------------------------------------------------------------------
// unexported accessors, callers must hold the lock
// ---------------------------------------------------------------------------

func (s *StoredState) height() (common.Height, error) {
	data, exists, err := s.meta.Get(heightMetaKey)
	if err != nil {
		return 0, errors.Join(ErrSubstrateFailure, err)
	}
	if !exists {
		return 0, nil
	}
	return heightSerializer.FromBytes(data), nil
}

func (s *StoredState) lastState(address common.Address) (common.Height, bool, error) {
	data, exists, err := s.lastStates.Get(address.Bytes())
	if err != nil {
		return 0, false, errors.Join(ErrSubstrateFailure, err)
	}
	if !exists {
		return 0, false, nil
	}
	return heightSerializer.FromBytes(data), true, nil
}

func (s *StoredState) accountMap(address common.Address) (backend.Map, error) {
	accountMap, err := s.db.OpenMap(string(address))
	if err != nil {
		return nil, errors.Join(ErrSubstrateFailure, err)
	}
	return accountMap, nil
}

func (s *StoredState) change(address common.Address, height common.Height) (AccountChange, bool, error) {
	accountMap, err := s.accountMap(address)
	if err != nil {
		return AccountChange{}, false, err
	}
	data, exists, err := accountMap.Get(heightSerializer.ToBytes(height))
	if err != nil {
		return AccountChange{}, false, errors.Join(ErrSubstrateFailure, err)
	}
	if !exists {
		return AccountChange{}, false, nil
	}
	row, err := AccountChangeFromBytes(data)
	if err != nil {
		return AccountChange{}, false, errors.Join(ErrSubstrateFailure, err)
	}
	return row, true, nil
}

func (s *StoredState) included(signature common.Signature) (common.Height, bool, error) {
	data, exists, err := s.includedTx.Get(signature)
	if err != nil {
		return 0, false, errors.Join(ErrSubstrateFailure, err)
	}
	if !exists {
		return 0, false, nil
	}
	return heightSerializer.FromBytes(data), true, nil
}

// walkChanges visits the change rows of the account from the most recent
// backwards along PrevHeight. The visitor returns false to stop the walk.
// The walk is iterative; its depth does not grow the stack.
func (s *StoredState) walkChanges(address common.Address, visit func(height common.Height, row *AccountChange) (bool, error)) error {
	height, exists, err := s.lastState(address)
	if err != nil {
		return err
	}
	for exists && height > 0 {
		row, found, err := s.change(address, height)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: missing change row of %s at height %d", ErrSubstrateFailure, address, height)
		}
		proceed, err := visit(height, &row)
		if err != nil {
			return err
		}
		if !proceed || row.PrevHeight == 0 {
			return nil
		}
		height = row.PrevHeight
	}
	return nil
}

func (s *StoredState) currentBalance(address common.Address) (uint64, error) {
	height, exists, err := s.lastState(address)
	if err != nil {
		return 0, err
	}
	if !exists || height == 0 {
		return 0, nil
	}
	row, found, err := s.change(address, height)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, fmt.Errorf("%w: missing change row of %s at height %d", ErrSubstrateFailure, address, height)
	}
	return row.Balance, nil
}

// balanceAt computes the minimum balance over the rows from the latest down
// to and including the row at or before the given height. If the chain of
// rows ends before reaching such a row, the account had no funds at that
// height and the result is zero.
func (s *StoredState) balanceAt(address common.Address, atHeight common.Height) (uint64, error) {
	min := uint64(0)
	first := true
	reached := false
	err := s.walkChanges(address, func(height common.Height, row *AccountChange) (bool, error) {
		if first || row.Balance < min {
			min = row.Balance
		}
		first = false
		if height <= atHeight {
			reached = true
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		return 0, err
	}
	if !reached {
		return 0, nil
	}
	return min, nil
}

func (s *StoredState) lastTransactionOf(address common.Address) (*Transaction, error) {
	var last *Transaction
	err := s.walkChanges(address, func(height common.Height, row *AccountChange) (bool, error) {
		for _, reason := range row.Reasons {
			if reason.Kind != TransactionReasonKind {
				continue
			}
			if reason.Tx.Type == PaymentTransactionType && reason.Tx.Sender == address {
				last = reason.Tx
				return false, nil
			}
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return last, nil
}

func (s *StoredState) toJson() ([]byte, error) {
	addresses, err := s.lastStates.Keys()
	if err != nil {
		return nil, errors.Join(ErrSubstrateFailure, err)
	}
	balances := map[common.Address]uint64{}
	for _, key := range addresses {
		address := common.Address(key)
		balance, err := s.currentBalance(address)
		if err != nil {
			return nil, err
		}
		if balance > 0 {
			balances[address] = balance
		}
	}
	return json.Marshal(balances)
}
