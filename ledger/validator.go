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
	"math/big"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/vsys-labs/ledger/common"
)

// TimestampCheckEpoch is the hard-fork activation point of the structural
// check of a payment's timestamp against its sender's last sent transaction,
// in milliseconds since epoch. Transactions timestamped before it skip that
// check; the within-batch monotonicity pass applies to them as well.
const TimestampCheckEpoch uint64 = 1_474_035_253_835

// Validator is the transaction admission filter. It is a deterministic
// function of the candidate set and the state it is bound to: it only reads
// the state, never raises domain errors, and returns the admitted subset.
// Two honest nodes validating the same candidates over the same state agree
// on the result.
type Validator struct {
	state    *StoredState
	verifier Verifier
}

// NewValidator creates a validator over the given state. A nil verifier
// selects UncheckedVerifier; production nodes inject their cryptographic one.
func NewValidator(state *StoredState, verifier Verifier) *Validator {
	if verifier == nil {
		verifier = UncheckedVerifier
	}
	return &Validator{state: state, verifier: verifier}
}

// Validate filters the candidates at the current state height. The returned
// error is non-nil only on substrate failure.
func (v *Validator) Validate(candidates []*Transaction) ([]*Transaction, error) {
	height, err := v.state.StateHeight()
	if err != nil {
		return nil, err
	}
	return v.ValidateAt(candidates, height)
}

// ValidateAt filters the candidates as of the given height. The filter runs
// the structural, monotonicity and overdraft passes to a fixed point: each
// round either returns or strictly shrinks the surviving set, so the number
// of rounds is bounded by the input size.
func (v *Validator) ValidateAt(candidates []*Transaction, height common.Height) ([]*Transaction, error) {
	survivors := candidates
	for round := 0; round <= len(candidates); round++ {
		valid, err := v.structuralPass(survivors, height)
		if err != nil {
			return nil, err
		}
		ordered, err := v.monotonicityPass(valid)
		if err != nil {
			return nil, err
		}
		solvent, err := v.overdraftPass(ordered)
		if err != nil {
			return nil, err
		}
		if sameTransactionSet(solvent, valid) {
			// The historical behavior of the engine: when the overdraft pass
			// removed nothing relative to the structural pass, the structural
			// pass result is returned, not the monotonicity pass result.
			return valid, nil
		}
		survivors = solvent
	}
	return survivors, nil
}

// ValidTransactions is Validate with the result in the deterministic
// (timestamp, signature) order a forger packs transactions in.
func (v *Validator) ValidTransactions(candidates []*Transaction) ([]*Transaction, error) {
	admitted, err := v.Validate(candidates)
	if err != nil {
		return nil, err
	}
	ordered := slices.Clone(admitted)
	slices.SortStableFunc(ordered, compareTimestampSignature)
	return ordered, nil
}

// structuralPass drops transactions that are already included, of unknown
// kind, field-invalid, unverifiable, or timestamp-incorrect for their sender.
func (v *Validator) structuralPass(candidates []*Transaction, height common.Height) ([]*Transaction, error) {
	valid := make([]*Transaction, 0, len(candidates))
	for _, tx := range candidates {
		if _, included, err := v.state.IncludedBefore(tx.Signature, height+1); err != nil {
			return nil, err
		} else if included {
			continue
		}
		ok, err := v.isValid(tx, height)
		if err != nil {
			return nil, err
		}
		if ok {
			valid = append(valid, tx)
		}
	}
	return valid, nil
}

func (v *Validator) isValid(tx *Transaction, height common.Height) (bool, error) {
	switch tx.Type {
	case GenesisTransactionType:
		return height == 0 && tx.Check() == nil, nil
	case PaymentTransactionType:
		if tx.Check() != nil || !v.verifier.Verify(tx) {
			return false, nil
		}
		return v.timestampCorrect(tx)
	}
	return false, nil
}

// timestampCorrect implements the anti-replay rule: at or after the epoch, a
// payment must be timestamped strictly after the sender's last sent
// transaction.
func (v *Validator) timestampCorrect(tx *Transaction) (bool, error) {
	if tx.Timestamp < TimestampCheckEpoch {
		return true, nil
	}
	last, err := v.state.LastTransactionOf(tx.Sender)
	if err != nil {
		return false, err
	}
	if last == nil {
		return true, nil
	}
	return last.Timestamp < tx.Timestamp, nil
}

// monotonicityPass drops payments whose timestamp does not strictly exceed
// the highest timestamp seen so far for their sender, walking the batch in
// timestamp order and seeding each sender from its last sent transaction.
func (v *Validator) monotonicityPass(candidates []*Transaction) ([]*Transaction, error) {
	payments := make([]*Transaction, 0, len(candidates))
	for _, tx := range candidates {
		if tx.Type == PaymentTransactionType {
			payments = append(payments, tx)
		}
	}
	slices.SortStableFunc(payments, compareTimestampSignature)

	highest := map[common.Address]uint64{}
	seeded := map[common.Address]bool{}
	invalid := map[string]bool{}
	for _, tx := range payments {
		if !seeded[tx.Sender] {
			seeded[tx.Sender] = true
			last, err := v.state.LastTransactionOf(tx.Sender)
			if err != nil {
				return nil, err
			}
			if last != nil {
				highest[tx.Sender] = last.Timestamp
			}
		}
		if bound, exists := highest[tx.Sender]; exists && tx.Timestamp <= bound {
			invalid[tx.Signature.Key()] = true
			continue
		}
		highest[tx.Sender] = tx.Timestamp
	}

	if len(invalid) == 0 {
		return candidates, nil
	}
	surviving := make([]*Transaction, 0, len(candidates))
	for _, tx := range candidates {
		if !invalid[tx.Signature.Key()] {
			surviving = append(surviving, tx)
		}
	}
	return surviving, nil
}

// overdraftPass removes, for every account whose aggregated resulting
// balance is negative, that account's largest payments until the account is
// solvent again. Dropping the largest first minimizes the number of
// transactions removed.
func (v *Validator) overdraftPass(candidates []*Transaction) ([]*Transaction, error) {
	balances := map[common.Address]*big.Int{}
	balance := func(address common.Address) (*big.Int, error) {
		if b, exists := balances[address]; exists {
			return b, nil
		}
		current, err := v.state.Balance(address)
		if err != nil {
			return nil, err
		}
		b := new(big.Int).SetUint64(current)
		balances[address] = b
		return b, nil
	}

	for _, tx := range candidates {
		deltas, err := tx.BalanceChanges()
		if err != nil {
			// Unknown variants were already dropped by the structural pass.
			continue
		}
		for _, delta := range deltas {
			b, err := balance(delta.Account)
			if err != nil {
				return nil, err
			}
			b.Add(b, big.NewInt(delta.Delta))
		}
	}

	removed := map[string]bool{}
	accounts := maps.Keys(balances)
	slices.Sort(accounts)
	for _, account := range accounts {
		running := balances[account]
		if running.Sign() >= 0 {
			continue
		}
		var sent []*Transaction
		for _, tx := range candidates {
			if tx.Type == PaymentTransactionType && tx.Sender == account {
				sent = append(sent, tx)
			}
		}
		slices.SortStableFunc(sent, func(a, b *Transaction) int {
			if a.Amount != b.Amount {
				if a.Amount > b.Amount {
					return -1
				}
				return 1
			}
			return a.Signature.Compare(b.Signature)
		})
		cost := new(big.Int)
		for _, tx := range sent {
			if running.Sign() >= 0 {
				break
			}
			removed[tx.Signature.Key()] = true
			cost.SetUint64(tx.Amount)
			running.Add(running, cost)
			cost.SetUint64(tx.Fee)
			running.Add(running, cost)
		}
	}

	if len(removed) == 0 {
		return candidates, nil
	}
	surviving := make([]*Transaction, 0, len(candidates))
	for _, tx := range candidates {
		if !removed[tx.Signature.Key()] {
			surviving = append(surviving, tx)
		}
	}
	return surviving, nil
}

func compareTimestampSignature(a, b *Transaction) int {
	if a.Timestamp != b.Timestamp {
		if a.Timestamp < b.Timestamp {
			return -1
		}
		return 1
	}
	return a.Signature.Compare(b.Signature)
}

func sameTransactionSet(a, b []*Transaction) bool {
	if len(a) != len(b) {
		return false
	}
	keys := make(map[string]bool, len(a))
	for _, tx := range a {
		keys[tx.Signature.Key()] = true
	}
	for _, tx := range b {
		if !keys[tx.Signature.Key()] {
			return false
		}
	}
	return true
}
