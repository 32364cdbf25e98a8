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
	"fmt"
	"math"

	"github.com/mr-tron/base58"

	"github.com/vsys-labs/ledger/common"
)

// TransactionType tags the closed set of transaction kinds. Adding a kind is
// a source change; every switch over the type must be exhaustive and treat
// unlisted values as ErrUnknownTransactionVariant.
type TransactionType byte

const (
	// GenesisTransactionType seeds an initial balance; valid at height 0 only.
	GenesisTransactionType TransactionType = 1
	// PaymentTransactionType transfers an amount from a sender to a recipient
	// for a fee.
	PaymentTransactionType TransactionType = 2
)

func (t TransactionType) String() string {
	switch t {
	case GenesisTransactionType:
		return "genesis"
	case PaymentTransactionType:
		return "payment"
	}
	return "unknown"
}

// Transaction is a tagged variant over the supported transaction kinds.
// Payment transactions carry a sender and a signature; genesis transactions
// only credit their recipient. Timestamps are milliseconds since epoch.
type Transaction struct {
	Type            TransactionType
	Timestamp       uint64
	Amount          uint64
	Fee             uint64
	SenderPublicKey []byte
	Sender          common.Address
	Recipient       common.Address
	Signature       common.Signature
}

// NewPayment creates a payment transaction; the sender address is derived
// from the public key.
func NewPayment(senderPublicKey []byte, recipient common.Address, amount, fee, timestamp uint64, signature common.Signature) *Transaction {
	return &Transaction{
		Type:            PaymentTransactionType,
		Timestamp:       timestamp,
		Amount:          amount,
		Fee:             fee,
		SenderPublicKey: senderPublicKey,
		Sender:          common.AddressFromPublicKey(senderPublicKey),
		Recipient:       recipient,
		Signature:       signature,
	}
}

// NewGenesis creates a genesis transaction crediting the recipient. The
// signature of a genesis transaction is its deterministic identity, derived
// from its fields.
func NewGenesis(recipient common.Address, amount, timestamp uint64) *Transaction {
	tx := &Transaction{
		Type:      GenesisTransactionType,
		Timestamp: timestamp,
		Amount:    amount,
		Recipient: recipient,
	}
	id := common.GetKeccak256Hash([]byte(fmt.Sprintf("genesis:%s:%d:%d", recipient, amount, timestamp)))
	tx.Signature = common.Signature(id[:])
	return tx
}

// Check validates the internal consistency of the transaction fields. It
// does not verify the signature and does not consult the chain state.
func (t *Transaction) Check() error {
	switch t.Type {
	case GenesisTransactionType:
		if t.Amount == 0 {
			return fmt.Errorf("%w: zero genesis amount", ErrInvalidFields)
		}
		if !wellFormedAddress(t.Recipient) {
			return fmt.Errorf("%w: malformed recipient %q", ErrInvalidFields, t.Recipient)
		}
		if t.Amount > math.MaxInt64 {
			return fmt.Errorf("%w: amount exceeds delta range", ErrInvalidFields)
		}
		return nil
	case PaymentTransactionType:
		if t.Amount == 0 {
			return fmt.Errorf("%w: zero amount", ErrInvalidFields)
		}
		if t.Fee == 0 {
			return fmt.Errorf("%w: zero fee", ErrInvalidFields)
		}
		if !wellFormedAddress(t.Recipient) {
			return fmt.Errorf("%w: malformed recipient %q", ErrInvalidFields, t.Recipient)
		}
		if t.Amount > math.MaxInt64-t.Fee {
			return fmt.Errorf("%w: amount plus fee exceeds delta range", ErrInvalidFields)
		}
		if len(t.Signature) == 0 {
			return fmt.Errorf("%w: missing signature", ErrInvalidSignature)
		}
		return nil
	}
	return fmt.Errorf("%w: type %d", ErrUnknownTransactionVariant, t.Type)
}

// BalanceChange is a signed balance delta of a single account.
type BalanceChange struct {
	Account common.Address
	Delta   int64
}

// BalanceChanges lists the balance deltas the transaction causes when
// included in a block. The sender of a payment is debited amount plus fee;
// the fee itself is credited separately through the block's fee distribution.
func (t *Transaction) BalanceChanges() ([]BalanceChange, error) {
	switch t.Type {
	case GenesisTransactionType:
		if t.Amount > math.MaxInt64 {
			return nil, fmt.Errorf("%w: amount exceeds delta range", ErrInvalidFields)
		}
		return []BalanceChange{
			{Account: t.Recipient, Delta: int64(t.Amount)},
		}, nil
	case PaymentTransactionType:
		if t.Amount > math.MaxInt64-t.Fee {
			return nil, fmt.Errorf("%w: amount plus fee exceeds delta range", ErrInvalidFields)
		}
		return []BalanceChange{
			{Account: t.Sender, Delta: -int64(t.Amount + t.Fee)},
			{Account: t.Recipient, Delta: int64(t.Amount)},
		}, nil
	}
	return nil, fmt.Errorf("%w: type %d", ErrUnknownTransactionVariant, t.Type)
}

func (t *Transaction) String() string {
	switch t.Type {
	case GenesisTransactionType:
		return fmt.Sprintf("genesis{recipient: %s, amount: %d}", t.Recipient, t.Amount)
	case PaymentTransactionType:
		return fmt.Sprintf("payment{%s -> %s, amount: %d, fee: %d, ts: %d}", t.Sender, t.Recipient, t.Amount, t.Fee, t.Timestamp)
	}
	return fmt.Sprintf("unknown{type: %d}", t.Type)
}

// wellFormedAddress reports whether the address decodes as base58 and is
// non-empty. Neither the version byte nor the payload length is checked.
func wellFormedAddress(address common.Address) bool {
	if len(address) == 0 {
		return false
	}
	_, err := base58.Decode(string(address))
	return err == nil
}

// Verifier checks transaction signatures. The engine treats signatures as
// opaque; the node injects its cryptographic implementation. A Verifier must
// be deterministic: the same transaction always yields the same verdict.
type Verifier interface {
	Verify(tx *Transaction) bool
}

// VerifierFunc adapts a plain function to the Verifier interface.
type VerifierFunc func(tx *Transaction) bool

func (f VerifierFunc) Verify(tx *Transaction) bool {
	return f(tx)
}

// UncheckedVerifier accepts every transaction carrying a non-empty signature.
// It stands in for the node's cryptographic verifier in tests and tooling.
var UncheckedVerifier Verifier = VerifierFunc(func(tx *Transaction) bool {
	return len(tx.Signature) > 0
})
