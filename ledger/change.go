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

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/vsys-labs/ledger/common"
)

// ReasonKind tags the closed set of reasons a balance can change.
type ReasonKind byte

const (
	// FeeCreditReasonKind credits block fees to an account.
	FeeCreditReasonKind ReasonKind = 1
	// TransactionReasonKind attributes the change to a transaction.
	TransactionReasonKind ReasonKind = 2
)

// Reason records why an account's balance changed within a block. It is a
// tagged variant: fee credits carry the credited amount, transaction reasons
// carry the transaction itself.
type Reason struct {
	Kind ReasonKind
	Fee  uint64
	Tx   *Transaction `rlp:"nil"`
}

// FeeCredit creates a fee-credit reason.
func FeeCredit(fee uint64) Reason {
	return Reason{Kind: FeeCreditReasonKind, Fee: fee}
}

// TransactionReason creates a reason attributing a change to a transaction.
func TransactionReason(tx *Transaction) Reason {
	return Reason{Kind: TransactionReasonKind, Tx: tx}
}

// AccountChange is the per-height record of an account: the new balance, the
// ordered list of reasons producing it (most recent first), and the previous
// height at which the account changed (zero if none). Rows of an account form
// a singly linked list along PrevHeight, walked by historical balance queries
// and erased by rollback.
type AccountChange struct {
	Balance    uint64
	Reasons    []Reason
	PrevHeight common.Height
}

// ToBytes encodes the change row for storing in the substrate.
func (c *AccountChange) ToBytes() ([]byte, error) {
	data, err := rlp.EncodeToBytes(c)
	if err != nil {
		return nil, fmt.Errorf("failed to encode change row; %w", err)
	}
	return data, nil
}

// AccountChangeFromBytes decodes a change row stored in the substrate.
func AccountChangeFromBytes(data []byte) (AccountChange, error) {
	var change AccountChange
	if err := rlp.DecodeBytes(data, &change); err != nil {
		return AccountChange{}, fmt.Errorf("failed to decode change row; %w", err)
	}
	return change, nil
}
