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

import "github.com/vsys-labs/ledger/common"

const (
	// ErrDuplicateTransaction is returned by block application when a
	// transaction of the block is already included in the chain.
	ErrDuplicateTransaction = common.ConstError("transaction already included")

	// ErrNegativeBalance is returned by block application when applying the
	// block would produce a negative balance for some account.
	ErrNegativeBalance = common.ConstError("block produces negative balance")

	// ErrUnknownTransactionVariant is returned when a transaction of an
	// unhandled kind is encountered.
	ErrUnknownTransactionVariant = common.ConstError("unknown transaction variant")

	// ErrInvalidFields is returned by transaction self-validation when a
	// field violates its constraints (non-positive amount or fee, malformed
	// recipient, amounts exceeding the signed 64-bit delta range).
	ErrInvalidFields = common.ConstError("invalid transaction fields")

	// ErrInvalidSignature is returned by transaction self-validation when
	// the signature is missing. A signature failing verification is not
	// reported with it: the admission filter drops such payments.
	ErrInvalidSignature = common.ConstError("invalid transaction signature")

	// ErrSubstrateFailure marks errors of the underlying store. Operations
	// failing with it leave the state unchanged; the engine should be closed
	// and reopened by the caller.
	ErrSubstrateFailure = common.ConstError("substrate failure")
)
