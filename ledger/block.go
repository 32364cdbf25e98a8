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
	"math/bits"

	"github.com/vsys-labs/ledger/common"
	"github.com/vsys-labs/ledger/consensus"
)

// Block is a set of transactions sealed with a proof-of-stake consensus
// field. Blocks are applied to the state atomically.
type Block struct {
	Timestamp    uint64
	Generator    common.Address
	Consensus    consensus.BlockField
	Transactions []*Transaction
}

// TotalFee sums the fees of all transactions of the block. The sum saturates
// at the maximum uint64; saturation is caught later by block application,
// which rejects a block whose fee total exceeds 64 bits.
func (b *Block) TotalFee() uint64 {
	var total uint64
	for _, tx := range b.Transactions {
		sum, carry := bits.Add64(total, tx.Fee, 0)
		if carry != 0 {
			return ^uint64(0)
		}
		total = sum
	}
	return total
}

// FeesDistribution maps a block to the fee amounts credited to accounts.
// It is defined by the consensus module of the enclosing node; the state
// engine only folds its result into the block's balance changes.
type FeesDistribution func(block *Block) map[common.Address]uint64

// GeneratorFeesDistribution credits all block fees to the block's generator.
// This is the default distribution of the SPoS consensus.
func GeneratorFeesDistribution(block *Block) map[common.Address]uint64 {
	total := block.TotalFee()
	if total == 0 {
		return nil
	}
	return map[common.Address]uint64{block.Generator: total}
}
