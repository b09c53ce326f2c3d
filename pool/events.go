package pool

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Event signatures, keccak-hashed the way on-chain log topics are derived so
// off-process indexers can key on them directly.
const (
	eventMint      = "Mint(address,address,uint256,uint256,uint256)"
	eventBurn      = "Burn(address,address,address,uint256,uint256,uint256)"
	eventSwap      = "Swap(address,address,uint256,uint256,uint256,uint256)"
	eventFlashLoan = "FlashLoan(address,address,address,uint256,uint256)"
	eventSync      = "Sync(address,uint112,uint112)"
)

var (
	SigMint      = crypto.Keccak256Hash([]byte(eventMint))
	SigBurn      = crypto.Keccak256Hash([]byte(eventBurn))
	SigSwap      = crypto.Keccak256Hash([]byte(eventSwap))
	SigFlashLoan = crypto.Keccak256Hash([]byte(eventFlashLoan))
	SigSync      = crypto.Keccak256Hash([]byte(eventSync))
)

// Event is an observational notification. Events are emitted only after the
// corresponding state mutation has committed; they are consumed by indexers,
// never by pool logic.
type Event interface {
	Topic() common.Hash
}

// Sink receives events. Implementations must not call back into the pool:
// the guard is still held while events are delivered.
type Sink interface {
	Emit(Event)
}

type MintEvent struct {
	Pool      common.Address
	Recipient common.Address
	Amount0   *big.Int
	Amount1   *big.Int
	Shares    *big.Int
}

func (MintEvent) Topic() common.Hash { return SigMint }

type BurnEvent struct {
	Pool    common.Address
	Owner   common.Address
	To      common.Address
	Amount0 *big.Int
	Amount1 *big.Int
	Shares  *big.Int
}

func (BurnEvent) Topic() common.Hash { return SigBurn }

type SwapEvent struct {
	Pool       common.Address
	To         common.Address
	Amount0In  *big.Int
	Amount1In  *big.Int
	Amount0Out *big.Int
	Amount1Out *big.Int
}

func (SwapEvent) Topic() common.Hash { return SigSwap }

type FlashLoanEvent struct {
	Pool     common.Address
	Receiver common.Address
	Asset    common.Address
	Amount   *big.Int
	Fee      *big.Int
}

func (FlashLoanEvent) Topic() common.Hash { return SigFlashLoan }

// SyncEvent reports committed reserves. It follows every mutating event.
type SyncEvent struct {
	Pool      common.Address
	Reserve0  *big.Int
	Reserve1  *big.Int
	Timestamp uint32
}

func (SyncEvent) Topic() common.Hash { return SigSync }

func (p *Pool) emit(e Event) {
	if p.sink != nil {
		p.sink.Emit(e)
	}
}

// emitSync publishes the committed reserves. Callers invoke it after the
// operation's own event, once update has run.
func (p *Pool) emitSync() {
	if p.sink == nil {
		return
	}
	p.sink.Emit(SyncEvent{
		Pool:      p.addr,
		Reserve0:  new(big.Int).Set(p.reserve0),
		Reserve1:  new(big.Int).Set(p.reserve1),
		Timestamp: p.blockTimestampLast,
	})
}
