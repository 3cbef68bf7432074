package book

import "github.com/ethereum/go-ethereum/common"

// Events are the engine's only output channel for order ids: CreateOrder
// does not return the id, callers observe it from the OrderCreated event.
// Delivered synchronously through Engine.OnEvent while the operation's
// lock is still held, so observers see events in commit order.

type Event interface {
	// Type is the wire tag used by the API event stream
	Type() string
}

// OrderCreated is emitted after the deposit is pulled and the order inserted.
type OrderCreated struct {
	Order Order `json:"order"`
}

func (OrderCreated) Type() string { return "order_created" }

// OrderCanceled is emitted after the order is removed and the deposit refunded.
type OrderCanceled struct {
	Order Order `json:"order"`
}

func (OrderCanceled) Type() string { return "order_canceled" }

// OrderExecuted is emitted after settlement completes, with the exact fee
// split applied: RequestedFee+RequestedPayout == RequestedAmount and
// OfferedFee+OfferedPayout == OfferedAmount.
type OrderExecuted struct {
	Order Order          `json:"order"`
	Taker common.Address `json:"taker"`

	RequestedFee    int64 `json:"requestedFee"`
	RequestedPayout int64 `json:"requestedPayout"`
	OfferedFee      int64 `json:"offeredFee"`
	OfferedPayout   int64 `json:"offeredPayout"`

	ExecutedAt int64 `json:"executedAt"`
}

func (OrderExecuted) Type() string { return "order_executed" }

// Trade is the durable history record of one executed swap.
type Trade struct {
	OrderID common.Hash `json:"orderId"`

	OfferedAsset    string `json:"offeredAsset"`
	OfferedAmount   int64  `json:"offeredAmount"`
	RequestedAsset  string `json:"requestedAsset"`
	RequestedAmount int64  `json:"requestedAmount"`

	Maker common.Address `json:"maker"`
	Taker common.Address `json:"taker"`

	RequestedFee int64 `json:"requestedFee"`
	OfferedFee   int64 `json:"offeredFee"`

	ExecutedAt int64 `json:"executedAt"` // Unix milliseconds
}
