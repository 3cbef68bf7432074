package api

// REST request/response shapes. Amounts are integer base units of the
// named asset, matching the engine.

type OrderInfo struct {
	ID              string `json:"id"`
	OfferedAsset    string `json:"offeredAsset"`
	OfferedAmount   int64  `json:"offeredAmount"`
	RequestedAsset  string `json:"requestedAsset"`
	RequestedAmount int64  `json:"requestedAmount"`
	Maker           string `json:"maker"`
	CreatedAt       int64  `json:"createdAt"`
}

type CreateOrderRequest struct {
	Maker           string `json:"maker"`
	OfferedAsset    string `json:"offeredAsset"`
	OfferedAmount   int64  `json:"offeredAmount"`
	RequestedAsset  string `json:"requestedAsset"`
	RequestedAmount int64  `json:"requestedAmount"`
}

type CreateOrderResponse struct {
	Status  string `json:"status"`
	OrderID string `json:"orderId"`
}

type CancelOrderRequest struct {
	Caller string `json:"caller"`
}

type ExecuteOrderRequest struct {
	Taker string `json:"taker"`
}

type FeeRecipientRequest struct {
	Caller    string `json:"caller"`
	Recipient string `json:"recipient"`
}

type TransferRequest struct {
	Asset  string `json:"asset"`
	Amount int64  `json:"amount"`
}

type AssetInfo struct {
	Symbol         string `json:"symbol"`
	MinOrderAmount int64  `json:"minOrderAmount"`
	Decimals       int8   `json:"decimals"`
	Status         string `json:"status"`
}

type TradeInfo struct {
	OrderID         string `json:"orderId"`
	OfferedAsset    string `json:"offeredAsset"`
	OfferedAmount   int64  `json:"offeredAmount"`
	RequestedAsset  string `json:"requestedAsset"`
	RequestedAmount int64  `json:"requestedAmount"`
	Maker           string `json:"maker"`
	Taker           string `json:"taker"`
	RequestedFee    int64  `json:"requestedFee"`
	OfferedFee      int64  `json:"offeredFee"`
	ExecutedAt      int64  `json:"executedAt"`
}

type CountResponse struct {
	Count int `json:"count"`
}

type BalancesResponse struct {
	Address  string           `json:"address"`
	Balances map[string]int64 `json:"balances"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// WSSubscribeRequest is the client -> server subscription frame
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" | "unsubscribe"
	Channels []string `json:"channels"`
}

// WSEvent is the server -> client event frame
type WSEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}
