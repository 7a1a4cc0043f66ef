package types

// OrderQueryResponse represents the response from GET /data/order/{id}.
// Numeric fields arrive as strings.
type OrderQueryResponse struct {
	OrderID      string   `json:"id"`
	Status       string   `json:"status"`               // LIVE, MATCHED, CANCELED, ...
	AssetID      string   `json:"asset_id"`             // Token identifier
	Price        float64  `json:"price,string"`         // Limit price
	OriginalSize float64  `json:"original_size,string"` // Requested size
	SizeMatched  float64  `json:"size_matched,string"`  // Filled size
	Side         string   `json:"side"`                 // "BUY" or "SELL"
	CreatedAt    int64    `json:"created_at"`           // Unix seconds
	Expiration   string   `json:"expiration"`
	OrderType    string   `json:"order_type"`
	Market       string   `json:"market"`
	Outcome      string   `json:"outcome"`
	Owner        string   `json:"owner"`
	MakerAddress string   `json:"maker_address"`
	AssociateIDs []string `json:"associate_trades"`
}

// CancelOrderRequest is the body of DELETE /order.
type CancelOrderRequest struct {
	OrderID string `json:"orderID"`
}

// CancelOrderResponse represents the response from DELETE /order.
// NotCanceled maps order IDs to the reason the venue refused.
type CancelOrderResponse struct {
	Canceled    []string          `json:"canceled"`
	NotCanceled map[string]string `json:"not_canceled"`
}

// APIErrorResponse is the error body returned by the CLOB and Data APIs.
type APIErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
