package model

// Tx is one on-chain transaction as delivered to subscribers.
// Value / Gas / GasPrice stay in the remote's hex string form ("0x...");
// the frontend does the decimal conversion.
type Tx struct {
	Hash             string `json:"hash"`
	From             string `json:"from"`
	To               string `json:"to"`
	Value            string `json:"value"`
	Gas              string `json:"gas"`
	GasPrice         string `json:"gas_price"`
	BlockNumber      int64  `json:"block_number"`
	TransactionIndex int64  `json:"transaction_index"`
	BlockTimestamp   int64  `json:"block_timestamp,omitempty"`
}
