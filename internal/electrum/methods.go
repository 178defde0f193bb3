package electrum

import (
	"context"
	"fmt"
)

// ProtocolVersion is the protocol version negotiated on connect.
const ProtocolVersion = "1.4"

// Balance is the result of blockchain.scripthash.get_balance. Unconfirmed is
// a signed delta against Confirmed.
type Balance struct {
	Confirmed   int64 `json:"confirmed"`
	Unconfirmed int64 `json:"unconfirmed"`
}

// HistoryItem is one entry of blockchain.scripthash.get_history. Height is
// zero or negative for mempool transactions.
type HistoryItem struct {
	Height int64  `json:"height"`
	TxHash string `json:"tx_hash"`
	Fee    int64  `json:"fee,omitempty"`
}

// Confirmed reports whether the transaction is mined.
func (h HistoryItem) Confirmed() bool {
	return h.Height > 0
}

// Unspent is one entry of blockchain.scripthash.listunspent.
type Unspent struct {
	Height int64  `json:"height"`
	TxHash string `json:"tx_hash"`
	TxPos  uint32 `json:"tx_pos"`
	Value  int64  `json:"value"`
}

// ServerVersion performs the server.version handshake and returns the
// server software string and the negotiated protocol version.
func (c *Client) ServerVersion(ctx context.Context, clientName, protocol string) (string, string, error) {
	var out []string
	if err := c.Call(ctx, "server.version", []any{clientName, protocol}, &out); err != nil {
		return "", "", err
	}
	if len(out) != 2 {
		return "", "", fmt.Errorf("unexpected server.version result %v", out)
	}
	return out[0], out[1], nil
}

// Ping sends server.ping.
func (c *Client) Ping(ctx context.Context) error {
	return c.Call(ctx, "server.ping", nil, nil)
}

// GetBalance returns the confirmed and unconfirmed balance of a scripthash.
func (c *Client) GetBalance(ctx context.Context, scriptHash string) (Balance, error) {
	var out Balance
	err := c.Call(ctx, "blockchain.scripthash.get_balance", []any{scriptHash}, &out)
	return out, err
}

// GetHistory returns the confirmed and mempool history of a scripthash.
func (c *Client) GetHistory(ctx context.Context, scriptHash string) ([]HistoryItem, error) {
	var out []HistoryItem
	err := c.Call(ctx, "blockchain.scripthash.get_history", []any{scriptHash}, &out)
	return out, err
}

// ListUnspent returns the unspent outputs of a scripthash.
func (c *Client) ListUnspent(ctx context.Context, scriptHash string) ([]Unspent, error) {
	var out []Unspent
	err := c.Call(ctx, "blockchain.scripthash.listunspent", []any{scriptHash}, &out)
	return out, err
}
