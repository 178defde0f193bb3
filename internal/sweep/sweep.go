// Package sweep emits auditable sweep requests when a scan finds funds. It
// never handles keys: a Request describes the outputs and the destination,
// and the configured Hook hands it to whatever signs and broadcasts.
package sweep

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
)

// Input is one unspent output to be swept.
type Input struct {
	TxID    string `json:"txid"`
	Vout    uint32 `json:"vout"`
	Value   int64  `json:"value"`
	Address string `json:"address"`
	Path    string `json:"path"`
}

// Request is submitted to a Hook. It carries no key material.
type Request struct {
	RunID        string  `json:"run_id"`
	TotalBalance int64   `json:"total_balance"`
	UTXOs        []Input `json:"utxos"`
	Destination  string  `json:"destination"`
}

// Hook receives sweep requests.
type Hook interface {
	Submit(ctx context.Context, req Request) error
}

// Status is the result of evaluating the trigger for one run.
type Status string

// Trigger outcomes.
const (
	StatusSubmitted Status = "submitted"
	StatusSkipped   Status = "skipped"
	StatusDuplicate Status = "duplicate"
	StatusFailed    Status = "failed"
)

// Outcome is recorded in the snapshot of a run with sweeping enabled.
type Outcome struct {
	Status      Status `json:"status"`
	Reason      string `json:"reason,omitempty"`
	Destination string `json:"destination,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Fingerprint returns a short stable identifier for a key identity built
// from public data such as account extended public keys.
func Fingerprint(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Digest returns an order independent hash of a UTXO set.
func Digest(inputs []Input) string {
	outpoints := make([]string, len(inputs))
	for i, in := range inputs {
		outpoints[i] = in.TxID + ":" + strconv.FormatUint(uint64(in.Vout), 10)
	}
	sort.Strings(outpoints)

	sum := sha256.Sum256([]byte(strings.Join(outpoints, "\n")))
	return hex.EncodeToString(sum[:])
}
