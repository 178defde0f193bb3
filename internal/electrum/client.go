// Package electrum is a client for the Electrum server protocol: newline
// delimited JSON-RPC 2.0 over TCP or TLS. A single Client multiplexes any
// number of concurrent calls over one connection.
package electrum

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
)

// ErrClosed is returned for calls on a client whose connection is gone.
var ErrClosed = errors.New("electrum: connection closed")

// maxLineSize caps a single response line. Large address histories can run
// to several megabytes.
const maxLineSize = 32 << 20

// RPCError is an error object returned by the server.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements error.
func (e *RPCError) Error() string {
	return fmt.Sprintf("electrum: server error %d: %s", e.Code, e.Message)
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type response struct {
	ID     *uint64         `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  json.RawMessage `json:"error"`
}

type result struct {
	raw json.RawMessage
	err error
}

// Client is a connection to one Electrum server. It is safe for concurrent use.
type Client struct {
	conn net.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]chan result
	err     error

	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to address ("host:port"). A non-nil tlsConfig wraps the
// connection in TLS and completes the handshake before returning.
func Dial(ctx context.Context, address string, tlsConfig *tls.Config) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}

	if tlsConfig != nil {
		tlsConn := tls.Client(conn, tlsConfig)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("tls handshake: %w", err)
		}
		conn = tlsConn
	}

	return NewClient(conn), nil
}

// NewClient takes ownership of conn and starts the response reader.
func NewClient(conn net.Conn) *Client {
	c := &Client{
		conn:    conn,
		pending: make(map[uint64]chan result),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Call sends one request and decodes the result into out (which may be nil).
// Canceling ctx abandons the call; a late response is discarded.
func (c *Client) Call(ctx context.Context, method string, params []any, out any) error {
	if params == nil {
		params = []any{}
	}

	ch := make(chan result, 1)

	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return err
	}
	c.nextID++
	id := c.nextID
	c.pending[id] = ch
	c.mu.Unlock()

	line, err := json.Marshal(request{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		c.forget(id)
		return fmt.Errorf("encode %s: %w", method, err)
	}
	line = append(line, '\n')

	if err := c.write(ctx, line); err != nil {
		c.forget(id)
		c.fail(fmt.Errorf("%w: %w", ErrClosed, err))
		return c.Err()
	}

	select {
	case <-ctx.Done():
		c.forget(id)
		return ctx.Err()
	case res := <-ch:
		if res.err != nil {
			return res.err
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(res.raw, out); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
		return nil
	}
}

func (c *Client) write(ctx context.Context, line []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline, _ := ctx.Deadline()
	_ = c.conn.SetWriteDeadline(deadline)

	_, err := c.conn.Write(line)
	return err
}

func (c *Client) forget(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) readLoop() {
	reader := bufio.NewReaderSize(c.conn, 64*1024)

	for {
		line, err := readLine(reader)
		if err != nil {
			c.fail(fmt.Errorf("%w: %w", ErrClosed, err))
			return
		}
		if len(line) == 0 {
			continue
		}

		var resp response
		if err := json.Unmarshal(line, &resp); err != nil {
			c.fail(fmt.Errorf("%w: malformed response: %w", ErrClosed, err))
			return
		}

		// Subscription notifications carry no id.
		if resp.ID == nil {
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[*resp.ID]
		delete(c.pending, *resp.ID)
		c.mu.Unlock()
		if !ok {
			continue
		}

		if rpcErr := decodeError(resp.Error); rpcErr != nil {
			ch <- result{err: rpcErr}
			continue
		}
		ch <- result{raw: resp.Result}
	}
}

func readLine(r *bufio.Reader) ([]byte, error) {
	var line []byte
	for {
		chunk, isPrefix, err := r.ReadLine()
		if err != nil {
			return nil, err
		}
		line = append(line, chunk...)
		if len(line) > maxLineSize {
			return nil, errors.New("response line too long")
		}
		if !isPrefix {
			return line, nil
		}
	}
}

func decodeError(raw json.RawMessage) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var rpcErr RPCError
	if err := json.Unmarshal(raw, &rpcErr); err == nil {
		return &rpcErr
	}

	// Some servers send a bare string.
	var msg string
	if err := json.Unmarshal(raw, &msg); err == nil {
		return &RPCError{Message: msg}
	}
	return &RPCError{Message: string(raw)}
}

// fail records the first terminal error and releases every pending call.
func (c *Client) fail(err error) {
	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return
	}
	c.err = err
	pending := c.pending
	c.pending = make(map[uint64]chan result)
	c.mu.Unlock()

	for _, ch := range pending {
		ch <- result{err: err}
	}

	c.closeOnce.Do(func() {
		_ = c.conn.Close()
		close(c.done)
	})
}

// Close shuts the connection. Pending calls fail with ErrClosed.
func (c *Client) Close() error {
	c.fail(ErrClosed)
	return nil
}

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the terminal error, or nil while the connection is healthy.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// RemoteAddr returns the server address.
func (c *Client) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}
