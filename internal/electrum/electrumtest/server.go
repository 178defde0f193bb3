// Package electrumtest runs an in-process Electrum server for tests.
package electrumtest

import (
	"bufio"
	"encoding/json"
	"errors"
	"net"
	"strconv"
	"sync"
	"testing"

	"github.com/mrz1836/hdscan/internal/electrum"
)

// Handler answers one method call. Returning an *electrum.RPCError sends it
// verbatim; any other error becomes an internal error object.
type Handler func(params []json.RawMessage) (any, error)

// ScriptHashData is the state served for one scripthash.
type ScriptHashData struct {
	Balance electrum.Balance
	History []electrum.HistoryItem
	Unspent []electrum.Unspent
}

// Server is a fake Electrum server listening on 127.0.0.1.
type Server struct {
	ln net.Listener

	mu       sync.Mutex
	handlers map[string]Handler
	scripts  map[string]ScriptHashData
	calls    map[string]int
	conns    map[net.Conn]struct{}
	closed   bool

	wg sync.WaitGroup
}

// NewServer starts a server with handlers for server.version, server.ping
// and the scripthash methods. Unknown scripthashes are empty.
func NewServer(t testing.TB) *Server {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("electrumtest: listen: %v", err)
	}

	s := &Server{
		ln:       ln,
		handlers: make(map[string]Handler),
		scripts:  make(map[string]ScriptHashData),
		calls:    make(map[string]int),
		conns:    make(map[net.Conn]struct{}),
	}

	s.handlers["server.version"] = func([]json.RawMessage) (any, error) {
		return []string{"electrumtest 1.0", electrum.ProtocolVersion}, nil
	}
	s.handlers["server.ping"] = func([]json.RawMessage) (any, error) {
		return nil, nil
	}
	s.handlers["blockchain.scripthash.get_balance"] = func(p []json.RawMessage) (any, error) {
		return s.script(p).Balance, nil
	}
	s.handlers["blockchain.scripthash.get_history"] = func(p []json.RawMessage) (any, error) {
		h := s.script(p).History
		if h == nil {
			h = []electrum.HistoryItem{}
		}
		return h, nil
	}
	s.handlers["blockchain.scripthash.listunspent"] = func(p []json.RawMessage) (any, error) {
		u := s.script(p).Unspent
		if u == nil {
			u = []electrum.Unspent{}
		}
		return u, nil
	}

	s.wg.Add(1)
	go s.acceptLoop()

	t.Cleanup(s.Close)
	return s
}

// Addr returns "127.0.0.1:port".
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Host returns the listen host.
func (s *Server) Host() string {
	host, _, _ := net.SplitHostPort(s.Addr())
	return host
}

// Port returns the listen port.
func (s *Server) Port() int {
	_, port, _ := net.SplitHostPort(s.Addr())
	n, _ := strconv.Atoi(port)
	return n
}

// Handle replaces the handler of a method.
func (s *Server) Handle(method string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = h
}

// SetScriptHash installs the data served for a scripthash.
func (s *Server) SetScriptHash(scriptHash string, data ScriptHashData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[scriptHash] = data
}

// Calls returns how many times a method was called.
func (s *Server) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

// DropConnections closes every open client connection without stopping the
// listener.
func (s *Server) DropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
	}
}

// Close stops the listener and drops every connection.
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	_ = s.ln.Close()
	s.DropConnections()
	s.wg.Wait()
}

func (s *Server) script(params []json.RawMessage) ScriptHashData {
	if len(params) == 0 {
		return ScriptHashData{}
	}
	var sh string
	_ = json.Unmarshal(params[0], &sh)

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scripts[sh]
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serve(conn)
	}
}

type rpcRequest struct {
	ID     uint64            `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type rpcResponse struct {
	JSONRPC string             `json:"jsonrpc"`
	ID      uint64             `json:"id"`
	Result  any                `json:"result"`
	Error   *electrum.RPCError `json:"error,omitempty"`
}

func (s *Server) serve(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	var writeMu sync.Mutex
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		var req rpcRequest
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			return
		}

		s.mu.Lock()
		s.calls[req.Method]++
		h, ok := s.handlers[req.Method]
		s.mu.Unlock()

		// Answer concurrently so slow handlers don't serialize the connection.
		go func() {
			resp := rpcResponse{JSONRPC: "2.0", ID: req.ID}
			if !ok {
				resp.Error = &electrum.RPCError{Code: -32601, Message: "unknown method " + req.Method}
			} else if result, err := h(req.Params); err != nil {
				var rpcErr *electrum.RPCError
				if !errors.As(err, &rpcErr) {
					rpcErr = &electrum.RPCError{Code: -32603, Message: err.Error()}
				}
				resp.Error = rpcErr
			} else {
				resp.Result = result
			}

			line, _ := json.Marshal(resp)
			writeMu.Lock()
			_, _ = conn.Write(append(line, '\n'))
			writeMu.Unlock()
		}()
	}
}
