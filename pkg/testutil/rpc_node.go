package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// RPCRequest is a request received by MockRPCNode.
type RPCRequest struct {
	Action string
	Body   map[string]any
	Raw    []byte
	Header http.Header
}

// RPCResponse is what MockRPCNode writes back.
type RPCResponse struct {
	Status int
	Body   string
}

// MockRPCNode is an HTTP server speaking the node's action protocol. Unknown actions get the
// node's own answer, {"error":"Unknown command"} with status 200.
type MockRPCNode struct {
	T      *testing.T
	Server *httptest.Server
	URL    string

	mu       sync.Mutex
	requests []RPCRequest
	handlers map[string]func(RPCRequest) RPCResponse
}

// NewMockRPCNode starts the server and closes it when the test ends.
func NewMockRPCNode(t *testing.T) *MockRPCNode {
	t.Helper()
	n := &MockRPCNode{T: t, handlers: make(map[string]func(RPCRequest) RPCResponse)}

	n.Server = httptest.NewServer(http.HandlerFunc(n.serve))
	n.URL = n.Server.URL
	t.Cleanup(n.Server.Close)
	return n
}

func (n *MockRPCNode) serve(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req := RPCRequest{Raw: raw, Header: r.Header.Clone()}
	if err := json.Unmarshal(raw, &req.Body); err != nil {
		n.T.Logf("MockRPCNode: invalid request body %q: %v", raw, err)
	}
	if action, ok := req.Body["action"].(string); ok {
		req.Action = action
	}

	n.mu.Lock()
	n.requests = append(n.requests, req)
	handler, ok := n.handlers[req.Action]
	n.mu.Unlock()

	resp := RPCResponse{Status: http.StatusOK, Body: `{"error":"Unknown command"}`}
	if ok {
		resp = handler(req)
	}
	if resp.Status == 0 {
		resp.Status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.Status)
	_, _ = io.WriteString(w, resp.Body)
}

// Respond answers every request for action with a fixed status and body.
func (n *MockRPCNode) Respond(action string, status int, body string) {
	n.Handle(action, func(RPCRequest) RPCResponse {
		return RPCResponse{Status: status, Body: body}
	})
}

// Handle installs a handler for action.
func (n *MockRPCNode) Handle(action string, handler func(RPCRequest) RPCResponse) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[action] = handler
}

// Requests returns a copy of every request received so far.
func (n *MockRPCNode) Requests() []RPCRequest {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]RPCRequest(nil), n.requests...)
}

// LastRequest returns the most recent request.
func (n *MockRPCNode) LastRequest() (RPCRequest, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.requests) == 0 {
		return RPCRequest{}, false
	}
	return n.requests[len(n.requests)-1], true
}
