// Package wallet models a minimal blockchain RPC wallet lookup: a
// single configured address plus a JSON-RPC balance query, just
// enough surface to exercise the agent loop's wallet integrity guard.
package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	oasis "github.com/lattice-run/agentcore"
)

// Tool answers wallet_address/wallet_balance tool calls against one
// configured address and RPC endpoint.
type Tool struct {
	address    string
	rpcURL     string
	httpClient *http.Client
}

// Compile-time interface check.
var _ oasis.Tool = (*Tool)(nil)

// New creates a wallet Tool for the given address, querying balances
// against rpcURL (an Ethereum-JSON-RPC-compatible endpoint).
func New(address, rpcURL string) *Tool {
	return &Tool{
		address:    address,
		rpcURL:     rpcURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *Tool) Definitions() []oasis.ToolDefinition {
	return []oasis.ToolDefinition{
		{
			Name:        "wallet_address",
			Description: "Return the agent's configured wallet address.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{}}`),
		},
		{
			Name:        "wallet_balance",
			Description: "Return the agent's current wallet balance via a live RPC query.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{}}`),
		},
	}
}

func (t *Tool) Execute(ctx context.Context, name string, args json.RawMessage) (oasis.ToolResult, error) {
	switch name {
	case "wallet_address":
		if t.address == "" {
			return oasis.ToolResult{Error: "no wallet configured"}, nil
		}
		return oasis.ToolResult{Content: t.address}, nil
	case "wallet_balance":
		return t.balance(ctx)
	default:
		return oasis.ToolResult{Error: "unknown wallet tool: " + name}, nil
	}
}

type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      int    `json:"id"`
}

type jsonRPCResponse struct {
	Result string `json:"result"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// balance issues an eth_getBalance JSON-RPC call for the configured
// address against the "latest" block.
func (t *Tool) balance(ctx context.Context) (oasis.ToolResult, error) {
	if t.address == "" {
		return oasis.ToolResult{Error: "no wallet configured"}, nil
	}
	if t.rpcURL == "" {
		return oasis.ToolResult{Error: "no RPC endpoint configured"}, nil
	}

	reqBody, err := json.Marshal(jsonRPCRequest{
		JSONRPC: "2.0",
		Method:  "eth_getBalance",
		Params:  []any{t.address, "latest"},
		ID:      1,
	})
	if err != nil {
		return oasis.ToolResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", t.rpcURL, bytes.NewReader(reqBody))
	if err != nil {
		return oasis.ToolResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return oasis.ToolResult{Error: fmt.Sprintf("rpc call failed: %s", err)}, nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return oasis.ToolResult{Error: err.Error()}, nil
	}

	var rpcResp jsonRPCResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return oasis.ToolResult{Error: fmt.Sprintf("rpc parse error: %s", err)}, nil
	}
	if rpcResp.Error != nil {
		return oasis.ToolResult{Error: rpcResp.Error.Message}, nil
	}

	weiHex := rpcResp.Result
	return oasis.ToolResult{Content: fmt.Sprintf("address %s balance (wei, hex): %s", t.address, weiHex)}, nil
}
