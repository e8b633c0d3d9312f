package livekit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const createDispatchPath = "/twirp/livekit.AgentDispatchService/CreateDispatch"

// AgentMetadata marks the dispatched participant as the voice agent.
const AgentMetadata = `{"kind":"agent"}`

// Dispatch describes an agent dispatch created by the media server.
type Dispatch struct {
	DispatchID string          `json:"dispatchId"`
	Room       string          `json:"room"`
	AgentName  string          `json:"agentName"`
	Metadata   string          `json:"metadata,omitempty"`
	State      json.RawMessage `json:"state,omitempty"`
}

type createDispatchRequest struct {
	Room      string `json:"room"`
	AgentName string `json:"agent_name"`
	Metadata  string `json:"metadata"`
}

// the server may answer with proto field names or their JSON camelCase form
type dispatchWire struct {
	ID             string          `json:"id"`
	Room           string          `json:"room"`
	AgentName      string          `json:"agent_name"`
	AgentNameCamel string          `json:"agentName"`
	Metadata       string          `json:"metadata"`
	State          json.RawMessage `json:"state"`
}

type twirpError struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

// DispatchClient calls the agent dispatch service.
type DispatchClient struct {
	baseURL   string
	agentName string
	tokens    *TokenIssuer
	http      *http.Client
}

func NewDispatchClient(serverURL, agentName string, tokens *TokenIssuer, client *http.Client) *DispatchClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &DispatchClient{
		baseURL:   HTTPURL(serverURL),
		agentName: agentName,
		tokens:    tokens,
		http:      client,
	}
}

// HTTPURL rewrites a ws:// or wss:// server URL to its http(s) form.
func HTTPURL(serverURL string) string {
	u := strings.TrimRight(serverURL, "/")
	switch {
	case strings.HasPrefix(u, "wss://"):
		return "https://" + strings.TrimPrefix(u, "wss://")
	case strings.HasPrefix(u, "ws://"):
		return "http://" + strings.TrimPrefix(u, "ws://")
	}
	return u
}

// Configured reports whether the client has a server URL, agent name and credentials.
func (c *DispatchClient) Configured() bool {
	return c != nil && c.baseURL != "" && c.agentName != "" && c.tokens != nil && c.tokens.Configured()
}

// CreateDispatch asks the server to send the configured agent into roomName.
func (c *DispatchClient) CreateDispatch(ctx context.Context, roomName string) (Dispatch, error) {
	if roomName == "" {
		return Dispatch{}, errors.New("room name is required")
	}
	if !c.Configured() {
		return Dispatch{}, ErrNotConfigured
	}
	token, err := c.tokens.AdminToken(roomName)
	if err != nil {
		return Dispatch{}, err
	}

	body, err := json.Marshal(createDispatchRequest{
		Room:      roomName,
		AgentName: c.agentName,
		Metadata:  AgentMetadata,
	})
	if err != nil {
		return Dispatch{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+createDispatchPath, bytes.NewReader(body))
	if err != nil {
		return Dispatch{}, fmt.Errorf("build dispatch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return Dispatch{}, fmt.Errorf("create dispatch: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Dispatch{}, fmt.Errorf("read dispatch response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var te twirpError
		if json.Unmarshal(data, &te) == nil && te.Msg != "" {
			return Dispatch{}, fmt.Errorf("create dispatch: %s: %s", te.Code, te.Msg)
		}
		return Dispatch{}, fmt.Errorf("create dispatch: unexpected status %d", resp.StatusCode)
	}

	var wire dispatchWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return Dispatch{}, fmt.Errorf("decode dispatch response: %w", err)
	}
	agent := wire.AgentName
	if agent == "" {
		agent = wire.AgentNameCamel
	}
	return Dispatch{
		DispatchID: wire.ID,
		Room:       wire.Room,
		AgentName:  agent,
		Metadata:   wire.Metadata,
		State:      wire.State,
	}, nil
}

// DispatchAgent is CreateDispatch without the result.
func (c *DispatchClient) DispatchAgent(ctx context.Context, roomName string) error {
	_, err := c.CreateDispatch(ctx, roomName)
	return err
}
