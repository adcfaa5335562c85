package solana

import (
	"context"
	"encoding/json"
	"fmt"
)

// WSClient defines the log subscription side of the PubSub API.
type WSClient interface {
	// SubscribeLogs subscribes to transaction logs matching the filter.
	SubscribeLogs(ctx context.Context, filter LogsFilter) (<-chan LogNotification, error)

	// Close closes the WebSocket connection.
	Close() error
}

// LogsFilter selects which transactions a log subscription receives.
type LogsFilter struct {
	// Mentions restricts delivery to transactions referencing any of these
	// addresses. Empty means all transactions.
	Mentions []string
	// Commitment defaults to confirmed.
	Commitment Commitment
}

// Matches reports whether a transaction touching accountKeys passes the filter.
func (f LogsFilter) Matches(accountKeys []PublicKey) bool {
	if len(f.Mentions) == 0 {
		return true
	}
	for _, m := range f.Mentions {
		for _, k := range accountKeys {
			if k.String() == m {
				return true
			}
		}
	}
	return false
}

// LogNotification is the payload of a logsNotification message.
type LogNotification struct {
	Signature string
	Slot      uint64
	Logs      []string
	Err       interface{}
}

// PubSub method names.
const (
	MethodLogsSubscribe    = "logsSubscribe"
	MethodLogsUnsubscribe  = "logsUnsubscribe"
	MethodLogsNotification = "logsNotification"
)

// WSRequest is a JSON-RPC request sent over the PubSub socket.
type WSRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      uint64            `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params,omitempty"`
}

// NewLogsSubscribeRequest encodes filter as a logsSubscribe request.
func NewLogsSubscribeRequest(id uint64, filter LogsFilter) (*WSRequest, error) {
	var selector interface{} = "all"
	if len(filter.Mentions) > 0 {
		selector = map[string][]string{"mentions": filter.Mentions}
	}
	commitment := filter.Commitment
	if commitment == "" {
		commitment = CommitmentConfirmed
	}

	first, err := json.Marshal(selector)
	if err != nil {
		return nil, fmt.Errorf("marshal logs filter: %w", err)
	}
	second, err := json.Marshal(map[string]Commitment{"commitment": commitment})
	if err != nil {
		return nil, fmt.Errorf("marshal commitment: %w", err)
	}
	return &WSRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  MethodLogsSubscribe,
		Params:  []json.RawMessage{first, second},
	}, nil
}

// ParseLogsFilter decodes the params of a logsSubscribe request. The first
// param is either "all" or {"mentions": [...]}.
func ParseLogsFilter(params []json.RawMessage) (LogsFilter, error) {
	var filter LogsFilter
	if len(params) == 0 {
		return filter, fmt.Errorf("missing logs filter")
	}

	var selector string
	if err := json.Unmarshal(params[0], &selector); err == nil {
		if selector != "all" && selector != "allWithVotes" {
			return filter, fmt.Errorf("unsupported logs filter %q", selector)
		}
	} else {
		var mentions struct {
			Mentions []string `json:"mentions"`
		}
		if err := json.Unmarshal(params[0], &mentions); err != nil {
			return filter, fmt.Errorf("decode logs filter: %w", err)
		}
		if len(mentions.Mentions) == 0 {
			return filter, fmt.Errorf("mentions filter is empty")
		}
		for _, m := range mentions.Mentions {
			if _, err := ParsePublicKey(m); err != nil {
				return filter, err
			}
		}
		filter.Mentions = mentions.Mentions
	}

	if len(params) > 1 {
		var cfg struct {
			Commitment Commitment `json:"commitment"`
		}
		if err := json.Unmarshal(params[1], &cfg); err != nil {
			return filter, fmt.Errorf("decode subscription config: %w", err)
		}
		filter.Commitment = cfg.Commitment
	}
	return filter, nil
}

// WSResponse answers a WSRequest. Result carries the subscription ID for
// logsSubscribe.
type WSResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// WSNotification is a server-pushed subscription message.
type WSNotification struct {
	JSONRPC string                `json:"jsonrpc"`
	Method  string                `json:"method"`
	Params  *WSNotificationParams `json:"params"`
}

// WSNotificationParams wraps one notification for a subscription.
type WSNotificationParams struct {
	Subscription int64                `json:"subscription"`
	Result       WSNotificationResult `json:"result"`
}

// WSNotificationResult is the context/value envelope of a notification.
type WSNotificationResult struct {
	Context *WSContext  `json:"context"`
	Value   WSLogsValue `json:"value"`
}

// WSContext carries the slot of a notification.
type WSContext struct {
	Slot uint64 `json:"slot"`
}

// WSLogsValue is the value of a logsNotification.
type WSLogsValue struct {
	Signature string      `json:"signature"`
	Logs      []string    `json:"logs"`
	Err       interface{} `json:"err"`
}

// NewLogsNotification wraps n for delivery on subscription subID.
func NewLogsNotification(subID int64, n LogNotification) *WSNotification {
	logs := n.Logs
	if logs == nil {
		logs = []string{}
	}
	return &WSNotification{
		JSONRPC: "2.0",
		Method:  MethodLogsNotification,
		Params: &WSNotificationParams{
			Subscription: subID,
			Result: WSNotificationResult{
				Context: &WSContext{Slot: n.Slot},
				Value: WSLogsValue{
					Signature: n.Signature,
					Logs:      logs,
					Err:       n.Err,
				},
			},
		},
	}
}
