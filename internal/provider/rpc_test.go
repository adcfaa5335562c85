package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solana-token-lab/bankrun/internal/bank"
	"github.com/solana-token-lab/bankrun/internal/solana"
)

// fakeNode is a minimal JSON-RPC node that accepts every transaction.
type fakeNode struct {
	mu           sync.Mutex
	blockhash    solana.Hash
	sent         []string
	statusCalls  int
	confirmAfter int
	statusErr    interface{}
	methods      []string
}

func (n *fakeNode) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     uint64            `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}

		n.mu.Lock()
		defer n.mu.Unlock()
		n.methods = append(n.methods, req.Method)

		var result interface{}
		switch req.Method {
		case "getLatestBlockhash":
			result = map[string]interface{}{
				"context": map[string]interface{}{"slot": 10},
				"value": map[string]interface{}{
					"blockhash":            n.blockhash.String(),
					"lastValidBlockHeight": 160,
				},
			}
		case "sendTransaction", "simulateTransaction":
			var encoded string
			json.Unmarshal(req.Params[0], &encoded)
			wire, err := base64.StdEncoding.DecodeString(encoded)
			if err != nil || len(wire) < 65 {
				t.Errorf("bad transaction payload: %v", err)
				return
			}
			var sig solana.Signature
			copy(sig[:], wire[1:65])
			if req.Method == "sendTransaction" {
				n.sent = append(n.sent, solana.SignatureID(sig))
				result = solana.SignatureID(sig)
			} else {
				result = map[string]interface{}{
					"context": map[string]interface{}{"slot": 10},
					"value": map[string]interface{}{
						"err":           nil,
						"logs":          []string{"Program log: simulated"},
						"unitsConsumed": 150,
					},
				}
			}
		case "getSignatureStatuses":
			n.statusCalls++
			var value interface{}
			if n.statusCalls > n.confirmAfter {
				value = map[string]interface{}{
					"slot":               10,
					"confirmations":      nil,
					"err":                n.statusErr,
					"confirmationStatus": "confirmed",
				}
			}
			result = map[string]interface{}{
				"context": map[string]interface{}{"slot": 10},
				"value":   []interface{}{value},
			}
		case "getAccountInfo":
			result = map[string]interface{}{
				"context": map[string]interface{}{"slot": 11},
				"value":   nil,
			}
		default:
			t.Errorf("unexpected method %s", req.Method)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  result,
		})
	}
}

func newRPCTestProvider(t *testing.T, node *fakeNode) (*RPCProvider, *solana.Keypair) {
	t.Helper()
	server := httptest.NewServer(node.handler(t))
	t.Cleanup(server.Close)

	payer := solana.MustNewKeypair()
	client := solana.NewHTTPClient(server.URL, solana.WithMaxRetries(0))
	p := NewRPCProvider(client, solana.NewKeypairWallet(payer), RPCOptions{
		PollInterval:   5 * time.Millisecond,
		ConfirmTimeout: time.Second,
	})
	return p, payer
}

func TestRPCProvider_SendAndConfirm(t *testing.T) {
	node := &fakeNode{blockhash: solana.Hash{7, 7, 7}, confirmAfter: 2}
	p, payer := newRPCTestProvider(t, node)

	tx := solana.NewLegacyTransaction(bank.TransferInstruction(payer.PublicKey(), solana.MustNewKeypair().PublicKey(), 1))
	sig, err := p.SendAndConfirm(context.Background(), tx, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, solana.SignatureID(*tx.Signature()), sig)
	assert.Equal(t, node.blockhash, tx.RecentBlockhash)
	assert.Equal(t, []string{sig}, node.sent)
	assert.Equal(t, 3, node.statusCalls)
}

func TestRPCProvider_SendAndConfirm_Failed(t *testing.T) {
	node := &fakeNode{
		blockhash: solana.Hash{7},
		statusErr: map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}},
	}
	p, payer := newRPCTestProvider(t, node)

	tx := solana.NewLegacyTransaction(bank.TransferInstruction(payer.PublicKey(), solana.MustNewKeypair().PublicKey(), 1))
	_, err := p.SendAndConfirm(context.Background(), tx, nil, nil)
	require.ErrorIs(t, err, ErrTransactionFailed)
}

func TestRPCProvider_ConfirmTimeout(t *testing.T) {
	node := &fakeNode{blockhash: solana.Hash{7}, confirmAfter: 1 << 30}
	p, payer := newRPCTestProvider(t, node)
	p.confirmTimeout = 30 * time.Millisecond

	tx := solana.NewLegacyTransaction(bank.TransferInstruction(payer.PublicKey(), solana.MustNewKeypair().PublicKey(), 1))
	_, err := p.SendAndConfirm(context.Background(), tx, nil, nil)
	require.ErrorIs(t, err, ErrConfirmTimeout)
}

func TestRPCProvider_SendAllAndSimulate(t *testing.T) {
	node := &fakeNode{blockhash: solana.Hash{7}}
	p, payer := newRPCTestProvider(t, node)
	ctx := context.Background()

	reqs := []SendRequest{
		{Tx: solana.NewLegacyTransaction(bank.TransferInstruction(payer.PublicKey(), solana.MustNewKeypair().PublicKey(), 1))},
		{Tx: solana.NewLegacyTransaction(bank.TransferInstruction(payer.PublicKey(), solana.MustNewKeypair().PublicKey(), 2))},
	}
	sigs, err := p.SendAll(ctx, reqs, nil)
	require.NoError(t, err)
	assert.Equal(t, node.sent, sigs)

	res, err := p.Simulate(ctx, solana.NewLegacyTransaction(bank.TransferInstruction(payer.PublicKey(), solana.MustNewKeypair().PublicKey(), 3)), nil, "")
	require.NoError(t, err)
	assert.Nil(t, res.Err)
	assert.Equal(t, uint64(150), res.UnitsConsumed)
	assert.Equal(t, []string{"Program log: simulated"}, res.Logs)
}

func TestRPCConnection_NotFound(t *testing.T) {
	node := &fakeNode{blockhash: solana.Hash{7}}
	p, _ := newRPCTestProvider(t, node)

	_, err := p.Connection().GetAccountInfoAndContext(context.Background(), solana.MustNewKeypair().PublicKey(), solana.CommitmentConfirmed)
	require.ErrorIs(t, err, ErrNotFound)
}
