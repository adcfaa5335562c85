package logstream

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solana-token-lab/bankrun/internal/bank"
	"github.com/solana-token-lab/bankrun/internal/solana"
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	hub := NewHub(Options{Logger: log.New(&bytes.Buffer{}, "", 0)})
	server := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Close()
		server.Close()
	})
	return hub, "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestHub_DeliversMatchingLogs(t *testing.T) {
	hub, url := startHub(t)
	ctx := context.Background()

	sess, err := bank.Start(bank.GenesisConfig{Options: bank.Options{Sinks: []bank.ReceiptSink{hub}}})
	require.NoError(t, err)
	recipient := solana.MustNewKeypair().PublicKey()

	client, err := solana.NewWSClient(ctx, url, nil)
	require.NoError(t, err)
	defer client.Close()

	matching, err := client.SubscribeLogs(ctx, solana.LogsFilter{Mentions: []string{recipient.String()}})
	require.NoError(t, err)
	other, err := client.SubscribeLogs(ctx, solana.LogsFilter{Mentions: []string{solana.BPFLoaderUpgradeableID.String()}})
	require.NoError(t, err)
	assert.Equal(t, 1, hub.Subscribers())

	tx := solana.NewLegacyTransaction(bank.TransferInstruction(sess.Payer.PublicKey(), recipient, 5000))
	payer := sess.Payer.PublicKey()
	tx.FeePayer = &payer
	tx.RecentBlockhash = sess.LastBlockhash
	require.NoError(t, tx.PartialSign(sess.Payer))
	meta, err := sess.Bank.ProcessTransaction(ctx, tx)
	require.NoError(t, err)

	select {
	case n := <-matching:
		assert.Equal(t, meta.Signature, n.Signature)
		assert.Equal(t, meta.Slot, n.Slot)
		assert.Equal(t, meta.LogMessages, n.Logs)
		assert.Nil(t, n.Err)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for notification")
	}

	select {
	case n := <-other:
		t.Fatalf("unexpected notification for non-matching filter: %+v", n)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHub_RequestErrors(t *testing.T) {
	_, url := startHub(t)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	send := func(id uint64, method string, params ...string) solana.WSResponse {
		req := solana.WSRequest{JSONRPC: "2.0", ID: id, Method: method}
		for _, p := range params {
			req.Params = append(req.Params, json.RawMessage(p))
		}
		require.NoError(t, conn.WriteJSON(req))
		var resp solana.WSResponse
		require.NoError(t, conn.ReadJSON(&resp))
		assert.Equal(t, id, resp.ID)
		return resp
	}

	resp := send(1, "slotSubscribe")
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeMethodNotFound, resp.Error.Code)

	resp = send(2, solana.MethodLogsSubscribe, `{"mentions":["nope"]}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeInvalidParams, resp.Error.Code)

	resp = send(3, solana.MethodLogsSubscribe, `"all"`)
	require.Nil(t, resp.Error)
	var subID int64
	require.NoError(t, json.Unmarshal(resp.Result, &subID))

	resp = send(4, solana.MethodLogsUnsubscribe, string(resp.Result))
	assert.JSONEq(t, `true`, string(resp.Result))
	resp = send(5, solana.MethodLogsUnsubscribe, string(mustJSON(t, subID)))
	assert.JSONEq(t, `false`, string(resp.Result))
}

func TestHub_FailedTransactionCarriesError(t *testing.T) {
	hub, url := startHub(t)
	ctx := context.Background()

	client, err := solana.NewWSClient(ctx, url, nil)
	require.NoError(t, err)
	defer client.Close()
	ch, err := client.SubscribeLogs(ctx, solana.LogsFilter{})
	require.NoError(t, err)

	hub.OnTransaction(ctx, &solana.TransactionMeta{
		Signature:   "sig",
		Slot:        9,
		AccountKeys: []solana.PublicKey{solana.SystemProgramID},
		Err:         bank.ErrInsufficientFunds,
	})

	select {
	case n := <-ch:
		assert.Equal(t, "sig", n.Signature)
		assert.Equal(t, bank.ErrInsufficientFunds.Error(), n.Err)
		assert.Empty(t, n.Logs)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for notification")
	}
}

func TestHub_CloseDisconnectsClients(t *testing.T) {
	hub, url := startHub(t)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, hub.Close())

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
	require.Eventually(t, func() bool { return hub.Subscribers() == 0 }, time.Second, 10*time.Millisecond)
}

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
