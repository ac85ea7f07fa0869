package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/atolpos/atolpos/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient(config.GatewayConfig{
		BaseURL:       srv.URL,
		APIKey:        "test-key",
		WebhookSecret: "whsec-test",
		Currency:      "MVR",
		TimeoutSec:    5,
	}, zap.NewNop())
	return client, srv
}

func TestNormalizeLocalID(t *testing.T) {
	assert.Equal(t, "ORD-20260830-0001", NormalizeLocalID("ord-20260830-0001"))
	assert.Equal(t, "TABLE12", NormalizeLocalID("table #12!"))

	long := NormalizeLocalID(strings.Repeat("A1-", 40))
	assert.Len(t, long, 50)

	// deterministic under retry
	assert.Equal(t, NormalizeLocalID("Order 9/b"), NormalizeLocalID("Order 9/b"))
}

func TestCreateSession(t *testing.T) {
	var got CreateSessionRequest
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/payments", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(Session{
			TransactionID: "txn-1",
			PaymentURL:    "https://pay.example/txn-1",
			State:         "CREATED",
		})
	}))

	session, err := client.CreateSession(context.Background(), CreateSessionRequest{
		LocalID:     "ORD-20260830-0001",
		AmountLaari: 8800,
		RedirectURL: "https://pos.example/return",
	})
	require.NoError(t, err)
	assert.Equal(t, "txn-1", session.TransactionID)
	assert.Equal(t, "https://pay.example/txn-1", session.PaymentURL)

	// currency defaults from config when the caller leaves it empty
	assert.Equal(t, "MVR", got.Currency)
	assert.Equal(t, int64(8800), got.AmountLaari)
}

func TestCreateSessionGatewayError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":"amount below minimum"}`))
	}))

	_, err := client.CreateSession(context.Background(), CreateSessionRequest{
		LocalID:     "ORD-1",
		AmountLaari: 1,
	})
	require.Error(t, err)

	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, http.StatusUnprocessableEntity, gwErr.Status)
	assert.Contains(t, gwErr.Body, "amount below minimum")
}

func TestGetTransactionStatus(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/payments/txn-9", r.URL.Path)
		json.NewEncoder(w).Encode(TransactionStatus{
			TransactionID: "txn-9",
			LocalID:       "ORD-20260830-0002",
			State:         "CONFIRMED",
			AmountLaari:   4400,
		})
	}))

	status, err := client.GetTransactionStatus(context.Background(), "txn-9")
	require.NoError(t, err)
	assert.Equal(t, "CONFIRMED", status.State)
	assert.Equal(t, int64(4400), status.AmountLaari)
}

func TestVerifySignature(t *testing.T) {
	client, _ := newTestClient(t, http.NewServeMux())
	payload := []byte(`{"eventId":"evt-1","state":"CONFIRMED"}`)

	assert.True(t, client.VerifySignature(payload, client.Sign(payload)))
	assert.False(t, client.VerifySignature(payload, "deadbeef"))
	assert.False(t, client.VerifySignature(payload, ""))

	// signature is over exact raw bytes; any mutation invalidates it
	tampered := []byte(`{"eventId":"evt-1","state":"FAILED"} `)
	assert.False(t, client.VerifySignature(tampered, client.Sign(payload)))
}

func TestVerifySignatureWithoutSecret(t *testing.T) {
	client := NewClient(config.GatewayConfig{BaseURL: "http://gateway.local"}, zap.NewNop())
	payload := []byte(`{}`)
	assert.False(t, client.VerifySignature(payload, client.Sign(payload)))
}
