package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"gameshop-api/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOrder() *model.Order {
	delivered := time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)
	return &model.Order{
		ID:            "o1",
		OrderNumber:   "ORD20261016AAAA",
		BuyerID:       "u1",
		CustomerEmail: "u1@example.com",
		AccountID:     "acc-1",
		Amount:        150000,
		Status:        model.OrderCompleted,
		DeliveredAt:   &delivered,
	}
}

func testDelivery() Delivery {
	return NewDelivery(testOrder(),
		&model.Account{ID: "acc-1", Title: "Mythic account", Status: model.AccountSold, Skins: []string{"Aurora"}, Credentials: []byte("sealed")},
		&model.Credentials{Username: "player", Password: "hunter2"})
}

func TestWebhookNotifier(t *testing.T) {
	t.Run("ok, retries until accepted", func(t *testing.T) {
		var calls atomic.Int32
		got := make(chan Delivery, 1)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 2 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			var d Delivery
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&d))
			got <- d
		}))
		defer srv.Close()

		n := NewWebhookNotifier(srv.URL, time.Second, 5*time.Second)
		require.NoError(t, n.OrderDelivered(t.Context(), testDelivery()))

		select {
		case d := <-got:
			require.Equal(t, "order.completed", d.Event)
			require.Equal(t, "ORD20261016AAAA", d.OrderNumber)
			require.EqualValues(t, 150000, d.Amount)
			require.Equal(t, "acc-1", d.Account.ID)
			require.Equal(t, []string{"Aurora"}, d.Account.Skins)
			require.Nil(t, d.Account.Credentials)
			require.Equal(t, "hunter2", d.Credentials.Password)
		case <-time.After(5 * time.Second):
			t.Fatal("webhook not delivered")
		}
	})

	t.Run("fail, client error is permanent", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadRequest)
		}))
		defer srv.Close()

		n := NewWebhookNotifier(srv.URL, time.Second, 5*time.Second)
		err := n.Send(t.Context(), []byte(`{}`))
		require.Error(t, err)
		require.EqualValues(t, 1, calls.Load())
	})
}

func TestLogNotifier(t *testing.T) {
	require.NoError(t, LogNotifier{}.OrderDelivered(t.Context(), testDelivery()))
}

func TestNewDelivery(t *testing.T) {
	d := NewDelivery(testOrder(), nil, nil)
	require.Equal(t, time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC), d.DeliveredAt)

	raw, err := json.Marshal(d)
	require.NoError(t, err)
	require.NotContains(t, string(raw), `"credentials"`)
	require.NotContains(t, string(raw), `"account":`)
}
