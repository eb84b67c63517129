package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"gameshop-api/internal/cache"
	"gameshop-api/internal/gateway"
	"gameshop-api/internal/handler"
	"gameshop-api/internal/middleware"
	"gameshop-api/internal/model"
	"gameshop-api/internal/notify"
	"gameshop-api/internal/repository"
	"gameshop-api/internal/router"
	"gameshop-api/internal/secrets"
	"gameshop-api/internal/service"

	"github.com/stretchr/testify/require"
)

const (
	apiKey      = "front-end-key"
	loginKey    = "admin-key"
	sandboxKey  = "sandbox-key"
	accountPass = "hunter2"
)

type testServer struct {
	t         *testing.T
	srv       *httptest.Server
	store     *repository.MemoryStore
	gw        *gateway.Sandbox
	inventory *service.InventoryService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := repository.NewMemoryStore()
	events := repository.NewMemoryEventLogRepository()
	c := cache.NewMemoryCache()
	t.Cleanup(func() { _ = c.Close() })

	sealer, err := secrets.NewSealer("handler-test-secret")
	require.NoError(t, err)
	gw := gateway.NewSandbox(0, sandboxKey)

	inventory := service.NewInventoryService(store, sealer)
	allocator := service.NewAllocator(store, service.AllocatorConfig{})
	ledger := service.NewOrderLedger(store, allocator, sealer, c)
	payments := service.NewPaymentService(store, gw, c, events, ledger, service.PaymentConfig{})
	reconciler := service.NewReconciler(store, ledger, payments, notify.LogNotifier{}, 0)
	status := service.NewStatusService(store, payments, reconciler, c, 0)
	sweeper := service.NewReservationSweeper(store, ledger, allocator, 0)
	purchases := service.NewPurchaseService(ledger, payments, allocator)
	sessions := service.NewSessionService(c, 0)

	r := router.New(router.Config{
		Handler:          handler.New("gameshop-api", "test", map[string]handler.Pinger{"database": store}),
		InventoryHandler: handler.NewInventoryHandler(inventory),
		OrderHandler:     handler.NewOrderHandler(purchases, ledger, status),
		WebhookHandler:   handler.NewWebhookHandler(gw, payments),
		AuthHandler:      handler.NewAuthHandler(sessions),
		LogHandler:       handler.NewLogHandler(events),
		AdminHandler: handler.NewAdminHandler(handler.AdminDeps{
			Store:      store,
			Inventory:  inventory,
			Ledger:     ledger,
			Payments:   payments,
			Reconciler: reconciler,
			Sweeper:    sweeper,
			Driver:     "memory",
		}),
		SessionAuth: middleware.RequireSession(sessions),
		APIKeyAuth:  middleware.RequireAPIKey([]string{apiKey}),
		AdminAuth:   middleware.RequireLoginKey(loginKey),
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testServer{t: t, srv: srv, store: store, gw: gw, inventory: inventory}
}

func (s *testServer) do(method, path string, body interface{}, headers map[string]string) (int, map[string]interface{}) {
	s.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequestWithContext(s.t.Context(), method, s.srv.URL+path, &buf)
	require.NoError(s.t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()

	out := map[string]interface{}{}
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(s.t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp.StatusCode, out
}

func (s *testServer) login(buyerID string) map[string]string {
	s.t.Helper()
	code, body := s.do(http.MethodPost, "/api/v1/auth/token",
		map[string]string{"buyer_id": buyerID, "customer_name": "Buyer", "customer_email": buyerID + "@example.com"},
		map[string]string{"X-API-Key": apiKey})
	require.Equal(s.t, http.StatusOK, code)
	token := body["data"].(map[string]interface{})["token"].(string)
	return map[string]string{"X-Token": token}
}

func (s *testServer) account(price int64) *model.Account {
	s.t.Helper()
	acc, err := s.inventory.CreateAccount(s.t.Context(), service.NewAccountInput{
		Title:       "Mythic account",
		Price:       price,
		Skins:       []string{"Aurora"},
		Credentials: model.Credentials{Username: "player", Password: accountPass},
	})
	require.NoError(s.t, err)
	return acc
}

// paymentFor returns the open payment behind an order number.
func (s *testServer) paymentFor(orderNumber string) *model.Payment {
	s.t.Helper()
	ctx := s.t.Context()
	o, err := s.store.GetOrderByNumber(ctx, orderNumber)
	require.NoError(s.t, err)
	p, err := s.store.FindOpenPayment(ctx, o.ID)
	require.NoError(s.t, err)
	return p
}

func (s *testServer) callback(txID, status string, amount int64, key string) (int, map[string]interface{}) {
	s.t.Helper()
	return s.do(http.MethodPost, "/api/v1/payments/webhook",
		map[string]interface{}{"transactionId": txID, "status": status, "amount": amount},
		map[string]string{"X-Sandbox-Key": key})
}

func nested(body map[string]interface{}, keys ...string) interface{} {
	var v interface{} = body
	for _, k := range keys {
		v = v.(map[string]interface{})[k]
	}
	return v
}

func TestPurchaseFlow(t *testing.T) {
	s := newTestServer(t)
	acc := s.account(250000)
	auth := s.login("u1")

	code, body := s.do(http.MethodPost, "/api/v1/purchases", map[string]string{"accountId": acc.ID}, auth)
	require.Equal(t, http.StatusCreated, code)
	require.Equal(t, true, body["success"])
	require.Equal(t, "PENDING", nested(body, "order", "status"))
	require.EqualValues(t, 250000, nested(body, "order", "amount"))
	require.NotEmpty(t, nested(body, "sepay", "qrUrl"))
	orderNumber := nested(body, "order", "orderNumber").(string)

	t.Run("ok, repeated purchase reuses the order", func(t *testing.T) {
		code, again := s.do(http.MethodPost, "/api/v1/purchases", map[string]string{"accountId": acc.ID}, auth)
		require.Equal(t, http.StatusOK, code)
		require.Equal(t, orderNumber, nested(again, "order", "orderNumber"))
		require.Equal(t, true, again["reused"])
	})

	t.Run("ok, other buyers cannot see the order", func(t *testing.T) {
		code, status := s.do(http.MethodGet, "/api/v1/orders/status?orderNumber="+orderNumber, nil, s.login("u2"))
		require.Equal(t, http.StatusOK, code)
		require.Equal(t, false, status["found"])
		require.NotContains(t, status, "status")
	})

	t.Run("fail, credentials before payment", func(t *testing.T) {
		code, _ := s.do(http.MethodGet, "/api/v1/orders/"+orderNumber+"/credentials", nil, auth)
		require.Equal(t, http.StatusForbidden, code)
	})

	p := s.paymentFor(orderNumber)
	_, err := s.gw.Settle(p.GatewayTransactionID)
	require.NoError(t, err)
	code, cb := s.callback(p.GatewayTransactionID, "paid", p.Amount, sandboxKey)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, service.OutcomeApplied, cb["outcome"])

	code, status := s.do(http.MethodGet, "/api/v1/orders/status?orderNumber="+orderNumber, nil, auth)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, true, status["found"])
	require.Equal(t, "COMPLETED", status["status"])

	code, creds := s.do(http.MethodGet, "/api/v1/orders/"+orderNumber+"/credentials", nil, auth)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, accountPass, nested(creds, "data", "password"))

	code, list := s.do(http.MethodGet, "/api/v1/orders", nil, auth)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, list["data"], 1)

	t.Run("ok, duplicate callback is stale", func(t *testing.T) {
		code, cb := s.callback(p.GatewayTransactionID, "paid", p.Amount, sandboxKey)
		require.Equal(t, http.StatusOK, code)
		require.Equal(t, service.OutcomeStale, cb["outcome"])
	})

	t.Run("fail, sold account cannot be bought again", func(t *testing.T) {
		code, body := s.do(http.MethodPost, "/api/v1/purchases", map[string]string{"accountId": acc.ID}, s.login("u3"))
		require.Equal(t, http.StatusConflict, code)
		require.Equal(t, "ACCOUNT_UNAVAILABLE", nested(body, "error", "code"))
	})
}

func TestBuyerAuth(t *testing.T) {
	s := newTestServer(t)

	for _, tc := range []struct {
		name    string
		method  string
		path    string
		headers map[string]string
		status  int
	}{
		{"fail, purchase without session", http.MethodPost, "/api/v1/purchases", nil, http.StatusUnauthorized},
		{"fail, status with bad token", http.MethodGet, "/api/v1/orders/status?orderNumber=x", map[string]string{"X-Token": "gst_nope"}, http.StatusUnauthorized},
		{"fail, session minted without api key", http.MethodPost, "/api/v1/auth/token", nil, http.StatusUnauthorized},
		{"fail, admin without login key", http.MethodGet, "/api/v1/admin/stats", nil, http.StatusUnauthorized},
	} {
		t.Run(tc.name, func(t *testing.T) {
			code, body := s.do(tc.method, tc.path, map[string]string{}, tc.headers)
			require.Equal(t, tc.status, code)
			require.Equal(t, false, body["success"])
		})
	}

	t.Run("ok, revoked session stops working", func(t *testing.T) {
		auth := s.login("u1")
		code, _ := s.do(http.MethodPost, "/api/v1/auth/revoke", nil, auth)
		require.Equal(t, http.StatusOK, code)

		code, _ = s.do(http.MethodGet, "/api/v1/orders", nil, auth)
		require.Equal(t, http.StatusUnauthorized, code)
	})
}

func TestWebhook(t *testing.T) {
	s := newTestServer(t)

	t.Run("fail, unauthenticated callback", func(t *testing.T) {
		code, _ := s.callback("tx", "paid", 1, "wrong")
		require.Equal(t, http.StatusUnauthorized, code)
	})

	t.Run("ok, unknown status is acknowledged", func(t *testing.T) {
		code, body := s.callback("tx", "outgoing", 1, sandboxKey)
		require.Equal(t, http.StatusOK, code)
		require.Equal(t, service.OutcomeIgnored, body["outcome"])
	})

	t.Run("ok, unmatched transaction", func(t *testing.T) {
		code, body := s.callback("no-such-tx", "paid", 1, sandboxKey)
		require.Equal(t, http.StatusOK, code)
		require.Equal(t, service.OutcomeUnmatched, body["outcome"])

		code, events := s.do(http.MethodGet, "/api/v1/admin/gateway-events", nil, map[string]string{"X-Login-Key": loginKey})
		require.Equal(t, http.StatusOK, code)
		require.EqualValues(t, 1, nested(events, "meta", "total"))
	})
}

func TestBlindBoxTear(t *testing.T) {
	s := newTestServer(t)
	ctx := t.Context()
	admin := map[string]string{"X-Login-Key": loginKey}

	code, box := s.do(http.MethodPost, "/api/v1/admin/blind-boxes", map[string]interface{}{"name": "Lucky", "price": 50000}, admin)
	require.Equal(t, http.StatusCreated, code)
	boxID := nested(box, "data", "id").(string)

	acc := s.account(90000)
	code, _ = s.do(http.MethodPost, "/api/v1/admin/blind-boxes/"+boxID+"/pool", map[string]interface{}{"account_ids": []string{acc.ID}}, admin)
	require.Equal(t, http.StatusOK, code)

	code, tear := s.do(http.MethodPost, "/api/v1/blind-boxes/"+boxID+"/tear", map[string]string{"owner": "ignored"}, s.login("u1"))
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, acc.ID, nested(tear, "item", "id"))
	require.NotContains(t, tear["item"].(map[string]interface{}), "skins")

	code, body := s.do(http.MethodPost, "/api/v1/blind-boxes/"+boxID+"/tear", nil, s.login("u2"))
	require.Equal(t, http.StatusConflict, code)
	require.Equal(t, "POOL_EXHAUSTED", nested(body, "error", "code"))

	code, body = s.do(http.MethodPost, "/api/v1/blind-boxes/tear", map[string]string{"blindBoxId": boxID}, s.login("u3"))
	require.Equal(t, http.StatusConflict, code)
	require.Equal(t, "POOL_EXHAUSTED", nested(body, "error", "code"))

	code, _ = s.do(http.MethodPost, "/api/v1/blind-boxes/tear", map[string]string{"owner": "u3"}, s.login("u3"))
	require.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(http.MethodPost, "/api/v1/blind-boxes/"+boxID+"/tear", map[string]string{"blindBoxId": "other"}, s.login("u3"))
	require.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(http.MethodGet, "/api/v1/blind-boxes/"+boxID, nil, nil)
	require.Equal(t, http.StatusOK, code)

	r, err := s.store.GetReservation(ctx, acc.ID)
	require.NoError(t, err)
	require.Equal(t, "u1", r.BuyerID)

	code, box = s.do(http.MethodPost, "/api/v1/admin/blind-boxes", map[string]interface{}{"name": "Second", "price": 50000}, admin)
	require.Equal(t, http.StatusCreated, code)
	secondID := nested(box, "data", "id").(string)
	other := s.account(70000)
	code, _ = s.do(http.MethodPost, "/api/v1/admin/blind-boxes/"+secondID+"/pool", map[string]interface{}{"account_ids": []string{other.ID}}, admin)
	require.Equal(t, http.StatusOK, code)

	code, tear = s.do(http.MethodPost, "/api/v1/blind-boxes/tear", map[string]string{"blindBoxId": secondID, "owner": "u4"}, s.login("u4"))
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, other.ID, nested(tear, "item", "id"))
}

func TestAdminOrders(t *testing.T) {
	s := newTestServer(t)
	admin := map[string]string{"X-Login-Key": loginKey}

	code, created := s.do(http.MethodPost, "/api/v1/admin/accounts",
		map[string]interface{}{"title": "Legend", "price": 120000, "username": "p", "password": "x"}, admin)
	require.Equal(t, http.StatusCreated, code)
	accID := nested(created, "data", "id").(string)

	code, _ = s.do(http.MethodPost, "/api/v1/admin/accounts", map[string]interface{}{"title": "", "price": 0}, admin)
	require.Equal(t, http.StatusBadRequest, code)

	code, purchase := s.do(http.MethodPost, "/api/v1/purchases", map[string]string{"accountId": accID}, s.login("u1"))
	require.Equal(t, http.StatusCreated, code)
	o, err := s.store.GetOrderByNumber(t.Context(), nested(purchase, "order", "orderNumber").(string))
	require.NoError(t, err)

	t.Run("fail, transition outside the table", func(t *testing.T) {
		code, body := s.do(http.MethodPut, "/api/v1/admin/orders/"+o.ID+"/status", map[string]string{"status": "COMPLETED"}, admin)
		require.Equal(t, http.StatusUnprocessableEntity, code)
		require.Equal(t, "INVALID_TRANSITION", nested(body, "error", "code"))
	})

	t.Run("fail, unknown status", func(t *testing.T) {
		code, _ := s.do(http.MethodPut, "/api/v1/admin/orders/"+o.ID+"/status", map[string]string{"status": "SHIPPED"}, admin)
		require.Equal(t, http.StatusBadRequest, code)
	})

	t.Run("ok, manual payment success completes the order", func(t *testing.T) {
		p := s.paymentFor(o.OrderNumber)
		code, body := s.do(http.MethodPut, "/api/v1/admin/payments/"+p.ID+"/status", map[string]string{"status": "success"}, admin)
		require.Equal(t, http.StatusOK, code)
		require.Equal(t, "COMPLETED", nested(body, "data", "order", "status"))
	})

	t.Run("fail, completed order cannot be deleted", func(t *testing.T) {
		code, body := s.do(http.MethodDelete, "/api/v1/admin/orders/"+o.ID, nil, admin)
		require.Equal(t, http.StatusUnprocessableEntity, code)
		require.Equal(t, "UNDELETABLE", nested(body, "error", "code"))
	})

	t.Run("ok, stats and maintenance", func(t *testing.T) {
		code, stats := s.do(http.MethodGet, "/api/v1/admin/stats", nil, admin)
		require.Equal(t, http.StatusOK, code)
		require.Equal(t, "memory", nested(stats, "data", "db_type"))

		code, sweep := s.do(http.MethodPost, "/api/v1/admin/reservations/sweep", nil, admin)
		require.Equal(t, http.StatusOK, code)
		require.EqualValues(t, 0, nested(sweep, "data", "released"))

		code, _ = s.do(http.MethodPost, "/api/v1/admin/reconcile", nil, admin)
		require.Equal(t, http.StatusOK, code)
	})
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	code, body := s.do(http.MethodGet, "/api/v1/ready", nil, nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, true, nested(body, "data", "ready"))

	code, body = s.do(http.MethodGet, "/api/status", nil, nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "ok", nested(body, "data", "checks", "database"))
	require.Equal(t, "not_configured", nested(body, "data", "checks", "cache"))

	s.account(1000)
	code, body = s.do(http.MethodGet, "/api/v1/accounts", nil, nil)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, body["data"], 1)
	require.EqualValues(t, 1, nested(body, "meta", "total"))
}
