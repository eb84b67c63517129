package gateway

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"gameshop-api/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSePay(t *testing.T, apiURL string) *SePay {
	t.Helper()

	g, err := NewSePay(SePayConfig{
		AccountNumber:   "0123499999",
		BankCode:        "MBBank",
		APIToken:        "api-token",
		WebhookKey:      "hook-key",
		ReferencePrefix: "GS",
		APIBaseURL:      apiURL,
		LookupTimeout:   2 * time.Second,
	})
	require.NoError(t, err)
	return g
}

func TestSePayCreateQRTransaction(t *testing.T) {
	g := newTestSePay(t, "")

	tx, err := g.CreateQRTransaction(t.Context(), 150000, "GSAB12CD34EF")
	require.NoError(t, err)
	require.Equal(t, "GSAB12CD34EF", tx.TransactionID)
	require.True(t, tx.ExpiresAt.After(time.Now()))

	u, err := url.Parse(tx.QRURL)
	require.NoError(t, err)
	require.Equal(t, "qr.sepay.vn", u.Host)
	require.Equal(t, "0123499999", u.Query().Get("acc"))
	require.Equal(t, "MBBank", u.Query().Get("bank"))
	require.Equal(t, "150000", u.Query().Get("amount"))
	require.Equal(t, "GSAB12CD34EF", u.Query().Get("des"))

	_, err = g.CreateQRTransaction(t.Context(), 0, "GSAB12CD34EF")
	require.Error(t, err)
}

func TestSePayLookupTransaction(t *testing.T) {
	t.Run("ok, paid", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/transactions/list", r.URL.Path)
			assert.Equal(t, "Bearer api-token", r.Header.Get("Authorization"))
			w.Write([]byte(`{"status":200,"transactions":[
				{"id":"1","transaction_date":"2026-10-16 10:00:00","amount_in":"5000.00","transaction_content":"unrelated"},
				{"id":"2","transaction_date":"2026-10-16 10:05:00","amount_in":"150000.00","transaction_content":"MBVCB 123 gsab12cd34ef thanh toan"}
			]}`))
		}))
		defer srv.Close()

		res, err := newTestSePay(t, srv.URL).LookupTransaction(t.Context(), "GSAB12CD34EF")
		require.NoError(t, err)
		require.Equal(t, KindPaid, res.Kind)
		require.Equal(t, model.PaymentSuccess, res.PaymentStatus())
		require.EqualValues(t, 150000, res.Amount)
		require.NotNil(t, res.PaidAt)
		require.Equal(t, time.Date(2026, 10, 16, 3, 5, 0, 0, time.UTC), *res.PaidAt)
	})

	t.Run("ok, not yet paid", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"status":200,"transactions":[]}`))
		}))
		defer srv.Close()

		res, err := newTestSePay(t, srv.URL).LookupTransaction(t.Context(), "GSAB12CD34EF")
		require.NoError(t, err)
		require.Equal(t, KindPending, res.Kind)
	})

	t.Run("ok, retries server errors", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.Write([]byte(`{"status":200,"transactions":[]}`))
		}))
		defer srv.Close()

		_, err := newTestSePay(t, srv.URL).LookupTransaction(t.Context(), "GSAB12CD34EF")
		require.NoError(t, err)
		require.EqualValues(t, 2, calls.Load())
	})

	t.Run("fail, unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		srv.Close()

		_, err := newTestSePay(t, srv.URL).LookupTransaction(t.Context(), "GSAB12CD34EF")
		require.ErrorIs(t, err, model.ErrGatewayUnavailable)
	})

	t.Run("fail, rejected token is not retried", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		_, err := newTestSePay(t, srv.URL).LookupTransaction(t.Context(), "GSAB12CD34EF")
		require.Error(t, err)
		require.NotErrorIs(t, err, model.ErrGatewayUnavailable)
		require.EqualValues(t, 1, calls.Load())
	})
}

func TestSePayParseCallback(t *testing.T) {
	g := newTestSePay(t, "")

	request := func(auth, body string) *http.Request {
		r := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", strings.NewReader(body))
		if auth != "" {
			r.Header.Set("Authorization", auth)
		}
		return r
	}

	t.Run("ok, incoming transfer", func(t *testing.T) {
		body := `{"id":92704,"gateway":"MBBank","transactionDate":"2026-10-16 14:02:37","accountNumber":"0123499999",
			"code":null,"content":"GSAB12CD34EF chuyen tien","transferType":"in","transferAmount":150000,"referenceCode":"FT123"}`

		res, err := g.ParseCallback(request("Apikey hook-key", body))
		require.NoError(t, err)
		require.Equal(t, "GSAB12CD34EF", res.TransactionID)
		require.Equal(t, KindPaid, res.Kind)
		require.EqualValues(t, 150000, res.Amount)
		require.Equal(t, body, res.Raw)
	})

	t.Run("ok, code field wins", func(t *testing.T) {
		body := `{"id":1,"code":"gsZZ99YY88XX","content":"anything","transferType":"in","transferAmount":1}`
		res, err := g.ParseCallback(request("Apikey hook-key", body))
		require.NoError(t, err)
		require.Equal(t, "GSZZ99YY88XX", res.TransactionID)
	})

	t.Run("fail, bad key", func(t *testing.T) {
		_, err := g.ParseCallback(request("Apikey wrong", `{}`))
		require.ErrorIs(t, err, ErrUnauthorizedCallback)
		_, err = g.ParseCallback(request("", `{}`))
		require.ErrorIs(t, err, ErrUnauthorizedCallback)
	})

	t.Run("fail, outgoing transfer ignored", func(t *testing.T) {
		body := `{"id":2,"content":"GSAB12CD34EF","transferType":"out","transferAmount":150000}`
		_, err := g.ParseCallback(request("Apikey hook-key", body))
		require.ErrorIs(t, err, ErrIgnoredCallback)
	})

	t.Run("fail, no reference", func(t *testing.T) {
		body := `{"id":3,"content":"tien nha","transferType":"in","transferAmount":150000}`
		_, err := g.ParseCallback(request("Apikey hook-key", body))
		require.ErrorIs(t, err, ErrIgnoredCallback)
	})
}

func TestResultPaymentStatus(t *testing.T) {
	cases := map[Kind]model.PaymentStatus{
		KindPending:  model.PaymentPending,
		KindPaid:     model.PaymentSuccess,
		KindFailed:   model.PaymentFailed,
		KindExpired:  model.PaymentCancelled,
		KindRefunded: model.PaymentRefunded,
	}
	for kind, want := range cases {
		t.Run(kind.String(), func(t *testing.T) {
			require.Equal(t, want, Result{Kind: kind}.PaymentStatus())
		})
	}
}

func TestNewReference(t *testing.T) {
	g := newTestSePay(t, "")

	ref := NewReference("GS")
	require.Len(t, ref, 2+ReferenceLength)
	require.Equal(t, ref, g.refPattern.FindString("THANH TOAN "+ref+" XIN CAM ON"))

	other := NewReference("GS")
	require.NotEqual(t, ref, other)
}
