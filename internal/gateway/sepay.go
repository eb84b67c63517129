package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gameshop-api/internal/model"

	"github.com/cenkalti/backoff/v4"
)

// SePay bank transfers are reported in Vietnam local time.
var vietnamTime = time.FixedZone("ICT", 7*60*60)

const sepayTimeLayout = "2006-01-02 15:04:05"

// SePayConfig configures the SePay adapter.
type SePayConfig struct {
	AccountNumber   string
	BankCode        string
	APIToken        string
	WebhookKey      string
	ReferencePrefix string
	QRBaseURL       string
	APIBaseURL      string
	QRTTL           time.Duration
	LookupTimeout   time.Duration
}

// SePay settles payments by VietQR bank transfer and reports them through
// the SePay webhook and user API.
type SePay struct {
	cfg        SePayConfig
	httpClient *http.Client
	refPattern *regexp.Regexp
}

// NewSePay creates a SePay adapter.
func NewSePay(cfg SePayConfig) (*SePay, error) {
	if cfg.AccountNumber == "" || cfg.BankCode == "" {
		return nil, fmt.Errorf("sepay: account number and bank code are required")
	}
	if cfg.ReferencePrefix == "" {
		cfg.ReferencePrefix = "GS"
	}
	if cfg.QRBaseURL == "" {
		cfg.QRBaseURL = "https://qr.sepay.vn/img"
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "https://my.sepay.vn/userapi"
	}
	if cfg.QRTTL == 0 {
		cfg.QRTTL = 15 * time.Minute
	}
	if cfg.LookupTimeout == 0 {
		cfg.LookupTimeout = 10 * time.Second
	}

	prefix := regexp.QuoteMeta(strings.ToUpper(cfg.ReferencePrefix))
	return &SePay{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.LookupTimeout},
		refPattern: regexp.MustCompile(fmt.Sprintf(`%s[A-Z0-9]{%d}`, prefix, ReferenceLength)),
	}, nil
}

func (g *SePay) Name() string { return "sepay" }

// CreateQRTransaction builds the VietQR image URL. SePay needs no call to
// open a transaction: the reference in the transfer content identifies it.
func (g *SePay) CreateQRTransaction(ctx context.Context, amount int64, reference string) (*QRTransaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("sepay: invalid amount %d", amount)
	}

	q := url.Values{}
	q.Set("acc", g.cfg.AccountNumber)
	q.Set("bank", g.cfg.BankCode)
	q.Set("amount", strconv.FormatInt(amount, 10))
	q.Set("des", reference)

	return &QRTransaction{
		QRURL:         g.cfg.QRBaseURL + "?" + q.Encode(),
		TransactionID: reference,
		ExpiresAt:     time.Now().UTC().Add(g.cfg.QRTTL),
	}, nil
}

type sepayTransaction struct {
	ID                 string `json:"id"`
	TransactionDate    string `json:"transaction_date"`
	AccountNumber      string `json:"account_number"`
	AmountIn           string `json:"amount_in"`
	TransactionContent string `json:"transaction_content"`
	ReferenceNumber    string `json:"reference_number"`
	Code               string `json:"code"`
}

type sepayListResponse struct {
	Status       int                `json:"status"`
	Transactions []sepayTransaction `json:"transactions"`
}

// LookupTransaction searches recent incoming transfers for the reference.
// No match means the buyer has not paid yet.
func (g *SePay) LookupTransaction(ctx context.Context, transactionID string) (*Result, error) {
	q := url.Values{}
	q.Set("account_number", g.cfg.AccountNumber)
	q.Set("limit", "100")
	endpoint := g.cfg.APIBaseURL + "/transactions/list?" + q.Encode()

	var list sepayListResponse
	var raw []byte
	var rejected error
	permanent := func(err error) error {
		rejected = err
		return backoff.Permanent(err)
	}
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+g.cfg.APIToken)
		req.Header.Set("Content-Type", "application/json")

		resp, err := g.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		raw, err = io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return err
		}
		switch {
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("sepay returned %d", resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			return permanent(fmt.Errorf("sepay returned %d: %s", resp.StatusCode, raw))
		}
		if err := json.Unmarshal(raw, &list); err != nil {
			return permanent(fmt.Errorf("sepay: decode transactions: %w", err))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff(backoff.WithMaxElapsedTime(g.cfg.LookupTimeout))
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		if rejected != nil {
			return nil, rejected
		}
		log.Printf("[SePay] Lookup %s failed: %v", transactionID, err)
		return nil, fmt.Errorf("sepay lookup %s: %v: %w", transactionID, err, model.ErrGatewayUnavailable)
	}

	want := strings.ToUpper(transactionID)
	for _, tx := range list.Transactions {
		if !g.matches(tx.Code, tx.TransactionContent, want) {
			continue
		}
		amount, err := parseSePayAmount(tx.AmountIn)
		if err != nil || amount <= 0 {
			continue
		}
		paidAt := parseSePayTime(tx.TransactionDate)
		encoded, _ := json.Marshal(tx)
		return &Result{
			Provider:      g.Name(),
			TransactionID: transactionID,
			Kind:          KindPaid,
			Amount:        amount,
			PaidAt:        paidAt,
			Raw:           string(encoded),
		}, nil
	}

	return &Result{Provider: g.Name(), TransactionID: transactionID, Kind: KindPending}, nil
}

func (g *SePay) matches(code, content, want string) bool {
	if code != "" && strings.EqualFold(code, want) {
		return true
	}
	return strings.Contains(strings.ToUpper(content), want)
}

// sepayWebhook is the body SePay posts for every bank movement.
type sepayWebhook struct {
	ID              int64   `json:"id"`
	Gateway         string  `json:"gateway"`
	TransactionDate string  `json:"transactionDate"`
	AccountNumber   string  `json:"accountNumber"`
	Code            *string `json:"code"`
	Content         string  `json:"content"`
	TransferType    string  `json:"transferType"`
	TransferAmount  int64   `json:"transferAmount"`
	ReferenceCode   string  `json:"referenceCode"`
	Description     string  `json:"description"`
}

// ParseCallback verifies the "Authorization: Apikey <key>" header and decodes
// an incoming transfer.
func (g *SePay) ParseCallback(r *http.Request) (*Result, error) {
	auth := r.Header.Get("Authorization")
	const scheme = "Apikey "
	if g.cfg.WebhookKey == "" || !strings.HasPrefix(auth, scheme) || strings.TrimSpace(auth[len(scheme):]) != g.cfg.WebhookKey {
		return nil, ErrUnauthorizedCallback
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		return nil, fmt.Errorf("sepay: read callback: %w", err)
	}

	var hook sepayWebhook
	if err := json.Unmarshal(raw, &hook); err != nil {
		return nil, fmt.Errorf("sepay: decode callback: %w", err)
	}

	if hook.TransferType != "in" {
		return nil, fmt.Errorf("transfer type %q: %w", hook.TransferType, ErrIgnoredCallback)
	}
	if hook.AccountNumber != "" && hook.AccountNumber != g.cfg.AccountNumber {
		return nil, fmt.Errorf("account %s: %w", hook.AccountNumber, ErrIgnoredCallback)
	}

	ref := ""
	if hook.Code != nil && *hook.Code != "" {
		ref = strings.ToUpper(*hook.Code)
	} else {
		ref = g.refPattern.FindString(strings.ToUpper(hook.Content))
	}
	if ref == "" {
		return nil, fmt.Errorf("no payment reference in %q: %w", hook.Content, ErrIgnoredCallback)
	}

	return &Result{
		Provider:      g.Name(),
		TransactionID: ref,
		Kind:          KindPaid,
		Amount:        hook.TransferAmount,
		PaidAt:        parseSePayTime(hook.TransactionDate),
		Raw:           string(raw),
	}, nil
}

func parseSePayAmount(s string) (int64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	return int64(f), nil
}

func parseSePayTime(s string) *time.Time {
	t, err := time.ParseInLocation(sepayTimeLayout, s, vietnamTime)
	if err != nil {
		now := time.Now().UTC()
		return &now
	}
	t = t.UTC()
	return &t
}

var _ Gateway = (*SePay)(nil)
