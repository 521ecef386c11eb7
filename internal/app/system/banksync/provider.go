package banksync

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

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/oauth2/clientcredentials"
)

// Transaction is one bank transaction as reported by the provider.
// Positive amounts are money leaving the account.
type Transaction struct {
	ID                   string          `json:"transaction_id"`
	PendingTransactionID string          `json:"pending_transaction_id,omitempty"`
	Amount               decimal.Decimal `json:"amount"`
	Date                 Date            `json:"date"`
	Name                 string          `json:"name"`
	Category             string          `json:"category,omitempty"`
	Pending              bool            `json:"pending"`
}

// RemovedTransaction identifies a transaction the provider withdrew.
type RemovedTransaction struct {
	ID string `json:"transaction_id"`
}

// Page is one response of the incremental sync endpoint.
type Page struct {
	Added      []Transaction        `json:"added"`
	Modified   []Transaction        `json:"modified"`
	Removed    []RemovedTransaction `json:"removed"`
	NextCursor string               `json:"next_cursor"`
	HasMore    bool                 `json:"has_more"`
}

// Provider pages through a link's transaction changes starting at cursor.
// An empty cursor starts from the beginning of history.
type Provider interface {
	SyncTransactions(ctx context.Context, accessToken, cursor string) (Page, error)
}

// Date is a calendar date in the provider's YYYY-MM-DD form, held at UTC
// midnight.
type Date struct{ time.Time }

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		d.Time = time.Time{}
		return nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return fmt.Errorf("bad transaction date %q: %w", s, err)
	}
	d.Time = t
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.Format(time.DateOnly) + `"`), nil
}

// ErrProvider wraps non-2xx provider responses.
var ErrProvider = errors.New("bank provider error")

// HTTPConfig configures HTTPProvider.
type HTTPConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	TokenURL     string
	PageSize     int
}

// HTTPProvider calls POST {BaseURL}/transactions/sync authenticated with
// OAuth2 client credentials.
type HTTPProvider struct {
	baseURL  string
	pageSize int
	client   *http.Client
}

// NewHTTPProvider builds a provider whose client fetches and refreshes its
// own access token from cfg.TokenURL.
func NewHTTPProvider(ctx context.Context, cfg HTTPConfig) (*HTTPProvider, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("bank api url is required")
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.TokenURL == "" {
		return nil, errors.New("bank client id, secret and token url are required")
	}
	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       []string{"transactions:read"},
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 250
	}
	return &HTTPProvider{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		pageSize: pageSize,
		client:   cc.Client(ctx),
	}, nil
}

type syncRequest struct {
	AccessToken string `json:"access_token"`
	Cursor      string `json:"cursor,omitempty"`
	Count       int    `json:"count"`
}

// SyncTransactions fetches one page.
func (p *HTTPProvider) SyncTransactions(ctx context.Context, accessToken, cursor string) (Page, error) {
	body, err := json.Marshal(syncRequest{AccessToken: accessToken, Cursor: cursor, Count: p.pageSize})
	if err != nil {
		return Page{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/transactions/sync", bytes.NewReader(body))
	if err != nil {
		return Page{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Idempotency-Key", uuid.NewString())

	resp, err := p.client.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("transactions sync request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Page{}, fmt.Errorf("%w: status %d: %s", ErrProvider, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var page Page
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return Page{}, fmt.Errorf("decode transactions page: %w", err)
	}
	return page, nil
}
