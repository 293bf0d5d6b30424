// Package plaid implements the providers.AccountAggregator port against the
// Plaid REST API. Only the small slice of the API the dashboard needs is
// covered; everything is plain JSON over HTTP with the client credentials
// injected into each request body, per Plaid's convention.
package plaid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"kovara/internal/core"
	"kovara/internal/providers"
)

type Client struct {
	baseURL      string
	clientID     string
	secret       string
	clientName   string
	countryCodes []string
	httpClient   *http.Client
}

type Config struct {
	BaseURL    string // e.g. https://sandbox.plaid.com
	ClientID   string
	Secret     string
	ClientName string
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" || cfg.ClientID == "" || cfg.Secret == "" {
		return nil, fmt.Errorf("plaid: base URL, client id and secret are required")
	}
	return &Client{
		baseURL:      cfg.BaseURL,
		clientID:     cfg.ClientID,
		secret:       cfg.Secret,
		clientName:   cfg.ClientName,
		countryCodes: []string{"US"},
		httpClient:   &http.Client{Timeout: 15 * time.Second},
	}, nil
}

// post sends body to path with credentials injected and decodes the JSON
// response into out. Non-2xx responses surface the provider's error_code.
func (c *Client) post(ctx context.Context, path string, body map[string]any, out any) error {
	body["client_id"] = c.clientID
	body["secret"] = c.secret

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response from %s: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			ErrorCode    string `json:"error_code"`
			ErrorMessage string `json:"error_message"`
		}
		_ = json.Unmarshal(data, &apiErr)
		return fmt.Errorf("%s returned %d: %s %s", path, resp.StatusCode, apiErr.ErrorCode, apiErr.ErrorMessage)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response from %s: %w", path, err)
		}
	}
	return nil
}

func (c *Client) CreateLinkToken(ctx context.Context, userID, clientName string) (string, error) {
	if clientName == "" {
		clientName = c.clientName
	}
	var resp struct {
		LinkToken string `json:"link_token"`
	}
	err := c.post(ctx, "/link/token/create", map[string]any{
		"user":          map[string]string{"client_user_id": userID},
		"client_name":   clientName,
		"products":      []string{"auth"},
		"language":      "en",
		"country_codes": c.countryCodes,
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("create link token: %w", err)
	}
	return resp.LinkToken, nil
}

func (c *Client) ExchangePublicToken(ctx context.Context, publicToken string) (providers.ItemAccess, error) {
	var resp struct {
		AccessToken string `json:"access_token"`
		ItemID      string `json:"item_id"`
	}
	err := c.post(ctx, "/item/public_token/exchange", map[string]any{
		"public_token": publicToken,
	}, &resp)
	if err != nil {
		return providers.ItemAccess{}, fmt.Errorf("exchange public token: %w", err)
	}
	return providers.ItemAccess{AccessToken: resp.AccessToken, ItemID: resp.ItemID}, nil
}

type accountsGetResponse struct {
	Accounts []struct {
		AccountID string `json:"account_id"`
		Balances  struct {
			Available *float64 `json:"available"`
			Current   *float64 `json:"current"`
		} `json:"balances"`
		Mask         string  `json:"mask"`
		Name         string  `json:"name"`
		OfficialName *string `json:"official_name"`
		Type         string  `json:"type"`
		Subtype      string  `json:"subtype"`
	} `json:"accounts"`
	Item struct {
		InstitutionID string `json:"institution_id"`
	} `json:"item"`
}

// GetAccount returns the first account on the item, which is how the
// dashboard links accounts: one item per linked account.
func (c *Client) GetAccount(ctx context.Context, accessToken string) (providers.Account, error) {
	var resp accountsGetResponse
	err := c.post(ctx, "/accounts/get", map[string]any{
		"access_token": accessToken,
	}, &resp)
	if err != nil {
		return providers.Account{}, fmt.Errorf("get accounts: %w", err)
	}
	if len(resp.Accounts) == 0 {
		return providers.Account{}, fmt.Errorf("get accounts: item has no accounts")
	}

	a := resp.Accounts[0]
	account := providers.Account{
		ID:            a.AccountID,
		Name:          a.Name,
		OfficialName:  a.Name,
		Mask:          a.Mask,
		Type:          a.Type,
		Subtype:       a.Subtype,
		InstitutionID: resp.Item.InstitutionID,
	}
	if a.OfficialName != nil && *a.OfficialName != "" {
		account.OfficialName = *a.OfficialName
	}
	if a.Balances.Available != nil {
		account.AvailableBalance = dollarsToMoney(*a.Balances.Available)
	}
	if a.Balances.Current != nil {
		account.CurrentBalance = dollarsToMoney(*a.Balances.Current)
	}
	return account, nil
}

func (c *Client) GetInstitution(ctx context.Context, institutionID string) (providers.Institution, error) {
	var resp struct {
		Institution struct {
			InstitutionID string `json:"institution_id"`
			Name          string `json:"name"`
		} `json:"institution"`
	}
	err := c.post(ctx, "/institutions/get_by_id", map[string]any{
		"institution_id": institutionID,
		"country_codes":  c.countryCodes,
	}, &resp)
	if err != nil {
		return providers.Institution{}, fmt.Errorf("get institution %s: %w", institutionID, err)
	}
	return providers.Institution{ID: resp.Institution.InstitutionID, Name: resp.Institution.Name}, nil
}

func (c *Client) CreateProcessorToken(ctx context.Context, accessToken, accountID string) (string, error) {
	var resp struct {
		ProcessorToken string `json:"processor_token"`
	}
	err := c.post(ctx, "/processor/token/create", map[string]any{
		"access_token": accessToken,
		"account_id":   accountID,
		"processor":    "dwolla",
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("create processor token: %w", err)
	}
	return resp.ProcessorToken, nil
}

type transactionsSyncResponse struct {
	Added []struct {
		TransactionID  string   `json:"transaction_id"`
		Name           string   `json:"name"`
		Amount         float64  `json:"amount"`
		Pending        bool     `json:"pending"`
		PaymentChannel string   `json:"payment_channel"`
		Category       []string `json:"category"`
		Date           string   `json:"date"`
	} `json:"added"`
	NextCursor string `json:"next_cursor"`
	HasMore    bool   `json:"has_more"`
}

// ListTransactions pages through the transactions sync endpoint and returns
// every added transaction for the item.
func (c *Client) ListTransactions(ctx context.Context, accessToken string) ([]providers.ProviderTransaction, error) {
	var out []providers.ProviderTransaction
	cursor := ""
	for {
		body := map[string]any{"access_token": accessToken}
		if cursor != "" {
			body["cursor"] = cursor
		}
		var resp transactionsSyncResponse
		if err := c.post(ctx, "/transactions/sync", body, &resp); err != nil {
			return nil, fmt.Errorf("sync transactions: %w", err)
		}

		for _, tx := range resp.Added {
			date, err := time.Parse("2006-01-02", tx.Date)
			if err != nil {
				slog.WarnContext(ctx, "Skipping transaction with unparseable date",
					"transaction_id", tx.TransactionID, "date", tx.Date)
				continue
			}
			category := ""
			if len(tx.Category) > 0 {
				category = tx.Category[0]
			}
			out = append(out, providers.ProviderTransaction{
				ID:       tx.TransactionID,
				Name:     tx.Name,
				Amount:   dollarsToMoney(tx.Amount),
				Pending:  tx.Pending,
				Channel:  tx.PaymentChannel,
				Category: category,
				Date:     date,
			})
		}

		if !resp.HasMore {
			return out, nil
		}
		cursor = resp.NextCursor
	}
}

func dollarsToMoney(dollars float64) core.Money {
	cents := int64(dollars * 100)
	if diff := dollars*100 - float64(cents); diff >= 0.5 {
		cents++
	} else if diff <= -0.5 {
		cents--
	}
	return core.Money{Cents: cents}
}
