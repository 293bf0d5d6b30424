// Package dwolla implements the providers.PaymentsGateway port against the
// Dwolla REST API. Dwolla is HAL-flavoured: create calls answer 201 with the
// new resource's URL in the Location header, and that URL is the identifier
// used everywhere else.
package dwolla

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"kovara/internal/core"
	"kovara/internal/providers"
)

type Client struct {
	baseURL    string
	key        string
	secret     string
	httpClient *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

type Config struct {
	BaseURL string // e.g. https://api-sandbox.dwolla.com
	Key     string
	Secret  string
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" || cfg.Key == "" || cfg.Secret == "" {
		return nil, fmt.Errorf("dwolla: base URL, key and secret are required")
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		key:        cfg.Key,
		secret:     cfg.Secret,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}, nil
}

// token returns a valid OAuth access token, refreshing via the
// client-credentials grant when the cached one is within a minute of expiry.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry.Add(-time.Minute)) {
		return c.accessToken, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	basic := base64.StdEncoding.EncodeToString([]byte(c.key + ":" + c.secret))
	req.Header.Set("Authorization", "Basic "+basic)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, body)
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}

	c.accessToken = tok.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return c.accessToken, nil
}

// post creates a resource and returns its Location header.
func (c *Client) post(ctx context.Context, target string, body any) (string, error) {
	token, err := c.token(ctx)
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	if !strings.HasPrefix(target, "http") {
		target = c.baseURL + target
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/vnd.dwolla.v1.hal+json")
	req.Header.Set("Accept", "application/vnd.dwolla.v1.hal+json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("call %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		data, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%s returned %d: %s", target, resp.StatusCode, data)
	}

	location := resp.Header.Get("Location")
	if location == "" {
		return "", fmt.Errorf("%s returned 201 without a Location header", target)
	}
	return location, nil
}

func (c *Client) CreateCustomer(ctx context.Context, p providers.CustomerParams) (string, error) {
	customerURL, err := c.post(ctx, "/customers", map[string]string{
		"firstName":   p.FirstName,
		"lastName":    p.LastName,
		"email":       p.Email,
		"type":        p.Type,
		"address1":    p.Address1,
		"city":        p.City,
		"state":       p.State,
		"postalCode":  p.PostalCode,
		"dateOfBirth": p.DateOfBirth,
		"ssn":         p.SSN,
	})
	if err != nil {
		return "", fmt.Errorf("create customer: %w", err)
	}
	return customerURL, nil
}

func (c *Client) CreateFundingSource(ctx context.Context, customerURL, name, processorToken string) (string, error) {
	fundingSourceURL, err := c.post(ctx, customerURL+"/funding-sources", map[string]string{
		"name":       name,
		"plaidToken": processorToken,
	})
	if err != nil {
		return "", fmt.Errorf("create funding source: %w", err)
	}
	return fundingSourceURL, nil
}

func (c *Client) CreateTransfer(ctx context.Context, sourceURL, destinationURL string, amount core.Money) (string, error) {
	transferURL, err := c.post(ctx, "/transfers", map[string]any{
		"_links": map[string]any{
			"source":      map[string]string{"href": sourceURL},
			"destination": map[string]string{"href": destinationURL},
		},
		"amount": map[string]string{
			"currency": "USD",
			"value":    amount.String(),
		},
	})
	if err != nil {
		return "", fmt.Errorf("create transfer: %w", err)
	}
	return transferURL, nil
}

func (c *Client) GetTransferStatus(ctx context.Context, transferURL string) (providers.TransferStatus, error) {
	token, err := c.token(ctx)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, transferURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.dwolla.v1.hal+json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("get transfer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("get transfer returned %d: %s", resp.StatusCode, data)
	}

	var transfer struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&transfer); err != nil {
		return "", fmt.Errorf("decode transfer: %w", err)
	}

	switch transfer.Status {
	case "pending":
		return providers.TransferPending, nil
	case "processed":
		return providers.TransferProcessed, nil
	case "failed":
		return providers.TransferFailed, nil
	case "cancelled":
		return providers.TransferCancelled, nil
	default:
		return "", fmt.Errorf("unknown transfer status %q", transfer.Status)
	}
}
