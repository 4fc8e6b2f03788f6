// Package envato talks to the marketplace API on behalf of a signed-in buyer.
package envato

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"kairos/launch/internal/upstream"
)

const DefaultBaseURL = "https://api.envato.com"

type Account struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Image    string `json:"image"`
}

type Purchase struct {
	Code        string `json:"code"`
	License     string `json:"license"`
	PurchasedAt string `json:"purchased_at"`
	Item        struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"item"`
}

type Client struct {
	baseURL string
	http    *upstream.Client
}

func NewClient(baseURL string, httpClient *upstream.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

func (c *Client) get(ctx context.Context, token, path string, dst interface{}) error {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return c.http.DoJSON(ctx, req, dst)
}

// Account returns the buyer's marketplace profile.
func (c *Client) Account(ctx context.Context, token string) (*Account, error) {
	var account Account
	if err := c.get(ctx, token, "/v1/market/private/user/account.json", &account); err != nil {
		return nil, fmt.Errorf("get envato account: %w", err)
	}
	return &account, nil
}

// Purchases lists everything the buyer has bought.
func (c *Client) Purchases(ctx context.Context, token string) ([]Purchase, error) {
	var body struct {
		Purchases []Purchase `json:"purchases"`
	}
	if err := c.get(ctx, token, "/v3/market/buyer/purchases", &body); err != nil {
		return nil, fmt.Errorf("get envato purchases: %w", err)
	}
	return body.Purchases, nil
}

// HasPurchased reports whether the buyer owns itemID. Failures are returned
// rather than folded into false so callers can tell "not bought" from
// "couldn't ask".
func (c *Client) HasPurchased(ctx context.Context, token, itemID string) (bool, error) {
	purchases, err := c.Purchases(ctx, token)
	if err != nil {
		return false, err
	}
	for _, p := range purchases {
		if strconv.FormatInt(p.Item.ID, 10) == itemID {
			return true, nil
		}
	}
	return false, nil
}

// FindPurchase returns the purchase with the given purchase code, if any.
func (c *Client) FindPurchase(ctx context.Context, token, code string) (*Purchase, error) {
	purchases, err := c.Purchases(ctx, token)
	if err != nil {
		return nil, err
	}
	for i := range purchases {
		if strings.EqualFold(purchases[i].Code, code) {
			return &purchases[i], nil
		}
	}
	return nil, nil
}
