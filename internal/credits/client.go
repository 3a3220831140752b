// Package credits reads the credit balance, lists and buys credit packages,
// and reconciles the balance after a payment redirect.
package credits

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/sjson"

	"github.com/swiftbridge/convert-client/internal/apierr"
	"github.com/swiftbridge/convert-client/internal/transport"
)

// API paths.
const (
	BalancePath  = "/api/v1/credits/balance"
	PackagesPath = "/api/v1/credits/packages"
	PurchasePath = "/api/v1/credits/purchase"
)

// MessagePurchaseFailed is shown when a purchase fails without a server message.
const MessagePurchaseFailed = "Failed to purchase credits"

// ErrEmptyPackageID is returned by Purchase for a blank package id.
var ErrEmptyPackageID = errors.New("credits: package id is required")

// Balance is the account's credit ledger.
type Balance struct {
	AvailableCredits      int    `json:"availableCredits"`
	TotalCreditsUsed      int    `json:"totalCreditsUsed"`
	TotalCreditsPurchased int    `json:"totalCreditsPurchased"`
	LastUpdated           string `json:"lastUpdated"`
}

// Package is a purchasable bundle of credits.
type Package struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Credits     int     `json:"credits"`
	Price       float64 `json:"price"`
	Currency    string  `json:"currency"`
	Popular     bool    `json:"popular"`
	Features    string  `json:"features"`
}

// PurchaseResult is either a checkout URL to open or a message when the
// purchase completed without checkout.
type PurchaseResult struct {
	CheckoutURL string `json:"checkoutUrl"`
	Message     string `json:"message"`
}

// NeedsCheckout reports whether the user must complete payment externally.
func (r PurchaseResult) NeedsCheckout() bool { return r.CheckoutURL != "" }

// Doer executes API requests. *transport.Transport satisfies it.
type Doer interface {
	Do(ctx context.Context, req transport.Request) (*transport.Response, error)
}

// Client talks to the credit endpoints.
type Client struct {
	api Doer
}

// NewClient creates a credits client.
func NewClient(api Doer) *Client {
	return &Client{api: api}
}

// Balance fetches the current balance. ok is false when the request was
// superseded because the session expired.
func (c *Client) Balance(ctx context.Context) (Balance, bool, error) {
	var b Balance
	ok, err := c.getJSON(ctx, BalancePath, &b)
	return b, ok, err
}

// Packages lists purchasable credit packages.
func (c *Client) Packages(ctx context.Context) ([]Package, error) {
	var pkgs []Package
	if _, err := c.getJSON(ctx, PackagesPath, &pkgs); err != nil {
		return nil, err
	}
	return pkgs, nil
}

// Purchase starts a purchase of packageID.
func (c *Client) Purchase(ctx context.Context, packageID string) (PurchaseResult, error) {
	packageID = strings.TrimSpace(packageID)
	if packageID == "" {
		return PurchaseResult{}, ErrEmptyPackageID
	}

	body, err := sjson.SetBytes([]byte(`{}`), "packageId", packageID)
	if err != nil {
		return PurchaseResult{}, fmt.Errorf("building purchase request: %w", err)
	}

	resp, err := c.api.Do(ctx, transport.Request{Method: http.MethodPost, Path: PurchasePath, Body: body})
	if err != nil {
		return PurchaseResult{}, err
	}

	var result PurchaseResult
	if len(resp.Body) > 0 {
		if err := json.Unmarshal(resp.Body, &result); err != nil {
			return PurchaseResult{}, apierr.NewDecodeError(err, http.MethodPost, PurchasePath, resp.Status)
		}
	}
	return result, nil
}

// PurchaseMessage returns the text to show for a failed purchase.
func PurchaseMessage(err error) string {
	if errors.Is(err, ErrEmptyPackageID) {
		return "Please choose a credit package"
	}
	classified := apierr.Classify(err)
	switch {
	case classified.ServerMessage != "":
		return classified.ServerMessage
	case classified.Kind == apierr.KindNetworkUnreachable:
		return classified.Message
	default:
		return MessagePurchaseFailed
	}
}

func (c *Client) getJSON(ctx context.Context, path string, out any) (bool, error) {
	resp, err := c.api.Do(ctx, transport.Request{Method: http.MethodGet, Path: path})
	if err != nil {
		return false, err
	}
	if resp.Superseded {
		return false, nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return false, apierr.NewDecodeError(err, http.MethodGet, path, resp.Status)
	}
	return true, nil
}
