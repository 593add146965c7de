// Package cartclient is the storefront-side half of the cart reconciliation
// engine: an anonymous cart held in local storage, an authenticated cart held
// by the server, and the merge that runs when one becomes the other.
package cartclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/craftsmandu/storefront-backend-go/models"
)

// Item is one cart line as the client sees it. ID is the server subdocument
// id once authenticated, or a client-generated temporary id for guest lines.
// Price is the unit-price snapshot taken when the line was added; nil means
// the line predates snapshots and totals fall back to the live price.
type Item struct {
	ID        string          `json:"id"`
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	Size      string          `json:"size,omitempty"`
	Color     string          `json:"color,omitempty"`
	Price     *float64        `json:"price,omitempty"`
	Product   *models.Product `json:"product,omitempty"`
}

// Cart is the client-side cart view.
type Cart struct {
	Items []Item `json:"items"`
}

// MergeItem is one guest line translated for the merge endpoint.
type MergeItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	Size      string `json:"size,omitempty"`
	Color     string `json:"color,omitempty"`
}

// APIError is a non-2xx response from the cart API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cart api: %d: %s", e.StatusCode, e.Message)
}

// Client is a thin typed client for the cart and catalog endpoints.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	mu    sync.Mutex
	token string
}

func NewClient(baseURL string) *Client {
	return &Client{BaseURL: baseURL, HTTPClient: http.DefaultClient}
}

// SetToken installs the bearer token used for authenticated calls. The token
// is guarded because a deferred quantity persist can still be in flight on
// its own goroutine when a login or logout swaps it.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) bearer() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token := c.bearer(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return &APIError{StatusCode: resp.StatusCode, Message: apiErr.Error}
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// GetCart fetches the authenticated cart; the server answers an empty cart
// when none exists yet.
func (c *Client) GetCart(ctx context.Context) (*Cart, error) {
	var cart Cart
	if err := c.do(ctx, http.MethodGet, "/api/cart", nil, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// AddItem posts one line; the server applies the per-(product, size, color)
// increment-or-insert rule and validates stock.
func (c *Client) AddItem(ctx context.Context, productID string, quantity int, size, color string) (*Cart, error) {
	body := map[string]interface{}{
		"productId": productID,
		"quantity":  quantity,
	}
	if size != "" {
		body["size"] = size
	}
	if color != "" {
		body["color"] = color
	}
	var cart Cart
	if err := c.do(ctx, http.MethodPost, "/api/cart", body, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// MergeCart submits guest lines as a batch for the additive login merge.
func (c *Client) MergeCart(ctx context.Context, items []MergeItem) (*Cart, error) {
	var cart Cart
	body := map[string]interface{}{"items": items}
	if err := c.do(ctx, http.MethodPost, "/api/cart/merge", body, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// UpdateQuantity sets an absolute quantity on one line.
func (c *Client) UpdateQuantity(ctx context.Context, itemID string, quantity int) (*Cart, error) {
	var cart Cart
	body := map[string]int{"quantity": quantity}
	if err := c.do(ctx, http.MethodPut, "/api/cart/"+itemID, body, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// RemoveItem deletes one line. Deleting an absent id succeeds.
func (c *Client) RemoveItem(ctx context.Context, itemID string) (*Cart, error) {
	var cart Cart
	if err := c.do(ctx, http.MethodDelete, "/api/cart/"+itemID, nil, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// ClearCart empties the server cart; absence of a cart is already-cleared.
func (c *Client) ClearCart(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/api/cart", nil, nil)
}

// GetProduct reads one product with embedded variants, used to validate guest
// cart mutations against live stock.
func (c *Client) GetProduct(ctx context.Context, productID string) (*models.Product, error) {
	var product models.Product
	if err := c.do(ctx, http.MethodGet, "/api/products/"+productID, nil, &product); err != nil {
		return nil, err
	}
	return &product, nil
}
