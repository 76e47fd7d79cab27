package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	idempotencyHeader = "Idempotency-Key"
	tokenTTL          = time.Hour
)

// tokenSigner выпускает bearer-токены для созданных пользователей.
type tokenSigner interface {
	Sign(userID, role string, ttl time.Duration) (string, time.Time, error)
}

// apiClient ходит в REST API магазина и пишет каждый вызов в collector.
type apiClient struct {
	baseURL    string
	http       *http.Client
	timeout    time.Duration
	tokens     tokenSigner
	adminToken string
	col        *collector
}

func newAPIClient(cfg config, tokens tokenSigner, col *collector) (*apiClient, error) {
	adminToken, _, err := tokens.Sign(cfg.adminID, string(domain.RoleAdmin), tokenTTL)
	if err != nil {
		return nil, fmt.Errorf("sign admin token: %w", err)
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = cfg.concurrency
	return &apiClient{
		baseURL:    strings.TrimRight(cfg.addr, "/"),
		http:       &http.Client{Transport: transport},
		timeout:    cfg.timeout,
		tokens:     tokens,
		adminToken: adminToken,
		col:        col,
	}, nil
}

type entityResponse struct {
	ID string `json:"id"`
}

// statusError: ответ API вне диапазона 2xx.
type statusError struct {
	method string
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.method, e.status, e.body)
}

// createProduct заводит товар с большим остатком, который покупают все сценарии.
func (c *apiClient) createProduct(name string, stock int, price decimal.Decimal) (string, error) {
	var out entityResponse
	err := c.call("CreateProduct", http.MethodPost, "/api/admin/products", c.adminToken, "", map[string]any{
		"name":  name,
		"price": price,
		"stock": stock,
	}, &out)
	return out.ID, err
}

// createShopper регистрирует покупателя и возвращает его токен.
func (c *apiClient) createShopper(username string) (string, error) {
	var out entityResponse
	err := c.call("CreateUser", http.MethodPost, "/api/admin/users", c.adminToken, "", map[string]any{
		"username": username,
		"email":    username + "@loadtest.local",
		"role":     string(domain.RoleUser),
	}, &out)
	if err != nil {
		return "", err
	}
	token, _, err := c.tokens.Sign(out.ID, string(domain.RoleUser), tokenTTL)
	return token, err
}

func (c *apiClient) addCartItem(token, productID string, qty int) error {
	return c.call("AddCartItem", http.MethodPost, "/api/cart/items", token, "", map[string]any{
		"product_id": productID,
		"quantity":   qty,
	}, nil)
}

func (c *apiClient) createOrder(token, key string) (string, error) {
	var out entityResponse
	err := c.call("CreateOrder", http.MethodPost, "/api/orders", token, key, map[string]any{
		"shipping_address": "Load test avenue 1",
		"notes":            "loadtest",
	}, &out)
	return out.ID, err
}

func (c *apiClient) cancelOrder(token, orderID string) error {
	return c.call("CancelOrder", http.MethodPut, "/api/orders/"+orderID+"/cancel", token, "", nil, nil)
}

func (c *apiClient) call(method, verb, path, token, key string, body any, out any) error {
	start := time.Now()
	status, err := c.do(verb, path, token, key, body, out)
	c.col.record(method, time.Since(start), status)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

func (c *apiClient) do(verb, path, token, key string, body any, out any) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		payload = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, verb, c.baseURL+path, payload)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, err
	}
	if !isSuccess(resp.StatusCode) {
		return resp.StatusCode, &statusError{method: verb + " " + path, status: resp.StatusCode, body: strings.TrimSpace(string(raw))}
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
