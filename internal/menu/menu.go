// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package menu is the client for the persistence collaborator (spec §6.2):
// a thin HTTP surface over the restaurant's menu, cart and check-request
// CRUD. The CRUD itself is explicitly out of scope (spec §1); this package
// only speaks the contract the engine consumes.
package menu

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/rapidaai/freya-voice-gateway/internal/apperr"
	"github.com/rapidaai/freya-voice-gateway/internal/commons"
)

// Product is one menu-item record as returned by the persistence
// collaborator.
type Product struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Price     float64  `json:"price"`
	Allergens []string `json:"allergens,omitempty"`
}

// Menu is the cacheable result of get_menu (spec §6.2). It is loaded once at
// channel-open and cached on the session. Its rendered Context() is sent in
// the system prompt of every LLM call; it is not tracked for changes and is
// not skipped when unchanged.
type Menu struct {
	Restaurant string    `json:"restaurant"`
	Table      string    `json:"table"`
	Products   []Product `json:"products"`
	Allergens  []string  `json:"allergens"`
}

// OrderItem is one line of an order-add request.
type OrderItem struct {
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
}

// OrderResult is the persistence collaborator's ack for place_order.
type OrderResult struct {
	OrderID string  `json:"order_id"`
	Total   float64 `json:"total"`
	Status  string  `json:"status"`
}

// Collaborator is the contract the engine consumes from the persistence
// collaborator (spec §6.2). The actual storage, auth, and order logic live
// outside this module.
type Collaborator interface {
	GetMenu(ctx context.Context, qrToken string) (*Menu, error)
	PlaceOrder(ctx context.Context, qrToken string, items []OrderItem) (*OrderResult, error)
	RequestCheck(ctx context.Context, qrToken string) error
}

type httpCollaborator struct {
	http    *resty.Client
	baseURL string
	logger  commons.Logger
}

// NewCollaborator builds a Collaborator backed by the shared HTTP client
// (spec §5: remote calls share one pooled client, no per-request dialing).
func NewCollaborator(http *resty.Client, baseURL string, logger commons.Logger) Collaborator {
	return &httpCollaborator{http: http, baseURL: baseURL, logger: logger}
}

func (c *httpCollaborator) GetMenu(ctx context.Context, qrToken string) (*Menu, error) {
	var out Menu
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		ForceContentType("application/json").
		Get(fmt.Sprintf("%s/tables/%s/menu", c.baseURL, qrToken))
	if err != nil {
		return nil, apperr.New(apperr.TransientUpstream, "menu.get_menu", err)
	}
	if resp.StatusCode() == 404 {
		return nil, apperr.New(apperr.TableUnknown, "menu.get_menu", fmt.Errorf("unknown table for token %q", qrToken))
	}
	if resp.IsError() {
		return nil, apperr.New(apperr.TransientUpstream, "menu.get_menu", fmt.Errorf("status %d", resp.StatusCode()))
	}
	return &out, nil
}

func (c *httpCollaborator) PlaceOrder(ctx context.Context, qrToken string, items []OrderItem) (*OrderResult, error) {
	var out OrderResult
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{"items": items}).
		SetResult(&out).
		Post(fmt.Sprintf("%s/tables/%s/orders", c.baseURL, qrToken))
	if err != nil {
		return nil, apperr.New(apperr.TransientUpstream, "menu.place_order", err)
	}
	if resp.IsError() {
		return nil, apperr.New(apperr.TransientUpstream, "menu.place_order", fmt.Errorf("status %d", resp.StatusCode()))
	}
	return &out, nil
}

func (c *httpCollaborator) RequestCheck(ctx context.Context, qrToken string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		Post(fmt.Sprintf("%s/tables/%s/check", c.baseURL, qrToken))
	if err != nil {
		return apperr.New(apperr.TransientUpstream, "menu.request_check", err)
	}
	if resp.IsError() {
		return apperr.New(apperr.TransientUpstream, "menu.request_check", fmt.Errorf("status %d", resp.StatusCode()))
	}
	return nil
}

// FindProduct looks up a product by case-insensitive name match, for
// surfacing a "recommend" intent's target as a recommendation control
// message (spec §6.1 "recommendation").
func (m *Menu) FindProduct(name string) (Product, bool) {
	if m == nil || name == "" {
		return Product{}, false
	}
	for _, p := range m.Products {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return Product{}, false
}

// Context renders the menu into a compact textual block suitable for
// inclusion in the LLM system prompt (spec §4.2 "menu context is cached at
// the session level").
func (m *Menu) Context() string {
	if m == nil {
		return ""
	}
	s := fmt.Sprintf("Restaurant: %s\n", m.Restaurant)
	for _, p := range m.Products {
		s += fmt.Sprintf("- %s: %.2f\n", p.Name, p.Price)
	}
	return s
}
