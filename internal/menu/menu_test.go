// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package menu

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rapidaai/freya-voice-gateway/internal/apperr"
)

func TestGetMenuSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(Menu{
			Restaurant: "Freya",
			Table:      "T1",
			Products: []Product{
				{ID: "1", Name: "Pizza", Price: 150},
				{ID: "2", Name: "Kola", Price: 25},
			},
		})
	}))
	defer srv.Close()

	c := NewCollaborator(resty.New(), srv.URL, nil)
	m, err := c.GetMenu(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "Freya", m.Restaurant)
	assert.Len(t, m.Products, 2)
}

func TestGetMenuUnknownTable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewCollaborator(resty.New(), srv.URL, nil)
	_, err := c.GetMenu(context.Background(), "bad-token")
	require.Error(t, err)
	assert.Equal(t, apperr.TableUnknown, apperr.KindOf(err))
}

func TestMenuContextRendersProducts(t *testing.T) {
	m := &Menu{
		Restaurant: "Freya",
		Products: []Product{
			{Name: "Pizza", Price: 150},
		},
	}
	ctx := m.Context()
	assert.Contains(t, ctx, "Freya")
	assert.Contains(t, ctx, "Pizza")
}
