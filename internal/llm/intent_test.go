// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIntentAdd(t *testing.T) {
	i, err := ParseIntent(`{"spoken_response":"Tamam, iki pizza ekliyorum.","intent":"add","product_name":"Pizza","quantity":2}`)
	require.NoError(t, err)
	assert.Equal(t, IntentAdd, i.Intent)
	assert.Equal(t, "Pizza", i.ProductName)
	assert.Equal(t, 2, i.Quantity)
}

func TestParseIntentUnknownFallsBackToOther(t *testing.T) {
	i, err := ParseIntent(`{"spoken_response":"hmm","intent":"dance","product_name":"","quantity":0}`)
	require.NoError(t, err)
	assert.Equal(t, IntentOther, i.Intent)
}

func TestParseIntentMalformedErrors(t *testing.T) {
	_, err := ParseIntent(`not json`)
	assert.Error(t, err)
}
