// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package stt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeEmptyNewKeepsOld(t *testing.T) {
	assert.Equal(t, "iki pizza", Merge("iki pizza", ""))
	assert.Equal(t, "iki pizza", Merge("iki pizza", "   "))
}

func TestMergeEmptyOldTakesNew(t *testing.T) {
	assert.Equal(t, "iki pizza", Merge("", "iki pizza"))
}

func TestMergeIdenticalIsIdempotent(t *testing.T) {
	assert.Equal(t, "bir kola lutfen", Merge("bir kola lutfen", "bir kola lutfen"))
}

func TestMergeOverlapSplicesTail(t *testing.T) {
	got := Merge("iki pizza", "pizza lütfen")
	assert.Equal(t, "iki pizza lütfen", got)
}

func TestMergeNoOverlapConcatenates(t *testing.T) {
	got := Merge("merhaba", "bir kola")
	assert.Equal(t, "merhaba bir kola", got)
}

func TestMergeAlwaysEndsWithNew(t *testing.T) {
	cases := [][2]string{
		{"iki pizza", "pizza lütfen rica ederim"},
		{"merhaba nasilsin", "bugun hava guzel"},
		{"bir kola istiyorum", "istiyorum lutfen"},
	}
	for _, c := range cases {
		got := Merge(c[0], c[1])
		assert.True(t, strings.HasSuffix(strings.TrimSpace(got), strings.TrimSpace(c[1])),
			"Merge(%q,%q)=%q should end with new", c[0], c[1], got)
	}
}

func TestMergeOverlapCappedAtFiveWords(t *testing.T) {
	old := "bir iki uc dort bes alti yedi"
	new := "iki uc dort bes alti yedi sekiz"
	got := Merge(old, new)
	assert.True(t, strings.HasSuffix(got, "sekiz"))
}
