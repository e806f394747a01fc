// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package stt

import "strings"

// Merge implements spec §4.1's merge(old, new): since the whole buffer is
// resent on every partial call, the fresh transcript should largely overlap
// the previous one. Find the longest suffix of old that is a prefix of new
// (word-level, up to 5 words); splice in only what's new past that overlap.
// Falls back to a blind concatenation when no overlap is found.
func Merge(old, new string) string {
	trimmedNew := strings.TrimSpace(new)
	if trimmedNew == "" {
		return old
	}
	if strings.TrimSpace(old) == "" {
		return new
	}
	if old == new {
		return old
	}

	oldWords := strings.Fields(old)
	newWords := strings.Fields(new)

	maxOverlap := 5
	if maxOverlap > len(oldWords) {
		maxOverlap = len(oldWords)
	}
	if maxOverlap > len(newWords) {
		maxOverlap = len(newWords)
	}

	for n := maxOverlap; n >= 1; n-- {
		suffix := oldWords[len(oldWords)-n:]
		prefix := newWords[:n]
		if equalWords(suffix, prefix) {
			rest := newWords[n:]
			if len(rest) == 0 {
				return old
			}
			return old + " " + strings.Join(rest, " ")
		}
	}
	return old + " " + new
}

func equalWords(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
