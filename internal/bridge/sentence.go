// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package bridge

import (
	"encoding/json"
	"regexp"
	"strings"
)

// sentenceBoundary matches the first sentence terminator followed by
// whitespace or end-of-string (spec §4.8 step 3, glossary "Sentence
// boundary").
var sentenceBoundary = regexp.MustCompile(`[.!?](\s|$)`)

// firstSentenceBoundary returns the index just past the first sentence
// terminator in s, or -1 if none is present yet.
func firstSentenceBoundary(s string) int {
	loc := sentenceBoundary.FindStringIndex(s)
	if loc == nil {
		return -1
	}
	return loc[0] + 1
}

// spokenResponseField is the permissive regex fallback named in spec §9
// "Dynamic JSON streaming".
var spokenResponseField = regexp.MustCompile(`spoken_response"\s*:\s*"([^"]*)"`)

// extractSpokenResponse best-effort pulls spoken_response out of fullText,
// which may be a complete JSON object, a partial (still-streaming) one, or
// plain text preceding the boundary (spec §4.8 step 4, §9 "Dynamic JSON
// streaming"): slice between the first '{' and the last '}' seen so far and
// attempt a permissive parse; fall back to the regex; fall back to the raw
// prefix up to the boundary. The second return value reports whether an
// actual spoken_response field was found rather than the raw-prefix
// fallback, so a caller mid-stream can defer acting on it until the field
// has genuinely closed (its content, not just the surrounding braces, may
// still be streaming in — spawning TTS on a truncated string would make
// the spoken audio diverge from the eventual ai_complete.spoken_response).
func extractSpokenResponse(fullText string, boundaryIdx int) (string, bool) {
	open := strings.IndexByte(fullText, '{')
	if open >= 0 {
		close := strings.LastIndexByte(fullText, '}')
		candidate := fullText[open:]
		if close > open {
			candidate = fullText[open : close+1]
		}
		var parsed struct {
			SpokenResponse string `json:"spoken_response"`
		}
		if err := json.Unmarshal([]byte(candidate), &parsed); err == nil && parsed.SpokenResponse != "" {
			return parsed.SpokenResponse, true
		}
		if m := spokenResponseField.FindStringSubmatch(fullText); len(m) == 2 {
			return m[1], true
		}
	}
	if boundaryIdx > 0 && boundaryIdx <= len(fullText) {
		return strings.TrimSpace(fullText[:boundaryIdx]), false
	}
	return strings.TrimSpace(fullText), false
}
