// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package bridge

import "strings"

// WordJaccard computes the word-level Jaccard similarity between two
// strings (spec §4.7 corrective restart: "word-level Jaccard < 0.7").
func WordJaccard(a, b string) float64 {
	setA := wordSet(a)
	setB := wordSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1
	}

	intersection := 0
	union := make(map[string]struct{}, len(setA)+len(setB))
	for w := range setA {
		union[w] = struct{}{}
		if _, ok := setB[w]; ok {
			intersection++
		}
	}
	for w := range setB {
		union[w] = struct{}{}
	}
	if len(union) == 0 {
		return 1
	}
	return float64(intersection) / float64(len(union))
}

func wordSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(s)) {
		out[w] = struct{}{}
	}
	return out
}
