// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package slug builds URL-friendly identifiers for marketplace templates.
// French titles are folded to ASCII: "Soirée Gospel à Cotonou" becomes
// "soiree-gospel-a-cotonou".
package slug

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxLen caps a slug; longer ones are cut at a hyphen boundary.
const MaxLen = 80

var (
	nonAlphanumeric = regexp.MustCompile(`[^a-z0-9\s-]`)
	separators      = regexp.MustCompile(`[\s-]+`)
)

// ligatures are not decomposed by NFD.
var ligatures = strings.NewReplacer("œ", "oe", "Œ", "oe", "æ", "ae", "Æ", "ae", "ß", "ss")

// fold strips combining marks after canonical decomposition.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, ligatures.Replace(s))
	if err != nil {
		return s
	}
	return out
}

// Generate creates a slug from s.
func Generate(s string) string {
	result := strings.ToLower(fold(strings.TrimSpace(s)))
	result = nonAlphanumeric.ReplaceAllString(result, "")
	result = separators.ReplaceAllString(result, "-")
	result = strings.Trim(result, "-")

	if len(result) > MaxLen {
		result = result[:MaxLen]
		if i := strings.LastIndexByte(result, '-'); i > MaxLen/2 {
			result = result[:i]
		}
		result = strings.Trim(result, "-")
	}
	return result
}

// Unique returns base, or base-2, base-3... the first one exists reports
// as free. exists errors are returned as is.
func Unique(base string, exists func(string) (bool, error)) (string, error) {
	if base == "" {
		base = "modele"
	}
	candidate := base
	for i := 2; ; i++ {
		taken, err := exists(candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
}
