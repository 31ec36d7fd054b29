// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import (
	"fmt"
	"strings"
)

// Resolution is the output size requested for a generated poster.
type Resolution string

const (
	Resolution1K Resolution = "1K"
	Resolution2K Resolution = "2K"
	Resolution4K Resolution = "4K"
)

// ParseResolution normalises user input ("2k", " 4K ") into a Resolution.
// An empty string means the default, 1K.
func ParseResolution(s string) (Resolution, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "1K":
		return Resolution1K, nil
	case "2K":
		return Resolution2K, nil
	case "4K":
		return Resolution4K, nil
	}
	return "", fmt.Errorf("unknown resolution %q", s)
}

// Rank orders resolutions: 1K < 2K < 4K. Unknown values rank 0.
func (r Resolution) Rank() int {
	switch r {
	case Resolution1K:
		return 1
	case Resolution2K:
		return 2
	case Resolution4K:
		return 3
	}
	return 0
}

// AtMost reports whether r does not exceed limit.
func (r Resolution) AtMost(limit Resolution) bool {
	return r.Rank() > 0 && r.Rank() <= limit.Rank()
}
