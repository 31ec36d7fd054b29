package handlers

import (
	"errors"
	"strings"
	"unicode/utf8"

	"graphiste/internal/conversation"
)

// Validation limits for template metadata and admin actions.
const (
	maxTitleLen       = 200
	maxDomainLen      = 80
	maxDescriptionLen = 2_000
	maxTags           = 20
	maxTagLen         = 40
	maxGrantAmount    = 10_000
	maxReasonLen      = 300
)

// templateFields is the editable metadata of a reference template.
type templateFields struct {
	Title       string
	Domain      string
	Description string
	Tags        []string
	Colors      []string
}

// normalize trims the fields and canonicalises domain, tags and colors.
// It returns the first validation message, or "" when the fields are valid.
func (f *templateFields) normalize() string {
	f.Title = strings.TrimSpace(f.Title)
	f.Domain = conversation.NormalizeDomain(f.Domain)
	f.Description = strings.TrimSpace(f.Description)

	if f.Title == "" {
		return "Le titre est requis."
	}
	if utf8.RuneCountInString(f.Title) > maxTitleLen {
		return "Le titre est trop long (200 caractères maximum)."
	}
	if f.Domain == "" {
		return "Le domaine est requis."
	}
	if utf8.RuneCountInString(f.Domain) > maxDomainLen {
		return "Le domaine est trop long (80 caractères maximum)."
	}
	if utf8.RuneCountInString(f.Description) > maxDescriptionLen {
		return "La description est trop longue (2000 caractères maximum)."
	}

	tags, msg := normalizeTags(f.Tags)
	if msg != "" {
		return msg
	}
	f.Tags = tags

	if len(f.Colors) > 0 {
		colors, err := conversation.ParseColors(f.Colors, "")
		if errors.Is(err, conversation.ErrBadColor) {
			return "Couleur non reconnue."
		}
		if err != nil {
			return "Indiquez au plus 5 couleurs."
		}
		f.Colors = colors
	}
	return ""
}

func normalizeTags(raw []string) ([]string, string) {
	out := make([]string, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, t := range raw {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		if utf8.RuneCountInString(t) > maxTagLen {
			return nil, "Étiquette trop longue (40 caractères maximum)."
		}
		seen[t] = true
		out = append(out, t)
	}
	if len(out) > maxTags {
		return nil, "Trop d'étiquettes (20 maximum)."
	}
	return out, ""
}

// splitList splits a comma separated form value.
func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// validateGrant checks an admin credit grant.
func validateGrant(amount int, reason string) string {
	if amount == 0 {
		return "Le montant doit être différent de zéro."
	}
	if amount > maxGrantAmount || amount < -maxGrantAmount {
		return "Montant trop élevé (10000 crédits maximum)."
	}
	if strings.TrimSpace(reason) == "" {
		return "Le motif est requis."
	}
	if utf8.RuneCountInString(reason) > maxReasonLen {
		return "Motif trop long (300 caractères maximum)."
	}
	return ""
}
