package handlers

import (
	"reflect"
	"strings"
	"testing"
)

func TestTemplateFieldsNormalize(t *testing.T) {
	tests := []struct {
		name      string
		fields    templateFields
		wantError bool
	}{
		{"valid", templateFields{Title: "Soirée gospel", Domain: "Église"}, false},
		{"empty title", templateFields{Title: "  ", Domain: "église"}, true},
		{"empty domain", templateFields{Title: "Soirée", Domain: " "}, true},
		{"title too long", templateFields{Title: strings.Repeat("a", maxTitleLen+1), Domain: "x"}, true},
		{"accented title at limit", templateFields{Title: strings.Repeat("é", maxTitleLen), Domain: "x"}, false},
		{"domain too long", templateFields{Title: "t", Domain: strings.Repeat("d", maxDomainLen+1)}, true},
		{"description too long", templateFields{Title: "t", Domain: "d", Description: strings.Repeat("a", maxDescriptionLen+1)}, true},
		{"bad color", templateFields{Title: "t", Domain: "d", Colors: []string{"fluo"}}, true},
		{"too many colors", templateFields{Title: "t", Domain: "d", Colors: []string{"rouge", "bleu", "vert", "jaune", "noir", "blanc"}}, true},
		{"tag too long", templateFields{Title: "t", Domain: "d", Tags: []string{strings.Repeat("x", maxTagLen+1)}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.fields.normalize()
			if tt.wantError && msg == "" {
				t.Error("expected an error, got none")
			}
			if !tt.wantError && msg != "" {
				t.Errorf("unexpected error: %s", msg)
			}
		})
	}
}

func TestTemplateFieldsNormalize_Canonicalises(t *testing.T) {
	f := templateFields{
		Title:  "  Fête des mères ",
		Domain: "  Salon   de  COIFFURE ",
		Tags:   []string{" Fête", "fête", "", "Mères"},
		Colors: []string{"Rose", " #FF00AA"},
	}
	if msg := f.normalize(); msg != "" {
		t.Fatalf("normalize: %s", msg)
	}
	if f.Title != "Fête des mères" {
		t.Errorf("title = %q", f.Title)
	}
	if f.Domain != "salon de coiffure" {
		t.Errorf("domain = %q", f.Domain)
	}
	if !reflect.DeepEqual(f.Tags, []string{"fête", "mères"}) {
		t.Errorf("tags = %v", f.Tags)
	}
	if !reflect.DeepEqual(f.Colors, []string{"rose", "#ff00aa"}) {
		t.Errorf("colors = %v", f.Colors)
	}
}

func TestNormalizeTags_Limit(t *testing.T) {
	var raw []string
	for i := 0; i <= maxTags; i++ {
		raw = append(raw, strings.Repeat("t", i+1))
	}
	if _, msg := normalizeTags(raw); msg == "" {
		t.Error("expected too many tags to be rejected")
	}
	if tags, msg := normalizeTags(raw[:maxTags]); msg != "" || len(tags) != maxTags {
		t.Errorf("got %d tags, %q", len(tags), msg)
	}
}

func TestSplitList(t *testing.T) {
	if got := splitList("   "); got != nil {
		t.Errorf("splitList(blank) = %v, want nil", got)
	}
	if got := splitList("a, b,c"); len(got) != 3 {
		t.Errorf("splitList = %v", got)
	}
}

func TestValidateGrant(t *testing.T) {
	tests := []struct {
		name      string
		amount    int
		reason    string
		wantError bool
	}{
		{"valid", 10, "Bienvenue", false},
		{"negative correction", -5, "Remboursement annulé", false},
		{"zero", 0, "x", true},
		{"above max", maxGrantAmount + 1, "x", true},
		{"below min", -maxGrantAmount - 1, "x", true},
		{"at max", maxGrantAmount, "x", false},
		{"blank reason", 5, "   ", true},
		{"reason too long", 5, strings.Repeat("r", maxReasonLen+1), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := validateGrant(tt.amount, tt.reason)
			if tt.wantError != (msg != "") {
				t.Errorf("validateGrant(%d, %q) = %q", tt.amount, tt.reason, msg)
			}
		})
	}
}
