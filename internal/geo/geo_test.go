package geo

import (
	"reflect"
	"testing"
)

func TestExpand(t *testing.T) {
	tests := []struct {
		country  string
		expected []string
	}{
		{"France", []string{"france", "western europe", "europe"}},
		{"  United Kingdom ", []string{"united kingdom", "northern europe", "europe"}},
		{"JAPAN", []string{"japan", "east asia", "asia"}},
		{"Atlantis", []string{"atlantis"}},
		{"", nil},
	}

	for _, tt := range tests {
		got := Expand(tt.country)
		if !reflect.DeepEqual(got, tt.expected) {
			t.Errorf("Expand(%q) = %v, expected %v", tt.country, got, tt.expected)
		}
	}
}

func TestIntersects(t *testing.T) {
	tests := []struct {
		name     string
		country  string
		targets  []string
		expected bool
	}{
		{"exact country", "France", []string{"France"}, true},
		{"region level", "France", []string{"Western Europe"}, true},
		{"continent level", "Spain", []string{"Europe"}, true},
		{"case and whitespace", "france", []string{"  FRANCE "}, true},
		{"no overlap", "France", []string{"Japan", "Asia"}, false},
		{"unknown country self-match", "Atlantis", []string{"Atlantis"}, true},
		{"unknown country no hierarchy", "Atlantis", []string{"Europe"}, false},
		{"empty targets", "France", nil, false},
		{"empty country", "", []string{"France"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Intersects(tt.country, tt.targets); got != tt.expected {
				t.Errorf("Intersects(%q, %v) = %v, expected %v", tt.country, tt.targets, got, tt.expected)
			}
		})
	}
}
