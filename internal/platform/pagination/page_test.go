package pagination

import (
	"reflect"
	"testing"
)

func TestClampPageSize(t *testing.T) {
	cfg := PageSizeConfig{Default: 50, Max: 200}
	tests := []struct {
		in   int
		want int
	}{
		{in: 0, want: 50},
		{in: -3, want: 50},
		{in: 10, want: 10},
		{in: 500, want: 200},
	}
	for _, tt := range tests {
		if got := ClampPageSize(tt.in, cfg); got != tt.want {
			t.Fatalf("ClampPageSize(%d): expected %d, got %d", tt.in, tt.want, got)
		}
	}
	if got := ClampPageSize(0, PageSizeConfig{}); got != 1 {
		t.Fatalf("expected floor of 1, got %d", got)
	}
}

func TestWindow(t *testing.T) {
	items := []string{"a", "b", "c", "d"}
	tests := []struct {
		offset, limit int
		want          []string
	}{
		{offset: 0, limit: 2, want: []string{"a", "b"}},
		{offset: 2, limit: 5, want: []string{"c", "d"}},
		{offset: -1, limit: 1, want: []string{"a"}},
		{offset: 4, limit: 1, want: []string{}},
		{offset: 0, limit: 0, want: []string{}},
	}
	for _, tt := range tests {
		if got := Window(items, tt.offset, tt.limit); !reflect.DeepEqual(got, tt.want) {
			t.Fatalf("Window(%d, %d): expected %v, got %v", tt.offset, tt.limit, tt.want, got)
		}
	}
}
