package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestNewParseError_ClipsRaw(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", MaxRawLen+50)
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"short", "1,a,b", "1,a,b"},
		{"multi line", "1,\"a\r\nb\",c", "1,\"a..."},
		{"long", long, long[:MaxRawLen] + "..."},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			pe := NewParseError("f.csv", 7, tc.raw, errors.New("bad"))
			if pe.Raw != tc.want {
				t.Fatalf("Raw=%q want %q", pe.Raw, tc.want)
			}
			if pe.Line != 7 || pe.Path != "f.csv" {
				t.Fatalf("unexpected position %s:%d", pe.Path, pe.Line)
			}
		})
	}
}
