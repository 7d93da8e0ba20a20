package repl

import (
	"reflect"
	"testing"
)

func TestCompleter_Complete(t *testing.T) {
	c := NewCompleter("tree", "typename", "attach", "text", "exit")

	tests := []struct {
		prefix string
		want   []string
	}{
		{"t", []string{"text", "tree", "typename"}},
		{"ty", []string{"typename"}},
		{"attach", []string{"attach"}},
		{"x", nil},
		{"", []string{"attach", "exit", "text", "tree", "typename"}},
	}

	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			if got := c.Complete(tt.prefix); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Complete(%q) = %v, want %v", tt.prefix, got, tt.want)
			}
		})
	}
}
