package chat

import (
	"slices"
	"testing"

	"fireside/engine"
)

func TestPrefixDiff(t *testing.T) {
	tok := func(ts ...engine.Token) []engine.Token { return ts }

	tests := []struct {
		name     string
		old      []engine.Token
		rendered []engine.Token
		wantP    int
		wantTail []engine.Token
	}{
		{
			name:     "extension reuses full prefix",
			old:      tok(1, 2, 3),
			rendered: tok(1, 2, 3, 4, 5),
			wantP:    3,
			wantTail: tok(4, 5),
		},
		{
			name:     "disjoint sequences restart from zero",
			old:      tok(1, 2, 3),
			rendered: tok(4, 5, 6),
			wantP:    0,
			wantTail: tok(4, 5, 6),
		},
		{
			name:     "identical sequences feed nothing",
			old:      tok(1, 2, 3),
			rendered: tok(1, 2, 3),
			wantP:    3,
			wantTail: nil,
		},
		{
			name:     "shrunk render truncates only",
			old:      tok(1, 2, 3, 4),
			rendered: tok(1, 2),
			wantP:    2,
			wantTail: nil,
		},
		{
			name:     "empty context feeds everything",
			old:      nil,
			rendered: tok(7, 8),
			wantP:    0,
			wantTail: tok(7, 8),
		},
		{
			name:     "divergence in the middle",
			old:      tok(1, 2, 3, 4),
			rendered: tok(1, 2, 9, 4),
			wantP:    2,
			wantTail: tok(9, 4),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, tail := prefixDiff(tt.old, tt.rendered)
			if p != tt.wantP {
				t.Errorf("p = %d, want %d", p, tt.wantP)
			}
			if !slices.Equal(tail, tt.wantTail) {
				t.Errorf("tail = %v, want %v", tail, tt.wantTail)
			}
			if !slices.Equal(tt.old[:min(p, len(tt.old))], tt.rendered[:p]) {
				t.Errorf("old[:%d] != rendered[:%d]", p, p)
			}
			rebuilt := append(slices.Clone(tt.rendered[:p]), tail...)
			if !slices.Equal(rebuilt, tt.rendered) {
				t.Errorf("rendered[:p] + tail = %v, want %v", rebuilt, tt.rendered)
			}
		})
	}
}
