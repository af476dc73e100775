package chat

import "testing"

func TestReassemblyBufferFeed(t *testing.T) {
	tests := []struct {
		name  string
		feeds [][]byte
		want  []string
		ready []bool
	}{
		{
			name:  "ascii passes through",
			feeds: [][]byte{[]byte("he"), []byte("llo")},
			want:  []string{"he", "llo"},
			ready: []bool{true, true},
		},
		{
			name:  "split two byte character",
			feeds: [][]byte{{0xC3}, {0xA9}},
			want:  []string{"", "é"},
			ready: []bool{false, true},
		},
		{
			name:  "split four byte character",
			feeds: [][]byte{{0xF0, 0x9F}, {0x99, 0x82}},
			want:  []string{"", "🙂"},
			ready: []bool{false, true},
		},
		{
			name:  "garbage replaced at four bytes",
			feeds: [][]byte{{0xFF}, {0xFF}, {0xFF}, {0xFF}},
			want:  []string{"", "", "", "�"},
			ready: []bool{false, false, false, true},
		},
		{
			name:  "empty feed yields nothing",
			feeds: [][]byte{nil},
			want:  []string{""},
			ready: []bool{false},
		},
		{
			name:  "valid text after pending bytes",
			feeds: [][]byte{{0xC3}, []byte{0xA9, 'a', 'b'}},
			want:  []string{"", "éab"},
			ready: []bool{false, true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf ReassemblyBuffer
			for i, feed := range tt.feeds {
				got, ready := buf.Feed(feed)
				if ready != tt.ready[i] {
					t.Fatalf("feed %d: ready = %v, want %v", i, ready, tt.ready[i])
				}
				if got != tt.want[i] {
					t.Fatalf("feed %d: got %q, want %q", i, got, tt.want[i])
				}
			}
		})
	}
}

func TestReassemblyBufferReset(t *testing.T) {
	var buf ReassemblyBuffer
	buf.Feed([]byte{0xC3})
	if !buf.Pending() {
		t.Fatal("expected pending bytes")
	}
	buf.Reset()
	if buf.Pending() {
		t.Fatal("expected empty buffer after reset")
	}
	got, ready := buf.Feed([]byte("ok"))
	if !ready || got != "ok" {
		t.Fatalf("got %q/%v after reset, want ok/true", got, ready)
	}
}
