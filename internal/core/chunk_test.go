package core

import "testing"

func TestChunkSlice(t *testing.T) {
	tests := []struct {
		name      string
		keys      []string
		size      int
		wantLens  []int
	}{
		{name: "empty", keys: nil, size: 3, wantLens: nil},
		{name: "single partial", keys: []string{"a", "b"}, size: 3, wantLens: []int{2}},
		{name: "exact multiple", keys: []string{"a", "b", "c", "d"}, size: 2, wantLens: []int{2, 2}},
		{name: "remainder", keys: []string{"a", "b", "c", "d", "e"}, size: 2, wantLens: []int{2, 2, 1}},
		{name: "zero size", keys: []string{"a"}, size: 0, wantLens: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := chunkSlice(tt.keys, tt.size)
			if len(chunks) != len(tt.wantLens) {
				t.Fatalf("Expected %d chunks, got %d", len(tt.wantLens), len(chunks))
			}
			total := 0
			for i, chunk := range chunks {
				if len(chunk) != tt.wantLens[i] {
					t.Errorf("Chunk %d: expected len %d, got %d", i, tt.wantLens[i], len(chunk))
				}
				total += len(chunk)
			}
			if total != len(tt.keys) {
				t.Errorf("Chunks cover %d keys, input has %d", total, len(tt.keys))
			}
		})
	}
}
