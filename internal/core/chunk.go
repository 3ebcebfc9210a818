package core

// lookupChunkSize bounds the number of keys passed to a single ANY($1)
// query so bulk lookups stay inside the backing store's request limits.
const lookupChunkSize = 500

// chunkSlice splits keys into consecutive slices of at most size elements.
// Used by bulk lookups that must not issue one unbounded query over a large
// key set; callers run one query per chunk and merge the results.
func chunkSlice[T any](keys []T, size int) [][]T {
	if size <= 0 || len(keys) == 0 {
		return nil
	}
	chunks := make([][]T, 0, (len(keys)+size-1)/size)
	for start := 0; start < len(keys); start += size {
		end := start + size
		if end > len(keys) {
			end = len(keys)
		}
		chunks = append(chunks, keys[start:end])
	}
	return chunks
}
