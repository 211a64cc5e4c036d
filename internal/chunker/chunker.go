// Package chunker splits content entry text into fixed-size windows
// for chunk-by-chunk analysis.
package chunker

import "unicode/utf8"

// DefaultChunkSize is the character window used when no size is configured.
const DefaultChunkSize = 2500

// Split cuts text into consecutive windows of at most size bytes.
// Window edges snap back to rune starts so a multi-byte character is
// never cut in half. Empty text yields no chunks.
func Split(text string, size int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if len(text) == 0 {
		return nil
	}

	chunks := make([]string, 0, (len(text)+size-1)/size)
	for start := 0; start < len(text); {
		end := boundary(text, start, size)
		chunks = append(chunks, text[start:end])
		start = end
	}
	return chunks
}

// Count returns the number of chunks Split would produce.
func Count(text string, size int) int {
	if size <= 0 {
		size = DefaultChunkSize
	}
	count := 0
	for start := 0; start < len(text); {
		start = boundary(text, start, size)
		count++
	}
	return count
}

// boundary returns the end of the window starting at start, pulled
// back to the nearest rune start. A rune wider than the window is
// taken whole rather than looping forever.
func boundary(text string, start, size int) int {
	end := start + size
	if end >= len(text) {
		return len(text)
	}
	for end > start && !utf8.RuneStart(text[end]) {
		end--
	}
	if end == start {
		_, width := utf8.DecodeRuneInString(text[start:])
		return start + width
	}
	return end
}
