package regstore

import "strings"

// SplitText cuts text into chunks of at most chunkSize runes with the
// given rune overlap between consecutive chunks. Breaks prefer
// paragraph, then line, then space boundaries near the size limit, so
// regulation clauses stay intact where possible.
func SplitText(text string, chunkSize, overlap int) []string {
	if chunkSize <= 0 {
		return nil
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = 0
	}
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}
	chunks := make([]string, 0, len(runes)/chunkSize+1)
	start := 0
	for start < len(runes) {
		end := start + chunkSize
		if end >= len(runes) {
			chunk := strings.TrimSpace(string(runes[start:]))
			if chunk != "" {
				chunks = append(chunks, chunk)
			}
			break
		}
		cut := end
		if at := lastBoundary(runes, start, end); at > start {
			cut = at
		}
		chunk := strings.TrimSpace(string(runes[start:cut]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		next := cut - overlap
		if next <= start {
			next = cut
		}
		start = next
	}
	return chunks
}

// lastBoundary finds the rightmost preferred break point in
// runes[start:end]: paragraph break first, then newline, then space.
func lastBoundary(runes []rune, start, end int) int {
	for i := end - 1; i > start; i-- {
		if runes[i] == '\n' && i > start+1 && runes[i-1] == '\n' {
			return i
		}
	}
	for i := end - 1; i > start; i-- {
		if runes[i] == '\n' {
			return i
		}
	}
	for i := end - 1; i > start; i-- {
		if runes[i] == ' ' {
			return i
		}
	}
	return end
}
