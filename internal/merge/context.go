package merge

import "strings"

const sentenceTerminators = ".!?…\n"

// sentenceStart returns the offset where the sentence containing pos begins.
func sentenceStart(text string, pos int) int {
	i := strings.LastIndexAny(text[:pos], sentenceTerminators)
	if i < 0 {
		return skipSpace(text, 0, pos)
	}
	return skipSpace(text, i+terminatorLen(text, i), pos)
}

// sentenceEnd returns the offset just past the terminator that closes the
// sentence containing pos, or len(text).
func sentenceEnd(text string, pos int) int {
	i := strings.IndexAny(text[pos:], sentenceTerminators)
	if i < 0 {
		return len(text)
	}
	return pos + i + terminatorLen(text, pos+i)
}

func terminatorLen(text string, i int) int {
	if strings.HasPrefix(text[i:], "…") {
		return len("…")
	}
	return 1
}

func skipSpace(text string, from, limit int) int {
	for from < limit && isSpace(text[from]) {
		from++
	}
	return from
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// contextBounds returns the sentence(s) holding [start,end), widened by whole
// neighbouring sentences while they stay within limit bytes of the span.
func contextBounds(text string, start, end, limit int) (int, int) {
	ws := sentenceStart(text, start)
	we := sentenceEnd(text, end)

	for ws > 0 {
		k := strings.LastIndexAny(text[:ws], sentenceTerminators)
		if k < 0 {
			break
		}
		prev := sentenceStart(text, k)
		if prev >= ws || start-prev > limit {
			break
		}
		ws = prev
	}

	for we < len(text) {
		next := sentenceEnd(text, we)
		if next <= we || next-end > limit {
			break
		}
		we = next
	}
	return ws, we
}

// contextWindow is the trimmed text of contextBounds.
func contextWindow(text string, start, end, limit int) (string, int, int) {
	ws, we := contextBounds(text, start, end, limit)
	return strings.TrimSpace(text[ws:we]), ws, we
}
