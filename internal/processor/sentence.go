package processor

import "strings"

// sentence-final punctuation that closes a fragment immediately. CJK
// full-width marks need no trailing space.
const cjkBoundaries = "。！？；"

// splitSentences cuts s into complete sentences plus the unfinished
// remainder. An ASCII terminator only counts when followed by whitespace, so
// decimals ("3.14") and abbreviations mid-stream stay intact until more text
// arrives.
func splitSentences(s string) (sentences []string, rest string) {
	start := 0
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		boundary := false
		switch r {
		case '.', '!', '?':
			if i+1 < len(runes) {
				switch runes[i+1] {
				case ' ', '\n', '\r', '\t':
					boundary = true
				}
			}
		default:
			if strings.ContainsRune(cjkBoundaries, r) {
				boundary = true
			}
		}
		if boundary {
			sentence := strings.TrimSpace(string(runes[start : i+1]))
			if sentence != "" {
				sentences = append(sentences, sentence)
			}
			start = i + 1
		}
	}
	return sentences, string(runes[start:])
}
