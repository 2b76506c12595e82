package chat

import "strings"

// Terminators that end a sentence, CJK and ASCII alike.
const sentenceTerminators = "。！？，,.!?"

// SentenceSplitter extracts complete, punctuation-terminated sentences
// out of an incrementally growing text buffer.
type SentenceSplitter struct {
	buf strings.Builder
}

// Feed appends chunk and returns every newly completed sentence, each
// ending at its terminator (inclusive). The unterminated remainder stays
// buffered for the next call.
func (s *SentenceSplitter) Feed(chunk string) []string {
	s.buf.WriteString(chunk)
	text := s.buf.String()

	var sentences []string
	start := 0
	for i, r := range text {
		if !strings.ContainsRune(sentenceTerminators, r) {
			continue
		}
		end := i + len(string(r))
		sentences = append(sentences, text[start:end])
		start = end
	}
	if start == 0 {
		return nil
	}

	s.buf.Reset()
	s.buf.WriteString(text[start:])
	return sentences
}

// Flush returns the buffered remainder and resets the splitter. Called at
// stream end so a trailing unterminated fragment is not lost.
func (s *SentenceSplitter) Flush() string {
	rest := s.buf.String()
	s.buf.Reset()
	return rest
}

// Pending reports the current buffered remainder without consuming it.
func (s *SentenceSplitter) Pending() string {
	return s.buf.String()
}
