package llm

import (
	"regexp"
	"strings"
)

var thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)

// StripThinking removes every <think>…</think> block from a complete
// response and trims surrounding whitespace. An unterminated block is
// dropped to the end of the string.
func StripThinking(content string) string {
	stripped := thinkBlock.ReplaceAllString(content, "")
	if idx := strings.Index(stripped, "<think>"); idx >= 0 {
		stripped = stripped[:idx]
	}
	return strings.TrimSpace(stripped)
}

const (
	thinkOpen  = "<think>"
	thinkClose = "</think>"
)

// ThinkingStripper filters <think> blocks out of a token stream where tags
// may be split across chunk boundaries. Feed each chunk in order; Write
// returns the visible portion. Not concurrent-safe.
type ThinkingStripper struct {
	inside  bool
	pending string // trailing bytes that may be a partial tag
}

// Write consumes one chunk and returns the text outside thinking blocks.
func (s *ThinkingStripper) Write(chunk string) string {
	buf := s.pending + chunk
	s.pending = ""

	var out strings.Builder
	for buf != "" {
		if s.inside {
			idx := strings.Index(buf, thinkClose)
			if idx < 0 {
				s.pending = partialSuffix(buf, thinkClose)
				return out.String()
			}
			buf = buf[idx+len(thinkClose):]
			s.inside = false
			continue
		}
		idx := strings.Index(buf, thinkOpen)
		if idx < 0 {
			keep := partialSuffix(buf, thinkOpen)
			out.WriteString(buf[:len(buf)-len(keep)])
			s.pending = keep
			return out.String()
		}
		out.WriteString(buf[:idx])
		buf = buf[idx+len(thinkOpen):]
		s.inside = true
	}
	return out.String()
}

// Flush returns any withheld text once the stream ends. Text held back as a
// possible partial open tag is emitted; an unterminated block stays dropped.
func (s *ThinkingStripper) Flush() string {
	if s.inside {
		s.pending = ""
		return ""
	}
	rest := s.pending
	s.pending = ""
	return rest
}

// partialSuffix returns the longest suffix of buf that is a proper prefix of
// tag, so a tag split across chunks is not emitted prematurely.
func partialSuffix(buf, tag string) string {
	max := len(tag) - 1
	if max > len(buf) {
		max = len(buf)
	}
	for n := max; n > 0; n-- {
		if strings.HasPrefix(tag, buf[len(buf)-n:]) {
			return buf[len(buf)-n:]
		}
	}
	return ""
}
