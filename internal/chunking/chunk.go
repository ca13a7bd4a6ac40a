// Package chunking splits extracted document text into ordered, overlapping
// chunks bounded by a target size in characters (runes).
package chunking

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	paragraphSep = "\n\n"
	sentenceSep  = " "
)

var blankLine = regexp.MustCompile(`\n[ \t\r\f\v]*\n`)

// SemanticChunk is the deterministic splitter. Text is grouped by paragraph
// (blank-line separated) into buffers of about size runes; when the text has
// no paragraph breaks it is grouped by sentence instead. Every chunk after
// the first is prefixed with the trailing size*overlapRatio runes of the
// previous buffer, cut at a sentence or word boundary.
//
// Text that fits in size yields exactly one chunk, the trimmed input. Empty
// text yields no chunks. A single paragraph or sentence longer than size is
// emitted whole rather than cut.
func SemanticChunk(text string, size int, overlapRatio float64) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if size <= 0 || utf8.RuneCountInString(trimmed) <= size {
		return []string{trimmed}
	}
	overlapLen := int(float64(size) * overlapRatio)

	if paragraphs := splitParagraphs(trimmed); len(paragraphs) > 1 {
		return accumulate(paragraphs, size, overlapLen, paragraphSep)
	}
	return accumulate(splitSentences(trimmed), size, overlapLen, sentenceSep)
}

func accumulate(segments []string, size, overlapLen int, sep string) []string {
	var (
		chunks  []string
		buf     strings.Builder
		bufLen  int
		overlap string
	)
	sepLen := utf8.RuneCountInString(sep)

	emit := func() {
		body := buf.String()
		chunk := body
		if overlap != "" {
			chunk = overlap + sep + body
		}
		chunks = append(chunks, strings.TrimSpace(chunk))
		overlap = LastFragment(body, overlapLen)
		buf.Reset()
		bufLen = 0
	}

	for _, seg := range segments {
		segLen := utf8.RuneCountInString(seg)
		if bufLen > 0 && bufLen+segLen > size {
			emit()
		}
		if bufLen > 0 {
			buf.WriteString(sep)
			bufLen += sepLen
		}
		buf.WriteString(seg)
		bufLen += segLen
	}
	if bufLen > 0 {
		emit()
	}
	return chunks
}

func splitParagraphs(text string) []string {
	parts := blankLine.Split(text, -1)
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitSentences breaks text after '.', '!' or '?' when followed by
// whitespace. The terminator stays with its sentence.
func splitSentences(text string) []string {
	var (
		out   []string
		start int
	)
	runes := []rune(text)
	for i := 0; i < len(runes)-1; i++ {
		if isTerminator(runes[i]) && unicode.IsSpace(runes[i+1]) {
			if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
				out = append(out, s)
			}
			start = i + 1
		}
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}
