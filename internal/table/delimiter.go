package table

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
)

// ParseDelimiter maps a config or flag value to a field separator.
// "" and "auto" yield 0, meaning detect from the header line.
func ParseDelimiter(s string) (rune, error) {
	if s == "\t" {
		return '\t', nil
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return 0, nil
	case ",", "comma", "csv":
		return ',', nil
	case ";", "semicolon":
		return ';', nil
	case `\t`, "tab", "tsv":
		return '\t', nil
	case "|", "pipe":
		return '|', nil
	}
	return 0, fmt.Errorf("unsupported delimiter %q", s)
}

// DetectDelimiter picks the most frequent of tab, semicolon, pipe and comma in
// line, defaulting to comma.
func DetectDelimiter(line string) rune {
	best, bestCount := ',', strings.Count(line, ",")
	for _, d := range []rune{';', '\t', '|'} {
		if n := strings.Count(line, string(d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

// sniff resolves delim against the first line of r without consuming it.
func sniff(r io.Reader, delim rune) (io.Reader, rune, error) {
	br := bufio.NewReader(r)
	if delim != 0 {
		return br, delim, nil
	}
	peek, err := br.Peek(4096)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, 0, fmt.Errorf("read header: %w", err)
	}
	if i := bytes.IndexByte(peek, '\n'); i >= 0 {
		peek = peek[:i]
	}
	return br, DetectDelimiter(string(peek)), nil
}
