package editor

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnterminated is returned by Tokenize for a quoted word with no closing
// delimiter.
var ErrUnterminated = errors.New("unterminated string")

// Quote wraps s in single quotes, doubling any embedded single quote, so the
// editor reads it back as exactly one word.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Join quotes each argument and joins them with spaces.
func Join(args ...string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = Quote(a)
	}
	return strings.Join(quoted, " ")
}

// Tokenize splits a command line into words using the editor's quoting
// rules: 'single' and "double" quoted words with doubled delimiters as
// escapes, %{...} style blocks (balanced for {} () [] <>), and bare words.
// Expansions are not evaluated.
func Tokenize(s string) ([]string, error) {
	var words []string
	i := 0
	for i < len(s) {
		switch c := s[i]; {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '\'' || c == '"':
			word, next, err := quotedWord(s, i+1, c)
			if err != nil {
				return nil, err
			}
			words = append(words, word)
			i = next
		case c == '%' && i+1 < len(s) && isBlockOpener(s[i+1]):
			word, next, err := blockWord(s, i+1)
			if err != nil {
				return nil, err
			}
			words = append(words, word)
			i = next
		default:
			start := i
			for i < len(s) && !strings.ContainsRune(" \t\n\r", rune(s[i])) {
				i++
			}
			words = append(words, s[start:i])
		}
	}
	return words, nil
}

// quotedWord reads a word delimited by delim starting just after the
// opening delimiter. A doubled delimiter stands for one literal delimiter.
func quotedWord(s string, i int, delim byte) (string, int, error) {
	var b strings.Builder
	for i < len(s) {
		if s[i] == delim {
			if i+1 < len(s) && s[i+1] == delim {
				b.WriteByte(delim)
				i += 2
				continue
			}
			return b.String(), i + 1, nil
		}
		b.WriteByte(s[i])
		i++
	}
	return "", 0, fmt.Errorf("%w: missing %c", ErrUnterminated, delim)
}

func isBlockOpener(c byte) bool {
	switch c {
	case '{', '(', '[', '<', '|', '/', '#', '@', '!', '^', '~':
		return true
	}
	return false
}

// blockWord reads a %-block whose opening delimiter is at s[i].
func blockWord(s string, i int) (string, int, error) {
	open := s[i]
	closer, nests := open, false
	switch open {
	case '{':
		closer, nests = '}', true
	case '(':
		closer, nests = ')', true
	case '[':
		closer, nests = ']', true
	case '<':
		closer, nests = '>', true
	}

	depth := 1
	start := i + 1
	for j := start; j < len(s); j++ {
		switch {
		case nests && s[j] == open:
			depth++
		case s[j] == closer:
			depth--
			if depth == 0 {
				return s[start:j], j + 1, nil
			}
		}
	}
	return "", 0, fmt.Errorf("%w: missing %c", ErrUnterminated, closer)
}
