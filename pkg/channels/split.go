package channels

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultMaxBytesPerLine keeps a PRIVMSG line under the 512 byte IRC
	// limit once the command and target are added.
	DefaultMaxBytesPerLine = 449
	DefaultMaxLines        = 4
)

var newlinesRe = regexp.MustCompile(`\n+`)

// SplitText breaks text into lines of at most maxBytes UTF-8 bytes,
// prefix and postfix included. A line cut for length ends in postfix and
// its continuation starts with prefix. With maxLines > 0 the output is
// capped at maxLines lines followed by a "..." marker. Budgets under 10
// bytes yield nothing.
func SplitText(text string, maxBytes, maxLines int, prefix, postfix string) []string {
	if maxBytes < 10 {
		return nil
	}

	text = strings.TrimRight(newlinesRe.ReplaceAllString(text, "\n"), "\n")
	seplen := len(prefix) + len(postfix)

	var (
		lines []string
		line  []string
		bytes int
	)

	for _, ch := range text {
		if ch == '\n' {
			lines = append(lines, strings.Join(line, ""))
			line = nil
			bytes = 0
			if maxLines > 0 && len(lines) == maxLines+1 {
				break
			}
			continue
		}

		b := utf8.RuneLen(ch)
		if b < 0 {
			b = 3
		}

		if bytes+b > maxBytes-seplen {
			line = append(line, postfix)
			lines = append(lines, strings.Join(line, ""))
			line = []string{prefix, string(ch)}
			bytes = b
			if maxLines > 0 && len(lines) == maxLines {
				lines = append(lines, strings.Join(line, ""))
				break
			}
		} else {
			line = append(line, string(ch))
			bytes += b
		}
	}

	if maxLines > 0 && len(lines) > maxLines {
		lines = append(lines[:len(lines)-1], "...")
	} else if len(line) > 0 {
		if maxLines > 0 && len(lines) == maxLines {
			lines = append(lines, "...")
		} else {
			lines = append(lines, strings.Join(line, ""))
		}
	}

	return lines
}
