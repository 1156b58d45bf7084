// Package ircfmt applies and removes mIRC formatting codes.
package ircfmt

import (
	"regexp"
	"strings"
)

const (
	Bold      = "\x02"
	Color     = "\x03"
	Italic    = "\x1d"
	Underline = "\x1f"
	Reverse   = "\x16"
	Reset     = "\x0f"
)

var colorCodes = map[string]string{
	"white":  "00",
	"black":  "01",
	"navy":   "02",
	"green":  "03",
	"red":    "04",
	"brown":  "05",
	"purple": "06",
	"olive":  "07",
	"yellow": "08",
	"lime":   "09",
	"teal":   "10",
	"cyan":   "11",
	"blue":   "12",
	"pink":   "13",
	"gray":   "14",
	"grey":   "14",
	"silver": "15",
}

var formatRe = regexp.MustCompile("\x03(?:\\d{1,2}(?:,\\d{1,2})?)?|[\x02\x0f\x11\x16\x1d\x1e\x1f]")

// Known reports whether name is a color Colorize understands.
func Known(name string) bool {
	_, ok := colorCodes[strings.ToLower(name)]
	return ok
}

// Colorize wraps text in the named color. Unknown colors and empty text are
// returned unchanged. Two-digit codes keep a leading digit in text intact.
func Colorize(name, text string) string {
	code, ok := colorCodes[strings.ToLower(name)]
	if !ok || text == "" {
		return text
	}
	return Color + code + text + Color
}

// Strip removes every formatting code from text.
func Strip(text string) string {
	return formatRe.ReplaceAllString(text, "")
}

// NickColor picks a palette entry for nick: the sum of its code points
// modulo the palette size.
func NickColor(nick string, palette []string) string {
	if len(palette) == 0 {
		return ""
	}
	sum := 0
	for _, r := range nick {
		sum += int(r)
	}
	return palette[sum%len(palette)]
}
