package prompt

import (
	"strconv"
	"strings"
	"text/template"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const notAvailable = "N/A"

var groupPrinter = message.NewPrinter(language.English)

// Funcs returns the helpers available to every prompt template.
func Funcs() template.FuncMap {
	return template.FuncMap{
		"num":     Number,
		"orNA":    NumberOrNA,
		"grouped": Grouped,
		"lines":   Lines,
	}
}

// Number formats v in its shortest form: 500, 2.04, 464.5.
func Number(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// NumberOrNA is Number, with zero rendered as N/A.
func NumberOrNA(v float64) string {
	if v == 0 {
		return notAvailable
	}
	return Number(v)
}

// Grouped renders n with thousands separators, or N/A for zero.
func Grouped(n int64) string {
	if n == 0 {
		return notAvailable
	}
	return groupPrinter.Sprintf("%d", n)
}

// Lines joins items with newlines.
func Lines(items []string) string {
	return strings.Join(items, "\n")
}
