// Package flags expands the dynamic date and time placeholders that may appear
// in a snippet template.
//
// Supported flags (case-sensitive):
//
//	%yyyy  full year            2025
//	%yy    two-digit year       05
//	%y     last digit of year   5
//	%MM    month                01-12
//	%M     month                1-12
//	%dd    day                  01-31
//	%d     day                  1-31
//	%HH    hour (24h)           00-23
//	%H     hour (24h)           0-23
//	%hh    hour (12h)           01-12
//	%h     hour (12h)           1-12
//	%mm    minute               00-59
//	%m     minute               0-59
//	%ss    second               00-59
//	%s     second               0-59
//
// A flag may be prefixed with the escape character (a backtick). The escaped
// form is substituted exactly like the plain one and every remaining backtick
// is stripped afterwards, so escaping does not keep a flag literal.
package flags

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// Escape is the escape prefix character.
const Escape = "`"

// LineBreak is the marker converted to a newline at firing time.
const LineBreak = "{n}"

type flag struct {
	token  string
	render func(t time.Time) string
}

// families lists flags family by family, longest token first within a family.
var families = [][]flag{
	{
		{"%yyyy", func(t time.Time) string { return strconv.Itoa(t.Year()) }},
		{"%yy", func(t time.Time) string { return fmt.Sprintf("%02d", t.Year()%100) }},
		{"%y", func(t time.Time) string { return strconv.Itoa(t.Year() % 10) }},
	},
	{
		{"%MM", func(t time.Time) string { return fmt.Sprintf("%02d", int(t.Month())) }},
		{"%M", func(t time.Time) string { return strconv.Itoa(int(t.Month())) }},
	},
	{
		{"%dd", func(t time.Time) string { return fmt.Sprintf("%02d", t.Day()) }},
		{"%d", func(t time.Time) string { return strconv.Itoa(t.Day()) }},
	},
	{
		{"%HH", func(t time.Time) string { return fmt.Sprintf("%02d", t.Hour()) }},
		{"%H", func(t time.Time) string { return strconv.Itoa(t.Hour()) }},
	},
	{
		{"%hh", func(t time.Time) string { return fmt.Sprintf("%02d", hour12(t)) }},
		{"%h", func(t time.Time) string { return strconv.Itoa(hour12(t)) }},
	},
	{
		{"%mm", func(t time.Time) string { return fmt.Sprintf("%02d", t.Minute()) }},
		{"%m", func(t time.Time) string { return strconv.Itoa(t.Minute()) }},
	},
	{
		{"%ss", func(t time.Time) string { return fmt.Sprintf("%02d", t.Second()) }},
		{"%s", func(t time.Time) string { return strconv.Itoa(t.Second()) }},
	},
}

func hour12(t time.Time) int {
	h := t.Hour() % 12
	if h == 0 {
		return 12
	}
	return h
}

// Tokens returns every recognized flag token in substitution order.
func Tokens() []string {
	var out []string
	for _, fam := range families {
		for _, f := range fam {
			out = append(out, f.token)
		}
	}
	return out
}

// Expand replaces every flag in template with its value at now and strips the
// escape character. It never fails: if expansion panics the template is
// returned unchanged.
func Expand(template string, now time.Time) (result string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("flag expansion failed", "component", "flags", "error", fmt.Sprint(r))
			result = template
		}
	}()

	result = template
	for _, fam := range families {
		for _, f := range fam {
			if !strings.Contains(result, f.token) {
				continue
			}
			value := f.render(now)
			result = strings.ReplaceAll(result, Escape+f.token, value)
			result = strings.ReplaceAll(result, f.token, value)
		}
	}
	return strings.ReplaceAll(result, Escape, "")
}

// ExpandLineBreaks converts every line-break marker to a newline.
func ExpandLineBreaks(s string) string {
	return strings.ReplaceAll(s, LineBreak, "\n")
}
