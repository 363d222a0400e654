package flags

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExpand(t *testing.T) {
	morning := time.Date(2025, time.June, 1, 9, 5, 7, 0, time.Local)
	afternoon := time.Date(2025, time.December, 24, 14, 5, 30, 0, time.Local)
	midnight := time.Date(2009, time.January, 9, 0, 0, 3, 0, time.Local)

	tests := []struct {
		name     string
		template string
		now      time.Time
		want     string
	}{
		{"full year repeated", "%yyyy-%yyyy", morning, "2025-2025"},
		{"two digit year", "%yy", midnight, "09"},
		{"last digit of year", "%y", afternoon, "5"},
		{"padded month", "%MM", morning, "06"},
		{"month", "%M", afternoon, "12"},
		{"padded day", "%dd", morning, "01"},
		{"day", "%d", afternoon, "24"},
		{"longer hour token unaffected", "%HH:%H", afternoon, "14:14"},
		{"padded 24h hour", "%HH", morning, "09"},
		{"12h hour afternoon", "%hh/%h", afternoon, "02/2"},
		{"12h hour midnight", "%hh/%h", midnight, "12/12"},
		{"minutes", "%mm|%m", morning, "05|5"},
		{"seconds", "%ss|%s", morning, "07|7"},
		{"date", "%dd.%MM.%yyyy", afternoon, "24.12.2025"},
		{"time stamp", "%HH%mm%ss_", afternoon, "140530_"},
		{"escaped flag still substituted", "`%yyyy", morning, "2025"},
		{"mixed escaped and plain", "`%dd/%dd", morning, "01/01"},
		{"month and minute families are distinct", "%MM %mm", afternoon, "12 05"},
		{"line break marker left alone", "Best regards.{n}John Doe", morning, "Best regards.{n}John Doe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Expand(tt.template, tt.now))
		})
	}
}

func TestExpandWithoutFlagsOnlyStripsEscapes(t *testing.T) {
	now := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.Local)

	templates := map[string]string{
		"plain text":        "plain text",
		"":                  "",
		"100% sure":         "100% sure",
		"code `block`":      "code block",
		"``":                "",
		"percent % alone":   "percent % alone",
		"%Y is not a flag":  "%Y is not a flag",
		"%D and %S neither": "%D and %S neither",
	}
	for in, want := range templates {
		assert.Equal(t, want, Expand(in, now), "template %q", in)
	}
}

func TestExpandIsOrderIndependentAcrossFamilies(t *testing.T) {
	now := time.Date(2031, time.March, 4, 17, 8, 9, 0, time.Local)

	assert.Equal(t, "09-08-17-04-03-2031", Expand("%ss-%mm-%HH-%dd-%MM-%yyyy", now))
	assert.Equal(t, "2031-03-04-17-08-09", Expand("%yyyy-%MM-%dd-%HH-%mm-%ss", now))
}

func TestExpandLineBreaks(t *testing.T) {
	assert.Equal(t, "a\nb\n", ExpandLineBreaks("a{n}b{n}"))
	assert.Equal(t, "no breaks", ExpandLineBreaks("no breaks"))
}

func TestTokensLongestFirstWithinFamily(t *testing.T) {
	tokens := Tokens()
	index := make(map[string]int, len(tokens))
	for i, tok := range tokens {
		index[tok] = i
	}

	pairs := [][2]string{
		{"%yyyy", "%yy"}, {"%yy", "%y"}, {"%MM", "%M"}, {"%dd", "%d"},
		{"%HH", "%H"}, {"%hh", "%h"}, {"%mm", "%m"}, {"%ss", "%s"},
	}
	for _, p := range pairs {
		assert.Less(t, index[p[0]], index[p[1]], "%s must precede %s", p[0], p[1])
	}
	assert.Len(t, tokens, 15)
}
