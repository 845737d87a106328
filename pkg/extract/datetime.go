package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// TimeRange is the date/time extraction result. A nil Start means no date
// could be parsed; callers must skip the item rather than invent one.
type TimeRange struct {
	Start *time.Time
	End   *time.Time
}

// dateParts is the intermediate output of a single date matcher. Matchers
// that carry their own time (the English "at h:mm AM/PM" suffix) set
// hasTime so the separate time-of-day pass is skipped.
type dateParts struct {
	year, month, day int
	hasTime          bool
	hour, minute     int
}

type dateMatcher func(text string, yearHint int) *dateParts

// dateMatchers is the extraction cascade, first-match-wins. Structured
// machine-readable dates never reach this list — adapters use those
// verbatim. Order: numeric with year, numeric day.month plus year hint,
// Polish month names, English month names.
var dateMatchers = []dateMatcher{
	matchNumericDate,
	matchNumericDayMonth,
	matchPolishDate,
	matchEnglishDate,
}

// DateTime extracts start/end from free bilingual text. yearHint (0 = none)
// completes day.month dates and Polish dates that omit the year. loc is the
// wall-clock timezone the text is written in.
func DateTime(text string, yearHint int, loc *time.Location) TimeRange {
	if loc == nil {
		loc = time.Local
	}
	t := normalizeDashes(text)

	for _, match := range dateMatchers {
		parts := match(t, yearHint)
		if parts == nil {
			continue
		}
		if !validDate(parts) {
			continue
		}
		return resolveTimes(t, parts, loc)
	}
	return TimeRange{}
}

// YearHint extracts a 20xx year token from a query string, for completing
// year-less dates found in snippets returned by that query.
func YearHint(query string) int {
	m := yearRe.FindStringSubmatch(query)
	if m == nil {
		return 0
	}
	y, _ := strconv.Atoi(m[1])
	return y
}

var (
	yearRe = regexp.MustCompile(`\b(20\d{2})\b`)

	numericDateRes = []*regexp.Regexp{
		regexp.MustCompile(`\b(\d{1,2})\.(\d{1,2})\.(20\d{2})\b`),
		regexp.MustCompile(`\b(\d{1,2})-(\d{1,2})-(20\d{2})\b`),
		regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(20\d{2})\b`),
	}
	isoDateRe      = regexp.MustCompile(`\b(20\d{2})-(\d{1,2})-(\d{1,2})\b`)
	dayMonthRe     = regexp.MustCompile(`\b(\d{1,2})\.(\d{1,2})\b`)
	polishDateRe   = regexp.MustCompile(`(?i)\b(\d{1,2})\s+(stycznia|lutego|marca|kwietnia|maja|czerwca|lipca|sierpnia|września|października|listopada|grudnia|sty|lut|mar|kwi|maj|cze|lip|sie|wrz|paź|lis|gru)\.?(?:\s+(20\d{2}))?`)
	englishDateRe  = regexp.MustCompile(`(?i)\b(Jan(?:uary)?|Feb(?:ruary)?|Mar(?:ch)?|Apr(?:il)?|May|Jun(?:e)?|Jul(?:y)?|Aug(?:ust)?|Sep(?:tember)?|Oct(?:ober)?|Nov(?:ember)?|Dec(?:ember)?)\s+(\d{1,2}),\s*(20\d{2})(?:\s+at\s+(\d{1,2}):(\d{2})\s*(AM|PM))?`)
	rangeOdDoRe    = regexp.MustCompile(`(?i)\bod\s+(\d{1,2})[:.](\d{2})\s+do\s+(\d{1,2})[:.](\d{2})\b`)
	rangeRe        = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\s*-\s*(\d{1,2}):(\d{2})\b`)
	rangeDotRe     = regexp.MustCompile(`\b(\d{1,2})\.(\d{2})\s*-\s*(\d{1,2})\.(\d{2})\b`)
	singleTimeRe   = regexp.MustCompile(`(?i)\b(?:godz\.?|o|start)\s*(\d{1,2}):(\d{2})\b`)
	englishTimeRe  = regexp.MustCompile(`(?i)\bat\s+(\d{1,2}):(\d{2})\s*(AM|PM)\b`)
	dashVariantsRe = regexp.MustCompile("[–—]")
)

var polishMonths = map[string]int{
	"stycznia": 1, "lutego": 2, "marca": 3, "kwietnia": 4,
	"maja": 5, "czerwca": 6, "lipca": 7, "sierpnia": 8,
	"września": 9, "października": 10, "listopada": 11, "grudnia": 12,
	"sty": 1, "lut": 2, "mar": 3, "kwi": 4, "maj": 5, "cze": 6,
	"lip": 7, "sie": 8, "wrz": 9, "paź": 10, "lis": 11, "gru": 12,
}

var englishMonths = map[string]int{
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
	"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
}

func matchNumericDate(text string, _ int) *dateParts {
	for _, re := range numericDateRes {
		if m := re.FindStringSubmatch(text); m != nil {
			return &dateParts{
				day:   atoi(m[1]),
				month: atoi(m[2]),
				year:  atoi(m[3]),
			}
		}
	}
	if m := isoDateRe.FindStringSubmatch(text); m != nil {
		return &dateParts{
			year:  atoi(m[1]),
			month: atoi(m[2]),
			day:   atoi(m[3]),
		}
	}
	return nil
}

func matchNumericDayMonth(text string, yearHint int) *dateParts {
	if yearHint == 0 {
		return nil
	}
	// Iterate all candidates: "09.00" from a time range also matches the
	// pattern but fails month validation.
	for _, m := range dayMonthRe.FindAllStringSubmatch(text, -1) {
		parts := &dateParts{day: atoi(m[1]), month: atoi(m[2]), year: yearHint}
		if validDate(parts) {
			return parts
		}
	}
	return nil
}

func matchPolishDate(text string, yearHint int) *dateParts {
	m := polishDateRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}

	name := strings.ToLower(strings.TrimSuffix(m[2], "."))
	month, ok := polishMonths[name]
	if !ok {
		return nil
	}

	year := yearHint
	if m[3] != "" {
		year = atoi(m[3])
	}
	if year == 0 {
		return nil
	}

	return &dateParts{day: atoi(m[1]), month: month, year: year}
}

func matchEnglishDate(text string, _ int) *dateParts {
	m := englishDateRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}

	month, ok := englishMonths[strings.ToLower(m[1])[:3]]
	if !ok {
		return nil
	}

	parts := &dateParts{day: atoi(m[2]), month: month, year: atoi(m[3])}

	if m[4] != "" && m[5] != "" && m[6] != "" {
		parts.hasTime = true
		parts.hour = to24Hour(atoi(m[4]), m[6])
		parts.minute = atoi(m[5])
	}

	return parts
}

// resolveTimes runs the time-of-day pass on the resolved date: explicit
// range, then single marker, then noon. Noon rather than midnight so a
// timezone conversion cannot shift the event to the previous day.
func resolveTimes(text string, d *dateParts, loc *time.Location) TimeRange {
	mk := func(hour, minute int) time.Time {
		return time.Date(d.year, time.Month(d.month), d.day, hour, minute, 0, 0, loc)
	}

	if d.hasTime {
		start := mk(d.hour, d.minute)
		return TimeRange{Start: &start}
	}

	for _, re := range []*regexp.Regexp{rangeOdDoRe, rangeRe, rangeDotRe} {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		sh, sm := atoi(m[1]), atoi(m[2])
		eh, em := atoi(m[3]), atoi(m[4])
		if !validTime(sh, sm) || !validTime(eh, em) {
			continue
		}
		start := mk(sh, sm)
		end := mk(eh, em)
		if !end.After(start) {
			// "20:00-02:00" crosses midnight
			end = end.AddDate(0, 0, 1)
		}
		return TimeRange{Start: &start, End: &end}
	}

	if m := singleTimeRe.FindStringSubmatch(text); m != nil {
		h, min := atoi(m[1]), atoi(m[2])
		if validTime(h, min) {
			start := mk(h, min)
			return TimeRange{Start: &start}
		}
	}

	if m := englishTimeRe.FindStringSubmatch(text); m != nil {
		h := to24Hour(atoi(m[1]), m[3])
		min := atoi(m[2])
		if validTime(h, min) {
			start := mk(h, min)
			return TimeRange{Start: &start}
		}
	}

	start := mk(12, 0)
	return TimeRange{Start: &start}
}

func to24Hour(hour int, ampm string) int {
	switch strings.ToUpper(ampm) {
	case "PM":
		if hour != 12 {
			hour += 12
		}
	case "AM":
		if hour == 12 {
			hour = 0
		}
	}
	return hour
}

func normalizeDashes(text string) string {
	return dashVariantsRe.ReplaceAllString(text, "-")
}

func validDate(d *dateParts) bool {
	return d.month >= 1 && d.month <= 12 && d.day >= 1 && d.day <= 31 && d.year >= 2000
}

func validTime(h, m int) bool {
	return h >= 0 && h <= 23 && m >= 0 && m <= 59
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
