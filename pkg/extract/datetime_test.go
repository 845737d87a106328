package extract

import (
	"testing"
	"time"
)

func TestDateTimeNumericWithYear(t *testing.T) {
	got := DateTime("Koncert 12.04.2025 godz. 19:00", 0, time.UTC)
	if got.Start == nil {
		t.Fatal("expected a start time")
	}
	want := time.Date(2025, 4, 12, 19, 0, 0, 0, time.UTC)
	if !got.Start.Equal(want) {
		t.Fatalf("start = %v, want %v", got.Start, want)
	}
	if got.End != nil {
		t.Fatalf("expected no end time, got %v", got.End)
	}
}

func TestDateTimeISODateDefaultsToNoon(t *testing.T) {
	got := DateTime("Wystawa 2025-04-12 w muzeum", 0, time.UTC)
	if got.Start == nil {
		t.Fatal("expected a start time")
	}
	want := time.Date(2025, 4, 12, 12, 0, 0, 0, time.UTC)
	if !got.Start.Equal(want) {
		t.Fatalf("start = %v, want noon %v", got.Start, want)
	}
}

func TestDateTimeDayMonthNeedsYearHint(t *testing.T) {
	if got := DateTime("Spotkanie 5.06 w parku", 0, time.UTC); got.Start != nil {
		t.Fatalf("expected no date without a year hint, got %v", got.Start)
	}

	got := DateTime("Spotkanie 5.06 w parku", 2025, time.UTC)
	if got.Start == nil {
		t.Fatal("expected a start time with a year hint")
	}
	want := time.Date(2025, 6, 5, 12, 0, 0, 0, time.UTC)
	if !got.Start.Equal(want) {
		t.Fatalf("start = %v, want %v", got.Start, want)
	}
}

func TestDateTimePolishMonths(t *testing.T) {
	cases := []struct {
		name string
		text string
		hint int
		want time.Time
	}{
		{"genitive with year", "Koncert 15 marca 2026 w Radomiu", 0, time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)},
		{"genitive with hint", "Festyn 8 maja na rynku", 2025, time.Date(2025, 5, 8, 12, 0, 0, 0, time.UTC)},
		{"abbreviation", "Wernisaż 12 wrz 2025", 0, time.Date(2025, 9, 12, 12, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DateTime(tc.text, tc.hint, time.UTC)
			if got.Start == nil {
				t.Fatalf("expected a start time for %q", tc.text)
			}
			if !got.Start.Equal(tc.want) {
				t.Fatalf("start = %v, want %v", got.Start, tc.want)
			}
		})
	}
}

func TestDateTimePolishWithoutYearOrHint(t *testing.T) {
	if got := DateTime("Festyn 8 maja na rynku", 0, time.UTC); got.Start != nil {
		t.Fatalf("expected no date, got %v", got.Start)
	}
}

func TestDateTimeEnglishWithClock(t *testing.T) {
	got := DateTime("Jazz Night March 7, 2026 at 7:30 PM", 0, time.UTC)
	if got.Start == nil {
		t.Fatal("expected a start time")
	}
	want := time.Date(2026, 3, 7, 19, 30, 0, 0, time.UTC)
	if !got.Start.Equal(want) {
		t.Fatalf("start = %v, want %v", got.Start, want)
	}
}

func TestDateTimeRangeOdDo(t *testing.T) {
	got := DateTime("Targi 10.05.2025 od 18:00 do 22:00", 0, time.UTC)
	if got.Start == nil || got.End == nil {
		t.Fatalf("expected a full range, got %+v", got)
	}
	wantStart := time.Date(2025, 5, 10, 18, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2025, 5, 10, 22, 0, 0, 0, time.UTC)
	if !got.Start.Equal(wantStart) || !got.End.Equal(wantEnd) {
		t.Fatalf("range = %v..%v, want %v..%v", got.Start, got.End, wantStart, wantEnd)
	}
}

func TestDateTimeRangeCrossesMidnight(t *testing.T) {
	got := DateTime("Sylwester 31.12.2025 21:00-02:00", 0, time.UTC)
	if got.Start == nil || got.End == nil {
		t.Fatalf("expected a full range, got %+v", got)
	}
	wantEnd := time.Date(2026, 1, 1, 2, 0, 0, 0, time.UTC)
	if !got.End.Equal(wantEnd) {
		t.Fatalf("end = %v, want next-day %v", got.End, wantEnd)
	}
}

func TestDateTimeDotSeparatedRange(t *testing.T) {
	got := DateTime("Spektakl 12.04.2025 19.30-21.30", 0, time.UTC)
	if got.Start == nil || got.End == nil {
		t.Fatalf("expected a full range, got %+v", got)
	}
	wantStart := time.Date(2025, 4, 12, 19, 30, 0, 0, time.UTC)
	if !got.Start.Equal(wantStart) {
		t.Fatalf("start = %v, want %v", got.Start, wantStart)
	}
}

func TestDateTimeNoDate(t *testing.T) {
	got := DateTime("Zapraszamy na wydarzenie w przyszłym tygodniu", 0, time.UTC)
	if got.Start != nil {
		t.Fatalf("expected no date, got %v", got.Start)
	}
}

func TestYearHint(t *testing.T) {
	if got := YearHint("koncerty Radom 2025"); got != 2025 {
		t.Fatalf("YearHint = %d, want 2025", got)
	}
	if got := YearHint("koncerty Radom"); got != 0 {
		t.Fatalf("YearHint = %d, want 0", got)
	}
}
