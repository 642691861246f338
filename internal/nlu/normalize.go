package nlu

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Normalizer rewrites spoken Japanese date, time and person-count
// expressions into canonical machine forms before entity extraction:
// dates become "MM/DD" relative to Today, times become 24 h "HH:MM" and
// person counts become "N人". Kanji numerals up to 31 are mapped to ASCII
// digits first so the downstream patterns only deal with digits.
type Normalizer struct {
	// Today is the reference date for relative expressions such as 明日
	// or 来週の土曜日. Callers inject time.Now() in production and a
	// fixed date in tests.
	Today time.Time
}

const weekdayAlt = `月曜日|火曜日|水曜日|木曜日|金曜日|土曜日|日曜日|月曜|火曜|水曜|木曜|金曜|土曜|日曜`

var (
	dateRe = regexp.MustCompile(
		`(?P<relative_month_ext>先月|今月|来月|再来月)の?(?P<week_number>\d)週目の?(?P<extended_weekday>` + weekdayAlt + `)` +
			`|(?P<relative_day>一昨日|昨日|今日|明日|明後日)` +
			`|(?P<relative_week>先々週|先週|今週|来週|再来週|次)の?(?P<weekday>` + weekdayAlt + `)?` +
			`|(?P<relative_month>先月|今月|来月|再来月)の?(?P<relative_day_number>\d{1,2})日?` +
			`|(?P<absolute_month>\d{1,2})月の?(?P<absolute_day>\d{1,2})日?` +
			`|(?P<weekday_only>` + weekdayAlt + `)`)

	timeRe = regexp.MustCompile(
		`(?P<time_of_day>朝|午前|昼|午後|夕方|夜|深夜|正午)?の?(?P<hour>\d{1,2})時(?:(?P<minute>\d{1,2})分?|(?P<half>半))?`)

	personRe = regexp.MustCompile(`(?P<n_person>\d{1,2})(?:人|名)`)

	// Kanji numerals are only rewritten in front of a counter so that
	// digits inside proper nouns are left alone.
	kanjiNumRe = regexp.MustCompile(
		`(三十一|三十|二十[一二三四五六七八九]|二十|十[一二三四五六七八九]|十|[〇零一二三四五六七八九])(時|分|人|名|日|月|週)`)

	peopleWordReplacer = strings.NewReplacer("おひとり", "1人", "ひとり", "1人", "ふたり", "2人")
)

var kanjiDigits = map[rune]int{
	'〇': 0, '零': 0, '一': 1, '二': 2, '三': 3, '四': 4,
	'五': 5, '六': 6, '七': 7, '八': 8, '九': 9,
}

var relativeDayOffsets = map[string]int{
	"一昨日": -2,
	"昨日":  -1,
	"今日":  0,
	"明日":  1,
	"明後日": 2,
}

// weekdayIndex maps a weekday word to Monday-origin indexing (月曜=0).
func weekdayIndex(name string) int {
	switch strings.TrimSuffix(name, "日") {
	case "月曜":
		return 0
	case "火曜":
		return 1
	case "水曜":
		return 2
	case "木曜":
		return 3
	case "金曜":
		return 4
	case "土曜":
		return 5
	default:
		return 6
	}
}

// mondayWeekday converts Go's Sunday-origin weekday to Monday-origin.
func mondayWeekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// Normalize runs the full rewrite pipeline over a transcript and returns
// the normalized text. Each replacement gets a trailing space so adjacent
// expressions cannot merge into one token.
func (n Normalizer) Normalize(text string) string {
	text = n.replaceNumerals(text)
	if expr, norm, ok := n.normalizeDate(text); ok {
		text = strings.ReplaceAll(text, expr, norm+" ")
	}
	for _, r := range n.normalizeTimes(text) {
		text = strings.ReplaceAll(text, r.expr, r.norm+" ")
	}
	text = strings.ReplaceAll(text, "正午", "12:00 ")
	text = personRe.ReplaceAllString(text, "${n_person}人 ")
	return text
}

// replaceNumerals rewrites kanji numerals attached to a counter and the
// common people words into digit forms.
func (n Normalizer) replaceNumerals(text string) string {
	text = peopleWordReplacer.Replace(text)
	return kanjiNumRe.ReplaceAllStringFunc(text, func(m string) string {
		sub := kanjiNumRe.FindStringSubmatch(m)
		return strconv.Itoa(kanjiValue(sub[1])) + sub[2]
	})
}

// kanjiValue parses a kanji numeral in [0, 31].
func kanjiValue(s string) int {
	runes := []rune(s)
	val := 0
	tens := false
	for _, r := range runes {
		if r == '十' {
			if val == 0 {
				val = 1
			}
			val *= 10
			tens = true
			continue
		}
		d := kanjiDigits[r]
		if tens {
			val += d
			tens = false
		} else {
			val = val*10 + d
		}
	}
	return val
}

type replacement struct {
	expr string
	norm string
}

// normalizeDate resolves the first date expression in text against Today
// and returns the matched expression with its "MM/DD" form.
func (n Normalizer) normalizeDate(text string) (expr, norm string, ok bool) {
	loc := dateRe.FindStringSubmatchIndex(text)
	if loc == nil {
		return "", "", false
	}
	groups := map[string]string{}
	for i, name := range dateRe.SubexpNames() {
		if name == "" || loc[i*2] < 0 {
			continue
		}
		groups[name] = text[loc[i*2]:loc[i*2+1]]
	}

	target, ok := n.resolveDate(groups)
	if !ok {
		return "", "", false
	}
	return text[loc[0]:loc[1]], fmt.Sprintf("%02d/%02d", int(target.Month()), target.Day()), true
}

func (n Normalizer) resolveDate(groups map[string]string) (time.Time, bool) {
	today := time.Date(n.Today.Year(), n.Today.Month(), n.Today.Day(), 0, 0, 0, 0, time.UTC)

	switch {
	// e.g. 来月の1週目の水曜日
	case groups["relative_month_ext"] != "" && groups["week_number"] != "" && groups["extended_weekday"] != "":
		week, _ := strconv.Atoi(groups["week_number"])
		year, month := shiftMonth(today, monthOffset(groups["relative_month_ext"]))
		first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
		target := weekdayIndex(groups["extended_weekday"])
		var firstTarget time.Time
		if fw := mondayWeekday(first); fw <= target {
			firstTarget = first.AddDate(0, 0, target-fw)
		} else {
			firstTarget = first.AddDate(0, 0, 7-(mondayWeekday(first)-target))
		}
		return firstTarget.AddDate(0, 0, 7*(week-1)), true

	// e.g. 明後日
	case groups["relative_day"] != "":
		return today.AddDate(0, 0, relativeDayOffsets[groups["relative_day"]]), true

	// e.g. 再来週の金曜日
	case groups["relative_week"] != "":
		t := today
		switch groups["relative_week"] {
		case "来週":
			t = t.AddDate(0, 0, 7)
		case "再来週":
			t = t.AddDate(0, 0, 14)
		}
		if wd := groups["weekday"]; wd != "" {
			diff := weekdayIndex(wd) - mondayWeekday(t)
			ahead := (diff + 7) % 7
			if diff < 0 {
				ahead -= 7
			}
			t = t.AddDate(0, 0, ahead)
		}
		return t, true

	// e.g. 来月の15日
	case groups["relative_month"] != "" && groups["relative_day_number"] != "":
		day, _ := strconv.Atoi(groups["relative_day_number"])
		year, month := shiftMonth(today, monthOffset(groups["relative_month"]))
		return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), true

	// e.g. 12月25日; past dates roll into next year
	case groups["absolute_month"] != "" && groups["absolute_day"] != "":
		month, _ := strconv.Atoi(groups["absolute_month"])
		day, _ := strconv.Atoi(groups["absolute_day"])
		year := today.Year()
		if month < int(today.Month()) || (month == int(today.Month()) && day <= today.Day()) {
			year++
		}
		return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), true

	// e.g. 金曜日 alone means the next occurrence
	case groups["weekday_only"] != "":
		ahead := (weekdayIndex(groups["weekday_only"]) - mondayWeekday(today) + 7) % 7
		if ahead == 0 {
			ahead = 7
		}
		return today.AddDate(0, 0, ahead), true
	}
	return time.Time{}, false
}

func monthOffset(word string) int {
	switch word {
	case "来月":
		return 1
	case "再来月":
		return 2
	default:
		return 0
	}
}

func shiftMonth(t time.Time, offset int) (year, month int) {
	m := int(t.Month()) + offset - 1
	return t.Year() + m/12, m%12 + 1
}

// normalizeTimes resolves every time expression in text to "HH:MM".
func (n Normalizer) normalizeTimes(text string) []replacement {
	var out []replacement
	for _, loc := range timeRe.FindAllStringSubmatchIndex(text, -1) {
		groups := map[string]string{}
		for i, name := range timeRe.SubexpNames() {
			if name == "" || loc[i*2] < 0 {
				continue
			}
			groups[name] = text[loc[i*2]:loc[i*2+1]]
		}
		if groups["hour"] == "" {
			continue
		}
		hour, _ := strconv.Atoi(groups["hour"])
		minute := 0
		if groups["minute"] != "" {
			minute, _ = strconv.Atoi(groups["minute"])
		}
		if groups["half"] != "" {
			minute = 30
		}
		switch groups["time_of_day"] {
		case "午後", "夕方", "夜":
			if hour < 12 {
				hour += 12
			}
		case "午前", "朝":
			if hour == 12 {
				hour = 0
			}
		case "深夜":
			if hour == 12 {
				hour = 0
			}
		}
		out = append(out, replacement{
			expr: text[loc[0]:loc[1]],
			norm: fmt.Sprintf("%02d:%02d", hour, minute),
		})
	}
	return out
}
