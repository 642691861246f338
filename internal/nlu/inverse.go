package nlu

import (
	"fmt"
	"regexp"
	"strconv"
)

// Inverse normalization: canonical slot values back into natural spoken
// Japanese for response generation.

var (
	speakDateRe = regexp.MustCompile(`^(?:(\d{2,4})/)?(\d{1,2})/(\d{1,2})$`)
	speakTimeRe = regexp.MustCompile(`(\d{1,2}):(\d{2})`)
)

// SpeakableDate converts "MM/DD" (or "[YY]YY/MM/DD") to "M月D日".
// Unparseable input yields an empty string.
func SpeakableDate(value string) string {
	m := speakDateRe.FindStringSubmatch(value)
	if m == nil {
		return ""
	}
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])
	if !validMonthDay(month, day) {
		return ""
	}
	return fmt.Sprintf("%d月%d日", month, day)
}

// SpeakableTime converts every "HH:MM" in text to "H時M分", dropping the
// minute part when it is zero. Text without time expressions passes
// through unchanged.
func SpeakableTime(text string) string {
	return speakTimeRe.ReplaceAllStringFunc(text, func(m string) string {
		sub := speakTimeRe.FindStringSubmatch(m)
		hour, _ := strconv.Atoi(sub[1])
		minute, _ := strconv.Atoi(sub[2])
		if minute == 0 {
			return fmt.Sprintf("%d時", hour)
		}
		return fmt.Sprintf("%d時%d分", hour, minute)
	})
}

// SpeakableSlots formats a slot map for interpolation into templates.
// Date and time values are converted; everything else passes through.
func SpeakableSlots(slots map[string]string) map[string]string {
	out := make(map[string]string, len(slots))
	for key, value := range slots {
		switch key {
		case SlotDate:
			out[key] = SpeakableDate(value)
		case SlotTime:
			out[key] = SpeakableTime(value)
		default:
			out[key] = value
		}
	}
	return out
}
