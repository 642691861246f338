package nlu

import (
	"strconv"
	"strings"
)

var daysInMonth = [13]int{0, 31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

// ValidDate accepts "MM/DD" and "[YY]YY/MM/DD" forms. Two-digit years are
// treated as 20xx; four-digit years must fall in [1900, 2100]. February 29
// is only accepted in leap years.
func ValidDate(value string) bool {
	parts := strings.Split(value, "/")
	switch len(parts) {
	case 2:
		month, err1 := strconv.Atoi(parts[0])
		day, err2 := strconv.Atoi(parts[1])
		if err1 != nil || err2 != nil {
			return false
		}
		return validMonthDay(month, day)
	case 3:
		year, err1 := strconv.Atoi(parts[0])
		month, err2 := strconv.Atoi(parts[1])
		day, err3 := strconv.Atoi(parts[2])
		if err1 != nil || err2 != nil || err3 != nil {
			return false
		}
		if year < 100 {
			year += 2000
		}
		if year < 1900 || year > 2100 {
			return false
		}
		if month == 2 && day == 29 {
			return isLeapYear(year)
		}
		return validMonthDay(month, day)
	default:
		return false
	}
}

// ValidTime accepts "HH:MM" with hour in [0, 23] and minute in [0, 59].
func ValidTime(value string) bool {
	parts := strings.Split(value, ":")
	if len(parts) != 2 {
		return false
	}
	hour, err1 := strconv.Atoi(parts[0])
	minute, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return false
	}
	return hour >= 0 && hour <= 23 && minute >= 0 && minute <= 59
}

// ValidPersonCount accepts a positive integer after stripping any
// non-digit runes such as the 人 counter.
func ValidPersonCount(value string) bool {
	var digits strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	n, err := strconv.Atoi(digits.String())
	return err == nil && n > 0
}

func validMonthDay(month, day int) bool {
	if month < 1 || month > 12 {
		return false
	}
	return day >= 1 && day <= daysInMonth[month]
}

func isLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}
