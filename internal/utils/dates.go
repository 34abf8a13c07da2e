package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Date represents a calendar date
type Date struct {
	Year  int
	Month int
	Day   int
}

// ParseDate converts a yyyy-mm-dd formatted string into a Date struct
func ParseDate(dateStr string) (Date, error) {
	parts := strings.Split(dateStr, "-")
	if len(parts) != 3 {
		return Date{}, fmt.Errorf("invalid date format, expected yyyy-mm-dd")
	}

	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return Date{}, fmt.Errorf("invalid year: %v", err)
	}

	month, err := strconv.Atoi(parts[1])
	if err != nil {
		return Date{}, fmt.Errorf("invalid month: %v", err)
	}

	day, err := strconv.Atoi(parts[2])
	if err != nil {
		return Date{}, fmt.Errorf("invalid day: %v", err)
	}

	if month < 1 || month > 12 {
		return Date{}, fmt.Errorf("month must be between 1 and 12")
	}

	if day < 1 || day > DaysInMonth(year, month) {
		return Date{}, fmt.Errorf("day must be between 1 and %d", DaysInMonth(year, month))
	}

	return Date{Year: year, Month: month, Day: day}, nil
}

// Time returns the date at midnight UTC.
func (d Date) Time() time.Time {
	return time.Date(d.Year, time.Month(d.Month), d.Day, 0, 0, 0, 0, time.UTC)
}

// DaysInMonth returns the number of days in a given month
func DaysInMonth(year, month int) int {
	if month == 2 {
		// Check for leap year
		if (year%4 == 0 && year%100 != 0) || (year%400 == 0) {
			return 29
		}
		return 28
	}

	// Months with 30 days: April, June, September, November
	if month == 4 || month == 6 || month == 9 || month == 11 {
		return 30
	}

	// All other months have 31 days
	return 31
}

// AddMonths moves d forward by n calendar months, clamping the day to the
// length of the target month (Jan 31 + 1 month = Feb 28/29).
func AddMonths(d Date, n int) Date {
	total := d.Year*12 + (d.Month - 1) + n
	year, month := total/12, total%12+1
	day := d.Day
	if last := DaysInMonth(year, month); day > last {
		day = last
	}
	return Date{Year: year, Month: month, Day: day}
}

// SubscriptionPeriod returns the first and last covered day of a membership
// starting on start and lasting months calendar months.
func SubscriptionPeriod(start time.Time, months int) (time.Time, time.Time) {
	if months < 1 {
		months = 12
	}
	s := Date{Year: start.Year(), Month: int(start.Month()), Day: start.Day()}
	end := AddMonths(s, months).Time().AddDate(0, 0, -1)
	return s.Time(), end
}

// AgeOn returns the number of full years between birth and on.
func AgeOn(birth Date, on time.Time) int {
	age := on.Year() - birth.Year
	if int(on.Month()) < birth.Month || (int(on.Month()) == birth.Month && on.Day() < birth.Day) {
		age--
	}
	return age
}
