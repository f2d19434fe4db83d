package utils

import (
	"time"
)

// ExpiryLayout is the date format used for contract expiries.
const ExpiryLayout = "2006-01-02"

// IndiaLocation is the timezone for Indian markets.
var IndiaLocation *time.Location

func init() {
	var err error
	IndiaLocation, err = time.LoadLocation("Asia/Kolkata")
	if err != nil {
		// Fallback to UTC+5:30
		IndiaLocation = time.FixedZone("IST", 5*60*60+30*60)
	}
}

// MonthlyExpiry returns the last Thursday of the month, the NSE monthly
// F&O expiry day.
func MonthlyExpiry(year int, month time.Month) time.Time {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, IndiaLocation)
	for last.Weekday() != time.Thursday {
		last = last.AddDate(0, 0, -1)
	}
	return last
}

// UpcomingExpiries returns the next n monthly expiries on or after from.
func UpcomingExpiries(from time.Time, n int) []time.Time {
	from = from.In(IndiaLocation)
	today := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, IndiaLocation)

	out := make([]time.Time, 0, n)
	year, month := today.Year(), today.Month()
	for len(out) < n {
		exp := MonthlyExpiry(year, month)
		if !exp.Before(today) {
			out = append(out, exp)
		}
		month++
		if month > time.December {
			month = time.January
			year++
		}
	}
	return out
}

// FormatExpiry renders an expiry date in ExpiryLayout.
func FormatExpiry(t time.Time) string {
	return t.In(IndiaLocation).Format(ExpiryLayout)
}
