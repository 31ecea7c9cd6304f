package services

import "time"

const day = 24 * time.Hour

// ComputeFine charges rate for every started day past due. Nothing is owed
// while now is at or before due.
func ComputeFine(due, now time.Time, rate int64) int64 {
	late := now.Sub(due)
	if late <= 0 {
		return 0
	}
	days := int64((late + day - 1) / day)
	return days * rate
}
