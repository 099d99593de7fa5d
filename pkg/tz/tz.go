package tz

import "time"

// Rome is the Europe/Rome location (CET/CEST with automatic DST).
var Rome *time.Location

func init() {
	var err error
	Rome, err = time.LoadLocation("Europe/Rome")
	if err != nil {
		panic("tz: load Europe/Rome: " + err.Error())
	}
}

// Now returns the current time in Italian civil time.
func Now() time.Time {
	return time.Now().In(Rome)
}
