package fatlog

import (
	"time"
)

// ParseDate decodes a FAT directory entry date stamp:
//
//	bits 0-4:  day of month, 1-31
//	bits 5-8:  month of year, 1-12
//	bits 9-15: years since 1980, 0-127
//
// The result is midnight UTC of that day. A day or month of zero is invalid
// and decodes to time.Time{} so that IsZero can be used on the result.
// Months above 12 roll over into the next year.
func ParseDate(input uint16) time.Time {
	dayOfMonth := input & 0x1F
	monthOfYear := input & 0x1E0 >> 5
	yearSince1980 := input & 0xFE00 >> 9

	if dayOfMonth == 0 || monthOfYear == 0 {
		return time.Time{}
	}

	return time.Date(1980+int(yearSince1980), time.Month(monthOfYear), int(dayOfMonth), 0, 0, 0, 0, time.UTC)
}

// ParseTime decodes a FAT directory entry time stamp with two second granularity:
//
//	bits 0-4:   seconds / 2, 0-29
//	bits 5-10:  minutes, 0-59
//	bits 11-15: hours, 0-23
//
// The result is on January 1, year 1, so midnight IsZero.
// Out of range values are clamped to 23:59:59.
func ParseTime(input uint16) time.Time {
	seconds := int(input&0x1F) * 2
	minutes := input & 0x7E0 >> 5
	hours := input & 0xF800 >> 11

	result := time.Date(1, 1, 1, int(hours), int(minutes), seconds, 0, time.UTC)

	if result.Day() > 1 {
		return time.Date(1, 1, 1, 23, 59, 59, 0, time.UTC)
	}

	return result
}

// EncodeDate is the inverse of ParseDate. Dates before 1980 encode as 0,
// dates after 2107 as the last representable day.
func EncodeDate(t time.Time) uint16 {
	year := t.Year()
	switch {
	case year < 1980:
		return 0
	case year > 2107:
		return 127<<9 | 12<<5 | 31
	}
	return uint16(year-1980)<<9 | uint16(t.Month())<<5 | uint16(t.Day())
}

// EncodeTime is the inverse of ParseTime; odd seconds are rounded down.
func EncodeTime(t time.Time) uint16 {
	return uint16(t.Hour())<<11 | uint16(t.Minute())<<5 | uint16(t.Second()/2)
}
