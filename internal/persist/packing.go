package persist

import "github.com/nvsettings/nvsettings/internal/settings"

// PackTime encodes t as (hour<<8)|minute. Each field keeps its low byte.
func PackTime(t settings.TimeOfDay) uint16 {
	return uint16(t.Hour&0xFF)<<8 | uint16(t.Minute&0xFF)
}

// UnpackTime decodes a value produced by PackTime
func UnpackTime(v uint16) settings.TimeOfDay {
	return settings.TimeOfDay{Hour: int(v >> 8), Minute: int(v & 0xFF)}
}

// PackDate encodes d as day in bits 31-24, month in 23-16 and year in 15-0.
func PackDate(d settings.CalendarDate) uint32 {
	return uint32(d.Day&0xFF)<<24 | uint32(d.Month&0xFF)<<16 | uint32(d.Year&0xFFFF)
}

// UnpackDate decodes a value produced by PackDate
func UnpackDate(v uint32) settings.CalendarDate {
	return settings.CalendarDate{
		Day:   int(v >> 24 & 0xFF),
		Month: int(v >> 16 & 0xFF),
		Year:  int(v & 0xFFFF),
	}
}
