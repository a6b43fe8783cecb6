package airquality

import "math"

// aqiBreakpoint maps a PM2.5 concentration band onto an index band.
type aqiBreakpoint struct {
	cLo, cHi float64
	iLo, iHi int
}

// US EPA PM2.5 breakpoints (µg/m³), 2024 revision.
var pm25Breakpoints = []aqiBreakpoint{
	{0.0, 9.0, 0, 50},
	{9.1, 35.4, 51, 100},
	{35.5, 55.4, 101, 150},
	{55.5, 125.4, 151, 200},
	{125.5, 225.4, 201, 300},
	{225.5, 325.4, 301, 500},
}

// PM25Index converts a PM2.5 concentration to its air quality index.
//
// The concentration is truncated to 0.1 µg/m³ resolution and linearly
// interpolated within the matching breakpoint band, with the result
// rounded to the nearest integer. Concentrations above the top band
// are capped at 500.
func PM25Index(concentration float64) int {
	if concentration < 0 {
		concentration = 0
	}
	c := math.Floor(concentration*10) / 10
	for _, bp := range pm25Breakpoints {
		if c <= bp.cHi {
			ratio := (c - bp.cLo) / (bp.cHi - bp.cLo)
			return bp.iLo + int(math.Round(ratio*float64(bp.iHi-bp.iLo)))
		}
	}
	return 500
}
