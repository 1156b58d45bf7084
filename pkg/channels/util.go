package channels

import (
	"fmt"
	"strconv"
)

// FriendlySize renders a byte count the way file notices show it.
func FriendlySize(size int64) string {
	switch {
	case size <= 1126:
		return fmt.Sprintf("%d B", size)
	case size <= 1153433:
		return trimFloat(float64(size)/1024) + " KB"
	case size <= 1181116006:
		return trimFloat(float64(size)/1048576) + " MB"
	}
	return trimFloat(float64(size)/1073741824) + " GB"
}

// FriendlyLocation renders coordinates as "25.03°N, 121.56°E".
func FriendlyLocation(latitude, longitude float64) string {
	lat := trimFloat(latitude) + "°N"
	if latitude < 0 {
		lat = trimFloat(-latitude) + "°S"
	}
	lon := trimFloat(longitude) + "°E"
	if longitude < 0 {
		lon = trimFloat(-longitude) + "°W"
	}
	return lat + ", " + lon
}

func trimFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', 3, 64)
	for s[len(s)-1] == '0' {
		s = s[:len(s)-1]
	}
	if s[len(s)-1] == '.' {
		s = s[:len(s)-1]
	}
	return s
}
