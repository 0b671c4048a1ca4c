package service

import (
	"fmt"
	"strings"
)

// wordsPerMinute is the assumed reading speed.
const wordsPerMinute = 225

// ReadTime estimates how long body takes to read, rounded up to whole
// minutes and never less than one: "1 mins", "2 mins", ...
func ReadTime(body string) string {
	words := len(strings.Fields(body))
	minutes := (words + wordsPerMinute - 1) / wordsPerMinute
	if minutes < 1 {
		minutes = 1
	}
	return fmt.Sprintf("%d mins", minutes)
}
