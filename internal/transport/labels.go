package transport

import (
	"fmt"
	"strings"
)

// ReferenceLabel echoes the chosen reference file back to the user
func ReferenceLabel(names []string) string {
	if len(names) == 0 || names[0] == "" {
		return "No file chosen"
	}
	return names[0]
}

// SamplesLabel echoes the chosen sample files: count and names
func SamplesLabel(names []string) string {
	if len(names) == 0 {
		return "No files chosen"
	}
	return fmt.Sprintf("%d file(s) chosen: %s", len(names), strings.Join(names, ", "))
}
