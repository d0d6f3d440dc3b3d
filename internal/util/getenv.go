package util

import (
	"os"
	"strconv"
)

func Getenv(name, defaultValue string) string {
	value := os.Getenv(name)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetenvBool parses name as a bool, falling back to defaultValue when the
// variable is unset or malformed.
func GetenvBool(name string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(name))
	if err != nil {
		return defaultValue
	}
	return value
}
