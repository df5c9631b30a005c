package utils

import (
	"regexp"
	"sync"

	"github.com/google/uuid"
)

// GenerateRequestID generates a unique request ID for tracking
func GenerateRequestID() string {
	return uuid.New().String()
}

// Contains checks if a string slice contains a specific string
func Contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// ContainsInt checks if an int slice contains a specific value
func ContainsInt(slice []int, item int) bool {
	for _, v := range slice {
		if v == item {
			return true
		}
	}
	return false
}

// GetStringOrDefault returns the value if not empty, otherwise returns the default
func GetStringOrDefault(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}

var (
	regexCacheMu sync.RWMutex
	regexCache   = make(map[string]*regexp.Regexp)
)

// FindRegexMatch returns the submatches of the first match of pattern in s,
// or nil when the pattern does not match or fails to compile. Compiled
// patterns are cached.
func FindRegexMatch(s, pattern string) []string {
	regexCacheMu.RLock()
	re, ok := regexCache[pattern]
	regexCacheMu.RUnlock()

	if !ok {
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			return nil
		}
		regexCacheMu.Lock()
		regexCache[pattern] = compiled
		regexCacheMu.Unlock()
		re = compiled
	}

	return re.FindStringSubmatch(s)
}
