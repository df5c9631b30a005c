package utils

import (
	"fmt"
	"regexp"
	"strings"
)

// IndeedBaseURL is the host all canonical job URLs are rooted at.
const IndeedBaseURL = "https://www.indeed.com"

// jobKeyPattern matches the stable job key Indeed embeds in listing and
// redirect URLs as a jk= query parameter.
var jobKeyPattern = regexp.MustCompile(`jk=([a-zA-Z0-9]+)`)

// ExtractJobKey returns the jk job key embedded in rawURL, or "" when the
// URL carries none.
func ExtractJobKey(rawURL string) string {
	matches := jobKeyPattern.FindStringSubmatch(rawURL)
	if len(matches) < 2 {
		return ""
	}
	return matches[1]
}

// CanonicalJobURL builds the canonical viewjob URL for a job key.
func CanonicalJobURL(jobKey string) string {
	return fmt.Sprintf("%s/viewjob?jk=%s", IndeedBaseURL, jobKey)
}

// CanonicalizeJobURL reduces a listing URL to its canonical viewjob form and
// stable job key. URLs without a job key are returned unchanged with an
// empty key.
func CanonicalizeJobURL(rawURL string) (jobURL, jobKey string) {
	jobKey = ExtractJobKey(rawURL)
	if jobKey == "" {
		return rawURL, ""
	}
	return CanonicalJobURL(jobKey), jobKey
}

// IsSponsoredRedirect reports whether the URL is a sponsored-listing
// redirect rather than a direct job page.
func IsSponsoredRedirect(rawURL string) bool {
	return strings.Contains(rawURL, "pagead")
}
