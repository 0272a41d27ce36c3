package mailer

import "regexp"

var addressPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// ValidAddress reports whether addr looks like local-part@domain.tld with a
// TLD of at least two letters. It is a syntax check only.
func ValidAddress(addr string) bool {
	return addressPattern.MatchString(addr)
}
