package app

import (
	"regexp"
	"strings"
)

var (
	rawIDPattern   = regexp.MustCompile(`^\d{16,30}$`)
	linkPattern    = regexp.MustCompile(`/channels/\d+/\d+/(\d{16,30})`)
	longNumPattern = regexp.MustCompile(`\d{16,30}`)
)

// ParseSessionRef extracts a session id from a raw id, a message link
// (https://discord.com/channels/<guild>/<channel>/<message>) or, failing that, the last
// long number in the input.
func ParseSessionRef(input string) (string, bool) {
	s := strings.TrimSpace(input)
	if rawIDPattern.MatchString(s) {
		return s, true
	}
	if m := linkPattern.FindStringSubmatch(s); m != nil {
		return m[1], true
	}
	if all := longNumPattern.FindAllString(s, -1); len(all) > 0 {
		return all[len(all)-1], true
	}
	return "", false
}
