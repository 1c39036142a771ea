package security

import "errors"

const maxPlatformIDLen = 64

// ValidatePlatformID sanity-checks a platform-native user id before it is
// used in KV keys. Platforms disagree on shape (numeric ids, channel ids,
// uuids) so only charset and length are enforced.
func ValidatePlatformID(s string) error {
	if s == "" {
		return errors.New("empty platform id")
	}
	if len(s) > maxPlatformIDLen {
		return errors.New("platform id too long")
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c == '-' || c == '_':
		default:
			return errors.New("platform id has invalid characters")
		}
	}
	return nil
}
