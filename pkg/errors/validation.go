package errors

import (
	"net/url"
	"strings"
	"unicode"
)

// maxUIDLength bounds mod identifiers, which double as file names.
const maxUIDLength = 200

// ValidateUID validates a mod identifier for safety.
//
// Identifiers are used verbatim as descriptor file names (<uid>.json) and as
// download subdirectories, so the rules reject anything that could escape the
// store directory:
//   - No empty identifiers
//   - No control characters or whitespace
//   - No path separators or traversal sequences
//   - Maximum length of 200 characters
func ValidateUID(uid string) error {
	if uid == "" {
		return New(ErrCodeInvalidUID, "mod uid cannot be empty")
	}

	if len(uid) > maxUIDLength {
		return New(ErrCodeInvalidUID, "mod uid too long (max %d characters)", maxUIDLength)
	}

	for _, r := range uid {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return New(ErrCodeInvalidUID, "mod uid %q contains invalid characters", uid)
		}
	}

	dangerousPatterns := []string{
		"..",   // Parent directory
		"/",    // Path separator
		"\\",   // Backslash (Windows path)
		"\x00", // Null byte
	}

	for _, pattern := range dangerousPatterns {
		if strings.Contains(uid, pattern) {
			return New(ErrCodeInvalidUID, "mod uid %q contains invalid characters: %q", uid, pattern)
		}
	}

	return nil
}

// ValidateLocator validates a descriptor or payload locator.
// Only absolute http(s) and file URLs are accepted.
func ValidateLocator(locator string) error {
	if locator == "" {
		return New(ErrCodeInvalidInput, "locator cannot be empty")
	}

	u, err := url.Parse(locator)
	if err != nil {
		return Wrap(ErrCodeInvalidInput, err, "invalid locator %q", locator)
	}

	switch u.Scheme {
	case "http", "https":
		if u.Host == "" {
			return New(ErrCodeInvalidInput, "locator %q has no host", locator)
		}
	case "file":
		if u.Path == "" {
			return New(ErrCodeInvalidInput, "locator %q has no path", locator)
		}
	default:
		return New(ErrCodeInvalidInput, "locator %q: unsupported scheme %q", locator, u.Scheme)
	}

	return nil
}

// IsLocator reports whether s looks like a URL rather than a bare uid.
func IsLocator(s string) bool {
	return strings.Contains(s, "://")
}
