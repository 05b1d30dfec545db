package domain

import (
	"path"
	"strings"
)

// IsRaw reports whether key lives under the raw document namespace.
func IsRaw(key string) bool { return strings.HasPrefix(key, RawPrefix) }

// IsTrusted reports whether key lives under the extracted text namespace.
func IsTrusted(key string) bool { return strings.HasPrefix(key, TrustedPrefix) }

// TrustedKey derives the extracted-text key for a raw document key:
// raw/<name>.<ext> becomes trusted/<name>.txt with spaces replaced by
// underscores. Only the base name is kept and case is never changed.
func TrustedKey(rawKey string) (string, error) {
	if !IsRaw(rawKey) {
		return "", NewValidationError("key", rawKey, ErrOutsideNamespace)
	}
	base := path.Base(rawKey)
	if base == "." || base == "/" || strings.HasSuffix(rawKey, "/") {
		return "", NewValidationError("key", rawKey, ErrMalformedNotification)
	}
	if i := strings.LastIndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	return TrustedPrefix + strings.ReplaceAll(base, " ", "_") + ".txt", nil
}
