package logger

import (
	"log/slog"
	"strconv"
	"unicode/utf8"
)

// maxValueLen caps string attributes. Strings decoded from a foreign heap can
// be arbitrarily long or contain garbage.
const maxValueLen = 256

// truncatedSuffix marks a shortened value.
const truncatedSuffix = "...(truncated)"

// sanitizeAttr makes string and byte attributes safe to emit: invalid UTF-8
// and control characters are escaped and long values are cut.
func sanitizeAttr(a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		return slog.String(a.Key, sanitizeString(a.Value.String()))
	case slog.KindGroup:
		attrs := a.Value.Group()
		newAttrs := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			newAttrs[i] = sanitizeAttr(attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(newAttrs...)}
	case slog.KindAny:
		if b, ok := a.Value.Any().([]byte); ok {
			return slog.String(a.Key, sanitizeString(string(b)))
		}
	}
	return a
}

// sanitizeString returns value with non-printable content escaped and the
// result truncated to a loggable length.
func sanitizeString(value string) string {
	if needsEscape(value) {
		q := strconv.QuoteToASCII(value)
		value = q[1 : len(q)-1]
	}
	if len(value) > maxValueLen {
		cut := maxValueLen
		for cut > 0 && !utf8.RuneStart(value[cut]) {
			cut--
		}
		return value[:cut] + truncatedSuffix
	}
	return value
}

func needsEscape(s string) bool {
	if !utf8.ValidString(s) {
		return true
	}
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			return true
		}
	}
	return false
}
