package utils

// ClampRunes shortens text to at most limit runes, replacing the tail with a
// single ellipsis rune when truncation happens. Limits are counted in runes
// so multi-byte characters never get split.
func ClampRunes(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit-1]) + "…"
}
