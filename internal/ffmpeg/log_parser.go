package ffmpeg

import "strings"

// ParseLogLevel splits a stderr line produced with -loglevel level+info.
// Lines look like "[info] msg" or "[component @ 0x...] [level] msg"; the
// level tag is removed and a component prefix is kept. Lines without a
// level tag are reported as info.
func ParseLogLevel(line string) (level, msg string) {
	prefix := ""
	rest := line
	// At most two bracket groups: optional component, then level.
	for range 2 {
		tag, after, ok := cutBracket(rest)
		if !ok {
			break
		}
		if isLogLevel(tag) {
			return tag, prefix + after
		}
		if prefix != "" {
			break
		}
		prefix = rest[:len(rest)-len(after)]
		rest = after
	}
	return "info", line
}

// cutBracket returns the contents of a leading "[...] " group and the text
// after it.
func cutBracket(s string) (tag, after string, ok bool) {
	if len(s) < 3 || s[0] != '[' {
		return "", s, false
	}
	end := strings.Index(s, "] ")
	if end == -1 {
		return "", s, false
	}
	return s[1:end], s[end+2:], true
}

func isLogLevel(s string) bool {
	switch s {
	case "quiet", "panic", "fatal", "error", "warning", "info", "verbose", "debug", "trace":
		return true
	}
	return false
}
