package utils

import (
	"strconv"
	"strings"
	"unicode"
)

// Slugify turns a column name into a file-name-safe identifier: lowercase ASCII letters,
// digits and single underscores. Names with nothing usable become "column".
func Slugify(name string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
		default:
			pendingSep = true
		}
	}
	if b.Len() == 0 {
		return "column"
	}
	return b.String()
}

// UniqueNamer hands out names that have not been handed out before, appending _2, _3 and so on
// to repeats. The zero value is ready to use.
type UniqueNamer struct {
	seen map[string]bool
}

// Next returns base, or base_N for the smallest N >= 2 not yet used.
func (u *UniqueNamer) Next(base string) string {
	if u.seen == nil {
		u.seen = make(map[string]bool)
	}
	name := base
	for n := 2; u.seen[name]; n++ {
		name = base + "_" + strconv.Itoa(n)
	}
	u.seen[name] = true
	return name
}
