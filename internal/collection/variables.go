package collection

import (
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// VarPattern matches {{variable}} tokens.
var VarPattern = regexp.MustCompile(`{{\s*([^{}]+?)\s*}}`)

// Lookup resolves a variable name.
type Lookup func(name string) (string, bool)

// Substitute replaces {{name}} tokens using lookup, then dynamic variables
// such as {{$guid}}. Unknown names are left untouched.
func Substitute(s string, lookup Lookup) string {
	if !strings.Contains(s, "{{") {
		return s
	}
	return VarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := strings.TrimSpace(match[2 : len(match)-2])
		if lookup != nil {
			if v, ok := lookup(name); ok {
				return v
			}
		}
		if v, ok := Dynamic(name); ok {
			return v
		}
		return match
	})
}

// Unresolved lists variable names still present in s.
func Unresolved(s string) []string {
	var names []string
	for _, m := range VarPattern.FindAllStringSubmatch(s, -1) {
		if len(m) > 1 {
			names = append(names, strings.TrimSpace(m[1]))
		}
	}
	return names
}

// Dynamic resolves the built-in $-prefixed variables.
func Dynamic(name string) (string, bool) {
	switch name {
	case "$guid", "$randomUUID":
		return uuid.NewString(), true
	case "$timestamp":
		return strconv.FormatInt(time.Now().Unix(), 10), true
	case "$isoTimestamp":
		return time.Now().UTC().Format(time.RFC3339), true
	case "$randomInt":
		return strconv.Itoa(rand.IntN(1001)), true
	case "$randomBoolean":
		return strconv.FormatBool(rand.IntN(2) == 1), true
	}
	return "", false
}
