// Package config loads the bundler.yaml config file.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// envRef matches $${...} escapes and ${VAR}, ${VAR:-default} and
// ${VAR:?message} references.
var envRef = regexp.MustCompile(`\$\$\{|\$\{([A-Za-z_][A-Za-z0-9_]*)(?:(:-|:\?)([^}]*))?\}`)

// ExpandEnv replaces environment references in input.
//
//   - ${VAR} is the value of VAR, empty when unset
//   - ${VAR:-default} falls back to default when VAR is unset or empty
//   - ${VAR:?message} fails with message when VAR is unset or empty
//   - $${ is a literal ${
//
// Every failing ${VAR:?} reference is reported, not just the first.
func ExpandEnv(input string) (string, error) {
	var (
		b       strings.Builder
		missing []error
		last    int
	)
	for _, m := range envRef.FindAllStringSubmatchIndex(input, -1) {
		b.WriteString(input[last:m[0]])
		last = m[1]

		if m[2] < 0 {
			b.WriteString("${")
			continue
		}
		name := input[m[2]:m[3]]
		value := os.Getenv(name)
		if value != "" {
			b.WriteString(value)
			continue
		}
		if m[4] < 0 {
			continue
		}
		arg := input[m[6]:m[7]]
		if input[m[4]:m[5]] == ":-" {
			b.WriteString(arg)
			continue
		}
		if arg == "" {
			arg = "required but not set"
		}
		missing = append(missing, fmt.Errorf("%s: %s", name, arg))
	}
	b.WriteString(input[last:])
	return b.String(), errors.Join(missing...)
}
