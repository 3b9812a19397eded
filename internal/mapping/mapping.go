// Package mapping rewrites the default "rating/label" directory segment
// through an ordered list of user-supplied regex rules.
package mapping

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/stefanw/photosort/internal/util"
)

// Rule is one (pattern, target-template) pair. Patterns match the entire
// input string; targets may reference capture groups as $1, $2, ...
type Rule struct {
	Pattern *regexp.Regexp
	Target  string
	Raw     string // original pattern text, for logging
}

var templateGroup = regexp.MustCompile(`\$(\d+)`)

// Load parses a mapping file into an ordered rule list. Blank lines and
// '#' comments are ignored; unparseable lines are warned about and skipped.
// A file that yields zero usable rules is a configuration error: the user
// explicitly asked for mapping, so silently disabling it would be worse
// than aborting.
func Load(path string) ([]Rule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot open mapping file: %v", util.ErrInvalidConfig, err)
	}
	defer f.Close()

	var rules []Rule
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields, err := splitQuoted(line)
		if err != nil {
			util.WarnLog("mapping: skipping line %d: %v", lineNo, err)
			continue
		}
		if len(fields) != 2 {
			util.WarnLog("mapping: skipping line %d: want <pattern> <target>, got %d fields",
				lineNo, len(fields))
			continue
		}

		// Anchor to a full-string match
		re, err := regexp.Compile("^(?:" + fields[0] + ")$")
		if err != nil {
			util.WarnLog("mapping: skipping line %d: bad pattern %q: %v", lineNo, fields[0], err)
			continue
		}

		rules = append(rules, Rule{Pattern: re, Target: fields[1], Raw: fields[0]})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: error reading mapping file: %v", util.ErrInvalidConfig, err)
	}

	if len(rules) == 0 {
		return nil, fmt.Errorf("%w: mapping file %s contains no usable rules", util.ErrInvalidConfig, path)
	}

	util.DebugLog("mapping: loaded %d rules from %s", len(rules), path)
	return rules, nil
}

// Apply matches input against each rule in file order and returns the first
// matching rule's target with $N placeholders substituted. No rules or no
// match returns the input unchanged.
func Apply(input string, rules []Rule) string {
	for _, rule := range rules {
		m := rule.Pattern.FindStringSubmatch(input)
		if m == nil {
			continue
		}
		return templateGroup.ReplaceAllStringFunc(rule.Target, func(tok string) string {
			n, err := strconv.Atoi(tok[1:])
			if err != nil || n < 0 || n >= len(m) {
				// Placeholder beyond the captured groups expands to nothing
				return ""
			}
			return m[n]
		})
	}
	return input
}

// splitQuoted splits a rule line on whitespace, honoring single and double
// quotes so patterns and targets may contain spaces.
func splitQuoted(line string) ([]string, error) {
	var fields []string
	var cur strings.Builder
	var quote rune
	inField := false

	for _, r := range line {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inField = true
		case r == ' ' || r == '\t':
			if inField {
				fields = append(fields, cur.String())
				cur.Reset()
				inField = false
			}
		default:
			cur.WriteRune(r)
			inField = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated quote")
	}
	if inField {
		fields = append(fields, cur.String())
	}
	return fields, nil
}
