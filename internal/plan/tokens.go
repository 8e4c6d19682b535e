package plan

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	classPartRegex = regexp.MustCompile(`^(\d+)([A-Za-z]*)$`)
	digitRegex     = regexp.MustCompile(`\d`)
)

func splitTokenList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
}

// ExpandGroupName expands a class label into the class tokens it covers.
//
//	"10"        -> ["10"], pretty "10"
//	"10AB"      -> ["10A", "10B"]
//	"(10A,10B)" -> ["10A", "10B"]
//	"Sport"     -> ["SPORT"], pretty "SPORT"
//
// Labels that contain digits but do not follow the class pattern expand to nothing.
// pretty is only set when the expansion is exactly one token.
func ExpandGroupName(name string) (tokens []string, pretty string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ""
	}
	if !digitRegex.MatchString(name) {
		token := strings.ToUpper(name)
		return []string{token}, token
	}

	inner := name
	if strings.HasPrefix(inner, "(") && strings.HasSuffix(inner, ")") {
		inner = inner[1 : len(inner)-1]
	}
	parts := splitTokenList(inner)
	if len(parts) == 0 {
		return nil, ""
	}

	seen := map[string]struct{}{}
	add := func(token string) {
		if _, ok := seen[token]; ok {
			return
		}
		seen[token] = struct{}{}
		tokens = append(tokens, token)
	}
	for _, part := range parts {
		match := classPartRegex.FindStringSubmatch(part)
		if match == nil {
			return nil, ""
		}
		grade := match[1]
		sections := strings.ToUpper(match[2])
		if sections == "" {
			add(grade)
			continue
		}
		for _, section := range sections {
			add(grade + string(section))
		}
	}

	if len(tokens) == 1 {
		pretty = tokens[0]
	}
	return tokens, pretty
}

// SubscriptionTokens returns the tokens subscribers can select a group by. Class groups
// match their expanded sections and the bare grade of every section, the grade coming
// first ("10A" -> ["10", "10A"]). Other groups match their uppercased name.
func SubscriptionTokens(name string, isClass bool) []string {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	if !isClass {
		return []string{strings.ToUpper(name)}
	}

	expanded, _ := ExpandGroupName(name)
	var out []string
	seen := map[string]struct{}{}
	add := func(token string) {
		if _, ok := seen[token]; ok {
			return
		}
		seen[token] = struct{}{}
		out = append(out, token)
	}
	for _, token := range expanded {
		match := classPartRegex.FindStringSubmatch(token)
		if match != nil && match[2] != "" {
			add(match[1])
		}
		add(token)
	}
	return out
}

// ParseSelection splits a user supplied selection on commas and whitespace. The result
// is uppercased and de-duplicated in order of appearance. An empty selection returns nil,
// which means "everything".
func ParseSelection(s string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, part := range splitTokenList(s) {
		token := strings.ToUpper(part)
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		out = append(out, token)
	}
	return out
}
