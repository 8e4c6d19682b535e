package plan

import (
	"regexp"
	"strconv"
	"strings"
)

// GroupKey identifies a group within a day. A struck header and a live header with the
// same name are different groups.
type GroupKey struct {
	Name   string
	Struck bool
}

type Group struct {
	Key GroupKey
	// IsClass is true when the name is a class label that expands into class tokens.
	IsClass bool
	// Tokens are the subscription tokens the group matches, derived from the name once.
	Tokens []string
	// Pretty is the single display label of the group, empty when ambiguous.
	Pretty  string
	Entries []Entry
}

func NewGroup(name string, struck, isClass bool) *Group {
	g := &Group{
		Key:     GroupKey{Name: name, Struck: struck},
		IsClass: isClass,
		Tokens:  SubscriptionTokens(name, isClass),
	}
	if isClass {
		_, g.Pretty = ExpandGroupName(name)
	} else if len(g.Tokens) == 1 {
		g.Pretty = g.Tokens[0]
	}
	return g
}

func (g *Group) Append(entries ...Entry) {
	g.Entries = append(g.Entries, entries...)
}

// Matches reports whether any of the group's tokens is in the selection.
func (g *Group) Matches(selection map[string]struct{}) bool {
	for _, t := range g.Tokens {
		if _, ok := selection[t]; ok {
			return true
		}
	}
	return false
}

var groupPrefixRegex = regexp.MustCompile(`^\(?\s*(\d+)(.*)$`)

type groupSortKey struct {
	nameless bool
	numbered bool
	number   int
	rest     string
	struck   bool
}

func sortKeyOf(key GroupKey) groupSortKey {
	name := strings.TrimSpace(key.Name)
	sk := groupSortKey{
		nameless: name == "",
		struck:   key.Struck,
		rest:     strings.ToUpper(name),
	}
	match := groupPrefixRegex.FindStringSubmatch(name)
	if match != nil {
		n, err := strconv.Atoi(match[1])
		if err == nil {
			sk.numbered = true
			sk.number = n
			sk.rest = strings.ToUpper(match[2])
		}
	}
	return sk
}

func compareGroupKeys(a, b GroupKey) int {
	ka := sortKeyOf(a)
	kb := sortKeyOf(b)
	if ka.nameless != kb.nameless {
		if ka.nameless {
			return 1
		}
		return -1
	}
	if ka.numbered != kb.numbered {
		if ka.numbered {
			return -1
		}
		return 1
	}
	if ka.number != kb.number {
		if ka.number < kb.number {
			return -1
		}
		return 1
	}
	if c := strings.Compare(ka.rest, kb.rest); c != 0 {
		return c
	}
	if c := strings.Compare(a.Name, b.Name); c != 0 {
		return c
	}
	if ka.struck != kb.struck {
		if ka.struck {
			return 1
		}
		return -1
	}
	return 0
}
