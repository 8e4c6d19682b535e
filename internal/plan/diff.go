package plan

// AffectedDay lists the subscription tokens of a day that have new content.
type AffectedDay struct {
	Name   string   `json:"name"`
	Groups []string `json:"groups"`
}

// Affected maps day keys to their affected tokens.
type Affected map[string]AffectedDay

type entryIdentity struct {
	fields [fieldCount]string
	struck FieldSet
}

func identityOf(e Entry) entryIdentity {
	return entryIdentity{fields: e.Fields, struck: e.Struck}
}

// Diff returns the days and tokens of next that contain a group with at least one entry
// prev does not have. A nil prev makes every group affected. Entries of next are flagged
// with IsNew as a side effect.
func Diff(next, prev *Snapshot) Affected {
	affected := Affected{}
	for _, day := range next.Days() {
		var prevDay *Day
		if prev != nil {
			prevDay, _ = prev.GetDay(day.Date)
		}

		var tokens []string
		seen := map[string]struct{}{}
		hit := false
		for _, group := range day.Groups() {
			if !markNewEntries(group, prevDay) {
				continue
			}
			hit = true
			for _, t := range group.Tokens {
				if _, ok := seen[t]; ok {
					continue
				}
				seen[t] = struct{}{}
				tokens = append(tokens, t)
			}
		}
		if !hit {
			continue
		}
		if tokens == nil {
			tokens = []string{}
		}
		affected[day.Key()] = AffectedDay{
			Name:   day.Name,
			Groups: tokens,
		}
	}
	return affected
}

func markNewEntries(group *Group, prevDay *Day) bool {
	var known map[entryIdentity]struct{}
	if prevDay != nil {
		if prevGroup, ok := prevDay.Group(group.Key); ok {
			known = make(map[entryIdentity]struct{}, len(prevGroup.Entries))
			for _, e := range prevGroup.Entries {
				known[identityOf(e)] = struct{}{}
			}
		}
	}

	changed := false
	for i := range group.Entries {
		_, ok := known[identityOf(group.Entries[i])]
		group.Entries[i].IsNew = !ok
		if !ok {
			changed = true
		}
	}
	// a group that did not exist before is new even without entries
	if known == nil {
		return true
	}
	return changed
}
