package membership

import "sort"

// Index is the membership index. Both inverted maps describe the same edge
// set: m is in groupMembers[g] exactly when g is in memberGroups[m]. The
// index is populated by Build and never mutated afterwards, so concurrent
// readers need no locking.
type Index struct {
	groupMembers map[string]map[string]struct{}
	memberGroups map[string]map[string]struct{}
	groupNames   map[string]string
	memberNames  map[string]string
	edgeNames    map[string]map[string]string
	edges        int
}

// Build constructs an Index from a finite batch of records. Records missing
// a group or member ID are skipped and counted; duplicate edges collapse, so
// loading the same batch twice yields an identical index. Input order is
// irrelevant except that the first non-empty display name seen for an ID
// wins.
func Build(records []Record) (*Index, int) {
	idx := &Index{
		groupMembers: make(map[string]map[string]struct{}),
		memberGroups: make(map[string]map[string]struct{}),
		groupNames:   make(map[string]string),
		memberNames:  make(map[string]string),
		edgeNames:    make(map[string]map[string]string),
	}
	skipped := 0
	for _, rec := range records {
		if !rec.Valid() {
			skipped++
			continue
		}
		if rec.GroupName != "" {
			if _, known := idx.groupNames[rec.GroupID]; !known {
				idx.groupNames[rec.GroupID] = rec.GroupName
			}
		}
		if rec.MemberName != "" {
			if _, known := idx.memberNames[rec.MemberID]; !known {
				idx.memberNames[rec.MemberID] = rec.MemberName
			}
		}
		if rec.MemberGroupName != "" {
			names, ok := idx.edgeNames[rec.MemberID]
			if !ok {
				names = make(map[string]string)
				idx.edgeNames[rec.MemberID] = names
			}
			if _, known := names[rec.GroupID]; !known {
				names[rec.GroupID] = rec.MemberGroupName
			}
		}
		idx.insert(rec.GroupID, rec.MemberID)
	}
	return idx, skipped
}

// insert adds one edge to both inverted maps, idempotently.
func (idx *Index) insert(groupID, memberID string) {
	members, ok := idx.groupMembers[groupID]
	if !ok {
		members = make(map[string]struct{})
		idx.groupMembers[groupID] = members
	}
	if _, dup := members[memberID]; dup {
		return
	}
	members[memberID] = struct{}{}

	groups, ok := idx.memberGroups[memberID]
	if !ok {
		groups = make(map[string]struct{})
		idx.memberGroups[memberID] = groups
	}
	groups[groupID] = struct{}{}
	idx.edges++
}

// HasGroup reports whether the group ID is present in the index.
func (idx *Index) HasGroup(groupID string) bool {
	_, ok := idx.groupMembers[groupID]
	return ok
}

// HasMember reports whether the member ID is present in the index.
func (idx *Index) HasMember(memberID string) bool {
	_, ok := idx.memberGroups[memberID]
	return ok
}

// MemberSet returns the set of member IDs in the given group. The returned
// map is a read-only view into the index; callers must not modify it. An
// unknown group yields nil, which ranges as the empty set.
func (idx *Index) MemberSet(groupID string) map[string]struct{} {
	return idx.groupMembers[groupID]
}

// GroupSet returns the set of group IDs the given member belongs to, with
// the same read-only contract as MemberSet.
func (idx *Index) GroupSet(memberID string) map[string]struct{} {
	return idx.memberGroups[memberID]
}

// MembersOf returns the sorted member IDs of a group. Unknown groups yield
// an empty slice, not an error.
func (idx *Index) MembersOf(groupID string) []string {
	return sortedKeys(idx.groupMembers[groupID])
}

// GroupsOf returns the sorted group IDs a member belongs to. Unknown members
// yield an empty slice, not an error.
func (idx *Index) GroupsOf(memberID string) []string {
	return sortedKeys(idx.memberGroups[memberID])
}

// Groups returns all group IDs in the index, sorted.
func (idx *Index) Groups() []string {
	return sortedKeys2(idx.groupMembers)
}

// Members returns all member IDs in the index, sorted.
func (idx *Index) Members() []string {
	return sortedKeys2(idx.memberGroups)
}

// GroupName resolves a group's display name, falling back to the raw ID when
// no name is known.
func (idx *Index) GroupName(groupID string) string {
	if name, ok := idx.groupNames[groupID]; ok && name != "" {
		return name
	}
	return groupID
}

// MemberGroupName returns the display name the member uses inside the given
// group, or "" when none is known. In-group names are kept per edge, so the
// same member can carry a different name in every group.
func (idx *Index) MemberGroupName(memberID, groupID string) string {
	return idx.edgeNames[memberID][groupID]
}

// MemberName resolves a member's display name, falling back to the raw ID
// when no name is known.
func (idx *Index) MemberName(memberID string) string {
	if name, ok := idx.memberNames[memberID]; ok && name != "" {
		return name
	}
	return memberID
}

// GroupCount returns the number of groups in the index.
func (idx *Index) GroupCount() int {
	return len(idx.groupMembers)
}

// MemberCount returns the number of distinct members in the index.
func (idx *Index) MemberCount() int {
	return len(idx.memberGroups)
}

// EdgeCount returns the number of distinct membership edges.
func (idx *Index) EdgeCount() int {
	return idx.edges
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedKeys2(sets map[string]map[string]struct{}) []string {
	keys := make([]string, 0, len(sets))
	for k := range sets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
