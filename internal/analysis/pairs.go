package analysis

import (
	"sort"

	"github.com/aaqwq/groupscope/internal/membership"
)

// Pair is one co-occurring member pair. MemberID1 < MemberID2 always holds,
// so a pair appears exactly once regardless of enumeration order.
type Pair struct {
	MemberID1    string     `json:"member_id_1"`
	MemberName1  string     `json:"member_name_1"`
	MemberID2    string     `json:"member_id_2"`
	MemberName2  string     `json:"member_name_2"`
	SharedCount  int        `json:"shared_count"`
	SharedGroups []GroupRef `json:"shared_groups"`
}

type pairKey struct {
	a, b string
}

func newPairKey(m1, m2 string) pairKey {
	if m1 < m2 {
		return pairKey{a: m1, b: m2}
	}
	return pairKey{a: m2, b: m1}
}

// CoOccurringPairs returns every unordered member pair sharing at least
// threshold groups, with the shared count and the shared groups attached.
// A threshold below 1 is treated as 1.
//
// Pairs are enumerated per group rather than across all members: each group
// with member set S contributes C(|S|,2) counter increments, making the
// whole pass O(sum of |S|^2) over groups instead of O(members^2) over the
// dataset. Members in zero or one group never appear in any counter.
//
// Results are sorted by descending shared count, ties broken by ascending
// pair ID.
func CoOccurringPairs(idx *membership.Index, threshold int) []Pair {
	if threshold < 1 {
		threshold = 1
	}

	counts := make(map[pairKey]int)
	for _, gid := range idx.Groups() {
		members := idx.MembersOf(gid)
		for i := 0; i < len(members); i++ {
			for j := i + 1; j < len(members); j++ {
				counts[newPairKey(members[i], members[j])]++
			}
		}
	}

	result := make([]Pair, 0)
	for key, count := range counts {
		if count < threshold {
			continue
		}
		result = append(result, Pair{
			MemberID1:    key.a,
			MemberName1:  idx.MemberName(key.a),
			MemberID2:    key.b,
			MemberName2:  idx.MemberName(key.b),
			SharedCount:  count,
			SharedGroups: sharedGroups(idx, key.a, key.b),
		})
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].SharedCount != result[j].SharedCount {
			return result[i].SharedCount > result[j].SharedCount
		}
		if result[i].MemberID1 != result[j].MemberID1 {
			return result[i].MemberID1 < result[j].MemberID1
		}
		return result[i].MemberID2 < result[j].MemberID2
	})
	return result
}

// sharedGroups intersects the two members' group sets, iterating the smaller
// one, and returns the shared groups sorted by ID.
func sharedGroups(idx *membership.Index, m1, m2 string) []GroupRef {
	small, large := idx.GroupSet(m1), idx.GroupSet(m2)
	if len(large) < len(small) {
		small, large = large, small
	}
	ids := make([]string, 0, len(small))
	for gid := range small {
		if _, ok := large[gid]; ok {
			ids = append(ids, gid)
		}
	}
	sort.Strings(ids)
	refs := make([]GroupRef, 0, len(ids))
	for _, gid := range ids {
		refs = append(refs, GroupRef{GroupID: gid, GroupName: idx.GroupName(gid)})
	}
	return refs
}
