// Package analysis implements the query engines over a built membership
// index: pair co-occurrence, group overlap, multi-group intersection, and
// the supporting lookups (frequent members, member group detail, group
// search). All operations are pure functions of the index and their inputs
// and are safe for concurrent use.
package analysis

import (
	"net/http"
	"sort"
	"strings"

	apperrors "github.com/aaqwq/groupscope/pkg/errors"

	"github.com/aaqwq/groupscope/internal/membership"
)

// GroupRef identifies a group together with its display name.
type GroupRef struct {
	GroupID   string `json:"group_id"`
	GroupName string `json:"group_name"`
}

// MemberRef identifies a member together with its display name.
type MemberRef struct {
	MemberID   string `json:"member_id"`
	MemberName string `json:"member_name"`
}

// MemberOverlap is one row of a group-overlap result: a member of the
// queried group and every other group that member belongs to. OtherGroups is
// empty, not omitted, for members known only from the queried group.
type MemberOverlap struct {
	MemberRef
	OtherGroups []GroupRef `json:"other_groups"`
}

// GroupOverlap returns, for every member of the given group, the set of
// other groups they also belong to. Unknown group IDs are rejected.
func GroupOverlap(idx *membership.Index, groupID string) ([]MemberOverlap, error) {
	if !idx.HasGroup(groupID) {
		return nil, apperrors.Newf(apperrors.ErrGroupNotFound, http.StatusNotFound, "group %s", groupID)
	}
	members := idx.MembersOf(groupID)
	result := make([]MemberOverlap, 0, len(members))
	for _, memberID := range members {
		others := make([]GroupRef, 0)
		for _, gid := range idx.GroupsOf(memberID) {
			if gid == groupID {
				continue
			}
			others = append(others, GroupRef{GroupID: gid, GroupName: idx.GroupName(gid)})
		}
		result = append(result, MemberOverlap{
			MemberRef:   MemberRef{MemberID: memberID, MemberName: idx.MemberName(memberID)},
			OtherGroups: others,
		})
	}
	return result, nil
}

// CommonMembers returns the members present in every one of the given
// groups. The whole query is rejected if any listed group is unknown.
// Evaluation starts from the smallest member set and stops early once the
// running intersection is empty.
func CommonMembers(idx *membership.Index, groupIDs []string) ([]MemberRef, error) {
	if len(groupIDs) == 0 {
		return nil, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "at least one group id is required")
	}
	seen := make(map[string]struct{}, len(groupIDs))
	distinct := make([]string, 0, len(groupIDs))
	for _, gid := range groupIDs {
		if !idx.HasGroup(gid) {
			return nil, apperrors.Newf(apperrors.ErrGroupNotFound, http.StatusNotFound, "group %s", gid)
		}
		if _, dup := seen[gid]; dup {
			continue
		}
		seen[gid] = struct{}{}
		distinct = append(distinct, gid)
	}

	sort.Slice(distinct, func(i, j int) bool {
		return len(idx.MemberSet(distinct[i])) < len(idx.MemberSet(distinct[j]))
	})

	running := make(map[string]struct{}, len(idx.MemberSet(distinct[0])))
	for memberID := range idx.MemberSet(distinct[0]) {
		running[memberID] = struct{}{}
	}
	for _, gid := range distinct[1:] {
		memberSet := idx.MemberSet(gid)
		for memberID := range running {
			if _, ok := memberSet[memberID]; !ok {
				delete(running, memberID)
			}
		}
		if len(running) == 0 {
			break
		}
	}

	result := make([]MemberRef, 0, len(running))
	for memberID := range running {
		result = append(result, MemberRef{MemberID: memberID, MemberName: idx.MemberName(memberID)})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].MemberID < result[j].MemberID })
	return result, nil
}

// MemberGroupCount is one row of a frequent-members result.
type MemberGroupCount struct {
	MemberRef
	GroupCount int `json:"group_count"`
}

// FrequentMembers returns members belonging to at least minGroups groups,
// sorted by descending group count, ties broken by ascending member ID. A
// minGroups below 1 is treated as 1.
func FrequentMembers(idx *membership.Index, minGroups int) []MemberGroupCount {
	if minGroups < 1 {
		minGroups = 1
	}
	result := make([]MemberGroupCount, 0)
	for _, memberID := range idx.Members() {
		count := len(idx.GroupSet(memberID))
		if count >= minGroups {
			result = append(result, MemberGroupCount{
				MemberRef:  MemberRef{MemberID: memberID, MemberName: idx.MemberName(memberID)},
				GroupCount: count,
			})
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].GroupCount != result[j].GroupCount {
			return result[i].GroupCount > result[j].GroupCount
		}
		return result[i].MemberID < result[j].MemberID
	})
	return result
}

// GroupMembership is one row of a member-group-detail result: a group the
// member belongs to and the name the member uses inside it.
type GroupMembership struct {
	GroupRef
	MemberGroupName string `json:"member_group_name"`
}

// MemberGroupDetail returns every group a member belongs to, with the
// group's display name and the member's in-group name. Unknown member IDs
// are rejected.
func MemberGroupDetail(idx *membership.Index, memberID string) ([]GroupMembership, error) {
	if !idx.HasMember(memberID) {
		return nil, apperrors.Newf(apperrors.ErrMemberNotFound, http.StatusNotFound, "member %s", memberID)
	}
	groups := idx.GroupsOf(memberID)
	result := make([]GroupMembership, 0, len(groups))
	for _, gid := range groups {
		result = append(result, GroupMembership{
			GroupRef:        GroupRef{GroupID: gid, GroupName: idx.GroupName(gid)},
			MemberGroupName: idx.MemberGroupName(memberID, gid),
		})
	}
	return result, nil
}

// SearchGroups returns up to limit groups whose display name contains the
// query substring (case-insensitive). An empty query matches every group.
func SearchGroups(idx *membership.Index, query string, limit int) []GroupRef {
	if limit <= 0 {
		limit = 20
	}
	needle := strings.ToLower(query)
	result := make([]GroupRef, 0)
	for _, gid := range idx.Groups() {
		name := idx.GroupName(gid)
		if needle != "" && !strings.Contains(strings.ToLower(name), needle) {
			continue
		}
		result = append(result, GroupRef{GroupID: gid, GroupName: name})
		if len(result) >= limit {
			break
		}
	}
	return result
}
