// Package membership builds and owns the in-memory membership index: two
// inverted maps (group to members, member to groups) plus display-name
// tables, constructed once from a batch of ingested records and immutable
// afterwards.
package membership

import "strings"

// Record is one normalized membership tuple produced by an ingestor: a
// single edge between a group and a member. Group and member IDs are
// required; display names may be empty.
type Record struct {
	GroupID    string `json:"group_id"`
	GroupName  string `json:"group_name"`
	MemberID   string `json:"member_id"`
	MemberName string `json:"member_name"`
	// MemberGroupName is the display name the member uses inside this
	// particular group, when the chat client knows one.
	MemberGroupName string `json:"member_group_name,omitempty"`
}

// Valid reports whether the record carries both required identifiers.
func (r Record) Valid() bool {
	return strings.TrimSpace(r.GroupID) != "" && strings.TrimSpace(r.MemberID) != ""
}
