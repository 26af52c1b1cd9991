package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/aaqwq/groupscope/internal/membership"
)

// jsonGroup mirrors one entry of the JSON export document:
//
//	{"<group_id>": {"group_name": "...", "members": {"<member_id>": {...}}}}
type jsonGroup struct {
	GroupName string                `json:"group_name"`
	Members   map[string]jsonMember `json:"members"`
}

type jsonMember struct {
	UserName      string `json:"user_name"`
	UserGroupName string `json:"user_group_name"`
}

// JSONSource reads membership records from a JSON export document.
type JSONSource struct {
	Reader io.Reader
	// Owner rows are excluded, same as the database source.
	Owner  string
	logger *slog.Logger
}

// NewJSONSource creates a source decoding the JSON export from r.
func NewJSONSource(r io.Reader, owner string) *JSONSource {
	return &JSONSource{
		Reader: r,
		Owner:  owner,
		logger: slog.Default().With("component", "json-source"),
	}
}

func (s *JSONSource) Name() string { return "json" }

func (s *JSONSource) Records(ctx context.Context) ([]membership.Record, error) {
	var doc map[string]jsonGroup
	if err := json.NewDecoder(s.Reader).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding JSON export: %w", err)
	}

	records := make([]membership.Record, 0)
	excluded := 0
	for groupID, group := range doc {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for memberID, member := range group.Members {
			if memberID == s.Owner {
				excluded++
				continue
			}
			name := member.UserName
			if name == "" {
				name = member.UserGroupName
			}
			records = append(records, membership.Record{
				GroupID:         groupID,
				GroupName:       group.GroupName,
				MemberID:        memberID,
				MemberName:      name,
				MemberGroupName: member.UserGroupName,
			})
		}
	}
	s.logger.Info("json export read",
		"groups", len(doc),
		"records", len(records),
		"owner_rows_excluded", excluded,
	)
	return records, nil
}
