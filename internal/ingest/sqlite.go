package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"

	_ "modernc.org/sqlite"

	"github.com/aaqwq/groupscope/internal/membership"
)

// Column positions in the decrypted chat database. The tables carry
// obfuscated column names, so rows are read positionally the same way the
// official client writes them.
const (
	groupListIDCol   = 0
	groupListNameCol = 5

	memberNickCol    = 0
	memberNameCol    = 1
	memberGroupIDCol = 2
	memberIDCol      = 5
)

// SQLiteSource reads membership records from a decrypted group_info
// database (tables group_list and group_member3).
type SQLiteSource struct {
	Path string
	// Owner is the account the database was extracted from. Rows for the
	// owner itself are excluded.
	Owner  string
	logger *slog.Logger
}

// NewSQLiteSource creates a source reading the decrypted database at path.
func NewSQLiteSource(path, owner string) *SQLiteSource {
	return &SQLiteSource{
		Path:   path,
		Owner:  owner,
		logger: slog.Default().With("component", "sqlite-source"),
	}
}

func (s *SQLiteSource) Name() string { return "db" }

// Records reads group names from group_list, then joins them onto the
// membership rows of group_member3.
func (s *SQLiteSource) Records(ctx context.Context) ([]membership.Record, error) {
	db, err := sql.Open("sqlite", s.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", s.Path, err)
	}
	defer db.Close()

	groupNames, err := s.readGroupNames(ctx, db)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, "SELECT * FROM group_member3")
	if err != nil {
		return nil, fmt.Errorf("querying group_member3: %w", err)
	}
	defer rows.Close()

	records := make([]membership.Record, 0)
	excluded := 0
	for rows.Next() {
		values, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning group_member3 row: %w", err)
		}
		if len(values) <= memberIDCol {
			continue
		}
		groupID := asString(values[memberGroupIDCol])
		memberID := asString(values[memberIDCol])
		if groupID == "" || memberID == "" {
			// Kept as a malformed record so the build reports it.
			records = append(records, membership.Record{GroupID: groupID, MemberID: memberID})
			continue
		}
		if memberID == s.Owner {
			excluded++
			continue
		}
		memberName := asString(values[memberNameCol])
		memberGroupName := asString(values[memberNickCol])
		if memberName == "" {
			memberName = memberGroupName
		}
		records = append(records, membership.Record{
			GroupID:         groupID,
			GroupName:       groupNames[groupID],
			MemberID:        memberID,
			MemberName:      memberName,
			MemberGroupName: memberGroupName,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating group_member3: %w", err)
	}
	s.logger.Info("database read",
		"path", s.Path,
		"groups", len(groupNames),
		"records", len(records),
		"owner_rows_excluded", excluded,
	)
	return records, nil
}

func (s *SQLiteSource) readGroupNames(ctx context.Context, db *sql.DB) (map[string]string, error) {
	rows, err := db.QueryContext(ctx, "SELECT * FROM group_list")
	if err != nil {
		return nil, fmt.Errorf("querying group_list: %w", err)
	}
	defer rows.Close()

	names := make(map[string]string)
	for rows.Next() {
		values, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning group_list row: %w", err)
		}
		if len(values) <= groupListNameCol {
			continue
		}
		id := asString(values[groupListIDCol])
		if id == "" {
			continue
		}
		names[id] = asString(values[groupListNameCol])
	}
	return names, rows.Err()
}

// scanRow scans every column of the current row into untyped holders.
func scanRow(rows *sql.Rows) ([]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	return values, nil
}

// asString renders a scanned SQLite value as a string. NULL becomes "".
func asString(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case []byte:
		return string(value)
	case int64:
		return strconv.FormatInt(value, 10)
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", value)
	}
}
