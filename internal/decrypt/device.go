package decrypt

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	apperrors "github.com/aaqwq/groupscope/pkg/errors"
)

// UIDMapping pairs a chat account number with its internal UID, read from
// the client's uid directory where each file is named "<account>###<uid>".
type UIDMapping struct {
	Account string `json:"account"`
	UID     string `json:"uid"`
}

// ScanUIDs lists the account/UID mappings present on the device. A missing
// directory yields an empty list, not an error; the caller decides how to
// present an unrooted or foreign host.
func ScanUIDs(uidDir string) ([]UIDMapping, error) {
	entries, err := os.ReadDir(uidDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading uid directory %s: %w", uidDir, err)
	}
	mappings := make([]UIDMapping, 0)
	for _, entry := range entries {
		parts := strings.Split(entry.Name(), "###")
		if len(parts) != 2 {
			continue
		}
		mappings = append(mappings, UIDMapping{Account: parts[0], UID: parts[1]})
	}
	sort.Slice(mappings, func(i, j int) bool { return mappings[i].Account < mappings[j].Account })
	return mappings, nil
}

// FetchRaw copies the encrypted database for the given UID from the chat
// client's database directory into the owner's working directory, where the
// raw pipeline step can pick it up.
func (p *Pipeline) FetchRaw(chatDBDir, owner, uid string) error {
	src := filepath.Join(chatDBDir, DBDirName(uid), RawFile)
	if _, err := os.Stat(src); err != nil {
		return apperrors.Newf(apperrors.ErrSourceNotFound, http.StatusNotFound,
			"%s not found, is the account logged in on this device?", src)
	}
	dir, err := p.OwnerDir(owner)
	if err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()
	out, err := os.Create(filepath.Join(dir, RawFile))
	if err != nil {
		return fmt.Errorf("creating local copy: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying database: %w", err)
	}
	return out.Close()
}
