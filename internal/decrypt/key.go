// Package decrypt implements the acquisition pipeline for the encrypted
// group_info database: key derivation from the account UID and the file
// header, the fixed-size header strip, and the SQLCipher plaintext export
// via the sqlcipher command-line tool.
package decrypt

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

const (
	headerProbeSize = 54
	seedSize        = 8
	kernelSalt      = "nt_kernel"
)

// DeriveKey computes the database key from the account UID and the last 8
// bytes of the 54-byte file header: md5(md5(uid) + seed), where the seed is
// rendered the way Python's repr() prints a bytes literal. The escape text,
// not the raw bytes, goes into the hash, so the rendering must match
// byte-for-byte.
func DeriveKey(uid, dbPath string) (string, error) {
	f, err := os.Open(dbPath)
	if err != nil {
		return "", fmt.Errorf("opening database %s: %w", dbPath, err)
	}
	defer f.Close()

	header := make([]byte, headerProbeSize)
	if _, err := f.ReadAt(header, 0); err != nil {
		return "", fmt.Errorf("reading database header: %w", err)
	}
	seed := pyByteRepr(header[headerProbeSize-seedSize:])
	return md5Hex(md5Hex(uid) + seed), nil
}

// DBDirName returns the per-account database directory name,
// nt_qq_<md5(md5(uid) + "nt_kernel")>.
func DBDirName(uid string) string {
	return "nt_qq_" + md5Hex(md5Hex(uid)+kernelSalt)
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// pyByteRepr renders b exactly as Python's repr() of a bytes value, minus
// the b'' wrapper: printable ASCII verbatim, \t \n \r as two-character
// escapes, everything else as \xHH. Python switches the delimiter to double
// quotes when the value contains a single quote but no double quote, which
// changes what gets escaped.
func pyByteRepr(b []byte) string {
	quote := byte('\'')
	if bytes.IndexByte(b, '\'') >= 0 && bytes.IndexByte(b, '"') < 0 {
		quote = '"'
	}
	var sb strings.Builder
	for _, c := range b {
		switch {
		case c == '\\':
			sb.WriteString(`\\`)
		case c == quote:
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case c == '\t':
			sb.WriteString(`\t`)
		case c == '\n':
			sb.WriteString(`\n`)
		case c == '\r':
			sb.WriteString(`\r`)
		case c >= 0x20 && c < 0x7f:
			sb.WriteByte(c)
		default:
			fmt.Fprintf(&sb, `\x%02x`, c)
		}
	}
	return sb.String()
}
