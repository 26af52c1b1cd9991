package decrypt

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	apperrors "github.com/aaqwq/groupscope/pkg/errors"
)

// encryptedHeaderSize is the size of the cleartext prefix the chat client
// prepends to the SQLCipher file. It must be removed before decryption.
const encryptedHeaderSize = 1024

// Step names where in the pipeline an import starts.
type Step string

const (
	StepRaw       Step = "raw"       // encrypted file with cleartext prefix
	StepCleaned   Step = "cleaned"   // prefix stripped, still encrypted
	StepDecrypted Step = "decrypted" // plaintext database, ready to ingest
)

// File names inside an owner's data directory, one per pipeline stage.
const (
	RawFile       = "group_info.db"
	CleanedFile   = "group_info.cleaned.db"
	DecryptedFile = "group_info.decrypted.db"
)

// Pipeline drives the raw-to-plaintext conversion inside an owner's data
// directory.
type Pipeline struct {
	DataDir string
	logger  *slog.Logger
}

// NewPipeline creates a Pipeline rooted at dataDir.
func NewPipeline(dataDir string) *Pipeline {
	return &Pipeline{
		DataDir: dataDir,
		logger:  slog.Default().With("component", "decrypt-pipeline"),
	}
}

// OwnerDir returns (and creates) the owner's working directory.
func (p *Pipeline) OwnerDir(owner string) (string, error) {
	dir := filepath.Join(p.DataDir, owner)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating owner directory: %w", err)
	}
	return dir, nil
}

// Run executes the pipeline from the given step and returns the path of the
// decrypted database. The uid is required from StepRaw unless an explicit
// key is supplied; StepCleaned always needs the key. When cleanup is set,
// intermediate files are removed afterwards.
func (p *Pipeline) Run(ctx context.Context, owner string, step Step, uid, key string, cleanup bool) (string, error) {
	dir, err := p.OwnerDir(owner)
	if err != nil {
		return "", err
	}
	rawPath := filepath.Join(dir, RawFile)
	cleanedPath := filepath.Join(dir, CleanedFile)
	decryptedPath := filepath.Join(dir, DecryptedFile)

	switch step {
	case StepRaw:
		if _, err := os.Stat(rawPath); err != nil {
			return "", apperrors.Newf(apperrors.ErrSourceNotFound, http.StatusNotFound, "%s not found, place the encrypted database first", RawFile)
		}
		if key == "" {
			if uid == "" {
				return "", apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "processing a raw database requires uid or key")
			}
			key, err = DeriveKey(uid, rawPath)
			if err != nil {
				return "", err
			}
		}
		if err := StripHeader(rawPath, cleanedPath); err != nil {
			return "", err
		}
		if err := p.Decrypt(ctx, cleanedPath, decryptedPath, key); err != nil {
			return "", err
		}
	case StepCleaned:
		if _, err := os.Stat(cleanedPath); err != nil {
			return "", apperrors.Newf(apperrors.ErrSourceNotFound, http.StatusNotFound, "%s not found", CleanedFile)
		}
		if key == "" {
			return "", apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "processing a cleaned database requires the key")
		}
		if err := p.Decrypt(ctx, cleanedPath, decryptedPath, key); err != nil {
			return "", err
		}
	case StepDecrypted:
		if _, err := os.Stat(decryptedPath); err != nil {
			return "", apperrors.Newf(apperrors.ErrSourceNotFound, http.StatusNotFound, "%s not found", DecryptedFile)
		}
	default:
		return "", apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "unknown step %q", step)
	}

	if cleanup && step != StepDecrypted {
		for _, f := range []string{rawPath, cleanedPath} {
			if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
				p.logger.Warn("cleanup failed", "file", f, "error", err)
			}
		}
	}
	return decryptedPath, nil
}

// StripHeader copies src to dst, dropping the cleartext prefix.
func StripHeader(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()
	if _, err := in.Seek(encryptedHeaderSize, io.SeekStart); err != nil {
		return fmt.Errorf("seeking past header: %w", err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("writing %s: %w", dst, err)
	}
	return out.Close()
}

// Decrypt exports the encrypted database to a plaintext copy using the
// sqlcipher CLI. The PRAGMA set matches the chat client's cipher profile.
func (p *Pipeline) Decrypt(ctx context.Context, encryptedPath, decryptedPath, key string) error {
	tool, err := findSQLCipher()
	if err != nil {
		return err
	}
	if err := os.Remove(decryptedPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale plaintext database: %w", err)
	}

	// sqlcipher accepts forward slashes on every platform.
	exportPath := strings.ReplaceAll(decryptedPath, `\`, "/")
	script := fmt.Sprintf(`
PRAGMA key = '%s';
PRAGMA cipher_page_size = 4096;
PRAGMA kdf_iter = 4000;
PRAGMA cipher_hmac_algorithm = HMAC_SHA1;
PRAGMA cipher_default_kdf_algorithm = PBKDF2_HMAC_SHA512;
PRAGMA cipher = 'aes-256-cbc';
ATTACH DATABASE '%s' AS plaintext KEY '';
SELECT sqlcipher_export('plaintext');
DETACH DATABASE plaintext;
`, key, exportPath)

	cmd := exec.CommandContext(ctx, tool, encryptedPath)
	cmd.Stdin = strings.NewReader(script)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return apperrors.Newf(apperrors.ErrDecryptFailed, http.StatusUnprocessableEntity, "sqlcipher export failed: %v: %s", err, strings.TrimSpace(string(output)))
	}
	p.logger.Info("database decrypted", "tool", tool, "output", decryptedPath)
	return nil
}

// findSQLCipher locates a usable sqlcipher binary on PATH.
func findSQLCipher() (string, error) {
	candidates := []string{"sqlcipher", "sqlcipher-x64", "sqlcipher-x86"}
	for _, name := range candidates {
		if runtime.GOOS == "windows" {
			name += ".exe"
		}
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", apperrors.New(apperrors.ErrDecryptFailed, http.StatusUnprocessableEntity,
		"no sqlcipher binary found on PATH; install sqlcipher or import an already-decrypted database")
}
