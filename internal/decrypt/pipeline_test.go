package decrypt

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	apperrors "github.com/aaqwq/groupscope/pkg/errors"
)

// TestStripHeader verifies exactly the cleartext prefix is dropped.
func TestStripHeader(t *testing.T) {
	dir := t.TempDir()
	prefix := bytes.Repeat([]byte{0xAB}, encryptedHeaderSize)
	payload := []byte("SQLite format 3\x00 the rest of the pages")
	src := filepath.Join(dir, "raw.db")
	if err := os.WriteFile(src, append(prefix, payload...), 0o644); err != nil {
		t.Fatal(err)
	}

	dst := filepath.Join(dir, "cleaned.db")
	if err := StripHeader(src, dst); err != nil {
		t.Fatalf("StripHeader: %v", err)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("stripped file = %q, want %q", got, payload)
	}
}

// TestStripHeaderMissingSource verifies a missing input surfaces as an error.
func TestStripHeaderMissingSource(t *testing.T) {
	dir := t.TempDir()
	err := StripHeader(filepath.Join(dir, "nope.db"), filepath.Join(dir, "out.db"))
	if err == nil {
		t.Fatal("expected error for missing source")
	}
}

// TestRunDecryptedStep verifies the no-op step just validates the file
// exists.
func TestRunDecryptedStep(t *testing.T) {
	p := NewPipeline(t.TempDir())
	owner := "12345"

	_, err := p.Run(context.Background(), owner, StepDecrypted, "", "", false)
	if !errors.Is(err, apperrors.ErrSourceNotFound) {
		t.Fatalf("expected ErrSourceNotFound, got %v", err)
	}

	dir, err := p.OwnerDir(owner)
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(dir, DecryptedFile)
	if err := os.WriteFile(want, []byte("db"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := p.Run(context.Background(), owner, StepDecrypted, "", "", false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got != want {
		t.Errorf("Run returned %s, want %s", got, want)
	}
}

// TestRunValidation verifies the step and credential checks reject bad
// requests before touching any file.
func TestRunValidation(t *testing.T) {
	p := NewPipeline(t.TempDir())
	owner := "12345"
	ctx := context.Background()

	if _, err := p.Run(ctx, owner, Step("bogus"), "", "", false); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("unknown step: expected ErrInvalidInput, got %v", err)
	}
	if _, err := p.Run(ctx, owner, StepRaw, "", "", false); !errors.Is(err, apperrors.ErrSourceNotFound) {
		t.Errorf("raw without file: expected ErrSourceNotFound, got %v", err)
	}

	dir, _ := p.OwnerDir(owner)
	if err := os.WriteFile(filepath.Join(dir, RawFile), bytes.Repeat([]byte{1}, encryptedHeaderSize+headerProbeSize), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Run(ctx, owner, StepRaw, "", "", false); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("raw without uid or key: expected ErrInvalidInput, got %v", err)
	}

	if _, err := p.Run(ctx, owner, StepCleaned, "", "", false); !errors.Is(err, apperrors.ErrSourceNotFound) {
		t.Errorf("cleaned without file: expected ErrSourceNotFound, got %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, CleanedFile), []byte("enc"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Run(ctx, owner, StepCleaned, "", "", false); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("cleaned without key: expected ErrInvalidInput, got %v", err)
	}
}

// TestScanUIDs verifies filename parsing and the missing-directory case.
func TestScanUIDs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"20001###u_bbb", "10001###u_aaa", "garbage", "a###b###c"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	got, err := ScanUIDs(dir)
	if err != nil {
		t.Fatalf("ScanUIDs: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d mappings, want 2: %v", len(got), got)
	}
	if got[0].Account != "10001" || got[0].UID != "u_aaa" {
		t.Errorf("first mapping = %+v", got[0])
	}
	if got[1].Account != "20001" || got[1].UID != "u_bbb" {
		t.Errorf("second mapping = %+v", got[1])
	}

	missing, err := ScanUIDs(filepath.Join(dir, "does-not-exist"))
	if err != nil {
		t.Fatalf("missing dir: %v", err)
	}
	if missing != nil {
		t.Errorf("missing dir yielded %v, want nil", missing)
	}
}

// TestFetchRaw verifies the device copy lands in the owner directory under
// the raw file name.
func TestFetchRaw(t *testing.T) {
	chatDBDir := t.TempDir()
	uid := "u_abc123"
	deviceDir := filepath.Join(chatDBDir, DBDirName(uid))
	if err := os.MkdirAll(deviceDir, 0o755); err != nil {
		t.Fatal(err)
	}
	content := []byte("encrypted bytes")
	if err := os.WriteFile(filepath.Join(deviceDir, RawFile), content, 0o644); err != nil {
		t.Fatal(err)
	}

	p := NewPipeline(t.TempDir())
	if err := p.FetchRaw(chatDBDir, "12345", uid); err != nil {
		t.Fatalf("FetchRaw: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(p.DataDir, "12345", RawFile))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("copied file = %q, want %q", got, content)
	}
}

// TestFetchRawMissingDevice verifies the not-logged-in case maps to a
// source-not-found error.
func TestFetchRawMissingDevice(t *testing.T) {
	p := NewPipeline(t.TempDir())
	err := p.FetchRaw(t.TempDir(), "12345", "u_missing")
	if !errors.Is(err, apperrors.ErrSourceNotFound) {
		t.Fatalf("expected ErrSourceNotFound, got %v", err)
	}
}
