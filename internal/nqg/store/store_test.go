package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jimyag/nqg/internal/nqg/entity"
	"github.com/jimyag/nqg/pkg/apierror"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(Options{IndexPath: filepath.Join(t.TempDir(), "vms_index.json")})
}

func newTestRecord(t *testing.T, name string) *entity.VMRecord {
	t.Helper()
	dir := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	return &entity.VMRecord{
		Name:        name,
		Directory:   dir,
		CPUCount:    2,
		MemoryMiB:   2048,
		DiskSizeGiB: 20,
		DiskFormat:  entity.DiskFormatQCOW2,
		DiskImage:   filepath.Join(dir, name+entity.DiskImageExt),
		Firmware:    entity.FirmwareBIOS,
		Display:     entity.DisplayGTK,
	}
}

func TestLoadIndex(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)
		assert.Empty(t, s.LoadIndex(ctx))
	})

	t.Run("corrupt file", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)
		require.NoError(t, os.WriteFile(s.IndexPath(), []byte("{not json"), 0o644))
		assert.Empty(t, s.LoadIndex(ctx))
	})

	t.Run("dedup preserves order", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)
		require.NoError(t, s.SaveIndex([]string{"/a", "/b", "/a", "", "/c", "/b"}))
		assert.Equal(t, []string{"/a", "/b", "/c"}, s.LoadIndex(ctx))
	})
}

func TestSaveRecordRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)
	rec := newTestRecord(t, "alpine")

	require.NoError(t, s.SaveRecord(ctx, rec))
	assert.FileExists(t, rec.ConfigPath())
	assert.Equal(t, []string{rec.Directory}, s.LoadIndex(ctx))

	// Saving again must not duplicate the index entry.
	require.NoError(t, s.SaveRecord(ctx, rec))
	assert.Equal(t, []string{rec.Directory}, s.LoadIndex(ctx))

	records, err := s.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, rec.Name, records[0].Name)
	assert.Equal(t, rec.DiskImage, records[0].DiskImage)
	assert.Equal(t, rec.DiskFormat, records[0].DiskFormat)
}

func TestLoadAllPrunesBadEntries(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	good := newTestRecord(t, "good")
	require.NoError(t, s.SaveRecord(ctx, good))

	// A directory that no longer exists.
	gone := filepath.Join(t.TempDir(), "gone")

	// A directory whose config file is corrupt.
	corrupt := filepath.Join(t.TempDir(), "corrupt")
	require.NoError(t, os.MkdirAll(corrupt, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(corrupt, "corrupt.json"), []byte("{"), 0o644))

	require.NoError(t, s.SaveIndex([]string{gone, good.Directory, corrupt}))

	records, err := s.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "good", records[0].Name)

	// The pruned index must have been written back.
	assert.Equal(t, []string{good.Directory}, s.LoadIndex(ctx))
}

func TestLoadRecordFromDirCorruptConfig(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0o644))

	_, err := loadRecordFromDir(dir)
	assert.ErrorIs(t, err, apierror.ErrParseFailure)
}

func TestGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)
	rec := newTestRecord(t, "alpine")
	require.NoError(t, s.SaveRecord(ctx, rec))

	got, err := s.Get(ctx, "alpine")
	require.NoError(t, err)
	assert.Equal(t, "alpine", got.Name)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, apierror.ErrNotFound)
}

func TestRename(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("renames config and disk image", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)
		rec := newTestRecord(t, "old")
		require.NoError(t, os.WriteFile(rec.DiskImage, []byte("disk"), 0o644))
		require.NoError(t, s.SaveRecord(ctx, rec))

		renamed, err := s.Rename(ctx, rec, "new")
		require.NoError(t, err)
		assert.Equal(t, "new", renamed.Name)
		assert.Equal(t, filepath.Join(rec.Directory, "new.img"), renamed.DiskImage)

		assert.FileExists(t, renamed.ConfigPath())
		assert.FileExists(t, renamed.DiskImage)
		assert.NoFileExists(t, rec.ConfigPath())
		assert.NoFileExists(t, rec.DiskImage)
	})

	t.Run("same name is a no-op", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)
		rec := newTestRecord(t, "same")
		require.NoError(t, s.SaveRecord(ctx, rec))

		renamed, err := s.Rename(ctx, rec, "same")
		require.NoError(t, err)
		assert.Same(t, rec, renamed)
	})

	t.Run("invalid name rejected", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)
		rec := newTestRecord(t, "old")

		_, err := s.Rename(ctx, rec, `bad/name`)
		assert.Error(t, err)
	})

	t.Run("conflict leaves original untouched", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)
		rec := newTestRecord(t, "old")
		require.NoError(t, os.WriteFile(rec.DiskImage, []byte("disk"), 0o644))
		require.NoError(t, s.SaveRecord(ctx, rec))

		// Another machine already claims the target name.
		taken := filepath.Join(rec.Directory, "new.json")
		require.NoError(t, os.WriteFile(taken, []byte("{}"), 0o644))

		_, err := s.Rename(ctx, rec, "new")
		assert.ErrorIs(t, err, apierror.ErrRenameConflict)
		assert.FileExists(t, rec.ConfigPath())
		assert.FileExists(t, rec.DiskImage)
	})

	t.Run("disk rename failure rolls back new config", func(t *testing.T) {
		t.Parallel()
		rec := newTestRecord(t, "old")
		s := New(Options{
			IndexPath: filepath.Join(t.TempDir(), "vms_index.json"),
			RenameFile: func(oldpath, newpath string) error {
				if oldpath == rec.DiskImage {
					return errors.New("disk full")
				}
				return os.Rename(oldpath, newpath)
			},
		})
		require.NoError(t, os.WriteFile(rec.DiskImage, []byte("disk"), 0o644))
		require.NoError(t, s.SaveRecord(ctx, rec))

		_, err := s.Rename(ctx, rec, "new")
		assert.ErrorIs(t, err, apierror.ErrIOFailure)

		assert.FileExists(t, rec.ConfigPath())
		assert.FileExists(t, rec.DiskImage)
		assert.NoFileExists(t, filepath.Join(rec.Directory, "new.json"))
		assert.NoFileExists(t, filepath.Join(rec.Directory, "new.img"))
	})

	t.Run("old config removal failure rolls back disk rename", func(t *testing.T) {
		t.Parallel()
		rec := newTestRecord(t, "old")
		s := New(Options{
			IndexPath: filepath.Join(t.TempDir(), "vms_index.json"),
			RemoveFile: func(path string) error {
				if path == rec.ConfigPath() {
					return errors.New("permission denied")
				}
				return os.Remove(path)
			},
		})
		payload := []byte("disk")
		require.NoError(t, os.WriteFile(rec.DiskImage, payload, 0o644))
		require.NoError(t, s.SaveRecord(ctx, rec))

		_, err := s.Rename(ctx, rec, "new")
		assert.ErrorIs(t, err, apierror.ErrIOFailure)

		assert.FileExists(t, rec.ConfigPath())
		assert.NoFileExists(t, filepath.Join(rec.Directory, "new.json"))
		assert.NoFileExists(t, filepath.Join(rec.Directory, "new.img"))

		got, readErr := os.ReadFile(rec.DiskImage)
		require.NoError(t, readErr)
		assert.Equal(t, payload, got)
	})
}

func TestDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)
	rec := newTestRecord(t, "doomed")
	require.NoError(t, os.WriteFile(rec.DiskImage, []byte("disk"), 0o644))
	require.NoError(t, os.MkdirAll(rec.OVMFDir(), 0o755))
	require.NoError(t, os.MkdirAll(rec.TPMDir(), 0o755))
	require.NoError(t, s.SaveRecord(ctx, rec))

	require.NoError(t, s.Delete(ctx, rec))

	assert.NoFileExists(t, rec.ConfigPath())
	assert.NoFileExists(t, rec.DiskImage)
	assert.NoDirExists(t, rec.OVMFDir())
	assert.NoDirExists(t, rec.TPMDir())
	assert.Empty(t, s.LoadIndex(ctx))
}

func TestClone(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("copies disk with progress", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)
		src := newTestRecord(t, "src")
		payload := []byte("virtual disk contents")
		require.NoError(t, os.WriteFile(src.DiskImage, payload, 0o644))
		require.NoError(t, os.MkdirAll(src.OVMFDir(), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(src.OVMFDir(), "OVMF_CODE.fd"), []byte("code"), 0o644))
		src.Firmware = entity.FirmwareUEFI
		src.FirmwareCode = filepath.Join(src.OVMFDir(), "OVMF_CODE.fd")
		require.NoError(t, s.SaveRecord(ctx, src))

		var fractions []float64
		newDir := filepath.Join(t.TempDir(), "copy")
		clone, err := s.Clone(ctx, src, "copy", newDir, func(f float64) {
			fractions = append(fractions, f)
		})
		require.NoError(t, err)

		assert.Equal(t, "copy", clone.Name)
		assert.Equal(t, newDir, clone.Directory)
		assert.Equal(t, filepath.Join(newDir, "copy.img"), clone.DiskImage)
		assert.Equal(t, filepath.Join(clone.OVMFDir(), "OVMF_CODE.fd"), clone.FirmwareCode)
		assert.Nil(t, clone.LaunchCmd)

		got, err := os.ReadFile(clone.DiskImage)
		require.NoError(t, err)
		assert.Equal(t, payload, got)
		assert.FileExists(t, filepath.Join(clone.OVMFDir(), "OVMF_CODE.fd"))

		require.NotEmpty(t, fractions)
		assert.InDelta(t, 1.0, fractions[len(fractions)-1], 1e-9)

		// Source must be untouched and both machines indexed.
		assert.FileExists(t, src.ConfigPath())
		assert.FileExists(t, src.DiskImage)
		assert.ElementsMatch(t, []string{src.Directory, newDir}, s.LoadIndex(ctx))
	})

	t.Run("cancellation removes partial image", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)
		src := newTestRecord(t, "src")
		require.NoError(t, os.WriteFile(src.DiskImage, []byte("disk"), 0o644))
		require.NoError(t, s.SaveRecord(ctx, src))

		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		newDir := filepath.Join(t.TempDir(), "copy")
		_, err := s.Clone(cancelled, src, "copy", newDir, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		assert.NoFileExists(t, filepath.Join(newDir, "copy.img"))
		assert.NoFileExists(t, filepath.Join(newDir, "copy.json"))
	})

	t.Run("empty target directory rejected", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)
		src := newTestRecord(t, "src")
		require.NoError(t, s.SaveRecord(ctx, src))

		_, err := s.Clone(ctx, src, "copy", "", nil)
		assert.ErrorIs(t, err, apierror.ErrValidationFailure)
		assert.NoFileExists(t, filepath.Join(src.Directory, "copy.json"))
	})

	t.Run("conflict in target directory", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)
		src := newTestRecord(t, "src")
		require.NoError(t, s.SaveRecord(ctx, src))

		newDir := filepath.Join(t.TempDir(), "copy")
		require.NoError(t, os.MkdirAll(newDir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(newDir, "copy.json"), []byte("{}"), 0o644))

		_, err := s.Clone(ctx, src, "copy", newDir, nil)
		assert.ErrorIs(t, err, apierror.ErrRenameConflict)
	})
}
