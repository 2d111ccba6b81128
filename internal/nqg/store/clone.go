package store

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jinzhu/copier"
	"github.com/rs/zerolog"

	"github.com/jimyag/nqg/internal/nqg/entity"
	"github.com/jimyag/nqg/pkg/apierror"
)

// cloneChunkSize is the copy granularity for disk images. Cancellation
// and progress callbacks happen between chunks.
const cloneChunkSize = 4 * 1024 * 1024

// ProgressFunc receives the copied fraction of the disk image in [0, 1].
type ProgressFunc func(fraction float64)

// Clone copies a machine into newDir under newName. The disk image is
// copied byte for byte in chunks so the caller can observe progress and
// cancel via ctx, firmware and TPM state directories are copied whole.
// A cancelled or failed clone leaves no partial disk image behind.
func (s *Store) Clone(ctx context.Context, src *entity.VMRecord, newName, newDir string, onProgress ProgressFunc) (*entity.VMRecord, error) {
	if err := entity.ValidateName(newName); err != nil {
		return nil, apierror.Wrap(apierror.ErrValidationFailure, err.Error(), err)
	}
	if newDir == "" {
		return nil, apierror.Wrap(apierror.ErrValidationFailure,
			"clone target directory must not be empty", nil)
	}

	clone := &entity.VMRecord{}
	if err := copier.Copy(clone, src); err != nil {
		return nil, apierror.Wrap(apierror.ErrInternal, "copy machine record", err)
	}
	clone.Name = newName
	clone.Directory = newDir
	clone.DiskImage = filepath.Join(newDir, newName+entity.DiskImageExt)
	clone.LaunchCmd = nil
	if clone.FirmwareCode != "" {
		clone.FirmwareCode = filepath.Join(clone.OVMFDir(), filepath.Base(src.FirmwareCode))
	}
	if clone.FirmwareVars != "" {
		clone.FirmwareVars = filepath.Join(clone.OVMFDir(), filepath.Base(src.FirmwareVars))
	}

	if fileExists(clone.ConfigPath()) || fileExists(clone.DiskImage) {
		return nil, apierror.Wrap(apierror.ErrRenameConflict,
			fmt.Sprintf("%s already exists in %s", newName, newDir), nil)
	}

	if err := os.MkdirAll(newDir, 0o755); err != nil {
		return nil, apierror.Wrap(apierror.ErrIOFailure, fmt.Sprintf("create directory %s", newDir), err)
	}

	if fileExists(src.DiskImage) {
		if err := copyFileChunked(ctx, src.DiskImage, clone.DiskImage, onProgress); err != nil {
			_ = os.Remove(clone.DiskImage)
			return nil, err
		}
	}

	log := zerolog.Ctx(ctx)
	for _, pair := range [][2]string{
		{src.OVMFDir(), clone.OVMFDir()},
		{src.TPMDir(), clone.TPMDir()},
	} {
		if err := copyDir(pair[0], pair[1]); err != nil {
			log.Warn().Err(err).Str("dir", pair[0]).Msg("copy state directory")
		}
	}

	if err := s.SaveRecord(ctx, clone); err != nil {
		_ = os.Remove(clone.DiskImage)
		return nil, err
	}

	log.Info().
		Str("from", src.Name).
		Str("to", newName).
		Str("dir", newDir).
		Msg("machine cloned")

	return clone, nil
}

// copyFileChunked copies src to dst in fixed-size chunks, reporting the
// copied fraction after each chunk and honoring ctx between chunks.
func copyFileChunked(ctx context.Context, src, dst string, onProgress ProgressFunc) error {
	in, err := os.Open(src)
	if err != nil {
		return apierror.Wrap(apierror.ErrIOFailure, fmt.Sprintf("open %s", src), err)
	}
	defer func() { _ = in.Close() }()

	info, err := in.Stat()
	if err != nil {
		return apierror.Wrap(apierror.ErrIOFailure, fmt.Sprintf("stat %s", src), err)
	}
	total := info.Size()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return apierror.Wrap(apierror.ErrIOFailure, fmt.Sprintf("create %s", dst), err)
	}

	buf := make([]byte, cloneChunkSize)
	var copied int64
	for {
		if err := ctx.Err(); err != nil {
			_ = out.Close()
			return apierror.Wrap(apierror.ErrIOFailure, fmt.Sprintf("copy %s cancelled", src), err)
		}

		n, readErr := in.Read(buf)
		if n > 0 {
			if _, err := out.Write(buf[:n]); err != nil {
				_ = out.Close()
				return apierror.Wrap(apierror.ErrIOFailure, fmt.Sprintf("write %s", dst), err)
			}
			copied += int64(n)
			if onProgress != nil {
				fraction := 1.0
				if total > 0 {
					fraction = float64(copied) / float64(total)
				}
				onProgress(fraction)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			_ = out.Close()
			return apierror.Wrap(apierror.ErrIOFailure, fmt.Sprintf("read %s", src), readErr)
		}
	}

	if err := out.Close(); err != nil {
		return apierror.Wrap(apierror.ErrIOFailure, fmt.Sprintf("close %s", dst), err)
	}
	if onProgress != nil && total == 0 {
		onProgress(1)
	}
	return nil
}

// copyDir copies a directory tree. A missing source is not an error.
func copyDir(src, dst string) error {
	info, err := os.Stat(src)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", src)
	}

	if err := os.MkdirAll(dst, info.Mode().Perm()); err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return fmt.Errorf("read %s: %w", src, err)
	}
	for _, e := range entries {
		from := filepath.Join(src, e.Name())
		to := filepath.Join(dst, e.Name())
		if e.IsDir() {
			if err := copyDir(from, to); err != nil {
				return err
			}
			continue
		}
		if err := copyFile(from, to); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Close()
}
