// Package store persists virtual machine definitions as per-machine JSON
// config files tracked by a single JSON index of machine directories.
package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/jimyag/nqg/internal/nqg/entity"
	"github.com/jimyag/nqg/pkg/apierror"
)

// Options configures a Store.
type Options struct {
	// IndexPath is the JSON index file listing machine directories.
	IndexPath string
	// RenameFile overrides file renaming, used by tests.
	RenameFile func(oldpath, newpath string) error
	// RemoveFile overrides file removal, used by tests.
	RemoveFile func(path string) error
}

// Store reads and writes machine configs and the directory index.
type Store struct {
	indexPath  string
	renameFile func(oldpath, newpath string) error
	removeFile func(path string) error
}

// New creates a Store backed by the given index file.
func New(opts Options) *Store {
	s := &Store{
		indexPath:  opts.IndexPath,
		renameFile: opts.RenameFile,
		removeFile: opts.RemoveFile,
	}
	if s.renameFile == nil {
		s.renameFile = os.Rename
	}
	if s.removeFile == nil {
		s.removeFile = os.Remove
	}
	return s
}

// IndexPath returns the path of the index file.
func (s *Store) IndexPath() string {
	return s.indexPath
}

// LoadIndex reads the list of machine directories from the index file.
// A missing or unparsable index yields an empty list, duplicates are
// dropped while preserving first-seen order.
func (s *Store) LoadIndex(ctx context.Context) []string {
	log := zerolog.Ctx(ctx)

	var dirs []string
	if err := loadJSONFile(s.indexPath, &dirs); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Warn().Err(err).Str("index", s.indexPath).Msg("index unreadable, starting empty")
		}
		return nil
	}

	seen := make(map[string]struct{}, len(dirs))
	out := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		dir = strings.TrimSpace(dir)
		if dir == "" {
			continue
		}
		if _, ok := seen[dir]; ok {
			continue
		}
		seen[dir] = struct{}{}
		out = append(out, dir)
	}
	return out
}

// SaveIndex atomically rewrites the index file.
func (s *Store) SaveIndex(dirs []string) error {
	if dirs == nil {
		dirs = []string{}
	}
	if err := saveJSONFile(s.indexPath, dirs); err != nil {
		return apierror.Wrap(apierror.ErrIOFailure, fmt.Sprintf("save index %s", s.indexPath), err)
	}
	return nil
}

// LoadAll loads every machine tracked by the index. Entries whose
// directory or config file is missing or unparsable are pruned from the
// index, and the pruned index is written back. Pruning is logged, never
// fatal, so one corrupt machine cannot hide the rest.
func (s *Store) LoadAll(ctx context.Context) ([]*entity.VMRecord, error) {
	log := zerolog.Ctx(ctx)

	dirs := s.LoadIndex(ctx)
	records := make([]*entity.VMRecord, 0, len(dirs))
	kept := make([]string, 0, len(dirs))

	for _, dir := range dirs {
		rec, err := loadRecordFromDir(dir)
		if err != nil {
			log.Warn().Err(err).Str("dir", dir).Msg("pruning unusable index entry")
			continue
		}
		records = append(records, rec)
		kept = append(kept, dir)
	}

	if len(kept) != len(dirs) {
		if err := s.SaveIndex(kept); err != nil {
			log.Warn().Err(err).Msg("rewrite pruned index")
		}
	}

	return records, nil
}

// Get loads a single machine by name.
func (s *Store) Get(ctx context.Context, name string) (*entity.VMRecord, error) {
	records, err := s.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if rec.Name == name {
			return rec, nil
		}
	}
	return nil, apierror.Wrap(apierror.ErrNotFound, fmt.Sprintf("machine %s", name), nil)
}

// SaveRecord atomically writes the machine's config file and adds its
// directory to the index if absent.
func (s *Store) SaveRecord(ctx context.Context, rec *entity.VMRecord) error {
	if err := saveJSONFile(rec.ConfigPath(), rec); err != nil {
		return apierror.Wrap(apierror.ErrIOFailure, fmt.Sprintf("save config %s", rec.ConfigPath()), err)
	}

	dirs := s.LoadIndex(ctx)
	for _, dir := range dirs {
		if dir == rec.Directory {
			return nil
		}
	}
	return s.SaveIndex(append(dirs, rec.Directory))
}

// Rename renames a machine in place. The new config file is written
// first, then the disk image is renamed, then the old config file is
// removed. Any failure rolls back the earlier steps so the original
// config and image pair stays intact.
func (s *Store) Rename(ctx context.Context, rec *entity.VMRecord, newName string) (*entity.VMRecord, error) {
	if err := entity.ValidateName(newName); err != nil {
		return nil, apierror.Wrap(apierror.ErrValidationFailure, err.Error(), err)
	}
	if newName == rec.Name {
		return rec, nil
	}

	renamed := *rec
	renamed.Name = newName
	renamed.DiskImage = filepath.Join(rec.Directory, newName+entity.DiskImageExt)
	renamed.LaunchCmd = nil

	if fileExists(renamed.ConfigPath()) || fileExists(renamed.DiskImage) {
		return nil, apierror.Wrap(apierror.ErrRenameConflict,
			fmt.Sprintf("%s already exists in %s", newName, rec.Directory), nil)
	}

	if err := saveJSONFile(renamed.ConfigPath(), &renamed); err != nil {
		return nil, apierror.Wrap(apierror.ErrIOFailure,
			fmt.Sprintf("write config %s", renamed.ConfigPath()), err)
	}

	if fileExists(rec.DiskImage) {
		if err := s.renameFile(rec.DiskImage, renamed.DiskImage); err != nil {
			_ = s.removeFile(renamed.ConfigPath())
			return nil, apierror.Wrap(apierror.ErrIOFailure,
				fmt.Sprintf("rename disk image %s", rec.DiskImage), err)
		}
	}

	if err := s.removeFile(rec.ConfigPath()); err != nil && !os.IsNotExist(err) {
		if fileExists(renamed.DiskImage) {
			_ = s.renameFile(renamed.DiskImage, rec.DiskImage)
		}
		_ = s.removeFile(renamed.ConfigPath())
		return nil, apierror.Wrap(apierror.ErrIOFailure,
			fmt.Sprintf("remove old config %s", rec.ConfigPath()), err)
	}

	zerolog.Ctx(ctx).Info().
		Str("from", rec.Name).
		Str("to", newName).
		Str("dir", rec.Directory).
		Msg("machine renamed")

	return &renamed, nil
}

// Delete removes the machine's config file, disk image, and firmware and
// TPM state directories. The machine's directory is dropped from the
// index when no config file remains in it.
func (s *Store) Delete(ctx context.Context, rec *entity.VMRecord) error {
	log := zerolog.Ctx(ctx)

	if err := s.removeFile(rec.ConfigPath()); err != nil && !os.IsNotExist(err) {
		return apierror.Wrap(apierror.ErrIOFailure,
			fmt.Sprintf("remove config %s", rec.ConfigPath()), err)
	}
	if err := s.removeFile(rec.DiskImage); err != nil && !os.IsNotExist(err) {
		return apierror.Wrap(apierror.ErrIOFailure,
			fmt.Sprintf("remove disk image %s", rec.DiskImage), err)
	}
	for _, dir := range []string{rec.OVMFDir(), rec.TPMDir()} {
		if err := os.RemoveAll(dir); err != nil {
			log.Warn().Err(err).Str("dir", dir).Msg("remove state directory")
		}
	}

	if dirHasConfigs(rec.Directory) {
		return nil
	}

	dirs := s.LoadIndex(ctx)
	kept := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		if dir != rec.Directory {
			kept = append(kept, dir)
		}
	}
	if len(kept) != len(dirs) {
		return s.SaveIndex(kept)
	}
	return nil
}

// loadRecordFromDir finds the single machine config file inside dir.
func loadRecordFromDir(dir string) (*entity.VMRecord, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		var rec entity.VMRecord
		if err := loadJSONFile(filepath.Join(dir, e.Name()), &rec); err != nil {
			return nil, apierror.Wrap(apierror.ErrParseFailure,
				fmt.Sprintf("load config %s", e.Name()), err)
		}
		if rec.Name == "" {
			return nil, fmt.Errorf("config %s has no machine name", e.Name())
		}
		rec.Directory = dir
		return &rec, nil
	}
	return nil, fmt.Errorf("no config file in %s", dir)
}

func dirHasConfigs(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			return true
		}
	}
	return false
}
