package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/jimyag/nqg/internal/nqg/entity"
	"github.com/jimyag/nqg/internal/nqg/store"
	"github.com/jimyag/nqg/pkg/apierror"
	"github.com/jimyag/nqg/pkg/idgen"
	"github.com/jimyag/nqg/pkg/qemuimg"
)

// SnapshotService manages disk image snapshots. Snapshots live inside
// the qcow2 image itself, raw images cannot hold them.
type SnapshotService struct {
	store   *store.Store
	qemuImg qemuimg.QemuImgClient
	idGen   *idgen.Generator
}

// NewSnapshotService creates a SnapshotService.
func NewSnapshotService(st *store.Store, client qemuimg.QemuImgClient) *SnapshotService {
	return &SnapshotService{
		store:   st,
		qemuImg: client,
		idGen:   idgen.Default(),
	}
}

// CreateSnapshot snapshots a machine's disk image. An empty snapshot
// name gets a generated one.
func (s *SnapshotService) CreateSnapshot(ctx context.Context, req *entity.CreateSnapshotRequest) (*entity.Snapshot, error) {
	logger := zerolog.Ctx(ctx)

	rec, err := s.snapshotTarget(ctx, req.VMName)
	if err != nil {
		return nil, err
	}

	name := req.SnapshotName
	if name == "" {
		name, err = s.idGen.SnapshotName()
		if err != nil {
			return nil, apierror.Wrap(apierror.ErrInternal, "generate snapshot name", err)
		}
	}
	if err := entity.ValidateName(name); err != nil {
		return nil, apierror.Wrap(apierror.ErrValidationFailure, err.Error(), err)
	}

	if err := s.qemuImg.CreateSnapshot(ctx, rec.DiskImage, name); err != nil {
		return nil, apierror.Wrap(apierror.ErrIOFailure,
			fmt.Sprintf("create snapshot %s on %s", name, rec.DiskImage), err)
	}

	logger.Info().Str("vm", rec.Name).Str("snapshot", name).Msg("snapshot created")
	return &entity.Snapshot{Name: name, VMName: rec.Name}, nil
}

// ListSnapshots lists the snapshots inside a machine's disk image.
func (s *SnapshotService) ListSnapshots(ctx context.Context, vmName string) ([]entity.Snapshot, error) {
	rec, err := s.snapshotTarget(ctx, vmName)
	if err != nil {
		return nil, err
	}

	names, err := s.qemuImg.ListSnapshots(ctx, rec.DiskImage)
	if err != nil {
		return nil, apierror.Wrap(apierror.ErrIOFailure,
			fmt.Sprintf("list snapshots of %s", rec.DiskImage), err)
	}

	snapshots := make([]entity.Snapshot, 0, len(names))
	for _, name := range names {
		snapshots = append(snapshots, entity.Snapshot{Name: name, VMName: rec.Name})
	}
	return snapshots, nil
}

// RestoreSnapshot reverts a machine's disk image to a snapshot.
func (s *SnapshotService) RestoreSnapshot(ctx context.Context, req *entity.RestoreSnapshotRequest) error {
	if err := entity.ValidateName(req.SnapshotName); err != nil {
		return apierror.Wrap(apierror.ErrValidationFailure, err.Error(), err)
	}

	rec, err := s.snapshotTarget(ctx, req.VMName)
	if err != nil {
		return err
	}

	if err := s.qemuImg.ApplySnapshot(ctx, rec.DiskImage, req.SnapshotName); err != nil {
		return apierror.Wrap(apierror.ErrIOFailure,
			fmt.Sprintf("restore snapshot %s on %s", req.SnapshotName, rec.DiskImage), err)
	}

	zerolog.Ctx(ctx).Info().
		Str("vm", rec.Name).
		Str("snapshot", req.SnapshotName).
		Msg("snapshot restored")
	return nil
}

// DeleteSnapshot removes a snapshot from a machine's disk image.
func (s *SnapshotService) DeleteSnapshot(ctx context.Context, req *entity.DeleteSnapshotRequest) error {
	if err := entity.ValidateName(req.SnapshotName); err != nil {
		return apierror.Wrap(apierror.ErrValidationFailure, err.Error(), err)
	}

	rec, err := s.snapshotTarget(ctx, req.VMName)
	if err != nil {
		return err
	}

	if err := s.qemuImg.DeleteSnapshot(ctx, rec.DiskImage, req.SnapshotName); err != nil {
		return apierror.Wrap(apierror.ErrIOFailure,
			fmt.Sprintf("delete snapshot %s on %s", req.SnapshotName, rec.DiskImage), err)
	}

	zerolog.Ctx(ctx).Info().
		Str("vm", rec.Name).
		Str("snapshot", req.SnapshotName).
		Msg("snapshot deleted")
	return nil
}

// snapshotTarget loads the machine and rejects disk formats that cannot
// hold internal snapshots.
func (s *SnapshotService) snapshotTarget(ctx context.Context, vmName string) (*entity.VMRecord, error) {
	rec, err := s.store.Get(ctx, vmName)
	if err != nil {
		return nil, err
	}
	if rec.DiskFormat != entity.DiskFormatQCOW2 {
		return nil, apierror.Wrapf(apierror.ErrValidationFailure, nil,
			"disk format %s does not support snapshots", rec.DiskFormat)
	}
	return rec, nil
}
