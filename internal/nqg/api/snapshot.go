package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/jimyag/nqg/internal/nqg/entity"
	"github.com/jimyag/nqg/internal/nqg/service"
	"github.com/jimyag/nqg/pkg/ginx"
)

// SnapshotServiceInterface is the slice of the snapshot service the
// handlers use.
type SnapshotServiceInterface interface {
	CreateSnapshot(ctx context.Context, req *entity.CreateSnapshotRequest) (*entity.Snapshot, error)
	ListSnapshots(ctx context.Context, vmName string) ([]entity.Snapshot, error)
	RestoreSnapshot(ctx context.Context, req *entity.RestoreSnapshotRequest) error
	DeleteSnapshot(ctx context.Context, req *entity.DeleteSnapshotRequest) error
}

type Snapshot struct {
	snapshotService SnapshotServiceInterface
}

func NewSnapshot(snapshotService *service.SnapshotService) *Snapshot {
	return &Snapshot{snapshotService: snapshotService}
}

func (s *Snapshot) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/create-snapshot", ginx.Adapt5(s.CreateSnapshot))
	router.POST("/list-snapshots", ginx.Adapt5(s.ListSnapshots))
	router.POST("/restore-snapshot", ginx.Adapt4(s.RestoreSnapshot))
	router.POST("/delete-snapshot", ginx.Adapt4(s.DeleteSnapshot))
}

func (s *Snapshot) CreateSnapshot(ctx *gin.Context, req *entity.CreateSnapshotRequest) (*entity.CreateSnapshotResponse, error) {
	logger := zerolog.Ctx(ctx)
	logger.Info().
		Str("vm_name", req.VMName).
		Str("snapshot_name", req.SnapshotName).
		Msg("API: CreateSnapshot called")

	snapshot, err := s.snapshotService.CreateSnapshot(ctx, req)
	if err != nil {
		logger.Error().Err(err).Msg("create snapshot failed")
		return nil, err
	}
	return &entity.CreateSnapshotResponse{Snapshot: snapshot}, nil
}

func (s *Snapshot) ListSnapshots(ctx *gin.Context, req *entity.ListSnapshotsRequest) (*entity.ListSnapshotsResponse, error) {
	snapshots, err := s.snapshotService.ListSnapshots(ctx, req.VMName)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("list snapshots failed")
		return nil, err
	}
	return &entity.ListSnapshotsResponse{Snapshots: snapshots}, nil
}

func (s *Snapshot) RestoreSnapshot(ctx *gin.Context, req *entity.RestoreSnapshotRequest) error {
	logger := zerolog.Ctx(ctx)
	logger.Info().
		Str("vm_name", req.VMName).
		Str("snapshot_name", req.SnapshotName).
		Msg("API: RestoreSnapshot called")

	if err := s.snapshotService.RestoreSnapshot(ctx, req); err != nil {
		logger.Error().Err(err).Msg("restore snapshot failed")
		return err
	}
	return nil
}

func (s *Snapshot) DeleteSnapshot(ctx *gin.Context, req *entity.DeleteSnapshotRequest) error {
	logger := zerolog.Ctx(ctx)
	logger.Info().
		Str("vm_name", req.VMName).
		Str("snapshot_name", req.SnapshotName).
		Msg("API: DeleteSnapshot called")

	if err := s.snapshotService.DeleteSnapshot(ctx, req); err != nil {
		logger.Error().Err(err).Msg("delete snapshot failed")
		return err
	}
	return nil
}
