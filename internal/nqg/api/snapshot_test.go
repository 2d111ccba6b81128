package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jimyag/nqg/internal/nqg/entity"
	"github.com/jimyag/nqg/pkg/apierror"
)

type mockSnapshotService struct {
	mock.Mock
}

func (m *mockSnapshotService) CreateSnapshot(ctx context.Context, req *entity.CreateSnapshotRequest) (*entity.Snapshot, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Snapshot), args.Error(1)
}

func (m *mockSnapshotService) ListSnapshots(ctx context.Context, vmName string) ([]entity.Snapshot, error) {
	args := m.Called(ctx, vmName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.Snapshot), args.Error(1)
}

func (m *mockSnapshotService) RestoreSnapshot(ctx context.Context, req *entity.RestoreSnapshotRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *mockSnapshotService) DeleteSnapshot(ctx context.Context, req *entity.DeleteSnapshotRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

var _ SnapshotServiceInterface = (*mockSnapshotService)(nil)

func newSnapshotRouter(svc SnapshotServiceInterface) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	handler := &Snapshot{snapshotService: svc}
	handler.RegisterRoutes(engine.Group("/api"))
	return engine
}

func TestCreateSnapshotHandler(t *testing.T) {
	svc := &mockSnapshotService{}
	svc.On("CreateSnapshot", mock.Anything, mock.MatchedBy(func(req *entity.CreateSnapshotRequest) bool {
		return req.VMName == "alpine" && req.SnapshotName == "base"
	})).Return(&entity.Snapshot{Name: "base", VMName: "alpine"}, nil)

	router := newSnapshotRouter(svc)
	w := postJSON(t, router, "/api/create-snapshot", `{"vm_name":"alpine","snapshot_name":"base"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"base"`)
	svc.AssertExpectations(t)
}

func TestListSnapshotsHandler(t *testing.T) {
	svc := &mockSnapshotService{}
	svc.On("ListSnapshots", mock.Anything, "alpine").
		Return([]entity.Snapshot{{Name: "base", VMName: "alpine"}}, nil)

	router := newSnapshotRouter(svc)
	w := postJSON(t, router, "/api/list-snapshots", `{"vm_name":"alpine"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"snapshots"`)
}

func TestRestoreSnapshotHandler(t *testing.T) {
	svc := &mockSnapshotService{}
	svc.On("RestoreSnapshot", mock.Anything, mock.Anything).Return(nil)

	router := newSnapshotRouter(svc)
	w := postJSON(t, router, "/api/restore-snapshot", `{"vm_name":"alpine","snapshot_name":"base"}`)

	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestDeleteSnapshotHandlerRawDisk(t *testing.T) {
	svc := &mockSnapshotService{}
	svc.On("DeleteSnapshot", mock.Anything, mock.Anything).
		Return(apierror.Wrapf(apierror.ErrValidationFailure, nil, "disk format raw does not support snapshots"))

	router := newSnapshotRouter(svc)
	w := postJSON(t, router, "/api/delete-snapshot", `{"vm_name":"alpine","snapshot_name":"base"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
