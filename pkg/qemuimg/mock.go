package qemuimg

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockClient is a QemuImgClient backed by testify mocks, for tests that
// must not depend on a real qemu-img binary.
type MockClient struct {
	mock.Mock
}

// NewMockClient creates a new MockClient.
func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) Create(ctx context.Context, format, imagePath string, sizeGiB uint64) error {
	args := m.Called(ctx, format, imagePath, sizeGiB)
	return args.Error(0)
}

func (m *MockClient) Info(ctx context.Context, imagePath string) (string, error) {
	args := m.Called(ctx, imagePath)
	return args.String(0), args.Error(1)
}

func (m *MockClient) Format(ctx context.Context, imagePath string) (string, error) {
	args := m.Called(ctx, imagePath)
	return args.String(0), args.Error(1)
}

func (m *MockClient) CreateSnapshot(ctx context.Context, imagePath, snapshotName string) error {
	args := m.Called(ctx, imagePath, snapshotName)
	return args.Error(0)
}

func (m *MockClient) ApplySnapshot(ctx context.Context, imagePath, snapshotName string) error {
	args := m.Called(ctx, imagePath, snapshotName)
	return args.Error(0)
}

func (m *MockClient) DeleteSnapshot(ctx context.Context, imagePath, snapshotName string) error {
	args := m.Called(ctx, imagePath, snapshotName)
	return args.Error(0)
}

func (m *MockClient) ListSnapshots(ctx context.Context, imagePath string) ([]string, error) {
	args := m.Called(ctx, imagePath)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

var _ QemuImgClient = (*MockClient)(nil)
