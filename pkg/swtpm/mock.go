package swtpm

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockManager is a Manager backed by testify mocks.
type MockManager struct {
	mock.Mock
}

// NewMockManager creates a new MockManager.
func NewMockManager() *MockManager {
	return &MockManager{}
}

func (m *MockManager) EnsureRunning(ctx context.Context, stateDir string) (string, error) {
	args := m.Called(ctx, stateDir)
	return args.String(0), args.Error(1)
}

func (m *MockManager) Available() bool {
	args := m.Called()
	return args.Bool(0)
}

var _ Manager = (*MockManager)(nil)
