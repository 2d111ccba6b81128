package apierror

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Error(t *testing.T) {
	t.Parallel()

	t.Run("without cause", func(t *testing.T) {
		t.Parallel()
		err := New("NotFound", "gone", 404)
		assert.Equal(t, "[NotFound] gone", err.Error())
	})

	t.Run("with cause", func(t *testing.T) {
		t.Parallel()
		err := Wrap(ErrIOFailure, "remove /tmp/x", os.ErrPermission)
		assert.Contains(t, err.Error(), "[IOFailure]")
		assert.Contains(t, err.Error(), "remove /tmp/x")
		assert.Contains(t, err.Error(), "permission denied")
	})
}

func TestError_Is(t *testing.T) {
	t.Parallel()

	err := Wrap(ErrRenameConflict, "vm2.json already exists", nil)
	assert.True(t, errors.Is(err, ErrRenameConflict))
	assert.False(t, errors.Is(err, ErrIOFailure))

	// Matching survives further fmt wrapping.
	wrapped := fmt.Errorf("rename vm: %w", err)
	assert.True(t, errors.Is(wrapped, ErrRenameConflict))
}

func TestError_Unwrap(t *testing.T) {
	t.Parallel()

	cause := os.ErrNotExist
	err := Wrap(ErrNotFound, "config missing", cause)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	var target *Error
	require.True(t, errors.As(fmt.Errorf("outer: %w", err), &target))
	assert.Equal(t, "NotFound", target.Code)
}

func TestWrap_KeepsCodeAndStatus(t *testing.T) {
	t.Parallel()

	err := Wrapf(ErrFirmwareFilesMissing, nil, "vars volume %s missing", "/vm/ovmf/OVMF_VARS.fd")
	assert.Equal(t, ErrFirmwareFilesMissing.Code, err.Code)
	assert.Equal(t, ErrFirmwareFilesMissing.HTTPStatus, err.HTTPStatus)
	assert.Contains(t, err.Message, "OVMF_VARS.fd")
}
