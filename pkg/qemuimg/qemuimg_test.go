package qemuimg

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("default path", func(t *testing.T) {
		t.Parallel()
		client := New("")
		assert.Equal(t, "qemu-img", client.qemuImgPath)
		assert.Equal(t, 30*time.Minute, client.timeout)
	})

	t.Run("custom path", func(t *testing.T) {
		t.Parallel()
		client := New("/usr/local/bin/qemu-img")
		assert.Equal(t, "/usr/local/bin/qemu-img", client.qemuImgPath)
	})

	t.Run("with timeout", func(t *testing.T) {
		t.Parallel()
		client := New("").WithTimeout(time.Minute)
		assert.Equal(t, time.Minute, client.timeout)
	})
}

func TestParseSnapshotList(t *testing.T) {
	t.Parallel()

	testcases := []struct {
		name   string
		output string
		want   []string
	}{
		{
			name:   "empty output",
			output: "",
			want:   nil,
		},
		{
			name:   "header only",
			output: "Snapshot list:\nID        TAG               VM SIZE                DATE       VM CLOCK\n",
			want:   nil,
		},
		{
			name: "two snapshots",
			output: "Snapshot list:\n" +
				"ID        TAG               VM SIZE                DATE       VM CLOCK\n" +
				"1         clean-install         0 B 2024-01-01 12:00:00   00:00:00.000\n" +
				"2         before-update         0 B 2024-02-01 09:30:00   00:00:00.000\n",
			want: []string{"clean-install", "before-update"},
		},
		{
			name: "non-numeric rows skipped",
			output: "Snapshot list:\n" +
				"ID        TAG               VM SIZE                DATE       VM CLOCK\n" +
				"1         snap1             0 B 2024-01-01 12:00:00   00:00:00.000\n" +
				"warning: image was not closed cleanly\n",
			want: []string{"snap1"},
		},
		{
			name:   "blank lines skipped",
			output: "\n\n1   snap1   0 B 2024-01-01 12:00:00   00:00:00.000\n\n",
			want:   []string{"snap1"},
		},
	}

	for _, tc := range testcases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, parseSnapshotList(tc.output))
		})
	}
}

func TestClient_Create(t *testing.T) {
	if _, err := exec.LookPath("qemu-img"); err != nil {
		t.Skip("qemu-img not found in PATH, skipping test")
	}

	t.Parallel()

	testcases := []struct {
		name    string
		format  string
		sizeGiB uint64
		wantErr bool
	}{
		{name: "create qcow2 image", format: "qcow2", sizeGiB: 1},
		{name: "create raw image", format: "raw", sizeGiB: 1},
		{name: "invalid format", format: "invalid", sizeGiB: 1, wantErr: true},
	}

	for _, tc := range testcases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			client := New("")
			imagePath := filepath.Join(t.TempDir(), "test.img")

			err := client.Create(context.Background(), tc.format, imagePath, tc.sizeGiB)

			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			_, err = os.Stat(imagePath)
			assert.NoError(t, err, "image file should exist")
		})
	}
}

func TestClient_SnapshotLifecycle(t *testing.T) {
	if _, err := exec.LookPath("qemu-img"); err != nil {
		t.Skip("qemu-img not found in PATH, skipping test")
	}

	t.Parallel()

	client := New("")
	ctx := context.Background()
	imagePath := filepath.Join(t.TempDir(), "test.img")

	require.NoError(t, client.Create(ctx, "qcow2", imagePath, 1))

	require.NoError(t, client.CreateSnapshot(ctx, imagePath, "snap1"))

	snapshots, err := client.ListSnapshots(ctx, imagePath)
	require.NoError(t, err)
	assert.Equal(t, []string{"snap1"}, snapshots)

	require.NoError(t, client.ApplySnapshot(ctx, imagePath, "snap1"))

	require.NoError(t, client.DeleteSnapshot(ctx, imagePath, "snap1"))
	snapshots, err = client.ListSnapshots(ctx, imagePath)
	require.NoError(t, err)
	assert.Empty(t, snapshots)
}

func TestClient_Format(t *testing.T) {
	if _, err := exec.LookPath("qemu-img"); err != nil {
		t.Skip("qemu-img not found in PATH, skipping test")
	}

	t.Parallel()

	client := New("")
	ctx := context.Background()
	imagePath := filepath.Join(t.TempDir(), "test.img")

	require.NoError(t, client.Create(ctx, "qcow2", imagePath, 1))

	format, err := client.Format(ctx, imagePath)
	require.NoError(t, err)
	assert.Equal(t, "qcow2", format)
}
