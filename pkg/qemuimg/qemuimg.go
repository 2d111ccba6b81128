package qemuimg

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Client wraps the qemu-img command-line tool.
type Client struct {
	qemuImgPath string
	timeout     time.Duration
}

// New creates a qemu-img client. qemuImgPath may be empty, in which case
// "qemu-img" is resolved from PATH.
func New(qemuImgPath string) *Client {
	if qemuImgPath == "" {
		qemuImgPath = "qemu-img"
	}
	return &Client{
		qemuImgPath: qemuImgPath,
		// Image creation on slow disks can take a while.
		timeout: 30 * time.Minute,
	}
}

// WithTimeout sets the timeout for long-running operations.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	c.timeout = timeout
	return c
}

// Create creates an empty disk image:
//
//	qemu-img create -f <format> <path> <size>G
func (c *Client) Create(ctx context.Context, format, imagePath string, sizeGiB uint64) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.qemuImgPath, "create",
		"-f", format,
		imagePath,
		fmt.Sprintf("%dG", sizeGiB),
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("create image %s: %w, output: %s", imagePath, err, string(output))
	}

	return nil
}

// Info returns the raw output of qemu-img info for an image.
func (c *Client) Info(ctx context.Context, imagePath string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.qemuImgPath, "info", imagePath)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("image info for %s: %w, output: %s", imagePath, err, string(output))
	}

	return string(output), nil
}

// Format returns an image's actual on-disk format, parsed from the
// "file format:" line of qemu-img info.
func (c *Client) Format(ctx context.Context, imagePath string) (string, error) {
	info, err := c.Info(ctx, imagePath)
	if err != nil {
		return "", err
	}

	for _, line := range strings.Split(info, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "file format:") {
			parts := strings.SplitN(line, ":", 2)
			if len(parts) == 2 {
				return strings.TrimSpace(parts[1]), nil
			}
		}
	}

	return "", fmt.Errorf("no file format line in qemu-img info output for %s", imagePath)
}

// CreateSnapshot creates an internal snapshot. qcow2 images only.
func (c *Client) CreateSnapshot(ctx context.Context, imagePath, snapshotName string) error {
	return c.snapshotOp(ctx, "-c", snapshotName, imagePath)
}

// ApplySnapshot reverts the image to a previously created snapshot.
func (c *Client) ApplySnapshot(ctx context.Context, imagePath, snapshotName string) error {
	return c.snapshotOp(ctx, "-a", snapshotName, imagePath)
}

// DeleteSnapshot removes a snapshot from the image.
func (c *Client) DeleteSnapshot(ctx context.Context, imagePath, snapshotName string) error {
	return c.snapshotOp(ctx, "-d", snapshotName, imagePath)
}

func (c *Client) snapshotOp(ctx context.Context, op, snapshotName, imagePath string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.qemuImgPath, "snapshot", op, snapshotName, imagePath)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("snapshot %s %q on %s: %w, output: %s", op, snapshotName, imagePath, err, string(output))
	}

	return nil
}

// ListSnapshots returns the snapshot tags of an image.
func (c *Client) ListSnapshots(ctx context.Context, imagePath string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.qemuImgPath, "snapshot", "-l", imagePath)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("list snapshots for %s: %w, output: %s", imagePath, err, string(output))
	}

	return parseSnapshotList(string(output)), nil
}

// parseSnapshotList extracts the TAG column from qemu-img snapshot -l
// output:
//
//	Snapshot list:
//	ID        TAG               VM SIZE                DATE       VM CLOCK
//	1         clean-install     0 B 2024-01-01 12:00:00   00:00:00.000
//
// The output is positional and whitespace-delimited, so only rows whose
// first token is numeric are accepted; header lines and anything else
// qemu-img may print are skipped.
func parseSnapshotList(output string) []string {
	var snapshots []string
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		if !isNumeric(fields[0]) {
			continue
		}
		snapshots = append(snapshots, fields[1])
	}
	return snapshots
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
