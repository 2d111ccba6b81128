// Package swtpm manages the swtpm TPM-emulation helper process. The launch
// compiler only emits QEMU flags pointing at the emulator's unix socket;
// starting and stopping the emulator is the orchestrator's job and lives
// here, outside the pure compile step.
package swtpm

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// SocketName is the control socket file name inside a VM's tpm/ directory.
const SocketName = "swtpm-sock"

// Manager abstracts the TPM helper lifecycle so services can be tested
// without the real binary.
type Manager interface {
	// EnsureRunning makes sure a TPM emulator serves the given state
	// directory and returns the control socket path. Idempotent: an
	// already-listening socket is reused.
	EnsureRunning(ctx context.Context, stateDir string) (string, error)
	// Available reports whether the helper binary is discoverable.
	Available() bool
}

// Client launches swtpm as a detached long-lived side process.
type Client struct {
	swtpmPath string
	lookPath  func(string) (string, error)
}

// New creates a swtpm client. swtpmPath may be empty, in which case
// "swtpm" is resolved from PATH.
func New(swtpmPath string) *Client {
	if swtpmPath == "" {
		swtpmPath = "swtpm"
	}
	return &Client{
		swtpmPath: swtpmPath,
		lookPath:  exec.LookPath,
	}
}

// Available implements Manager.
func (c *Client) Available() bool {
	_, err := c.lookPath(c.swtpmPath)
	return err == nil
}

// EnsureRunning implements Manager. The emulator keeps its state under
// stateDir and binds the control socket at stateDir/swtpm-sock.
func (c *Client) EnsureRunning(ctx context.Context, stateDir string) (string, error) {
	socketPath := filepath.Join(stateDir, SocketName)

	if socketAlive(socketPath) {
		return socketPath, nil
	}

	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return "", fmt.Errorf("create tpm state dir %s: %w", stateDir, err)
	}
	// A dead emulator leaves its socket file behind.
	_ = os.Remove(socketPath)

	binary, err := c.lookPath(c.swtpmPath)
	if err != nil {
		return "", fmt.Errorf("swtpm not found: %w", err)
	}

	cmd := exec.Command(binary, "socket",
		"--tpm2",
		"--tpmstate", "dir="+stateDir,
		"--ctrl", "type=unixio,path="+socketPath,
		"--log", "level=0",
	)
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("start swtpm for %s: %w", stateDir, err)
	}

	log.Info().
		Str("state_dir", stateDir).
		Int("pid", cmd.Process.Pid).
		Msg("swtpm started")

	// The process is intentionally not reaped here: it outlives the
	// request that started it and exits with the VM.
	go func() { _ = cmd.Wait() }()

	if err := waitForSocket(ctx, socketPath, 5*time.Second); err != nil {
		return "", fmt.Errorf("swtpm socket %s: %w", socketPath, err)
	}

	return socketPath, nil
}

// socketAlive reports whether something is listening on the socket.
func socketAlive(path string) bool {
	conn, err := net.DialTimeout("unix", path, 100*time.Millisecond)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

func waitForSocket(ctx context.Context, path string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("socket did not appear within %s", timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

var _ Manager = (*Client)(nil)
