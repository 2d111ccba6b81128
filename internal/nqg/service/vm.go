// Package service implements the machine lifecycle on top of the store,
// the launch compiler and the external tool wrappers.
package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/jimyag/nqg/internal/nqg/entity"
	"github.com/jimyag/nqg/internal/nqg/launch"
	"github.com/jimyag/nqg/internal/nqg/store"
	"github.com/jimyag/nqg/pkg/apierror"
	"github.com/jimyag/nqg/pkg/hostlimits"
	"github.com/jimyag/nqg/pkg/qemuimg"
	"github.com/jimyag/nqg/pkg/swtpm"
)

// VMService implements the machine lifecycle operations.
type VMService struct {
	store     *store.Store
	compiler  *launch.Compiler
	qemuImg   qemuimg.QemuImgClient
	tpm       swtpm.Manager
	firmware  *FirmwareProvisioner
	limits    hostlimits.Limits
	startProc func(ctx context.Context, argv []string) (int, error)

	mu   sync.Mutex
	pids map[string]int
}

// VMServiceOptions wires a VMService.
type VMServiceOptions struct {
	Store    *store.Store
	Compiler *launch.Compiler
	QemuImg  qemuimg.QemuImgClient
	TPM      swtpm.Manager
	Firmware *FirmwareProvisioner
	Limits   hostlimits.Limits
	// StartProcess overrides how the launch argv is spawned, used by tests.
	StartProcess func(ctx context.Context, argv []string) (int, error)
}

// NewVMService creates a VMService.
func NewVMService(opts VMServiceOptions) *VMService {
	s := &VMService{
		store:     opts.Store,
		compiler:  opts.Compiler,
		qemuImg:   opts.QemuImg,
		tpm:       opts.TPM,
		firmware:  opts.Firmware,
		limits:    opts.Limits,
		startProc: opts.StartProcess,
		pids:      make(map[string]int),
	}
	if s.startProc == nil {
		s.startProc = startDetached
	}
	return s
}

// CreateVM creates a machine: its directory, its disk image, its
// firmware copies when the mode needs them, and its config file.
func (s *VMService) CreateVM(ctx context.Context, req *entity.CreateVMRequest) (*entity.VMRecord, error) {
	logger := zerolog.Ctx(ctx)
	logger.Info().Str("name", req.Name).Str("dir", req.Directory).Msg("creating machine")

	rec := &entity.VMRecord{
		Name:        req.Name,
		Directory:   filepath.Join(req.Directory, req.Name),
		CPUCount:    req.CPUCount,
		MemoryMiB:   req.MemoryMiB,
		DiskSizeGiB: req.DiskSizeGiB,
		DiskFormat:  req.DiskFormat,
		Firmware:    req.Firmware,
		Display:     req.Display,
		Accel3D:     req.Accel3D,
		TPMEnabled:  req.TPMEnabled,
		ISO:         req.ISO,
		ISOEnabled:  req.ISOEnabled,
	}
	if rec.DiskFormat == "" {
		rec.DiskFormat = entity.DiskFormatQCOW2
	}
	if rec.Firmware == "" {
		rec.Firmware = entity.FirmwareBIOS
	}
	if rec.Display == "" {
		rec.Display = entity.DisplayGTK
	}
	rec.DiskImage = rec.DiskImagePath()

	if err := s.validateRecord(rec); err != nil {
		return nil, err
	}
	if existing, err := s.store.Get(ctx, rec.Name); err == nil && existing != nil {
		return nil, apierror.Wrap(apierror.ErrRenameConflict,
			fmt.Sprintf("machine %s already exists", rec.Name), nil)
	}

	if err := os.MkdirAll(rec.Directory, 0o755); err != nil {
		return nil, apierror.Wrap(apierror.ErrIOFailure,
			fmt.Sprintf("create directory %s", rec.Directory), err)
	}

	if err := s.qemuImg.Create(ctx, string(rec.DiskFormat), rec.DiskImage, uint64(rec.DiskSizeGiB)); err != nil {
		return nil, apierror.Wrap(apierror.ErrIOFailure,
			fmt.Sprintf("create disk image %s", rec.DiskImage), err)
	}

	if rec.Firmware.NeedsFirmwareFiles() {
		if err := s.firmware.Provision(ctx, rec); err != nil {
			_ = os.Remove(rec.DiskImage)
			return nil, err
		}
	}

	s.refreshLaunchCmd(ctx, rec)
	if err := s.store.SaveRecord(ctx, rec); err != nil {
		return nil, err
	}

	logger.Info().Str("name", rec.Name).Msg("machine created")
	return rec, nil
}

// ListVMs returns every machine tracked by the index.
func (s *VMService) ListVMs(ctx context.Context) ([]*entity.VMRecord, error) {
	return s.store.LoadAll(ctx)
}

// DescribeVM returns one machine by name.
func (s *VMService) DescribeVM(ctx context.Context, name string) (*entity.VMRecord, error) {
	return s.store.Get(ctx, name)
}

// ModifyVM applies the non-nil fields of req to the machine. A firmware
// mode change provisions or removes the firmware copies, a rename moves
// the config file and disk image together.
func (s *VMService) ModifyVM(ctx context.Context, req *entity.ModifyVMRequest) (*entity.VMRecord, error) {
	logger := zerolog.Ctx(ctx)

	rec, err := s.store.Get(ctx, req.Name)
	if err != nil {
		return nil, err
	}

	if req.CPUCount != nil {
		rec.CPUCount = *req.CPUCount
	}
	if req.MemoryMiB != nil {
		rec.MemoryMiB = *req.MemoryMiB
	}
	if req.Display != nil {
		rec.Display = *req.Display
	}
	if req.Accel3D != nil {
		rec.Accel3D = *req.Accel3D
	}
	if req.TPMEnabled != nil {
		rec.TPMEnabled = *req.TPMEnabled
	}
	if req.ISO != nil {
		rec.ISO = *req.ISO
	}
	if req.ISOEnabled != nil {
		rec.ISOEnabled = *req.ISOEnabled
	}

	firmwareChanged := req.Firmware != nil && *req.Firmware != rec.Firmware
	if firmwareChanged {
		rec.Firmware = *req.Firmware
	}

	if err := s.validateRecord(rec); err != nil {
		return nil, err
	}

	if firmwareChanged {
		if err := s.firmware.Provision(ctx, rec); err != nil {
			return nil, err
		}
	}

	if req.NewName != nil && *req.NewName != rec.Name {
		rec, err = s.store.Rename(ctx, rec, *req.NewName)
		if err != nil {
			return nil, err
		}
	}

	s.refreshLaunchCmd(ctx, rec)
	if err := s.store.SaveRecord(ctx, rec); err != nil {
		return nil, err
	}

	logger.Info().Str("name", rec.Name).Msg("machine modified")
	return rec, nil
}

// DeleteVM removes the machine's files and index entry. A machine with a
// tracked live process is not deleted.
func (s *VMService) DeleteVM(ctx context.Context, name string) error {
	rec, err := s.store.Get(ctx, name)
	if err != nil {
		return err
	}

	s.mu.Lock()
	_, running := s.pids[name]
	s.mu.Unlock()
	if running {
		return apierror.Wrap(apierror.ErrPreconditionFailed,
			fmt.Sprintf("machine %s is running", name), nil)
	}

	if err := s.store.Delete(ctx, rec); err != nil {
		return err
	}

	zerolog.Ctx(ctx).Info().Str("name", name).Msg("machine deleted")
	return nil
}

// CloneVM copies a machine into a new directory under a new name.
func (s *VMService) CloneVM(ctx context.Context, req *entity.CloneVMRequest) (*entity.VMRecord, error) {
	logger := zerolog.Ctx(ctx)

	src, err := s.store.Get(ctx, req.Name)
	if err != nil {
		return nil, err
	}

	newDir := filepath.Join(req.NewDirectory, req.NewName)
	clone, err := s.store.Clone(ctx, src, req.NewName, newDir, cloneProgressLogger(logger, req.NewName))
	if err != nil {
		return nil, err
	}

	s.refreshLaunchCmd(ctx, clone)
	if err := s.store.SaveRecord(ctx, clone); err != nil {
		return nil, err
	}
	return clone, nil
}

// cloneProgressLogger returns a progress callback that logs at most once
// per ten-percent step, including the first step below ten percent.
func cloneProgressLogger(logger *zerolog.Logger, name string) store.ProgressFunc {
	lastDecade := -1
	return func(fraction float64) {
		pct := int(fraction * 100)
		if pct/10 > lastDecade {
			lastDecade = pct / 10
			logger.Debug().Str("name", name).Int("percent", pct).Msg("clone progress")
		}
	}
}

// CompileCommand returns the machine's launch command without starting
// anything, together with any unmet launch preconditions.
func (s *VMService) CompileCommand(ctx context.Context, name string) (*entity.CompileVMResponse, error) {
	rec, err := s.store.Get(ctx, name)
	if err != nil {
		return nil, err
	}

	args, err := s.compiler.Compile(rec)
	if err != nil {
		return nil, err
	}

	resp := &entity.CompileVMResponse{Command: args}
	for _, p := range s.compiler.ValidatePreconditions(rec) {
		resp.Preconditions = append(resp.Preconditions, fmt.Sprintf("%s: %s", p.Code, p.Detail))
	}
	return resp, nil
}

// StartVM boots the machine. Unmet preconditions fail the start before
// any process is touched; when the machine has a TPM the emulator socket
// is brought up first.
func (s *VMService) StartVM(ctx context.Context, name string) (int, error) {
	logger := zerolog.Ctx(ctx)

	rec, err := s.store.Get(ctx, name)
	if err != nil {
		return 0, err
	}

	if unmet := s.compiler.ValidatePreconditions(rec); len(unmet) > 0 {
		detail := make([]string, 0, len(unmet))
		for _, p := range unmet {
			detail = append(detail, fmt.Sprintf("%s: %s", p.Code, p.Detail))
		}
		return 0, apierror.Wrapf(apierror.ErrPreconditionFailed, nil,
			"machine %s cannot start: %v", name, detail)
	}

	if rec.TPMEnabled {
		if _, err := s.tpm.EnsureRunning(ctx, rec.TPMDir()); err != nil {
			return 0, apierror.Wrap(apierror.ErrPreconditionFailed,
				fmt.Sprintf("tpm emulator for %s did not start", name), err)
		}
	}

	args, err := s.compiler.Compile(rec)
	if err != nil {
		return 0, err
	}

	pid, err := s.startProc(ctx, args)
	if err != nil {
		return 0, apierror.Wrap(apierror.ErrInternal,
			fmt.Sprintf("start machine %s", name), err)
	}

	s.mu.Lock()
	s.pids[name] = pid
	s.mu.Unlock()

	logger.Info().Str("name", name).Int("pid", pid).Msg("machine started")
	return pid, nil
}

// StopVM signals a started machine's process to terminate and drops the
// tracking entry. Stopping a machine that is not tracked is an error.
func (s *VMService) StopVM(ctx context.Context, name string) error {
	s.mu.Lock()
	pid, ok := s.pids[name]
	s.mu.Unlock()
	if !ok {
		return apierror.Wrap(apierror.ErrNotFound,
			fmt.Sprintf("machine %s is not running", name), nil)
	}

	proc, err := os.FindProcess(pid)
	if err == nil {
		err = proc.Signal(syscall.SIGTERM)
	}
	if err != nil && !errors.Is(err, os.ErrProcessDone) {
		return apierror.Wrap(apierror.ErrInternal,
			fmt.Sprintf("stop machine %s (pid %d)", name, pid), err)
	}

	s.forget(name)
	zerolog.Ctx(ctx).Info().Str("name", name).Int("pid", pid).Msg("machine stopped")
	return nil
}

// PID returns the tracked process id of a started machine.
func (s *VMService) PID(name string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pid, ok := s.pids[name]
	return pid, ok
}

// forget drops the tracked process entry for a machine.
func (s *VMService) forget(name string) {
	s.mu.Lock()
	delete(s.pids, name)
	s.mu.Unlock()
}

// refreshLaunchCmd recomputes the cached launch command. Compilation can
// fail on hosts without the hypervisor, the cache is then cleared and the
// failure only logged, starting is where it becomes an error.
func (s *VMService) refreshLaunchCmd(ctx context.Context, rec *entity.VMRecord) {
	args, err := s.compiler.Compile(rec)
	if err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Str("name", rec.Name).Msg("launch command not cached")
		rec.LaunchCmd = nil
		return
	}
	rec.LaunchCmd = args
}

func (s *VMService) validateRecord(rec *entity.VMRecord) error {
	if err := rec.Validate(); err != nil {
		return apierror.Wrap(apierror.ErrValidationFailure, err.Error(), err)
	}
	if !s.limits.AllowsCPUCount(rec.CPUCount) {
		return apierror.Wrapf(apierror.ErrValidationFailure, nil,
			"cpu_count %d exceeds host logical cpus %d", rec.CPUCount, s.limits.LogicalCPUs)
	}
	if !s.limits.AllowsMemoryMiB(rec.MemoryMiB) {
		return apierror.Wrapf(apierror.ErrValidationFailure, nil,
			"memory_mib %d exceeds host memory %d MiB", rec.MemoryMiB, s.limits.TotalMemoryMiB)
	}
	return nil
}

// startDetached spawns argv as its own process and reaps it in the
// background so exited machines never linger as zombies. The machine
// outlives the caller's context, a finished request must not kill it.
func startDetached(_ context.Context, argv []string) (int, error) {
	cmd := exec.Command(argv[0], argv[1:]...)
	if err := cmd.Start(); err != nil {
		return 0, err
	}
	go func() { _ = cmd.Wait() }()
	return cmd.Process.Pid, nil
}
