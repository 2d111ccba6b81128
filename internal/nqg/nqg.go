// Package nqg wires the daemon together: config, store, tool wrappers,
// services and the HTTP API.
package nqg

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jimmicro/grace"
	"github.com/rs/zerolog"

	"github.com/jimyag/nqg/internal/nqg/api"
	"github.com/jimyag/nqg/internal/nqg/config"
	"github.com/jimyag/nqg/internal/nqg/launch"
	"github.com/jimyag/nqg/internal/nqg/service"
	"github.com/jimyag/nqg/internal/nqg/store"
	"github.com/jimyag/nqg/pkg/hostlimits"
	"github.com/jimyag/nqg/pkg/qemuimg"
	"github.com/jimyag/nqg/pkg/swtpm"
)

type Server struct {
	cfg *config.Config
	api *api.API
}

func New(cfg *config.Config) (*Server, error) {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	zerolog.DefaultContextLogger = &logger

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", cfg.DataDir, err)
	}

	limits, err := hostlimits.Probe()
	if err != nil {
		return nil, fmt.Errorf("probe host limits: %w", err)
	}
	logger.Info().
		Int("logical_cpus", limits.LogicalCPUs).
		Int("memory_mib", limits.TotalMemoryMiB).
		Msg("host limits probed")

	st := store.New(store.Options{IndexPath: cfg.IndexPath})
	compiler := launch.New(launch.Options{
		Hypervisor: cfg.QemuPath,
		SwtpmPath:  cfg.SwtpmPath,
	})

	vmService := service.NewVMService(service.VMServiceOptions{
		Store:    st,
		Compiler: compiler,
		QemuImg:  qemuimg.New(cfg.QemuImgPath),
		TPM:      swtpm.New(cfg.SwtpmPath),
		Firmware: service.NewFirmwareProvisioner(cfg.OVMFSearchDirs),
		Limits:   *limits,
	})
	snapshotService := service.NewSnapshotService(st, qemuimg.New(cfg.QemuImgPath))

	apiInstance, err := api.New(cfg.Address, vmService, snapshotService)
	if err != nil {
		return nil, err
	}

	return &Server{cfg: cfg, api: apiInstance}, nil
}

func (s *Server) Run(ctx context.Context) error {
	services := []grace.Grace{
		s.api,
	}

	shepherd := grace.NewShepherd(
		services,
		grace.WithTimeout(30*time.Second),
		grace.WithLogger(&zerologLogger{}),
	)

	shepherd.Start(ctx)
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.api.Shutdown(ctx)
}

// Name implements grace.Grace.
func (s *Server) Name() string {
	return "NQG Server"
}

// zerologLogger implements grace.Logger.
type zerologLogger struct{}

func (l *zerologLogger) Info(msg string, args ...interface{}) {
	logger := zerolog.DefaultContextLogger.Info()
	if len(args) > 0 {
		logger.Msgf(msg, args...)
	} else {
		logger.Msg(msg)
	}
}

func (l *zerologLogger) Error(msg string, args ...interface{}) {
	logger := zerolog.DefaultContextLogger.Error()
	if len(args) > 0 {
		logger.Msgf(msg, args...)
	} else {
		logger.Msg(msg)
	}
}
