package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/jimyag/nqg/internal/nqg/entity"
	"github.com/jimyag/nqg/pkg/apierror"
)

// DefaultOVMFSearchDirs are probed in order for the host's OVMF firmware
// images.
var DefaultOVMFSearchDirs = []string{
	"/usr/share/OVMF",
	"/usr/share/edk2/ovmf",
	"/usr/share/edk2-ovmf/x64",
	"/usr/share/qemu",
}

// FirmwareProvisioner copies host OVMF firmware into a machine's own
// ovmf/ directory so launches never depend on host files moving.
type FirmwareProvisioner struct {
	searchDirs []string
}

// NewFirmwareProvisioner creates a provisioner. An empty dir list falls
// back to DefaultOVMFSearchDirs.
func NewFirmwareProvisioner(searchDirs []string) *FirmwareProvisioner {
	if len(searchDirs) == 0 {
		searchDirs = DefaultOVMFSearchDirs
	}
	return &FirmwareProvisioner{searchDirs: searchDirs}
}

// Provision copies the firmware files the record's mode needs into its
// ovmf/ directory and points FirmwareCode and FirmwareVars at the copies.
// Plain UEFI gets the code image only, secure boot gets the secure boot
// code image plus a private writable vars image. BIOS mode clears both.
func (p *FirmwareProvisioner) Provision(ctx context.Context, rec *entity.VMRecord) error {
	logger := zerolog.Ctx(ctx)

	if !rec.Firmware.NeedsFirmwareFiles() {
		return p.Deprovision(ctx, rec)
	}

	codeSource := "OVMF_CODE.fd"
	if rec.Firmware == entity.FirmwareUEFISecureBoot {
		codeSource = "OVMF_CODE.secboot.fd"
	}

	codePath, err := p.findFirmwareFile(codeSource)
	if err != nil {
		return apierror.Wrap(apierror.ErrFirmwareFilesMissing,
			fmt.Sprintf("%s not found in any firmware directory", codeSource), err)
	}

	if err := os.MkdirAll(rec.OVMFDir(), 0o755); err != nil {
		return apierror.Wrap(apierror.ErrIOFailure,
			fmt.Sprintf("create firmware directory %s", rec.OVMFDir()), err)
	}

	// The secure boot code image is installed under the plain name so the
	// launch flags stay identical across UEFI modes.
	codeDest := filepath.Join(rec.OVMFDir(), "OVMF_CODE.fd")
	if err := copyFirmwareFile(codePath, codeDest); err != nil {
		return apierror.Wrap(apierror.ErrIOFailure,
			fmt.Sprintf("copy firmware code to %s", codeDest), err)
	}
	rec.FirmwareCode = codeDest
	rec.FirmwareVars = ""

	if rec.Firmware == entity.FirmwareUEFISecureBoot {
		varsPath, err := p.findFirmwareFile("OVMF_VARS.fd")
		if err != nil {
			return apierror.Wrap(apierror.ErrFirmwareFilesMissing,
				"OVMF_VARS.fd not found in any firmware directory", err)
		}
		varsDest := filepath.Join(rec.OVMFDir(), "OVMF_VARS.fd")
		if err := copyFirmwareFile(varsPath, varsDest); err != nil {
			return apierror.Wrap(apierror.ErrIOFailure,
				fmt.Sprintf("copy firmware vars to %s", varsDest), err)
		}
		rec.FirmwareVars = varsDest
	}

	logger.Info().
		Str("vm", rec.Name).
		Str("mode", string(rec.Firmware)).
		Str("source", filepath.Dir(codePath)).
		Msg("firmware provisioned")

	return nil
}

// Deprovision removes the machine's firmware copies and clears the
// firmware file fields.
func (p *FirmwareProvisioner) Deprovision(ctx context.Context, rec *entity.VMRecord) error {
	if rec.FirmwareCode == "" && rec.FirmwareVars == "" {
		return nil
	}
	if err := os.RemoveAll(rec.OVMFDir()); err != nil {
		return apierror.Wrap(apierror.ErrIOFailure,
			fmt.Sprintf("remove firmware directory %s", rec.OVMFDir()), err)
	}
	rec.FirmwareCode = ""
	rec.FirmwareVars = ""

	zerolog.Ctx(ctx).Debug().Str("vm", rec.Name).Msg("firmware deprovisioned")
	return nil
}

func (p *FirmwareProvisioner) findFirmwareFile(name string) (string, error) {
	for _, dir := range p.searchDirs {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%s not found in %v", name, p.searchDirs)
}

func copyFirmwareFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Close()
}
