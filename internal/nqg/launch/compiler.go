// Package launch turns a machine record into the QEMU command line that
// boots it. Compilation is deterministic and touches no processes, the
// same record always yields the same argv.
package launch

import (
	"fmt"
	"net/url"
	"os"
	"os/exec"

	"github.com/jimyag/nqg/internal/nqg/entity"
	"github.com/jimyag/nqg/pkg/apierror"
)

// DefaultHypervisor is the hypervisor binary used when none is configured.
const DefaultHypervisor = "qemu-system-x86_64"

// Options configures a Compiler.
type Options struct {
	// Hypervisor overrides the hypervisor binary name.
	Hypervisor string
	// SwtpmPath overrides the TPM emulator binary name checked by the
	// precondition gate.
	SwtpmPath string
	// LookPath overrides executable resolution, used by tests.
	LookPath func(file string) (string, error)
	// FileExists overrides file probing, used by tests.
	FileExists func(path string) bool
}

// Compiler compiles machine records into launch command lines.
type Compiler struct {
	hypervisor string
	swtpmPath  string
	lookPath   func(file string) (string, error)
	fileExists func(path string) bool
}

// New creates a Compiler.
func New(opts Options) *Compiler {
	c := &Compiler{
		hypervisor: opts.Hypervisor,
		swtpmPath:  opts.SwtpmPath,
		lookPath:   opts.LookPath,
		fileExists: opts.FileExists,
	}
	if c.hypervisor == "" {
		c.hypervisor = DefaultHypervisor
	}
	if c.swtpmPath == "" {
		c.swtpmPath = "swtpm"
	}
	if c.lookPath == nil {
		c.lookPath = exec.LookPath
	}
	if c.fileExists == nil {
		c.fileExists = func(path string) bool {
			_, err := os.Stat(path)
			return err == nil
		}
	}
	return c
}

// Compile builds the full launch argv for rec. The argument order is
// fixed: hypervisor, baseline machine flags, graphics, optional cdrom,
// optional pflash firmware drives, optional TPM flags.
func (c *Compiler) Compile(rec *entity.VMRecord) ([]string, error) {
	if _, err := c.lookPath(c.hypervisor); err != nil {
		return nil, apierror.Wrap(apierror.ErrHypervisorNotFound,
			fmt.Sprintf("%s not found on PATH", c.hypervisor), err)
	}

	args := []string{
		c.hypervisor,
		"-enable-kvm",
		"-cpu", "host",
		"-smp", fmt.Sprintf("%d", rec.CPUCount),
		"-m", fmt.Sprintf("%d", rec.MemoryMiB),
		"-drive", fmt.Sprintf("file=%s,format=%s,if=virtio", rec.DiskImage, rec.DiskFormat),
		"-boot", "order=dc,menu=off",
		"-usb",
		"-device", "usb-tablet",
		"-netdev", "user,id=net0,hostfwd=tcp::5555-:22",
		"-device", "virtio-net-pci,netdev=net0",
	}

	graphics, err := graphicsArgs(rec)
	if err != nil {
		return nil, err
	}
	args = append(args, graphics...)

	if rec.ISOEnabled && rec.ISO != "" {
		args = append(args, "-cdrom", decodeISOPath(rec.ISO))
	}

	firmware, err := firmwareArgs(rec)
	if err != nil {
		return nil, err
	}
	args = append(args, firmware...)

	if rec.TPMEnabled {
		args = append(args,
			"-chardev", fmt.Sprintf("socket,id=chrtpm,path=%s", rec.TPMSocketPath()),
			"-tpmdev", "emulator,id=tpm0,chardev=chrtpm",
			"-device", "tpm-tis,tpmdev=tpm0",
		)
	}

	return args, nil
}

// graphicsArgs maps the display mode to one video device plus one display
// backend. 3D acceleration swaps in the GL variants, headless mode
// ignores it.
func graphicsArgs(rec *entity.VMRecord) ([]string, error) {
	video := "virtio-vga"
	glSuffix := ""
	if rec.Accel3D && rec.Display.SupportsAccel3D() {
		video = "virtio-vga-gl"
		glSuffix = ",gl=on"
	}

	switch rec.Display {
	case entity.DisplayGTK:
		return []string{"-device", video, "-display", "gtk" + glSuffix}, nil
	case entity.DisplaySDL:
		return []string{"-device", video, "-display", "sdl" + glSuffix}, nil
	case entity.DisplaySpice:
		return []string{
			"-device", video,
			"-spice", "port=5930,disable-ticketing=on",
			"-device", "virtio-serial-pci",
			"-chardev", "spicevmc,id=spicechannel0,name=vdagent",
			"-device", "virtserialport,chardev=spicechannel0,name=com.redhat.spice.0",
			"-display", "spice-app" + glSuffix,
		}, nil
	case entity.DisplayVirtio:
		return []string{"-device", video, "-display", "egl-headless" + glSuffix}, nil
	case entity.DisplayNone:
		return []string{"-device", "virtio-vga", "-display", "none"}, nil
	}
	return nil, apierror.Wrap(apierror.ErrInvalidDisplayMode,
		fmt.Sprintf("unknown display mode %q", rec.Display), nil)
}

// firmwareArgs emits the pflash drives for UEFI modes. Secure boot needs
// both the code and the vars volume, one without the other is an error
// rather than a half-configured machine.
func firmwareArgs(rec *entity.VMRecord) ([]string, error) {
	switch rec.Firmware {
	case entity.FirmwareBIOS:
		return nil, nil
	case entity.FirmwareUEFI:
		if rec.FirmwareCode == "" {
			return nil, apierror.Wrap(apierror.ErrFirmwareFilesMissing,
				"uefi firmware code file not configured", nil)
		}
		return []string{
			"-drive", fmt.Sprintf("if=pflash,format=raw,readonly=on,file=%s", rec.FirmwareCode),
		}, nil
	case entity.FirmwareUEFISecureBoot:
		if rec.FirmwareCode == "" || rec.FirmwareVars == "" {
			return nil, apierror.Wrap(apierror.ErrFirmwareFilesMissing,
				"secure boot requires both firmware code and vars files", nil)
		}
		return []string{
			"-drive", fmt.Sprintf("if=pflash,format=raw,readonly=on,file=%s", rec.FirmwareCode),
			"-drive", fmt.Sprintf("if=pflash,format=raw,file=%s", rec.FirmwareVars),
		}, nil
	}
	return nil, apierror.Wrap(apierror.ErrValidationFailure,
		fmt.Sprintf("unknown firmware mode %q", rec.Firmware), nil)
}

// decodeISOPath percent-decodes an ISO path exactly once. File pickers
// hand over file:// style escapes such as %20, but a path that is not
// valid percent-encoding is used as-is.
func decodeISOPath(path string) string {
	decoded, err := url.PathUnescape(path)
	if err != nil {
		return path
	}
	return decoded
}
