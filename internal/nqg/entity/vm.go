// Package entity defines the business entities shared by the store, the
// launch compiler, the services and the API surface.
package entity

import (
	"fmt"
	"path/filepath"
	"regexp"
)

// DiskFormat is the backing-store format of a VM disk image.
// It is fixed at creation time: changing it later would orphan the
// existing image, so no migration path exists.
type DiskFormat string

const (
	DiskFormatQCOW2 DiskFormat = "qcow2"
	DiskFormatRaw   DiskFormat = "raw"
)

// Valid reports whether f is a known disk format.
func (f DiskFormat) Valid() bool {
	switch f {
	case DiskFormatQCOW2, DiskFormatRaw:
		return true
	}
	return false
}

// FirmwareMode selects the boot firmware attached to a VM.
type FirmwareMode string

const (
	FirmwareBIOS           FirmwareMode = "bios"
	FirmwareUEFI           FirmwareMode = "uefi"
	FirmwareUEFISecureBoot FirmwareMode = "uefi-secure-boot"
)

// Valid reports whether m is a known firmware mode.
func (m FirmwareMode) Valid() bool {
	switch m {
	case FirmwareBIOS, FirmwareUEFI, FirmwareUEFISecureBoot:
		return true
	}
	return false
}

// NeedsFirmwareFiles reports whether the mode requires OVMF files under
// the VM's ovmf/ directory.
func (m FirmwareMode) NeedsFirmwareFiles() bool {
	return m == FirmwareUEFI || m == FirmwareUEFISecureBoot
}

// DisplayMode selects the QEMU graphics backend.
type DisplayMode string

const (
	// DisplayGTK is the default windowed display.
	DisplayGTK DisplayMode = "gtk"
	// DisplaySDL is the SDL windowed display.
	DisplaySDL DisplayMode = "sdl"
	// DisplaySpice exposes the VM over the SPICE protocol and opens a
	// spice-app viewer.
	DisplaySpice DisplayMode = "spice"
	// DisplayVirtio renders through EGL off-screen, for virtio-gpu guests.
	DisplayVirtio DisplayMode = "virtio"
	// DisplayNone runs the VM headless. Accel3D is ignored in this mode.
	DisplayNone DisplayMode = "none"
)

// Valid reports whether m is a known display mode.
func (m DisplayMode) Valid() bool {
	switch m {
	case DisplayGTK, DisplaySDL, DisplaySpice, DisplayVirtio, DisplayNone:
		return true
	}
	return false
}

// SupportsAccel3D reports whether Accel3D has any effect under this mode.
// Headless mode ignores the flag.
func (m DisplayMode) SupportsAccel3D() bool {
	return m != DisplayNone
}

// DiskImageExt is the extension used for VM disk images regardless of the
// disk format. The format travels in the record, not in the file name.
const DiskImageExt = ".img"

// VMRecord is the durable configuration of one virtual machine.
// It is persisted as <Directory>/<Name>.json and owns every file in its
// directory: the disk image, the optional ovmf/ firmware copies and the
// optional tpm/ state directory.
type VMRecord struct {
	Name        string       `json:"name"`
	Directory   string       `json:"directory"`
	CPUCount    int          `json:"cpu_count"`
	MemoryMiB   int          `json:"memory_mib"`
	DiskSizeGiB int          `json:"disk_size_gib"`
	DiskFormat  DiskFormat   `json:"disk_format"`
	DiskImage   string       `json:"disk_image"`
	Firmware    FirmwareMode `json:"firmware"`

	// FirmwareCode and FirmwareVars point into Directory/ovmf/ and are
	// populated only when Firmware != bios. Secure boot populates both,
	// plain UEFI only the code file.
	FirmwareCode string `json:"firmware_code,omitempty"`
	FirmwareVars string `json:"firmware_vars,omitempty"`

	// ISO may be retained while ISOEnabled is false.
	ISO        string `json:"iso,omitempty"`
	ISOEnabled bool   `json:"iso_enabled"`

	Display    DisplayMode `json:"display"`
	Accel3D    bool        `json:"accel_3d"`
	TPMEnabled bool        `json:"tpm_enabled"`

	// LaunchCmd is a cached materialized view of the compiled launch
	// command. It is recomputed by the service layer after every mutation
	// and never trusted at start time.
	LaunchCmd []string `json:"launch_cmd,omitempty"`
}

// invalidNameChars matches characters that are unsafe in VM and snapshot
// names on the supported filesystems.
var invalidNameChars = regexp.MustCompile(`[<>:"/\\|?*]`)

// ValidateName rejects empty names and names containing filesystem-unsafe
// characters.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("name must not be empty")
	}
	if invalidNameChars.MatchString(name) {
		return fmt.Errorf("name %q contains invalid characters", name)
	}
	return nil
}

// ConfigPath returns the path of the record's JSON config file.
func (r *VMRecord) ConfigPath() string {
	return filepath.Join(r.Directory, r.Name+".json")
}

// DiskImagePath derives the disk image path from Directory and Name.
// It is what DiskImage must equal after any rename or clone.
func (r *VMRecord) DiskImagePath() string {
	return filepath.Join(r.Directory, r.Name+DiskImageExt)
}

// OVMFDir returns the directory that holds the VM's firmware copies.
func (r *VMRecord) OVMFDir() string {
	return filepath.Join(r.Directory, "ovmf")
}

// TPMDir returns the directory that holds the VM's TPM state and socket.
func (r *VMRecord) TPMDir() string {
	return filepath.Join(r.Directory, "tpm")
}

// TPMSocketPath returns the unix socket path the TPM emulator binds to.
func (r *VMRecord) TPMSocketPath() string {
	return filepath.Join(r.TPMDir(), "swtpm-sock")
}

// Validate checks the record's scalar fields. Host-dependent bounds
// (CPU count, memory ceiling) are enforced by the service layer.
func (r *VMRecord) Validate() error {
	if err := ValidateName(r.Name); err != nil {
		return err
	}
	if r.Directory == "" || !filepath.IsAbs(r.Directory) {
		return fmt.Errorf("directory %q must be an absolute path", r.Directory)
	}
	if r.CPUCount <= 0 {
		return fmt.Errorf("cpu_count must be positive, got %d", r.CPUCount)
	}
	if r.MemoryMiB <= 0 {
		return fmt.Errorf("memory_mib must be positive, got %d", r.MemoryMiB)
	}
	if r.DiskSizeGiB <= 0 {
		return fmt.Errorf("disk_size_gib must be positive, got %d", r.DiskSizeGiB)
	}
	if !r.DiskFormat.Valid() {
		return fmt.Errorf("unknown disk format %q", r.DiskFormat)
	}
	if !r.Firmware.Valid() {
		return fmt.Errorf("unknown firmware mode %q", r.Firmware)
	}
	if !r.Display.Valid() {
		return fmt.Errorf("unknown display mode %q", r.Display)
	}
	return nil
}
