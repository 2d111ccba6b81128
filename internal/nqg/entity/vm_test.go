package entity

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateName(t *testing.T) {
	t.Parallel()

	valid := []string{"alpine", "win 11", "dev-box_2", "vm1_clone"}
	for _, name := range valid {
		assert.NoError(t, ValidateName(name), name)
	}

	invalid := []string{"", "a/b", `a\b`, "a:b", "a?b", "a*b", "a<b", "a>b", `a"b`, "a|b"}
	for _, name := range invalid {
		assert.Error(t, ValidateName(name), name)
	}
}

func TestRecordPaths(t *testing.T) {
	t.Parallel()

	rec := &VMRecord{Name: "alpine", Directory: "/vms/alpine"}
	assert.Equal(t, filepath.Join("/vms/alpine", "alpine.json"), rec.ConfigPath())
	assert.Equal(t, filepath.Join("/vms/alpine", "alpine.img"), rec.DiskImagePath())
	assert.Equal(t, filepath.Join("/vms/alpine", "tpm", "swtpm-sock"), rec.TPMSocketPath())
}

func TestRecordJSONRoundTrip(t *testing.T) {
	t.Parallel()

	rec := &VMRecord{
		Name:         "alpine",
		Directory:    "/vms/alpine",
		CPUCount:     4,
		MemoryMiB:    4096,
		DiskSizeGiB:  40,
		DiskFormat:   DiskFormatQCOW2,
		DiskImage:    "/vms/alpine/alpine.img",
		Firmware:     FirmwareUEFISecureBoot,
		FirmwareCode: "/vms/alpine/ovmf/OVMF_CODE.fd",
		FirmwareVars: "/vms/alpine/ovmf/OVMF_VARS.fd",
		ISO:          "/isos/alpine.iso",
		ISOEnabled:   true,
		Display:      DisplaySpice,
		Accel3D:      true,
		TPMEnabled:   true,
		LaunchCmd:    []string{"qemu-system-x86_64", "-enable-kvm"},
	}

	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var got VMRecord
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, *rec, got)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base := func() *VMRecord {
		return &VMRecord{
			Name:        "alpine",
			Directory:   "/vms/alpine",
			CPUCount:    2,
			MemoryMiB:   2048,
			DiskSizeGiB: 20,
			DiskFormat:  DiskFormatQCOW2,
			Firmware:    FirmwareBIOS,
			Display:     DisplayGTK,
		}
	}

	assert.NoError(t, base().Validate())

	tests := []struct {
		name   string
		mutate func(*VMRecord)
	}{
		{"relative directory", func(r *VMRecord) { r.Directory = "vms/alpine" }},
		{"zero cpus", func(r *VMRecord) { r.CPUCount = 0 }},
		{"zero memory", func(r *VMRecord) { r.MemoryMiB = 0 }},
		{"zero disk", func(r *VMRecord) { r.DiskSizeGiB = 0 }},
		{"unknown format", func(r *VMRecord) { r.DiskFormat = "vmdk" }},
		{"unknown firmware", func(r *VMRecord) { r.Firmware = "coreboot" }},
		{"unknown display", func(r *VMRecord) { r.Display = "curses" }},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := base()
			tt.mutate(rec)
			assert.Error(t, rec.Validate())
		})
	}
}
