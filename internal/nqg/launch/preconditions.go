package launch

import (
	"fmt"

	"github.com/jimyag/nqg/internal/nqg/entity"
)

// Precondition names one unmet launch requirement.
type Precondition struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

// Precondition codes.
const (
	PreconditionHypervisorMissing = "HypervisorMissing"
	PreconditionDiskImageMissing  = "DiskImageMissing"
	PreconditionISOMissing        = "ISOMissing"
	PreconditionFirmwareMissing   = "FirmwareMissing"
	PreconditionSwtpmMissing      = "SwtpmMissing"
)

// ValidatePreconditions probes the host for everything a launch needs and
// returns the unmet requirements. An empty slice means the machine is
// ready to start. Probing is read-only, nothing is created or launched.
func (c *Compiler) ValidatePreconditions(rec *entity.VMRecord) []Precondition {
	var unmet []Precondition

	if _, err := c.lookPath(c.hypervisor); err != nil {
		unmet = append(unmet, Precondition{
			Code:   PreconditionHypervisorMissing,
			Detail: fmt.Sprintf("%s not found on PATH", c.hypervisor),
		})
	}

	if !c.fileExists(rec.DiskImage) {
		unmet = append(unmet, Precondition{
			Code:   PreconditionDiskImageMissing,
			Detail: rec.DiskImage,
		})
	}

	if rec.ISOEnabled && rec.ISO != "" {
		if iso := decodeISOPath(rec.ISO); !c.fileExists(iso) {
			unmet = append(unmet, Precondition{
				Code:   PreconditionISOMissing,
				Detail: iso,
			})
		}
	}

	if rec.Firmware.NeedsFirmwareFiles() {
		for _, path := range []string{rec.FirmwareCode, rec.FirmwareVars} {
			if path == "" {
				continue
			}
			if !c.fileExists(path) {
				unmet = append(unmet, Precondition{
					Code:   PreconditionFirmwareMissing,
					Detail: path,
				})
			}
		}
		if rec.FirmwareCode == "" {
			unmet = append(unmet, Precondition{
				Code:   PreconditionFirmwareMissing,
				Detail: "firmware code file not configured",
			})
		}
		if rec.Firmware == entity.FirmwareUEFISecureBoot && rec.FirmwareVars == "" {
			unmet = append(unmet, Precondition{
				Code:   PreconditionFirmwareMissing,
				Detail: "firmware vars file not configured",
			})
		}
	}

	if rec.TPMEnabled {
		if _, err := c.lookPath(c.swtpmPath); err != nil {
			unmet = append(unmet, Precondition{
				Code:   PreconditionSwtpmMissing,
				Detail: fmt.Sprintf("%s not found on PATH", c.swtpmPath),
			})
		}
	}

	return unmet
}
