package entity

// CreateVMRequest creates a new virtual machine.
type CreateVMRequest struct {
	Name        string       `json:"name"         binding:"required"`
	Directory   string       `json:"directory"    binding:"required"`
	CPUCount    int          `json:"cpu_count"    binding:"required"`
	MemoryMiB   int          `json:"memory_mib"   binding:"required"`
	DiskSizeGiB int          `json:"disk_size_gib" binding:"required"`
	DiskFormat  DiskFormat   `json:"disk_format"`
	Firmware    FirmwareMode `json:"firmware"`
	Display     DisplayMode  `json:"display"`
	Accel3D     bool         `json:"accel_3d"`
	TPMEnabled  bool         `json:"tpm_enabled"`
	ISO         string       `json:"iso,omitempty"`
	ISOEnabled  bool         `json:"iso_enabled"`
}

type CreateVMResponse struct {
	VM *VMRecord `json:"vm"`
}

type ListVMsResponse struct {
	VMs []*VMRecord `json:"vms"`
}

type DescribeVMRequest struct {
	Name string `json:"name" binding:"required"`
}

type DescribeVMResponse struct {
	VM *VMRecord `json:"vm"`
}

// ModifyVMRequest edits an existing machine. Nil pointer fields are left
// unchanged. Renaming moves the config file and disk image in lock step.
type ModifyVMRequest struct {
	Name string `json:"name" binding:"required"`

	NewName    *string       `json:"new_name,omitempty"`
	CPUCount   *int          `json:"cpu_count,omitempty"`
	MemoryMiB  *int          `json:"memory_mib,omitempty"`
	Firmware   *FirmwareMode `json:"firmware,omitempty"`
	Display    *DisplayMode  `json:"display,omitempty"`
	Accel3D    *bool         `json:"accel_3d,omitempty"`
	TPMEnabled *bool         `json:"tpm_enabled,omitempty"`
	ISO        *string       `json:"iso,omitempty"`
	ISOEnabled *bool         `json:"iso_enabled,omitempty"`
}

type ModifyVMResponse struct {
	VM *VMRecord `json:"vm"`
}

type DeleteVMRequest struct {
	Name string `json:"name" binding:"required"`
}

type CloneVMRequest struct {
	Name         string `json:"name"          binding:"required"`
	NewName      string `json:"new_name"      binding:"required"`
	NewDirectory string `json:"new_directory" binding:"required"`
}

type CloneVMResponse struct {
	VM *VMRecord `json:"vm"`
}

type StartVMRequest struct {
	Name string `json:"name" binding:"required"`
}

type StartVMResponse struct {
	Name string `json:"name"`
	PID  int    `json:"pid"`
}

type StopVMRequest struct {
	Name string `json:"name" binding:"required"`
}

// CompileVMRequest returns the launch command for a machine without
// starting it.
type CompileVMRequest struct {
	Name string `json:"name" binding:"required"`
}

type CompileVMResponse struct {
	Command       []string `json:"command"`
	Preconditions []string `json:"unmet_preconditions,omitempty"`
}
