package entity

// Snapshot describes one point-in-time snapshot of a VM disk image.
type Snapshot struct {
	Name   string `json:"name"`
	VMName string `json:"vm_name"`
}

// CreateSnapshotRequest creates a disk snapshot. SnapshotName is optional;
// a name is generated when it is empty.
type CreateSnapshotRequest struct {
	VMName       string `json:"vm_name" binding:"required"`
	SnapshotName string `json:"snapshot_name,omitempty"`
}

type CreateSnapshotResponse struct {
	Snapshot *Snapshot `json:"snapshot"`
}

type ListSnapshotsRequest struct {
	VMName string `json:"vm_name" binding:"required"`
}

type ListSnapshotsResponse struct {
	Snapshots []Snapshot `json:"snapshots"`
}

type RestoreSnapshotRequest struct {
	VMName       string `json:"vm_name"       binding:"required"`
	SnapshotName string `json:"snapshot_name" binding:"required"`
}

type DeleteSnapshotRequest struct {
	VMName       string `json:"vm_name"       binding:"required"`
	SnapshotName string `json:"snapshot_name" binding:"required"`
}
