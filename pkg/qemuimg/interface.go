package qemuimg

import "context"

// QemuImgClient abstracts qemu-img operations so services can be tested
// without the real binary.
type QemuImgClient interface {
	// Create creates an empty disk image of the given format and size.
	Create(ctx context.Context, format, imagePath string, sizeGiB uint64) error
	// Info returns the raw qemu-img info output.
	Info(ctx context.Context, imagePath string) (string, error)
	// Format returns the image's actual format.
	Format(ctx context.Context, imagePath string) (string, error)
	// CreateSnapshot creates an internal snapshot.
	CreateSnapshot(ctx context.Context, imagePath, snapshotName string) error
	// ApplySnapshot reverts the image to a snapshot.
	ApplySnapshot(ctx context.Context, imagePath, snapshotName string) error
	// DeleteSnapshot removes a snapshot.
	DeleteSnapshot(ctx context.Context, imagePath, snapshotName string) error
	// ListSnapshots returns all snapshot tags of an image.
	ListSnapshots(ctx context.Context, imagePath string) ([]string, error)
}

var _ QemuImgClient = (*Client)(nil)
