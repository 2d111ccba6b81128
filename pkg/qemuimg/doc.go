// Package qemuimg wraps the qemu-img command-line tool for disk image
// creation and internal snapshot management.
//
// The wrapper is deliberately thin: every operation is one synchronous
// subprocess invocation with a bounded timeout, and the only parsing done
// is of the positional snapshot-list output. Callers that need mocking use
// the QemuImgClient interface and MockClient.
package qemuimg
