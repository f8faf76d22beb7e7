//go:build unix

package output

import (
	"os"

	"golang.org/x/sys/unix"
)

const mmapSupported = true

func mapFile(f *os.File, size int) ([]byte, error) {
	return unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
}

func unmap(data []byte) error {
	return unix.Munmap(data)
}

func syncMap(data []byte) error {
	return unix.Msync(data, unix.MS_SYNC)
}
