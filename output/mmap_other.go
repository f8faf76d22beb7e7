//go:build !unix

package output

import (
	"errors"
	"os"
)

const mmapSupported = false

var errNoMmap = errors.New("memory mapping not supported on this platform")

func mapFile(*os.File, int) ([]byte, error) { return nil, errNoMmap }

func unmap([]byte) error { return errNoMmap }

func syncMap([]byte) error { return errNoMmap }
