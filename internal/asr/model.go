package asr

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Little-endian on-disk magics of whisper.cpp model generations, plus GGUF.
var modelMagics = [][4]byte{
	{'l', 'm', 'g', 'g'}, // ggml
	{'t', 'j', 'g', 'g'}, // ggjt
	{'a', 'l', 'g', 'g'}, // ggla
	{'G', 'G', 'U', 'F'},
}

// ValidateModelFile checks that path exists and starts with a known model magic.
func ValidateModelFile(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("%w: no model path configured", ErrModelNotFound)
	}

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrModelNotFound, path)
		}
		return fmt.Errorf("open model %q: %w", path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat model %q: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrInvalidModel, path)
	}

	var magic [4]byte
	if _, err := io.ReadFull(file, magic[:]); err != nil {
		return fmt.Errorf("%w: %s is too short", ErrInvalidModel, path)
	}
	for _, known := range modelMagics {
		if magic == known {
			return nil
		}
	}
	return fmt.Errorf("%w: %s has unknown header %q", ErrInvalidModel, path, magic[:])
}
