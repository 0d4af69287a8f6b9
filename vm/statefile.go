// statefile.go - Compressed save-state files

package vm

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

const (
	stateFileMagic   = "CBST"
	stateFileVersion = 1
)

// SaveStateFile writes the machine state to path with gzip compression.
func SaveStateFile(m *Machine, path string) error {
	var raw bytes.Buffer
	if err := m.SaveState(&raw); err != nil {
		return fmt.Errorf("saving machine state: %w", err)
	}

	var buf bytes.Buffer

	// Magic
	buf.WriteString(stateFileMagic)

	// Version
	binary.Write(&buf, binary.LittleEndian, uint32(stateFileVersion))

	// State: uncompressed length, then gzip-compressed data
	binary.Write(&buf, binary.LittleEndian, uint32(raw.Len()))

	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(raw.Bytes()); err != nil {
		return fmt.Errorf("compressing state: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("closing gzip: %w", err)
	}

	return os.WriteFile(path, buf.Bytes(), 0644)
}

// LoadStateFile reads a file written by SaveStateFile into m. The whole
// file is decoded and checked before any device is touched.
func LoadStateFile(m *Machine, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	r := bytes.NewReader(data)

	magic := make([]byte, len(stateFileMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return fmt.Errorf("reading magic: %w", err)
	}
	if string(magic) != stateFileMagic {
		return fmt.Errorf("invalid state file magic: %q", string(magic))
	}

	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return fmt.Errorf("reading version: %w", err)
	}
	if version != stateFileVersion {
		return fmt.Errorf("state file version %d: %w", version, ErrStateVersion)
	}

	var size uint32
	if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
		return fmt.Errorf("reading state length: %w", err)
	}
	if size > maxStateBlob {
		return fmt.Errorf("state length %d: %w", size, ErrStateLayout)
	}

	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("opening gzip reader: %w", err)
	}
	defer gz.Close()

	raw, err := io.ReadAll(io.LimitReader(gz, int64(size)+1))
	if err != nil {
		return fmt.Errorf("decompressing state: %w", err)
	}
	if len(raw) != int(size) {
		return fmt.Errorf("state is %d bytes, header says %d: %w", len(raw), size, ErrStateLayout)
	}

	return m.LoadState(bytes.NewReader(raw))
}
