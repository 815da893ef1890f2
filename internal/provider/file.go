package provider

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const defaultOutputDir = "./mail_output"

// File is a development channel that drops each message into
// <dir>/<yyyy-mm-dd>/<message id>.eml. A redelivered job overwrites the
// earlier copy, so the directory holds one file per recipient per issue.
type File struct {
	dir string
	now func() time.Time
}

// NewFile reads the output directory from ProviderConfig.Endpoint.
func NewFile(cfg ProviderConfig) *File {
	dir := cfg.Endpoint
	if dir == "" {
		dir = defaultOutputDir
	}
	return &File{dir: dir, now: time.Now}
}

func (f *File) GetName() string { return "file" }

func (f *File) Send(_ context.Context, msg *Message) (*DeliveryResult, error) {
	now := f.now()
	raw, messageID, err := buildMIME(msg, now)
	if err != nil {
		return nil, &ProviderError{Provider: "file", Message: err.Error(), Permanent: true}
	}

	day := filepath.Join(f.dir, now.UTC().Format(time.DateOnly))
	if err := os.MkdirAll(day, 0o750); err != nil {
		return nil, fmt.Errorf("file: create %s: %w", day, err)
	}
	name := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == os.PathSeparator {
			return '_'
		}
		return r
	}, msg.ID) + ".eml"
	path := filepath.Join(day, name)

	if err := writeFileAtomic(path, raw); err != nil {
		return nil, fmt.Errorf("file: write %s: %w", path, err)
	}

	return &DeliveryResult{
		ProviderMessageID: messageID,
		Status:            StatusSent,
		Timestamp:         now,
		Metadata:          map[string]string{"path": path},
	}, nil
}

// HealthCheck creates and removes a probe file in the output directory.
func (f *File) HealthCheck(_ context.Context) error {
	if err := os.MkdirAll(f.dir, 0o750); err != nil {
		return fmt.Errorf("file: output dir: %w", err)
	}
	probe, err := os.CreateTemp(f.dir, ".probe-*")
	if err != nil {
		return fmt.Errorf("file: output dir not writable: %w", err)
	}
	probe.Close()
	return os.Remove(probe.Name())
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".eml-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o640); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
