// Package secrets stores provider API keys.
package secrets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/joho/godotenv"
)

var ErrNotFound = errors.New("secret not found")

// Store keeps opaque secrets by key, e.g. "api_key_openai".
type Store interface {
	Save(key string, value []byte) error
	Retrieve(key string) ([]byte, error)
	Delete(key string) error
	Exists(key string) bool
}

// EnvName is the environment variable that overrides key.
func EnvName(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}

// File is a dotenv file with mode 0600. Environment variables named by
// EnvName take precedence over the file.
type File struct {
	path string
	mu   sync.Mutex
}

// NewFile returns a store backed by path; the file is created on first Save.
func NewFile(path string) *File {
	return &File{path: path}
}

// DefaultPath resolves $XDG_CONFIG_HOME/bettervoice/secrets.env.
func DefaultPath() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		return filepath.Join(xdg, "bettervoice", "secrets.env"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "bettervoice", "secrets.env"), nil
}

func (f *File) Path() string { return f.path }

func (f *File) Save(key string, value []byte) error {
	name, err := validKey(key)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.read()
	if err != nil {
		return err
	}
	values[name] = string(value)
	return f.write(values)
}

func (f *File) Retrieve(key string) ([]byte, error) {
	name, err := validKey(key)
	if err != nil {
		return nil, err
	}
	if value, ok := os.LookupEnv(name); ok && value != "" {
		return []byte(value), nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.read()
	if err != nil {
		return nil, err
	}
	value, ok := values[name]
	if !ok || value == "" {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return []byte(value), nil
}

func (f *File) Delete(key string) error {
	name, err := validKey(key)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.read()
	if err != nil {
		return err
	}
	if _, ok := values[name]; !ok {
		return nil
	}
	delete(values, name)
	return f.write(values)
}

func (f *File) Exists(key string) bool {
	_, err := f.Retrieve(key)
	return err == nil
}

func (f *File) read() (map[string]string, error) {
	values, err := godotenv.Read(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read secrets file %s: %w", f.path, err)
	}
	return values, nil
}

func (f *File) write(values map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create secrets directory: %w", err)
	}
	content, err := godotenv.Marshal(values)
	if err != nil {
		return fmt.Errorf("encode secrets: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content+"\n"), 0o600); err != nil {
		return fmt.Errorf("write secrets file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace secrets file: %w", err)
	}
	return nil
}

func validKey(key string) (string, error) {
	name := EnvName(key)
	if name == "" {
		return "", fmt.Errorf("secret key is empty")
	}
	for _, r := range name {
		if !(r >= 'A' && r <= 'Z') && !(r >= '0' && r <= '9') && r != '_' {
			return "", fmt.Errorf("invalid secret key %q", key)
		}
	}
	return name, nil
}

// Memory is an in-process Store.
type Memory struct {
	mu     sync.RWMutex
	values map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{values: make(map[string][]byte)}
}

func (m *Memory) Save(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = append([]byte(nil), value...)
	return nil
}

func (m *Memory) Retrieve(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.values[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return append([]byte(nil), value...), nil
}

func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

func (m *Memory) Exists(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.values[key]
	return ok
}
