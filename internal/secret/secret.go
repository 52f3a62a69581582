// Package secret resolves credentials at the moment they are used, so rotated values
// are picked up without a restart and nothing is baked into configuration.
package secret

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
)

// Provider returns the current value of one secret.
type Provider interface {
	Secret(ctx context.Context) (string, error)
}

// File reads the secret from a mounted file on every call.
type File struct {
	Path string
}

func (f File) Secret(context.Context) (string, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return "", fmt.Errorf("read secret file: %w", err)
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return "", fmt.Errorf("secret file %s is empty", f.Path)
	}
	return string(trimmed), nil
}

// Env reads the secret from the named environment variable on every call.
type Env struct {
	Name string
}

func (e Env) Secret(context.Context) (string, error) {
	v := strings.TrimSpace(os.Getenv(e.Name))
	if v == "" {
		return "", fmt.Errorf("environment variable %s is not set", e.Name)
	}
	return v, nil
}

// New picks the file provider when a path is given, else the environment provider.
func New(path, envName string) Provider {
	if path != "" {
		return File{Path: path}
	}
	return Env{Name: envName}
}
