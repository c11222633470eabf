// Package appid holds the application identity used for the binary name,
// config directory and environment variable prefix.
package appid

import (
	"context"
	"strings"
)

// Identity describes the application to config and CLI surfaces.
type Identity struct {
	BinaryName  string
	ConfigName  string
	EnvPrefix   string
	Vendor      string
	Description string
}

var identity = Identity{
	BinaryName:  "agritutor",
	ConfigName:  "agritutor",
	EnvPrefix:   "AGRITUTOR_",
	Vendor:      "agritutor",
	Description: "Agriculture tutor prompt templates and model-backed lessons",
}

// Get returns the application identity. The context is accepted for parity
// with identity sources that perform I/O.
func Get(_ context.Context) (*Identity, error) {
	id := identity
	return &id, nil
}

// Prefix returns EnvPrefix with a trailing underscore.
func (i *Identity) Prefix() string {
	if i == nil {
		return ""
	}
	prefix := strings.TrimSpace(i.EnvPrefix)
	if prefix != "" && !strings.HasSuffix(prefix, "_") {
		prefix += "_"
	}
	return prefix
}

// Env returns the prefixed environment variable name for key.
func (i *Identity) Env(key string) string {
	return i.Prefix() + strings.ToUpper(strings.TrimSpace(key))
}
