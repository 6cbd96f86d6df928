package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
)

// Service kinds the emulator knows how to host.
const (
	KindEcho = "echo"
	KindPM   = "pm"
)

// Manifest lists the services and titles an emulator starts with.
type Manifest struct {
	Services []ServiceSpec `yaml:"services"`
	Titles   []TitleSpec   `yaml:"titles"`
}

// ServiceSpec is one builtin service registered under Name.
type ServiceSpec struct {
	Name        string `yaml:"name"`
	Kind        string `yaml:"kind"`
	MaxSessions int    `yaml:"max_sessions"`
}

// TitleSpec is one installed title known to the emulated PM service.
type TitleSpec struct {
	ID       uint64 `yaml:"id"`
	Media    string `yaml:"media"`
	Exheader string `yaml:"exheader"`
}

// DefaultManifest hosts the PM service and an echo service.
func DefaultManifest() *Manifest {
	return &Manifest{
		Services: []ServiceSpec{
			{Name: "pm:app", Kind: KindPM, MaxSessions: 4},
			{Name: "echo", Kind: KindEcho, MaxSessions: 8},
		},
	}
}

// LoadManifest reads a manifest from path. An empty path yields DefaultManifest.
func LoadManifest(path string) (*Manifest, error) {
	if path == "" {
		return DefaultManifest(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest decodes and validates a YAML manifest.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.UnmarshalWithOptions(data, &m, yaml.Strict()); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks names, kinds and title fields.
func (m *Manifest) Validate() error {
	seen := make(map[string]bool, len(m.Services))
	for i, s := range m.Services {
		if s.Name == "" || len(s.Name) > 8 {
			return fmt.Errorf("service %d: name %q must be 1 to 8 bytes", i, s.Name)
		}
		if seen[s.Name] {
			return fmt.Errorf("service %d: duplicate name %q", i, s.Name)
		}
		seen[s.Name] = true
		if s.Kind != KindEcho && s.Kind != KindPM {
			return fmt.Errorf("service %q: unknown kind %q", s.Name, s.Kind)
		}
		if s.MaxSessions <= 0 {
			return fmt.Errorf("service %q: max_sessions must be positive", s.Name)
		}
	}
	for _, t := range m.Titles {
		if _, err := t.MediaType(); err != nil {
			return fmt.Errorf("title %016X: %w", t.ID, err)
		}
		if _, err := t.ExheaderBytes(); err != nil {
			return fmt.Errorf("title %016X: %w", t.ID, err)
		}
	}
	return nil
}

// MediaType returns the numeric media type named by Media.
func (t TitleSpec) MediaType() (uint8, error) {
	switch strings.ToLower(t.Media) {
	case "", "nand":
		return 0, nil
	case "sd":
		return 1, nil
	case "card", "gamecard":
		return 2, nil
	default:
		return 0, fmt.Errorf("unknown media %q", t.Media)
	}
}

// ExheaderBytes decodes the hex exheader flags, zero padded to 8 bytes.
func (t TitleSpec) ExheaderBytes() ([8]byte, error) {
	var out [8]byte
	raw, err := hex.DecodeString(t.Exheader)
	if err != nil {
		return out, fmt.Errorf("exheader: %w", err)
	}
	if len(raw) > len(out) {
		return out, fmt.Errorf("exheader holds %d bytes, at most 8 allowed", len(raw))
	}
	copy(out[:], raw)
	return out, nil
}
