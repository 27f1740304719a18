// Package config provides configuration helpers for tapocap commands.
//
// Settings are resolved in order of increasing precedence: YAML device
// file, environment variables, then command-line arguments (handled by
// the caller).
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Environment variables recognized by ApplyEnv.
const (
	EnvAddress = "TAPOCAP_ADDR"
	EnvUser    = "TAPOCAP_USER"
	EnvPass    = "TAPOCAP_PASS"
)

// Device describes one camera and how to capture from it.
type Device struct {
	Address  string `yaml:"address"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Format   string `yaml:"format,omitempty"` // png, tiff or bmp
	Method   string `yaml:"method,omitempty"` // auto, rtsp or http
}

// Load reads a device definition from a YAML file.
func Load(path string) (*Device, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var d Device
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &d, nil
}

// ApplyEnv fills empty Device fields from TAPOCAP_* environment variables.
func ApplyEnv(d *Device) {
	if d.Address == "" {
		d.Address = os.Getenv(EnvAddress)
	}
	if d.Username == "" {
		d.Username = os.Getenv(EnvUser)
	}
	if d.Password == "" {
		d.Password = os.Getenv(EnvPass)
	}
}

// Validate checks that the device has enough information to connect.
func (d *Device) Validate() error {
	if d.Address == "" {
		return fmt.Errorf("camera address is required")
	}
	if d.Username == "" {
		return fmt.Errorf("camera username is required")
	}
	if d.Password == "" {
		return fmt.Errorf("camera password is required")
	}
	return nil
}
