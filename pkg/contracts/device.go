package contracts

import (
	"fmt"
	"strings"
	"time"
)

// Platform identifies the operating family of a managed device.
type Platform string

// Supported platforms.
const (
	PlatformLinux   Platform = "linux"
	PlatformWindows Platform = "windows"
	PlatformAndroid Platform = "android"
	PlatformConsole Platform = "console"
	// PlatformMacOS is reported by the desktop scanner and planned like a linux host.
	PlatformMacOS Platform = "macos"
)

// Valid reports whether p is a platform the planner knows how to target.
func (p Platform) Valid() bool {
	switch p {
	case PlatformLinux, PlatformWindows, PlatformAndroid, PlatformConsole, PlatformMacOS:
		return true
	}
	return false
}

// ParsePlatform normalizes a platform string.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("unsupported platform %q", s)
	}
	return p, nil
}

// DeviceInfo is a read-only snapshot of the device a plan is generated for.
//
//nolint:govet // fieldalignment: struct layout is human-readable
type DeviceInfo struct {
	ID           string         `json:"id"`
	Platform     Platform       `json:"platform"`
	Architecture string         `json:"architecture,omitempty"`
	OS           string         `json:"os,omitempty"`
	Version      string         `json:"version,omitempty"`
	Hardware     map[string]any `json:"hardware,omitempty"`
	Capabilities []string       `json:"capabilities,omitempty"`
	Timestamp    *time.Time     `json:"timestamp,omitempty"`
}

// Validate checks the fields the planner depends on.
func (d DeviceInfo) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("device id is required")
	}
	if !d.Platform.Valid() {
		return fmt.Errorf("unsupported platform %q", d.Platform)
	}
	return nil
}
