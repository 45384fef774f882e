package utils

import (
	"fmt"
	"log/slog"

	"github.com/notargets/gocca"
)

// FallbackModes are tried in order when no device mode is configured
var FallbackModes = []string{
	`{"mode": "OpenMP"}`,
	`{"mode": "CUDA", "device_id": 0}`,
	`{"mode": "Serial"}`,
}

// CreateDevice opens the device described by the OCCA JSON properties in
// mode, or the first of FallbackModes that works when mode is empty
func CreateDevice(mode string) (*gocca.OCCADevice, error) {
	if mode != "" {
		device, err := gocca.NewDevice(mode)
		if err != nil {
			return nil, fmt.Errorf("create device %s: %w", mode, err)
		}
		return device, nil
	}
	var lastErr error
	for _, props := range FallbackModes {
		device, err := gocca.NewDevice(props)
		if err == nil {
			slog.Debug("created device", "mode", device.Mode())
			return device, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("no device backend available: %w", lastErr)
}

// CreateTestDevice creates a Device for testing, preferring parallel backends
func CreateTestDevice() *gocca.OCCADevice {
	device, err := CreateDevice("")
	if err != nil {
		panic(err)
	}
	return device
}
