package device

import (
	"fmt"
	"log/slog"
)

// BackendFactory creates Output instances based on configuration
type BackendFactory interface {
	CreateOutput(backendType string, r Renderer, cfg OutputConfig) (Output, error)
	GetSupportedBackends() []string
	IsValidBackendType(backendType string) bool
}

type outputConstructor func(Renderer, OutputConfig) (Output, error)

// DefaultBackendFactory implements BackendFactory with platform detection
type DefaultBackendFactory struct {
	isWSLFunc    func() bool
	constructors map[string]outputConstructor
}

// NewBackendFactory creates a new DefaultBackendFactory with real platform detection
func NewBackendFactory() *DefaultBackendFactory {
	return NewBackendFactoryWithDependencies(IsWSL, nil)
}

// NewBackendFactoryWithDependencies creates a factory with injected platform
// detection and output constructors for testing. Missing constructors fall
// back to the real drivers.
func NewBackendFactoryWithDependencies(isWSLFunc func() bool, constructors map[string]func(Renderer, OutputConfig) (Output, error)) *DefaultBackendFactory {
	f := &DefaultBackendFactory{
		isWSLFunc: isWSLFunc,
		constructors: map[string]outputConstructor{
			"malgo":     newMalgoOutput,
			"oto":       newOtoOutput,
			"portaudio": newPortAudioOutput,
			"headless": func(r Renderer, cfg OutputConfig) (Output, error) {
				return NewHeadlessOutput(r, cfg, true), nil
			},
		},
	}
	for name, ctor := range constructors {
		f.constructors[name] = ctor
	}
	return f
}

// CreateOutput creates an Output of the given type pulling from r
func (f *DefaultBackendFactory) CreateOutput(backendType string, r Renderer, cfg OutputConfig) (Output, error) {
	// Default empty string to "auto"
	if backendType == "" {
		backendType = "auto"
	}

	slog.Debug("creating audio output", "type", backendType)

	if backendType == "auto" {
		return f.createAutoOutput(r, cfg)
	}

	ctor, ok := f.constructors[backendType]
	if !ok {
		slog.Error("invalid backend type requested", "type", backendType)
		return nil, fmt.Errorf("%w: %s", ErrInvalidBackendType, backendType)
	}
	return f.create(backendType, ctor, r, cfg)
}

// GetSupportedBackends returns a list of all supported backend types
func (f *DefaultBackendFactory) GetSupportedBackends() []string {
	return []string{"auto", "malgo", "oto", "portaudio", "headless"}
}

// IsValidBackendType checks if a backend type is supported
func (f *DefaultBackendFactory) IsValidBackendType(backendType string) bool {
	// Empty string is valid (defaults to auto)
	if backendType == "" {
		return true
	}

	for _, supportedType := range f.GetSupportedBackends() {
		if backendType == supportedType {
			return true
		}
	}
	return false
}

// createAutoOutput tries the hardware backends in platform preference order
func (f *DefaultBackendFactory) createAutoOutput(r Renderer, cfg OutputConfig) (Output, error) {
	order := hardwareBackendOrder(f.isWSLFunc())
	slog.Debug("auto-detecting optimal backend", "order", order)

	var lastErr error
	for _, name := range order {
		out, err := f.create(name, f.constructors[name], r, cfg)
		if err == nil {
			return out, nil
		}
		slog.Warn("audio backend unavailable, trying next", "type", name, "error", err)
		lastErr = err
	}
	return nil, fmt.Errorf("no hardware audio backend available: %w", lastErr)
}

func (f *DefaultBackendFactory) create(name string, ctor outputConstructor, r Renderer, cfg OutputConfig) (Output, error) {
	out, err := ctor(r, cfg)
	if err != nil {
		if IsDeviceError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrDeviceUnavailable, name, err)
	}
	slog.Debug("audio output created", "type", out.Name())
	return out, nil
}
