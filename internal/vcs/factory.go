package vcs

import (
	"sync"

	"github.com/hoxforge/hox/internal/herr"
)

// Factory creates VCS instances based on detected type and preferences.
//
// Supports caching to avoid repeated detection for the same path, and
// configuration of preferences for colocated repositories.
type Factory struct {
	preferredType Type
	fallbackType  Type
	enableCache   bool
}

var (
	vcsCache     sync.Map
	cacheMutex   sync.RWMutex
	cacheEnabled = true
)

// NewFactory creates a new VCS factory with the specified options.
//
// Default behavior: caching enabled, prefer git for colocated repos (per
// PreferredVCS), fall back to jj if preferred unavailable.
func NewFactory(opts ...FactoryOption) *Factory {
	f := &Factory{
		preferredType: TypeGit,
		fallbackType:  TypeJJ,
		enableCache:   true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FactoryOption configures the factory.
type FactoryOption func(*Factory)

// WithPreferredType sets the preferred VCS type for colocated repos.
func WithPreferredType(t Type) FactoryOption {
	return func(f *Factory) { f.preferredType = t }
}

// WithFallbackType sets the fallback VCS type.
func WithFallbackType(t Type) FactoryOption {
	return func(f *Factory) { f.fallbackType = t }
}

// WithCache enables or disables instance caching.
func WithCache(enabled bool) FactoryOption {
	return func(f *Factory) { f.enableCache = enabled }
}

// Create creates a VCS instance for the given path.
func (f *Factory) Create(path string) (VCS, error) {
	if f.enableCache && cacheEnabled {
		if cached, ok := vcsCache.Load(path); ok {
			return cached.(VCS), nil
		}
	}

	result, err := DetectWithAvailability(path)
	if err != nil {
		return nil, err
	}

	implType := f.determineImplementationType(result)

	v, err := f.createImplementation(implType, result)
	if err != nil {
		return nil, err
	}

	if f.enableCache && cacheEnabled {
		vcsCache.Store(path, v)
	}

	return v, nil
}

// determineImplementationType decides which VCS implementation to use based
// on detection results and factory preferences.
func (f *Factory) determineImplementationType(result *DetectionResult) Type {
	switch result.Type {
	case TypeGit:
		return TypeGit
	case TypeJJ:
		return TypeJJ
	case TypeColocate:
		preferred := f.preferredType
		if preferred == "" {
			preferred = PreferredVCS()
		}

		switch preferred {
		case TypeGit:
			if result.HasGit && IsGitAvailable() {
				return TypeGit
			}
			if result.HasJJ && IsJJAvailable() {
				return TypeJJ
			}
		case TypeJJ:
			if result.HasJJ && IsJJAvailable() {
				return TypeJJ
			}
			if result.HasGit && IsGitAvailable() {
				return TypeGit
			}
		}

		if result.HasGit && IsGitAvailable() {
			return TypeGit
		}
		if result.HasJJ && IsJJAvailable() {
			return TypeJJ
		}
		return f.fallbackType
	default:
		return TypeGit
	}
}

// createImplementation creates the actual VCS implementation using the
// registry. Implementations register themselves via Register() in their
// init() functions.
func (f *Factory) createImplementation(implType Type, result *DetectionResult) (VCS, error) {
	constructor := getConstructor(implType)
	if constructor == nil {
		return nil, herr.New(herr.KindVcsNotFound, "no registered constructor for VCS type: "+string(implType))
	}

	v, err := constructor(result.RepoRoot)
	if err != nil {
		return nil, herr.Wrap(herr.KindVcsCommand, err, "create "+string(implType)+" VCS instance")
	}

	return v, nil
}

// Get returns a VCS instance for the current directory using default options.
func Get() (VCS, error) {
	return NewFactory().Create(".")
}

// GetForPath returns a VCS instance for the specified path.
func GetForPath(path string) (VCS, error) {
	return NewFactory().Create(path)
}

// GetWithPreference returns a VCS instance with a specific type preference.
func GetWithPreference(preferred Type) (VCS, error) {
	return NewFactory(WithPreferredType(preferred)).Create(".")
}

// ResetCache clears the VCS instance cache. Primarily useful for tests,
// where the working directory may change between cases.
func ResetCache() {
	cacheMutex.Lock()
	defer cacheMutex.Unlock()
	vcsCache = sync.Map{}
}

// DisableCache globally disables VCS instance caching.
func DisableCache() {
	cacheMutex.Lock()
	defer cacheMutex.Unlock()
	cacheEnabled = false
}

// EnableCache re-enables VCS instance caching.
func EnableCache() {
	cacheMutex.Lock()
	defer cacheMutex.Unlock()
	cacheEnabled = true
}
