package backend

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// RemoteConfig selects and configures a remote document store implementation.
type RemoteConfig struct {
	// Type picks the registered implementation: "docstore" (HTTP) or "badger" (embedded).
	Type string `yaml:"type" validate:"required"`

	// URL is the base URL of the document API (docstore).
	URL string `yaml:"url,omitempty" validate:"omitempty,url"`

	// Path is the data directory of an embedded store (badger).
	Path string `yaml:"path,omitempty"`

	Timeout   time.Duration `yaml:"timeout,omitempty"`
	RateLimit float64       `yaml:"rate_limit,omitempty" validate:"gte=0"`
	Burst     int           `yaml:"burst,omitempty" validate:"gte=0"`

	// Token supplies the bearer token for each request. Not persisted.
	Token func() string `yaml:"-" json:"-"`
}

// RemoteConstructor creates a remote store from its configuration
type RemoteConstructor func(config RemoteConfig) (Remote, error)

// Registry holds registered remote constructors
type Registry struct {
	mu           sync.RWMutex
	constructors map[string]RemoteConstructor
}

var globalRegistry = &Registry{
	constructors: make(map[string]RemoteConstructor),
}

// RegisterType registers a remote constructor for a config type
func RegisterType(remoteType string, constructor RemoteConstructor) {
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()
	globalRegistry.constructors[remoteType] = constructor
}

// GetTypeConstructor returns the constructor for a remote type
func GetTypeConstructor(remoteType string) (RemoteConstructor, error) {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()

	constructor, ok := globalRegistry.constructors[remoteType]
	if !ok {
		return nil, fmt.Errorf("unsupported remote type: %s", remoteType)
	}
	return constructor, nil
}

// RegisteredTypes returns the registered remote types, sorted.
func RegisteredTypes() []string {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()

	types := make([]string, 0, len(globalRegistry.constructors))
	for t := range globalRegistry.constructors {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// NewRemote creates a remote store from configuration using the registry
func NewRemote(config RemoteConfig) (Remote, error) {
	if config.Type == "" {
		return nil, fmt.Errorf("remote type is required")
	}
	constructor, err := GetTypeConstructor(config.Type)
	if err != nil {
		return nil, err
	}
	return constructor(config)
}
