package features

import "sync"

// FeatureFlag represents a feature flag configuration.
type FeatureFlag struct {
	Name        string
	Enabled     bool
	Description string
}

// Manager manages feature flags.
type Manager struct {
	mu    sync.RWMutex
	flags map[string]*FeatureFlag
}

// NewManager creates a manager with the default flag set registered.
func NewManager() *Manager {
	m := &Manager{flags: make(map[string]*FeatureFlag)}
	m.Register(CacheEnabled, true, "cache reporting reads in Redis/in-memory")
	m.Register(EventHooksEnabled, true, "publish domain events to subscribers")
	m.Register(StrictConsistency, false, "fail reads on invitation/interested divergence instead of flagging")
	m.Register(BuyerRequestAutoAck, true, "a buyer request on a public listing targets the buyer immediately")
	return m
}

// Register registers a feature flag.
func (m *Manager) Register(name string, enabled bool, description string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.flags[name] = &FeatureFlag{
		Name:        name,
		Enabled:     enabled,
		Description: description,
	}
}

// IsEnabled checks if a feature flag is enabled. Unknown flags are disabled.
func (m *Manager) IsEnabled(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	flag, exists := m.flags[name]
	return exists && flag.Enabled
}

// Set enables or disables a feature flag.
func (m *Manager) Set(name string, enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if flag, exists := m.flags[name]; exists {
		flag.Enabled = enabled
	}
}

// GetAll returns a copy of all feature flags.
func (m *Manager) GetAll() map[string]FeatureFlag {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]FeatureFlag, len(m.flags))
	for k, v := range m.flags {
		result[k] = *v
	}
	return result
}

// Flag names.
const (
	// CacheEnabled enables/disables the reporting cache layer.
	CacheEnabled = "cache_enabled"
	// EventHooksEnabled enables/disables domain event publishing.
	EventHooksEnabled = "event_hooks_enabled"
	// StrictConsistency makes reads fail on detected divergence instead of
	// returning best-effort data with a warning.
	StrictConsistency = "strict_consistency"
	// BuyerRequestAutoAck controls whether a buyer request on a public
	// listing immediately targets the buyer.
	BuyerRequestAutoAck = "buyer_request_auto_ack"
)
