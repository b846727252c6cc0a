// Package env resolves layered environment configuration for metric view
// deployments. A configuration document maps environment names to settings;
// the reserved "global" key holds defaults merged beneath every named
// environment.
package env

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"viewflow/internal/common"
	"viewflow/pkg/errors"
)

// GlobalKey is the reserved document key holding shared defaults. It is
// never itself a deployable environment.
const GlobalKey = "global"

// DefaultConfigPath is where the configuration document lives relative
// to the project root.
const DefaultConfigPath = "config/environments.yml"

// Document is the raw layered configuration document.
type Document map[string]map[string]interface{}

// Manager owns the configuration document for the process lifetime.
// The document is loaded once, cached, and treated as read-only; merges
// always build fresh maps.
type Manager struct {
	configPath string
	doc        Document
}

// NewManager returns a Manager reading from configPath, or the default
// location when empty.
func NewManager(configPath string) *Manager {
	if configPath == "" {
		configPath = DefaultConfigPath
	}
	return &Manager{configPath: configPath}
}

// Load reads and caches the configuration document. The primary path is
// tried first, then the fixed fallback locations.
func (m *Manager) Load() (Document, error) {
	if m.doc != nil {
		return m.doc, nil
	}

	path, ok := common.FindFile(m.configPath)
	if !ok {
		return nil, errors.New(errors.ErrCodeConfigNotFound,
			fmt.Sprintf("environment configuration not found: %s", m.configPath)).
			WithContext("path", m.configPath)
	}

	data, err := os.ReadFile(path) // #nosec G304 - resolved from a fixed candidate list
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeFileOperation,
			fmt.Sprintf("failed to read environment configuration %s", path))
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid,
			fmt.Sprintf("malformed environment configuration %s", path))
	}

	m.doc = doc
	return doc, nil
}

// Resolve returns the merged settings for one environment: global defaults
// first, environment-specific keys overlaid. Environment keys always win.
// Neither source layer is mutated.
func (m *Manager) Resolve(environment string) (map[string]interface{}, error) {
	doc, err := m.Load()
	if err != nil {
		return nil, err
	}

	envLayer, ok := doc[environment]
	if !ok || environment == GlobalKey {
		available, _ := m.ListEnvironments()
		return nil, errors.UnknownEnvironmentError(environment, available)
	}

	merged := make(map[string]interface{}, len(doc[GlobalKey])+len(envLayer))
	for k, v := range doc[GlobalKey] {
		merged[k] = v
	}
	for k, v := range envLayer {
		merged[k] = v
	}
	return merged, nil
}

// TemplateContext returns the rendering context for an environment: the
// merged settings plus an un-merged copy of the global layer under the
// "global" key, so templates may reference either the flattened value or
// the original default explicitly. Built fresh per call.
func (m *Manager) TemplateContext(environment string) (map[string]interface{}, error) {
	merged, err := m.Resolve(environment)
	if err != nil {
		return nil, err
	}

	if globalLayer, ok := m.doc[GlobalKey]; ok {
		raw := make(map[string]interface{}, len(globalLayer))
		for k, v := range globalLayer {
			raw[k] = v
		}
		merged[GlobalKey] = raw
	}
	return merged, nil
}

// ListEnvironments returns the deployable environment names, sorted.
func (m *Manager) ListEnvironments() ([]string, error) {
	doc, err := m.Load()
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(doc))
	for name := range doc {
		if name != GlobalKey {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// requiredFields must be present in every resolved environment.
var requiredFields = []string{"catalog", "schema", "warehouse_id"}

// Validate checks one environment's resolved settings and returns issue
// descriptions rather than raising. An empty slice means the environment
// is clean.
func (m *Manager) Validate(environment string) []string {
	cfg, err := m.Resolve(environment)
	if err != nil {
		return []string{err.Error()}
	}

	var issues []string
	for _, field := range requiredFields {
		if _, ok := cfg[field]; !ok {
			issues = append(issues,
				fmt.Sprintf("missing required field '%s' in environment '%s'", field, environment))
		}
	}

	if v, ok := cfg["warehouse_id"]; ok {
		if _, isString := v.(string); !isString {
			issues = append(issues,
				fmt.Sprintf("warehouse_id must be a string in environment '%s'", environment))
		}
	}

	if v, ok := cfg["tags"]; ok {
		if _, isMap := v.(map[string]interface{}); !isMap {
			issues = append(issues,
				fmt.Sprintf("tags must be a mapping in environment '%s'", environment))
		}
	}

	return issues
}
