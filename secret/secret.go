// Package secret provides pluggable credential lookup for provider
// adapters. Adapters ask for a secret by name (e.g. "OPENAI_API_KEY") and
// never see how it was resolved, so application embedders can swap in a
// vault-backed or config-backed manager without touching adapter code.
package secret

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrNotFound is returned when a secret is not found by any manager.
var ErrNotFound = errors.New("secret not found")

// Manager resolves a named secret to its value.
type Manager interface {
	GetSecret(name string) (string, error)
	GetType() ManagerType
}

type ManagerType string

const (
	EnvManagerType          ManagerType = "env"
	MockManagerType         ManagerType = "mock"
	StaticManagerType       ManagerType = "static"
	CompositeManagerType    ManagerType = "composite"
	InterceptingManagerType ManagerType = "intercepting"
)

// EnvManager resolves secrets from the process environment, with an
// "LLMRT_" prefix to avoid colliding with unrelated variables of the same
// bare name.
type EnvManager struct{}

func (EnvManager) GetSecret(name string) (string, error) {
	envName := fmt.Sprintf("LLMRT_%s", name)
	value := os.Getenv(envName)
	if value == "" {
		return "", fmt.Errorf("%w: %s not set in environment", ErrNotFound, envName)
	}
	return value, nil
}

func (EnvManager) GetType() ManagerType { return EnvManagerType }

// StaticManager resolves secrets from a fixed in-memory map, typically
// loaded once from a config file or secrets store at process start.
type StaticManager struct {
	Values map[string]string `json:"values"`
}

func (s StaticManager) GetSecret(name string) (string, error) {
	if v, ok := s.Values[name]; ok && v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%w: %s not present in static manager", ErrNotFound, name)
}

func (StaticManager) GetType() ManagerType { return StaticManagerType }

// CompositeManager tries each underlying manager in order and returns the
// first successful lookup.
type CompositeManager struct {
	managers []Manager
}

func NewCompositeManager(managers ...Manager) *CompositeManager {
	return &CompositeManager{managers: managers}
}

func (c CompositeManager) GetSecret(name string) (string, error) {
	var lastErr error
	for _, m := range c.managers {
		v, err := m.GetSecret(name)
		if err == nil {
			return v, nil
		}
		lastErr = err
	}
	if lastErr != nil {
		return "", fmt.Errorf("secret %s not found in any manager: %w", name, lastErr)
	}
	return "", fmt.Errorf("no secret managers configured")
}

func (c CompositeManager) GetType() ManagerType { return CompositeManagerType }

func (c CompositeManager) MarshalJSON() ([]byte, error) {
	containers := make([]Container, len(c.managers))
	for i, m := range c.managers {
		containers[i] = Container{Manager: m}
	}
	return json.Marshal(struct {
		Managers []Container `json:"managers"`
	}{Managers: containers})
}

func (c *CompositeManager) UnmarshalJSON(data []byte) error {
	var v struct {
		Managers []Container `json:"managers"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	c.managers = make([]Manager, len(v.Managers))
	for i, container := range v.Managers {
		c.managers[i] = container.Manager
	}
	return nil
}

// MockManager is used by tests that don't care about real credentials.
type MockManager struct{}

func (MockManager) GetSecret(name string) (string, error) {
	if strings.HasSuffix(name, "_API_KEY") {
		return "test-secret", nil
	}
	return "", fmt.Errorf("%w: %s not found in mock manager", ErrNotFound, name)
}

func (MockManager) GetType() ManagerType { return MockManagerType }

// Container adds JSON (de)serialization to the Manager interface so a
// Manager can be embedded in a serializable request envelope. The concrete
// type is selected on GetType() at marshal time and restored by matching on
// the same discriminator at unmarshal time.
type Container struct {
	Manager
}

func (c Container) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    string
		Manager Manager
	}{
		Type:    string(c.Manager.GetType()),
		Manager: c.Manager,
	})
}

func (c *Container) UnmarshalJSON(data []byte) error {
	var v struct {
		Type    string
		Manager json.RawMessage
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}

	switch ManagerType(v.Type) {
	case EnvManagerType:
		var m EnvManager
		if err := json.Unmarshal(v.Manager, &m); err != nil {
			return err
		}
		c.Manager = m
	case StaticManagerType:
		var m StaticManager
		if err := json.Unmarshal(v.Manager, &m); err != nil {
			return err
		}
		c.Manager = m
	case MockManagerType:
		var m MockManager
		if err := json.Unmarshal(v.Manager, &m); err != nil {
			return err
		}
		c.Manager = m
	case CompositeManagerType:
		var m CompositeManager
		if err := json.Unmarshal(v.Manager, &m); err != nil {
			return err
		}
		c.Manager = &m
	case InterceptingManagerType:
		var m InterceptingManager
		if err := json.Unmarshal(v.Manager, &m); err != nil {
			return err
		}
		c.Manager = m
	default:
		return fmt.Errorf("unknown secret manager type: %s", v.Type)
	}
	return nil
}
