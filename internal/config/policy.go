package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// OperationPolicy overrides breaker and retry settings for one operation
// type. Nil fields inherit the environment defaults.
type OperationPolicy struct {
	FailureThreshold *int           `yaml:"failure_threshold"`
	RecoveryWindow   *time.Duration `yaml:"recovery_window"`
	MaxRetries       *int           `yaml:"max_retries"`
	Timeout          *time.Duration `yaml:"timeout"`
}

// Validate checks the set fields.
func (p OperationPolicy) Validate() error {
	var errs []error
	if p.FailureThreshold != nil && *p.FailureThreshold < 1 {
		errs = append(errs, fmt.Errorf("failure_threshold must be at least 1, got %d", *p.FailureThreshold))
	}
	if p.RecoveryWindow != nil && *p.RecoveryWindow <= 0 {
		errs = append(errs, fmt.Errorf("recovery_window must be positive, got %s", *p.RecoveryWindow))
	}
	if p.MaxRetries != nil && *p.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("max_retries must not be negative, got %d", *p.MaxRetries))
	}
	if p.Timeout != nil && *p.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive, got %s", *p.Timeout))
	}
	return errors.Join(errs...)
}

// PolicyFile is the document read from ACS_POLICY_FILE.
//
//	operations:
//	  CreateUser:
//	    failure_threshold: 3
//	    recovery_window: 10s
//	    max_retries: 1
//	    timeout: 2s
type PolicyFile struct {
	Operations map[string]OperationPolicy `yaml:"operations"`
}

// LoadPolicyFile reads and validates a policy file. Unknown keys are errors.
func LoadPolicyFile(path string) (*PolicyFile, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is operator-controlled
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy decodes a policy document.
func ParsePolicy(data []byte) (*PolicyFile, error) {
	var pf PolicyFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&pf); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}
	for name, p := range pf.Operations {
		if name == "" {
			return nil, fmt.Errorf("policy file: operation name must not be empty")
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("policy file: %s: %w", name, err)
		}
	}
	return &pf, nil
}
