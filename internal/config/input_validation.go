package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"unicode"
)

const (
	// MaxModelIDLength is the maximum allowed length for model identifiers
	MaxModelIDLength = 200
)

// ValidateInputs performs additional security validation on user-controllable
// fields beyond the range checks in Validate.
func (c *Config) ValidateInputs() error {
	if err := validateModelID(c.Run.ModelID); err != nil {
		return fmt.Errorf("invalid run.model_id: %w", err)
	}
	if c.Evaluator.JudgeModel != "" {
		if err := validateModelID(c.Evaluator.JudgeModel); err != nil {
			return fmt.Errorf("invalid evaluator.judge_model: %w", err)
		}
	}

	if err := validateBaseURL(c.Engine.BaseURL); err != nil {
		return fmt.Errorf("invalid engine.base_url: %w", err)
	}

	if err := validatePath("dataset.path", c.Dataset.Path); err != nil {
		return err
	}
	if err := validatePath("storage.path", c.Storage.Path); err != nil {
		return err
	}
	if err := validatePath("output.dir", c.Output.Dir); err != nil {
		return err
	}

	return nil
}

// validateModelID checks a model identifier for length and control characters
func validateModelID(id string) error {
	if len(id) > MaxModelIDLength {
		return fmt.Errorf("exceeds maximum length of %d characters (got %d)", MaxModelIDLength, len(id))
	}
	if containsControlChars(id) {
		return fmt.Errorf("contains invalid control characters")
	}
	return nil
}

// validateBaseURL checks that the engine URL is properly formatted and safe
func validateBaseURL(baseURL string) error {
	u, err := url.Parse(baseURL)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("must use http or https scheme (got %s)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("must have a host")
	}
	return nil
}

// validatePath rejects paths with embedded NUL or parent-directory escapes
// after cleaning. Relative paths are allowed; they resolve against the
// working directory.
func validatePath(field, p string) error {
	if strings.ContainsRune(p, 0) {
		return fmt.Errorf("%s contains a NUL byte", field)
	}
	cleaned := filepath.Clean(p)
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%s escapes the working directory (%s)", field, p)
	}
	return nil
}

// containsControlChars checks if a string contains control characters
// (excluding newlines, tabs, and carriage returns which are acceptable)
func containsControlChars(s string) bool {
	for _, r := range s {
		if unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r' {
			return true
		}
	}
	return false
}
