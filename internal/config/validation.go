package config

import (
	"fmt"
	"net"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/conneroisu/clips/internal/logging"
	"github.com/conneroisu/clips/internal/registry"
	"github.com/conneroisu/clips/pkg/clips"
	"github.com/conneroisu/clips/pkg/dom"
)

// ValidationError represents a configuration validation error with suggestions
type ValidationError struct {
	Field       string
	Value       interface{}
	Message     string
	Suggestions []string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// ValidationResult holds the result of configuration validation
type ValidationResult struct {
	Valid    bool
	Errors   []ValidationError
	Warnings []ValidationError
}

// HasErrors returns true if there are any validation errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings
func (vr *ValidationResult) HasWarnings() bool {
	return len(vr.Warnings) > 0
}

// String returns a formatted string of all validation issues
func (vr *ValidationResult) String() string {
	var builder strings.Builder

	if len(vr.Errors) > 0 {
		builder.WriteString("Validation errors:\n")
		for _, err := range vr.Errors {
			builder.WriteString(fmt.Sprintf("  - %s: %s\n", err.Field, err.Message))
			for _, suggestion := range err.Suggestions {
				builder.WriteString(fmt.Sprintf("    hint: %s\n", suggestion))
			}
		}
		builder.WriteString("\n")
	}

	if len(vr.Warnings) > 0 {
		builder.WriteString("Validation warnings:\n")
		for _, warning := range vr.Warnings {
			builder.WriteString(fmt.Sprintf("  - %s: %s\n", warning.Field, warning.Message))
			for _, suggestion := range warning.Suggestions {
				builder.WriteString(fmt.Sprintf("    hint: %s\n", suggestion))
			}
		}
	}

	return builder.String()
}

// ValidateConfigWithDetails performs comprehensive validation with detailed feedback
func ValidateConfigWithDetails(config *Config) *ValidationResult {
	result := &ValidationResult{
		Valid:    true,
		Errors:   []ValidationError{},
		Warnings: []ValidationError{},
	}

	validateClipsConfigDetails(&config.Clips, result)
	validateLoopConfigDetails(&config.Loop, result)
	validatePageConfigDetails(&config.Page, result)
	validateServerConfigDetails(&config.Server, result)
	validateLogConfigDetails(&config.Log, result)

	result.Valid = !result.HasErrors()

	return result
}

// validateConfig returns the first validation error, if any.
func validateConfig(config *Config) error {
	result := ValidateConfigWithDetails(config)
	if result.HasErrors() {
		return &result.Errors[0]
	}
	return nil
}

func validateClipsConfigDetails(config *clips.Settings, result *ValidationResult) {
	base := config.BasePath
	switch {
	case base == "":
		if !config.TemplatesBundled {
			result.Warnings = append(result.Warnings, ValidationError{
				Field:   "clips.base_path",
				Message: "no base path: only templates added in code can be rendered",
				Suggestions: []string{
					"Point base_path at a directory, an http(s) URL or s3://bucket/prefix",
				},
			})
		}
	case strings.HasPrefix(base, "s3://"):
		bucket, _, _ := strings.Cut(strings.TrimPrefix(base, "s3://"), "/")
		if bucket == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:       "clips.base_path",
				Value:       base,
				Message:     "s3 base path has no bucket",
				Suggestions: []string{"Use s3://bucket or s3://bucket/prefix"},
			})
		}
	case strings.HasPrefix(base, "http://"), strings.HasPrefix(base, "https://"):
	default:
		if !pathExists(base) {
			result.Warnings = append(result.Warnings, ValidationError{
				Field:   "clips.base_path",
				Value:   base,
				Message: "base path does not exist",
				Suggestions: []string{
					"Create the directory or run from the project root",
				},
			})
		}
	}
}

func validateLoopConfigDetails(config *LoopConfig, result *ValidationResult) {
	if config.FrameInterval < time.Millisecond || config.FrameInterval > time.Second {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "loop.frame_interval",
			Value:   config.FrameInterval,
			Message: fmt.Sprintf("frame interval %s is not in range 1ms-1s", config.FrameInterval),
			Suggestions: []string{
				"16ms matches a 60Hz display",
			},
		})
	}
	if config.MaxFrames < 2 {
		result.Errors = append(result.Errors, ValidationError{
			Field:       "loop.max_frames",
			Value:       config.MaxFrames,
			Message:     "at least two frames are needed to confirm attachment",
			Suggestions: []string{"Use 10 unless clips schedule long frame chains"},
		})
	}
}

func validatePageConfigDetails(config *PageConfig, result *ValidationResult) {
	if config.Clip != "" {
		if err := registry.ValidateName(strings.TrimSpace(config.Clip)); err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Field:       "page.clip",
				Value:       config.Clip,
				Message:     err.Error(),
				Suggestions: []string{`Clip names look like "home" or "user/profile"`},
			})
		}
	}
	if _, err := dom.ParseSelector(config.Target); err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Field:       "page.target",
			Value:       config.Target,
			Message:     err.Error(),
			Suggestions: []string{`Use a CSS selector such as "body", "#app" or "main .content"`},
		})
	}
	if _, err := clips.ParsePosition(config.Position); err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Field:       "page.position",
			Value:       config.Position,
			Message:     err.Error(),
			Suggestions: []string{"Use start, end, before, after or replace"},
		})
	}
	if config.File != "" && !pathExists(config.File) {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "page.file",
			Value:   config.File,
			Message: "page file does not exist",
		})
	}
}

func validateServerConfigDetails(config *ServerConfig, result *ValidationResult) {
	if config.Port < 0 || config.Port > 65535 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "server.port",
			Value:   config.Port,
			Message: fmt.Sprintf("port %d is not in valid range 0-65535", config.Port),
			Suggestions: []string{
				"Use a port between 1024-65535 for non-privileged access",
				"Port 0 allows system to assign an available port",
			},
		})
	} else if config.Port > 0 && config.Port < 1024 {
		result.Warnings = append(result.Warnings, ValidationError{
			Field:   "server.port",
			Value:   config.Port,
			Message: "port below 1024 requires elevated privileges",
			Suggestions: []string{
				"Consider using a port above 1024 for development",
			},
		})
	}

	if config.Host != "" {
		if err := validateHostname(config.Host); err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "server.host",
				Value:   config.Host,
				Message: err.Error(),
				Suggestions: []string{
					"Use 'localhost' for local development",
					"Use '0.0.0.0' to bind to all interfaces",
				},
			})
		}
	}
}

func validateLogConfigDetails(config *LogConfig, result *ValidationResult) {
	if _, err := logging.ParseLevel(config.Level); err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Field:       "log.level",
			Value:       config.Level,
			Message:     err.Error(),
			Suggestions: []string{"Use debug, info, warn, error or off"},
		})
	}
	if config.Format != "text" && config.Format != "json" {
		result.Errors = append(result.Errors, ValidationError{
			Field:       "log.format",
			Value:       config.Format,
			Message:     fmt.Sprintf("unknown log format %q", config.Format),
			Suggestions: []string{"Use text or json"},
		})
	}
}

// Helper validation functions

func validateHostname(host string) error {
	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}
	for _, char := range dangerousChars {
		if strings.Contains(host, char) {
			return fmt.Errorf("contains dangerous character: %s", char)
		}
	}

	if net.ParseIP(host) != nil {
		return nil
	}

	if host == "localhost" {
		return nil
	}

	hostnameRegex := regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)
	if !hostnameRegex.MatchString(host) {
		return fmt.Errorf("invalid hostname format")
	}

	return nil
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
