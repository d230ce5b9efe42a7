package target

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"dockship/internal/release"
	"dockship/internal/security"
)

const (
	MinSecretLength = 32
	DefaultBranch   = "main"
)

var ForbiddenSecrets = map[string]bool{
	"replace-with-secret": true,
	"topsecret":           true,
	"secret":              true,
	"password":            true,
	"changeme":            true,
}

// LoadConfig loads and validates the serve-mode configuration from a YAML
// file. Each entry must be fully specified; serve mode has no interactive
// fallback.
func LoadConfig(configPath string) (*Config, map[string]*Entry, error) {
	// The file carries webhook secrets and access tokens.
	if info, err := os.Stat(configPath); err == nil && security.IsWorldReadable(info.Mode().Perm()) {
		return nil, nil, fmt.Errorf("config file %s is world-readable (%04o), want at most %04o",
			configPath, uint32(info.Mode().Perm()), uint32(security.PermConfigFile))
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if config.Targets == nil {
		config.Targets = make(map[string]EntryConfig)
	}

	entries := make(map[string]*Entry)
	for name, ec := range config.Targets {
		errs := ValidateEntryConfig(name, ec)
		if len(errs) > 0 {
			return nil, nil, fmt.Errorf("invalid configuration for target '%s':\n%s",
				name, strings.Join(errs, "\n"))
		}

		branch := ec.Branch
		if branch == "" {
			branch = DefaultBranch
		}

		entries[name] = &Entry{
			Name:   name,
			Repo:   ec.Repo,
			Branch: branch,
			Token:  ec.Token,
			Host:   ec.Host,
			User:   ec.User,
			Key:    ec.Key,
			Port:   ec.Port,
			Secret: ec.Secret,
		}
	}

	return &config, entries, nil
}

// ValidateEntryConfig validates a single named deployment.
func ValidateEntryConfig(name string, ec EntryConfig) []string {
	var errs []string

	if err := security.ValidateReleaseName(name); err != nil {
		errs = append(errs, fmt.Sprintf("  - Target '%s': invalid name: %v", name, err))
	}

	if ec.Repo == "" {
		errs = append(errs, fmt.Sprintf("  - Target '%s': missing required 'repo' field", name))
	} else if err := security.ValidateRepoURL(ec.Repo); err != nil {
		errs = append(errs, fmt.Sprintf("  - Target '%s': invalid repo URL: %v", name, err))
	} else if err := security.ValidateReleaseName(release.DeriveName(ec.Repo)); err != nil {
		errs = append(errs, fmt.Sprintf("  - Target '%s': repo URL derives an unusable release name: %v", name, err))
	}

	if ec.Host == "" {
		errs = append(errs, fmt.Sprintf("  - Target '%s': missing required 'host' field", name))
	} else if err := security.ValidateHost(ec.Host); err != nil {
		errs = append(errs, fmt.Sprintf("  - Target '%s': invalid host: %v", name, err))
	}

	if ec.User == "" {
		errs = append(errs, fmt.Sprintf("  - Target '%s': missing required 'user' field", name))
	}

	if ec.Key == "" {
		errs = append(errs, fmt.Sprintf("  - Target '%s': missing required 'key' field", name))
	} else if _, err := os.Stat(ec.Key); err != nil {
		errs = append(errs, fmt.Sprintf("  - Target '%s': key path not accessible: '%s'", name, ec.Key))
	}

	if ec.Port <= 0 || ec.Port > 65535 {
		errs = append(errs, fmt.Sprintf("  - Target '%s': port must be between 1 and 65535, got %d", name, ec.Port))
	}

	if ec.Branch != "" {
		if err := security.ValidateBranchName(ec.Branch); err != nil {
			errs = append(errs, fmt.Sprintf("  - Target '%s': invalid branch: %v", name, err))
		}
	}

	if ec.Secret == "" {
		errs = append(errs, fmt.Sprintf("  - Target '%s': missing required 'secret' field", name))
	} else {
		if len(ec.Secret) < MinSecretLength {
			errs = append(errs, fmt.Sprintf("  - Target '%s': secret too short (minimum %d characters)", name, MinSecretLength))
		}
		if ForbiddenSecrets[strings.ToLower(ec.Secret)] {
			errs = append(errs, fmt.Sprintf("  - Target '%s': secret appears to be a placeholder value, replace with real secret", name))
		}
	}

	return errs
}
