// Package config provides configuration loading for notification delivery.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultRetryAttempts = 3
	defaultRetryDelay    = 2 * time.Second
)

// NotifyConfigFile represents the structure of the notify.yaml file.
type NotifyConfigFile struct {
	Webhook *WebhookConfigFile `yaml:"webhook"`
	Mail    MailConfigFile     `yaml:"mail"`
}

// WebhookConfigFile configures the outbound notification webhook.
type WebhookConfigFile struct {
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
	Retry   RetryConfigFile   `yaml:"retry"`
}

type RetryConfigFile struct {
	Attempts int           `yaml:"attempts"`
	Delay    time.Duration `yaml:"delay"`
}

// MailConfigFile toggles outreach email hand-off over the event bus.
type MailConfigFile struct {
	Enabled bool `yaml:"enabled"`
}

// LoadNotifyConfig loads notification configuration from a YAML file.
func LoadNotifyConfig(filepath string) (NotifyConfigFile, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return NotifyConfigFile{}, fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	config := DefaultNotifyConfig()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return NotifyConfigFile{}, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if config.Webhook != nil {
		if config.Webhook.Retry.Attempts <= 0 {
			config.Webhook.Retry.Attempts = defaultRetryAttempts
		}

		if config.Webhook.Retry.Delay <= 0 {
			config.Webhook.Retry.Delay = defaultRetryDelay
		}
	}

	return config, ValidateNotifyConfig(config)
}

// LoadNotifyConfigOrDefault loads the file when a path is given, falling back to the
// default configuration otherwise.
func LoadNotifyConfigOrDefault(filepath string) (NotifyConfigFile, error) {
	if filepath == "" {
		return DefaultNotifyConfig(), nil
	}

	return LoadNotifyConfig(filepath)
}

// DefaultNotifyConfig keeps notifications in-app and hands emails to the bus.
func DefaultNotifyConfig() NotifyConfigFile {
	return NotifyConfigFile{Mail: MailConfigFile{Enabled: true}}
}

// ValidateNotifyConfig validates the notification configuration.
func ValidateNotifyConfig(config NotifyConfigFile) error {
	if config.Webhook == nil {
		return nil
	}

	if config.Webhook.URL == "" {
		return errors.New("webhook: url is required")
	}

	parsed, err := url.Parse(config.Webhook.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("webhook: invalid url %q", config.Webhook.URL)
	}

	if config.Webhook.Retry.Attempts > 10 {
		return fmt.Errorf("webhook: retry attempts must be at most 10, got %d", config.Webhook.Retry.Attempts)
	}

	return nil
}
