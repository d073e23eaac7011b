// Copyright 2025 deepset GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package api

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// DefaultAPIURL is the production API endpoint.
const DefaultAPIURL = "https://api.cloud.deepset.ai/api/v1"

// Environment variables read by ConfigFromEnv.
const (
	EnvAPIKey    = "API_KEY"
	EnvAPIURL    = "API_URL"
	EnvWorkspace = "DEFAULT_WORKSPACE_NAME"
)

// Config holds the credentials and target for a Client. There is no implicit
// global configuration; construct a Config explicitly or via ConfigFromEnv
// and pass it to NewClient.
type Config struct {
	// APIKey is the bearer token used for all requests. Required.
	APIKey string

	// APIURL is the base URL of the API. Defaults to DefaultAPIURL.
	APIURL string

	// Workspace is the default workspace name used when a call does not
	// specify one explicitly.
	Workspace string
}

// ConfigOption is a functional option for Config.
type ConfigOption func(*Config)

// WithAPIKey sets the API key.
func WithAPIKey(key string) ConfigOption {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithAPIURL sets the API base URL.
func WithAPIURL(url string) ConfigOption {
	return func(c *Config) {
		c.APIURL = url
	}
}

// WithWorkspace sets the default workspace name.
func WithWorkspace(name string) ConfigOption {
	return func(c *Config) {
		c.Workspace = name
	}
}

// EnvFilePath returns the location of the persistent .env file written by
// `deepset login` ($HOME/.deepset-cloud/.env).
func EnvFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".deepset-cloud", ".env")
}

// LoadEnv loads environment variables from a .env file. A .env file in the
// current directory takes precedence; otherwise the file written by
// `deepset login` in the home directory is used. It reports whether any
// file was loaded.
func LoadEnv() bool {
	local := filepath.Join(".", ".env")
	if _, err := os.Stat(local); err == nil {
		return godotenv.Load(local) == nil
	}
	if path := EnvFilePath(); path != "" {
		return godotenv.Load(path) == nil
	}
	return false
}

// ConfigFromEnv builds a Config from the environment, after loading any
// available .env file. Options are applied last and override environment
// values.
func ConfigFromEnv(opts ...ConfigOption) Config {
	LoadEnv()
	cfg := Config{
		APIKey:    os.Getenv(EnvAPIKey),
		APIURL:    os.Getenv(EnvAPIURL),
		Workspace: os.Getenv(EnvWorkspace),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Validate checks the config and normalizes the API URL. Configuration
// errors are fatal; they are never retried.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("%w: set the API_KEY environment variable or pass WithAPIKey; "+
			"generate a key under Connections in the deepset AI Platform", ErrMissingAPIKey)
	}
	if c.APIURL == "" {
		c.APIURL = DefaultAPIURL
	}
	c.APIURL = strings.TrimSuffix(c.APIURL, "/")
	if c.APIURL == "" {
		return ErrMissingAPIURL
	}
	return nil
}
