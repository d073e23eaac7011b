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


package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/deepset-ai/deepset-cloud-sdk-go/api"
)

// Service publishes pipelines and indexes into the configured workspace.
type Service struct {
	client *api.Client
	logger *slog.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithLogger sets the logger used for validation warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService creates a Service on top of an API client.
func NewService(client *api.Client, opts ...Option) *Service {
	s := &Service{
		client: client,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewServiceFromEnv builds a Service from the environment.
func NewServiceFromEnv(opts ...api.ConfigOption) (*Service, error) {
	api.LoadEnv()
	client, err := api.NewClient(api.ConfigFromEnv(opts...))
	if err != nil {
		return nil, err
	}
	return NewService(client), nil
}

func (s *Service) workspace() string {
	return s.client.Workspace()
}

// ImportPipeline renders, validates, and publishes a query pipeline.
// With Overwrite set, an existing pipeline of the same name is replaced;
// a missing one is created instead.
func (s *Service) ImportPipeline(ctx context.Context, def Definition, config PipelineConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}
	rendered, err := renderPipelineYAML(def, config)
	if err != nil {
		return err
	}

	if err := s.validate(ctx, config.Name, "query_yaml", rendered, config.Overwrite, config.StrictValidation); err != nil {
		return err
	}

	if config.Overwrite {
		resp, err := s.client.Put(ctx, s.workspace(), "pipelines/"+config.Name+"/yaml",
			api.WithJSON(map[string]string{"query_yaml": rendered}))
		if err != nil {
			return err
		}
		if resp.Success() {
			s.logger.Info("pipeline overwritten", "pipeline_name", config.Name)
			return nil
		}
		if resp.StatusCode != http.StatusNotFound {
			return fmt.Errorf("%w: overwriting pipeline %s: status %d: %s",
				ErrImportFailed, config.Name, resp.StatusCode, resp.Text())
		}
		s.logger.Debug("pipeline does not exist yet, creating it", "pipeline_name", config.Name)
	}

	resp, err := s.client.Post(ctx, s.workspace(), "pipelines",
		api.WithJSON(map[string]string{"name": config.Name, "query_yaml": rendered}))
	if err != nil {
		return err
	}
	if !resp.Success() {
		return fmt.Errorf("%w: creating pipeline %s: status %d: %s",
			ErrImportFailed, config.Name, resp.StatusCode, resp.Text())
	}
	s.logger.Info("pipeline created", "pipeline_name", config.Name)
	return nil
}

// ImportIndex renders, validates, and publishes an index. With Overwrite
// set, an existing index of the same name is updated in place; a missing
// one is created instead.
func (s *Service) ImportIndex(ctx context.Context, def Definition, config IndexConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}
	rendered, err := renderIndexYAML(def, config)
	if err != nil {
		return err
	}

	if err := s.validate(ctx, config.Name, "indexing_yaml", rendered, config.Overwrite, config.StrictValidation); err != nil {
		return err
	}

	if config.Overwrite {
		resp, err := s.client.Patch(ctx, s.workspace(), "indexes/"+config.Name,
			api.WithJSON(map[string]string{"config_yaml": rendered}))
		if err != nil {
			return err
		}
		if resp.Success() {
			s.logger.Info("index overwritten", "index_name", config.Name)
			return nil
		}
		if resp.StatusCode != http.StatusNotFound {
			return fmt.Errorf("%w: overwriting index %s: status %d: %s",
				ErrImportFailed, config.Name, resp.StatusCode, resp.Text())
		}
		s.logger.Debug("index does not exist yet, creating it", "index_name", config.Name)
	}

	resp, err := s.client.Post(ctx, s.workspace(), "indexes",
		api.WithJSON(map[string]string{"name": config.Name, "config_yaml": rendered}))
	if err != nil {
		return err
	}
	if !resp.Success() {
		return fmt.Errorf("%w: creating index %s: status %d: %s",
			ErrImportFailed, config.Name, resp.StatusCode, resp.Text())
	}
	s.logger.Info("index created", "index_name", config.Name)
	return nil
}

// validate posts the rendered YAML to the validation endpoint. The name
// is omitted when overwriting, since the platform would flag it as a
// duplicate of the pipeline being replaced. Findings fail the import
// under strict validation and are logged otherwise.
func (s *Service) validate(ctx context.Context, name, yamlField, rendered string, overwrite, strict bool) error {
	payload := map[string]string{yamlField: rendered}
	if !overwrite {
		payload["name"] = name
	}

	resp, err := s.client.Post(ctx, s.workspace(), "pipeline_validations", api.WithJSON(payload))
	if err != nil {
		return err
	}
	if resp.Success() {
		return nil
	}

	var body struct {
		Details []ValidationDetail `json:"details"`
	}
	if err := resp.JSON(&body); err != nil {
		s.logger.Debug("could not decode validation response", "error", err)
	}
	validationErr := &ValidationFailedError{StatusCode: resp.StatusCode, Details: body.Details}

	if strict {
		return validationErr
	}
	s.logger.Warn("validation reported problems, importing anyway", "name", name, "error", validationErr)
	return nil
}
