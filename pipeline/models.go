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
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Definition is the narrow contract a pipeline object must satisfy to be
// published. Externally built pipeline objects qualify through a thin
// adapter; there is no dependency on any pipeline-building library.
type Definition interface {
	// ToYAML renders the pipeline to the platform's YAML format.
	ToYAML() (string, error)

	// AddComponent adds a named component to the pipeline.
	AddComponent(name string, component any) error
}

// StaticDefinition holds a YAML pipeline document that components can
// still be added to. The zero value is an empty pipeline.
type StaticDefinition struct {
	doc map[string]any
}

// NewStaticDefinition parses an existing YAML document into a definition.
func NewStaticDefinition(document string) (*StaticDefinition, error) {
	var doc map[string]any
	if err := yaml.Unmarshal([]byte(document), &doc); err != nil {
		return nil, fmt.Errorf("parsing pipeline document: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return &StaticDefinition{doc: doc}, nil
}

// ToYAML renders the document.
func (d *StaticDefinition) ToYAML() (string, error) {
	if d.doc == nil {
		d.doc = map[string]any{}
	}
	rendered, err := yaml.Marshal(d.doc)
	if err != nil {
		return "", err
	}
	return string(rendered), nil
}

// AddComponent adds a component under the document's components section.
// A component of the same name is replaced.
func (d *StaticDefinition) AddComponent(name string, component any) error {
	if name == "" {
		return errors.New("component name must not be empty")
	}
	if d.doc == nil {
		d.doc = map[string]any{}
	}
	components, ok := d.doc["components"].(map[string]any)
	if !ok {
		components = map[string]any{}
		d.doc["components"] = components
	}
	components[name] = component
	return nil
}

// PipelineInputs maps workspace-level query inputs onto component
// sockets, for example "retriever.query".
type PipelineInputs struct {
	Query   []string `yaml:"query"`
	Filters []string `yaml:"filters,omitempty"`
}

// PipelineOutputs maps component sockets onto the workspace-level
// outputs. At least one of Documents and Answers must be set.
type PipelineOutputs struct {
	Documents string `yaml:"documents,omitempty"`
	Answers   string `yaml:"answers,omitempty"`
}

// IndexInputs maps the workspace file input onto component sockets, for
// example "file_type_router.sources".
type IndexInputs struct {
	Files []string `yaml:"files"`
}

// PipelineConfig describes how a query pipeline is published.
type PipelineConfig struct {
	Name      string
	Inputs    PipelineInputs
	Outputs   PipelineOutputs
	Overwrite bool

	// StrictValidation turns remote validation findings into errors.
	// When false they are logged as warnings and the import proceeds.
	StrictValidation bool
}

// Validate checks the config before anything is rendered or sent.
func (c PipelineConfig) Validate() error {
	if c.Name == "" {
		return errors.New("pipeline name must not be empty")
	}
	if len(c.Inputs.Query) == 0 {
		return errors.New("pipeline inputs must map the query input to at least one component")
	}
	if c.Outputs.Documents == "" && c.Outputs.Answers == "" {
		return errors.New("pipeline outputs must define documents or answers")
	}
	return nil
}

// IndexConfig describes how an index is published.
type IndexConfig struct {
	Name      string
	Inputs    IndexInputs
	Overwrite bool

	// StrictValidation turns remote validation findings into errors.
	StrictValidation bool
}

// Validate checks the config before anything is rendered or sent.
func (c IndexConfig) Validate() error {
	if c.Name == "" {
		return errors.New("index name must not be empty")
	}
	if len(c.Inputs.Files) == 0 {
		return errors.New("index inputs must map the files input to at least one component")
	}
	return nil
}

// renderYAML parses the definition and splices the workspace-level
// inputs and outputs sections into the document.
func renderYAML(def Definition, inputs, outputs any) (string, error) {
	raw, err := def.ToYAML()
	if err != nil {
		return "", err
	}

	var doc map[string]any
	if err := yaml.Unmarshal([]byte(raw), &doc); err != nil {
		return "", err
	}
	if doc == nil {
		doc = map[string]any{}
	}
	if inputs != nil {
		doc["inputs"] = inputs
	}
	if outputs != nil {
		doc["outputs"] = outputs
	}

	rendered, err := yaml.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(rendered), nil
}

func renderPipelineYAML(def Definition, config PipelineConfig) (string, error) {
	return renderYAML(def, config.Inputs, config.Outputs)
}

func renderIndexYAML(def Definition, config IndexConfig) (string, error) {
	return renderYAML(def, config.Inputs, nil)
}
