package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/deepset-ai/deepset-cloud-sdk-go/api"
)

const testDocument = `
components:
  retriever:
    type: haystack.components.retrievers.InMemoryBM25Retriever
`

func testDefinition(t *testing.T) Definition {
	t.Helper()
	def, err := NewStaticDefinition(testDocument)
	require.NoError(t, err)
	return def
}

func pipelineConfig() PipelineConfig {
	return PipelineConfig{
		Name:             "my-pipeline",
		Inputs:           PipelineInputs{Query: []string{"retriever.query"}},
		Outputs:          PipelineOutputs{Documents: "retriever.documents"},
		StrictValidation: true,
	}
}

func indexConfig() IndexConfig {
	return IndexConfig{
		Name:             "my-index",
		Inputs:           IndexInputs{Files: []string{"converter.sources"}},
		StrictValidation: true,
	}
}

type recordedRequest struct {
	method string
	path   string
	body   map[string]string
}

// newPipelineServer answers the validation endpoint with validationStatus
// and everything else with the per-path status from answers.
func newPipelineServer(t *testing.T, validationStatus int, answers map[string]int, requests *[]recordedRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		*requests = append(*requests, recordedRequest{method: r.Method, path: r.URL.Path, body: body})

		if r.URL.Path == "/workspaces/test-workspace/pipeline_validations" {
			w.WriteHeader(validationStatus)
			if validationStatus >= 400 {
				fmt.Fprint(w, `{"details": [{"code": "invalid_component", "message": "unknown type"}]}`)
			}
			return
		}
		status, ok := answers[r.Method+" "+r.URL.Path]
		if !ok {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			status = http.StatusNotFound
		}
		w.WriteHeader(status)
	}))
}

func newTestService(t *testing.T, server *httptest.Server) *Service {
	t.Helper()
	client, err := api.NewClient(api.Config{
		APIKey:    "test-api-key",
		APIURL:    server.URL,
		Workspace: "test-workspace",
	})
	require.NoError(t, err)
	return NewService(client)
}

func TestImportPipeline_Create(t *testing.T) {
	var requests []recordedRequest
	server := newPipelineServer(t, http.StatusOK, map[string]int{
		"POST /workspaces/test-workspace/pipelines": http.StatusCreated,
	}, &requests)
	defer server.Close()

	svc := newTestService(t, server)
	require.NoError(t, svc.ImportPipeline(context.Background(), testDefinition(t), pipelineConfig()))

	require.Len(t, requests, 2)
	validation, create := requests[0], requests[1]

	assert.Equal(t, "/workspaces/test-workspace/pipeline_validations", validation.path)
	assert.Equal(t, "my-pipeline", validation.body["name"], "a fresh import validates under its final name")
	assert.NotEmpty(t, validation.body["query_yaml"])

	assert.Equal(t, http.MethodPost, create.method)
	assert.Equal(t, "my-pipeline", create.body["name"])

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(create.body["query_yaml"]), &doc))
	assert.Contains(t, doc, "components")
	assert.Contains(t, doc, "inputs")
	assert.Contains(t, doc, "outputs")
}

func TestImportPipeline_Overwrite(t *testing.T) {
	var requests []recordedRequest
	server := newPipelineServer(t, http.StatusOK, map[string]int{
		"PUT /workspaces/test-workspace/pipelines/my-pipeline/yaml": http.StatusOK,
	}, &requests)
	defer server.Close()

	config := pipelineConfig()
	config.Overwrite = true

	svc := newTestService(t, server)
	require.NoError(t, svc.ImportPipeline(context.Background(), testDefinition(t), config))

	require.Len(t, requests, 2)
	validation, overwrite := requests[0], requests[1]

	_, hasName := validation.body["name"]
	assert.False(t, hasName, "overwrite validation must omit the name to avoid a duplicate check against itself")

	assert.Equal(t, http.MethodPut, overwrite.method)
	assert.Equal(t, "/workspaces/test-workspace/pipelines/my-pipeline/yaml", overwrite.path)
	assert.NotEmpty(t, overwrite.body["query_yaml"])
}

func TestImportPipeline_OverwriteFallsBackToCreate(t *testing.T) {
	var requests []recordedRequest
	server := newPipelineServer(t, http.StatusOK, map[string]int{
		"PUT /workspaces/test-workspace/pipelines/my-pipeline/yaml": http.StatusNotFound,
		"POST /workspaces/test-workspace/pipelines":                 http.StatusCreated,
	}, &requests)
	defer server.Close()

	config := pipelineConfig()
	config.Overwrite = true

	svc := newTestService(t, server)
	require.NoError(t, svc.ImportPipeline(context.Background(), testDefinition(t), config))

	require.Len(t, requests, 3)
	assert.Equal(t, http.MethodPut, requests[1].method)
	assert.Equal(t, http.MethodPost, requests[2].method, "a missing pipeline is created instead")
}

func TestImportPipeline_StrictValidationFails(t *testing.T) {
	var requests []recordedRequest
	server := newPipelineServer(t, http.StatusUnprocessableEntity, nil, &requests)
	defer server.Close()

	svc := newTestService(t, server)
	err := svc.ImportPipeline(context.Background(), testDefinition(t), pipelineConfig())

	var validationErr *ValidationFailedError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, http.StatusUnprocessableEntity, validationErr.StatusCode)
	require.Len(t, validationErr.Details, 1)
	assert.Equal(t, "invalid_component", validationErr.Details[0].Code)
	assert.Len(t, requests, 1, "a failed validation must stop the import")
}

func TestImportPipeline_LenientValidationProceeds(t *testing.T) {
	var requests []recordedRequest
	server := newPipelineServer(t, http.StatusUnprocessableEntity, map[string]int{
		"POST /workspaces/test-workspace/pipelines": http.StatusCreated,
	}, &requests)
	defer server.Close()

	config := pipelineConfig()
	config.StrictValidation = false

	svc := newTestService(t, server)
	require.NoError(t, svc.ImportPipeline(context.Background(), testDefinition(t), config))
	assert.Len(t, requests, 2, "findings are logged, the import continues")
}

func TestImportIndex_CreateAndOverwrite(t *testing.T) {
	t.Run("create", func(t *testing.T) {
		var requests []recordedRequest
		server := newPipelineServer(t, http.StatusOK, map[string]int{
			"POST /workspaces/test-workspace/indexes": http.StatusCreated,
		}, &requests)
		defer server.Close()

		svc := newTestService(t, server)
		require.NoError(t, svc.ImportIndex(context.Background(), testDefinition(t), indexConfig()))

		require.Len(t, requests, 2)
		assert.NotEmpty(t, requests[0].body["indexing_yaml"], "indexes validate under the indexing field")
		assert.Equal(t, "my-index", requests[1].body["name"])
		assert.NotEmpty(t, requests[1].body["config_yaml"])
	})

	t.Run("overwrite falls back on 404", func(t *testing.T) {
		var requests []recordedRequest
		server := newPipelineServer(t, http.StatusOK, map[string]int{
			"PATCH /workspaces/test-workspace/indexes/my-index": http.StatusNotFound,
			"POST /workspaces/test-workspace/indexes":           http.StatusCreated,
		}, &requests)
		defer server.Close()

		config := indexConfig()
		config.Overwrite = true

		svc := newTestService(t, server)
		require.NoError(t, svc.ImportIndex(context.Background(), testDefinition(t), config))

		require.Len(t, requests, 3)
		assert.Equal(t, http.MethodPatch, requests[1].method)
		assert.Equal(t, http.MethodPost, requests[2].method)
	})
}

func TestConfigValidate(t *testing.T) {
	t.Run("pipeline missing query input", func(t *testing.T) {
		config := pipelineConfig()
		config.Inputs.Query = nil
		assert.Error(t, config.Validate())
	})

	t.Run("pipeline missing outputs", func(t *testing.T) {
		config := pipelineConfig()
		config.Outputs = PipelineOutputs{}
		assert.Error(t, config.Validate())
	})

	t.Run("index missing files input", func(t *testing.T) {
		config := indexConfig()
		config.Inputs.Files = nil
		assert.Error(t, config.Validate())
	})

	t.Run("empty names", func(t *testing.T) {
		assert.Error(t, PipelineConfig{}.Validate())
		assert.Error(t, IndexConfig{}.Validate())
	})
}

func TestStaticDefinition_AddComponent(t *testing.T) {
	def, err := NewStaticDefinition(testDocument)
	require.NoError(t, err)

	require.NoError(t, def.AddComponent("ranker", map[string]any{
		"type": "haystack.components.rankers.TransformersSimilarityRanker",
	}))

	rendered, err := def.ToYAML()
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(rendered), &doc))
	components := doc["components"].(map[string]any)
	assert.Contains(t, components, "retriever")
	assert.Contains(t, components, "ranker")
}

func TestRenderYAML_InjectsInputsAndOutputs(t *testing.T) {
	config := pipelineConfig()
	config.Inputs.Filters = []string{"retriever.filters"}

	rendered, err := renderPipelineYAML(testDefinition(t), config)
	require.NoError(t, err)

	var doc struct {
		Inputs  PipelineInputs  `yaml:"inputs"`
		Outputs PipelineOutputs `yaml:"outputs"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(rendered), &doc))
	assert.Equal(t, config.Inputs, doc.Inputs)
	assert.Equal(t, config.Outputs, doc.Outputs)
}
