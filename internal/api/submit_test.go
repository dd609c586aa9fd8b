package api

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestSubmitCTGANFormFields(t *testing.T) {
	dataset := writeTempFile(t, "people.csv", "name,age\nalice,30\n")

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/runs/ctgan", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		assert.Equal(t, "name,age", r.FormValue("discrete_columns"))
		assert.Equal(t, "300", r.FormValue("no_of_epochs"))
		assert.Equal(t, "1000", r.FormValue("no_of_samples"))
		assert.Empty(t, r.FormValue("cpu_limit"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "people.csv", header.Filename)
		content, _ := io.ReadAll(file)
		assert.Contains(t, string(content), "alice")

		w.Write([]byte(`{"run_id":"new-run","workflow":"ctgan","status":{"phase":"Submitted"}}`))
	})

	run, err := client.SubmitCTGAN(context.Background(), CTGANSubmission{
		FilePath:        dataset,
		DiscreteColumns: "name,age",
	})

	require.NoError(t, err)
	assert.Equal(t, "new-run", run.RunID)
	assert.Equal(t, "Submitted", run.Status.Phase)
}

func TestSubmitLLMDefaultsAndLimits(t *testing.T) {
	dataset := writeTempFile(t, "docs.csv", "text\nhello\n")

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "spam,ham", r.FormValue("labels"))
		assert.Equal(t, "llama3", r.FormValue("model"))
		assert.Equal(t, "1", r.FormValue("parallelism"))
		assert.Equal(t, "2", r.FormValue("cpu_limit"))
		assert.Equal(t, "4Gi", r.FormValue("memory_limit"))
		w.Write([]byte(`{"run_id":"llm-run","workflow":"llm","status":{"phase":"Pending"}}`))
	})

	run, err := client.SubmitLLM(context.Background(), LLMSubmission{
		FilePath: dataset,
		Labels:   "spam,ham",
		Model:    "llama3",
		Limits:   ResourceLimits{CPU: "2", Memory: "4Gi"},
	})

	require.NoError(t, err)
	assert.Equal(t, "llm-run", run.RunID)
}

func TestSubmitCustomRequiresPythonFile(t *testing.T) {
	dataset := writeTempFile(t, "data.csv", "x\n1\n")
	script := writeTempFile(t, "transform.txt", "def process(df): return df\n")

	client := NewClient(Config{BaseURL: "http://localhost:0"})

	_, err := client.SubmitCustom(context.Background(), CustomSubmission{
		DataFilePath:   dataset,
		PythonFilePath: script,
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), ".py")
}

func TestSubmitCustomFormFields(t *testing.T) {
	dataset := writeTempFile(t, "data.csv", "x\n1\n")
	script := writeTempFile(t, "transform.py", "def process(df): return df\n")

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/runs/custom", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "process", r.FormValue("function_name"))
		assert.Equal(t, "pandas", r.FormValue("pip_packages"))

		_, dataHeader, err := r.FormFile("data_file")
		require.NoError(t, err)
		assert.Equal(t, "data.csv", dataHeader.Filename)

		_, pyHeader, err := r.FormFile("python_file")
		require.NoError(t, err)
		assert.Equal(t, "transform.py", pyHeader.Filename)

		w.Write([]byte(`{"run_id":"custom-run","workflow":"custom","status":{"phase":"Submitted"}}`))
	})

	run, err := client.SubmitCustom(context.Background(), CustomSubmission{
		DataFilePath:   dataset,
		PythonFilePath: script,
		PipPackages:    "pandas",
	})

	require.NoError(t, err)
	assert.Equal(t, "custom-run", run.RunID)
}

func TestSubmitSurfacesBackendError(t *testing.T) {
	dataset := writeTempFile(t, "data.csv", "x\n1\n")

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"detail":"Failed to submit CTGAN workflow"}`))
	})

	_, err := client.SubmitCTGAN(context.Background(), CTGANSubmission{FilePath: dataset})

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "Failed to submit CTGAN workflow", se.Message)
}
