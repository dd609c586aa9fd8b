package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ameen-91/exray/internal/models"
)

// ResourceLimits optionally caps the workflow's container resources.
type ResourceLimits struct {
	CPU    string
	Memory string
}

// CTGANSubmission describes a synthetic-data training job.
type CTGANSubmission struct {
	FilePath        string
	DiscreteColumns string
	Epochs          int // defaults to 300
	Samples         int // defaults to 1000
	Limits          ResourceLimits
}

// LLMSubmission describes a labelling job.
type LLMSubmission struct {
	FilePath    string
	Labels      string
	Model       string
	Parallelism int // defaults to 1
	Limits      ResourceLimits
}

// CustomSubmission describes a user-supplied Python function job.
type CustomSubmission struct {
	DataFilePath   string
	PythonFilePath string
	FunctionName   string // defaults to "process"
	PipPackages    string
	Limits         ResourceLimits
}

// SubmitCTGAN uploads a dataset and starts a CTGAN workflow.
func (c *Client) SubmitCTGAN(ctx context.Context, sub CTGANSubmission) (*models.Run, error) {
	if sub.Epochs <= 0 {
		sub.Epochs = 300
	}
	if sub.Samples <= 0 {
		sub.Samples = 1000
	}

	form := newForm()
	if err := form.file("file", sub.FilePath); err != nil {
		return nil, err
	}
	form.field("discrete_columns", sub.DiscreteColumns)
	form.field("no_of_epochs", strconv.Itoa(sub.Epochs))
	form.field("no_of_samples", strconv.Itoa(sub.Samples))
	form.limits(sub.Limits)

	return c.submit(ctx, "submit ctgan", "/runs/ctgan", form)
}

// SubmitLLM uploads a dataset and starts an LLM labelling workflow.
func (c *Client) SubmitLLM(ctx context.Context, sub LLMSubmission) (*models.Run, error) {
	if sub.Parallelism <= 0 {
		sub.Parallelism = 1
	}

	form := newForm()
	if err := form.file("file", sub.FilePath); err != nil {
		return nil, err
	}
	form.field("labels", sub.Labels)
	form.field("model", sub.Model)
	form.field("parallelism", strconv.Itoa(sub.Parallelism))
	form.limits(sub.Limits)

	return c.submit(ctx, "submit llm", "/runs/llm", form)
}

// SubmitCustom uploads a dataset plus a Python script and starts a
// custom workflow around the named function.
func (c *Client) SubmitCustom(ctx context.Context, sub CustomSubmission) (*models.Run, error) {
	if sub.FunctionName == "" {
		sub.FunctionName = "process"
	}
	if !strings.HasSuffix(sub.PythonFilePath, ".py") {
		return nil, fmt.Errorf("submit custom: %q is not a .py file", sub.PythonFilePath)
	}

	form := newForm()
	if err := form.file("data_file", sub.DataFilePath); err != nil {
		return nil, err
	}
	if err := form.file("python_file", sub.PythonFilePath); err != nil {
		return nil, err
	}
	form.field("function_name", sub.FunctionName)
	form.field("pip_packages", sub.PipPackages)
	form.limits(sub.Limits)

	return c.submit(ctx, "submit custom", "/runs/custom", form)
}

func (c *Client) submit(ctx context.Context, op, path string, form *multipartForm) (*models.Run, error) {
	contentType, body, err := form.close()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", contentType)

	payload, err := c.do(ctx, op, req, c.budget(slowTimeout))
	if err != nil {
		return nil, err
	}

	var run models.Run
	if err := json.Unmarshal(payload, &run); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", op, err)
	}
	return &run, nil
}

// multipartForm accumulates fields and file parts, remembering the
// first error so call sites stay flat.
type multipartForm struct {
	buf    bytes.Buffer
	writer *multipart.Writer
	err    error
}

func newForm() *multipartForm {
	f := &multipartForm{}
	f.writer = multipart.NewWriter(&f.buf)
	return f
}

func (f *multipartForm) field(name, value string) {
	if f.err != nil {
		return
	}
	f.err = f.writer.WriteField(name, value)
}

func (f *multipartForm) limits(l ResourceLimits) {
	if l.CPU != "" {
		f.field("cpu_limit", l.CPU)
	}
	if l.Memory != "" {
		f.field("memory_limit", l.Memory)
	}
}

func (f *multipartForm) file(name, path string) error {
	if f.err != nil {
		return f.err
	}
	src, err := os.Open(path)
	if err != nil {
		f.err = err
		return err
	}
	defer src.Close()

	part, err := f.writer.CreateFormFile(name, filepath.Base(path))
	if err != nil {
		f.err = err
		return err
	}
	if _, err := io.Copy(part, src); err != nil {
		f.err = err
		return err
	}
	return nil
}

func (f *multipartForm) close() (string, io.Reader, error) {
	if f.err != nil {
		return "", nil, f.err
	}
	if err := f.writer.Close(); err != nil {
		return "", nil, err
	}
	return f.writer.FormDataContentType(), &f.buf, nil
}
