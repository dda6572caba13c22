package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/agentweb/internal/workspace"
)

// WorkspaceTools returns the tools an agent gets to work inside dir. Every
// path is resolved relative to dir and may not leave it.
func WorkspaceTools(ws *workspace.Manager, dir string) []tool.InvokableTool {
	return []tool.InvokableTool{
		&writeFileTool{ws: ws, dir: dir},
		&readFileTool{ws: ws, dir: dir},
		&listFilesTool{ws: ws, dir: dir},
	}
}

type writeFileTool struct {
	ws  *workspace.Manager
	dir string
}

type writeFileInput struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

type writeFileOutput struct {
	Path         string `json:"path"`
	BytesWritten int    `json:"bytes_written"`
}

func (t *writeFileTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: "write_file",
		Desc: "Write content to a file in the workspace. Creates parent directories. Returns the relative path and bytes written.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"path":    {Type: schema.String, Desc: "Path relative to the workspace root", Required: true},
			"content": {Type: schema.String, Desc: "Content to write to the file", Required: true},
		}),
	}, nil
}

func (t *writeFileTool) InvokableRun(_ context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var input writeFileInput
	if err := json.Unmarshal([]byte(argumentsInJSON), &input); err != nil {
		return "", fmt.Errorf("write_file: parse input: %w", err)
	}
	if input.Path == "" {
		return "", fmt.Errorf("write_file: path is required")
	}
	if _, err := t.ws.Write(t.dir, input.Path, []byte(input.Content)); err != nil {
		return "", fmt.Errorf("write_file: %w", err)
	}
	out, _ := json.Marshal(writeFileOutput{Path: input.Path, BytesWritten: len(input.Content)})
	return string(out), nil
}

type readFileTool struct {
	ws  *workspace.Manager
	dir string
}

type readFileInput struct {
	Path string `json:"path"`
}

func (t *readFileTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: "read_file",
		Desc: "Read a text file from the workspace.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"path": {Type: schema.String, Desc: "Path relative to the workspace root", Required: true},
		}),
	}, nil
}

func (t *readFileTool) InvokableRun(_ context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var input readFileInput
	if err := json.Unmarshal([]byte(argumentsInJSON), &input); err != nil {
		return "", fmt.Errorf("read_file: parse input: %w", err)
	}
	data, err := t.ws.Read(t.dir, input.Path)
	if err != nil {
		return "", fmt.Errorf("read_file: %w", err)
	}
	if workspace.IsBinary(data) {
		return "", fmt.Errorf("read_file: %s is binary", input.Path)
	}
	return string(data), nil
}

type listFilesTool struct {
	ws  *workspace.Manager
	dir string
}

type listFilesInput struct {
	Pattern string `json:"pattern"`
}

func (t *listFilesTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: "list_files",
		Desc: "List the files in the workspace, one relative path per line.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"pattern": {Type: schema.String, Desc: "Optional glob filter such as **/*.py"},
		}),
	}, nil
}

func (t *listFilesTool) InvokableRun(_ context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var input listFilesInput
	if strings.TrimSpace(argumentsInJSON) != "" {
		if err := json.Unmarshal([]byte(argumentsInJSON), &input); err != nil {
			return "", fmt.Errorf("list_files: parse input: %w", err)
		}
	}
	files, err := t.ws.List(t.dir, input.Pattern)
	if err != nil {
		return "", fmt.Errorf("list_files: %w", err)
	}
	if len(files) == 0 {
		return "(empty)", nil
	}
	var sb strings.Builder
	for _, f := range files {
		fmt.Fprintf(&sb, "%s (%d bytes)\n", f.Path, f.Size)
	}
	return sb.String(), nil
}
