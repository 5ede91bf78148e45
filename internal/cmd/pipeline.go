package cmd

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/muhammadmuzzammil1998/jsonc"
	"github.com/pkg/errors"

	"github.com/lucasilverentand/canaveral/internal/errs"
	"github.com/lucasilverentand/canaveral/internal/hooks"
	"github.com/lucasilverentand/canaveral/internal/taskgraph"
)

const (
	pipelineFileName = "canaveral.json"
	hooksFileName    = "hooks.json"
)

// rawTaskDefinition is canaveral.json's on-disk task shape: parsed with
// github.com/muhammadmuzzammil1998/jsonc (JSON-with-comments) and then
// converted into a taskgraph.Definition.
type rawTaskDefinition struct {
	Command           string            `json:"command,omitempty"`
	DependsOn         []string          `json:"dependsOn,omitempty"`
	DependsOnPackages bool              `json:"dependsOnPackages,omitempty"`
	Inputs            []string          `json:"inputs,omitempty"`
	Outputs           []string          `json:"outputs,omitempty"`
	Env               map[string]string `json:"env,omitempty"`
}

// LoadPipeline reads <root>/canaveral.json and returns it as a
// taskgraph.Definition map keyed by task name, ready for taskgraph.Build.
// A missing file is not an error: it resolves to an empty pipeline (a
// workspace with no configured tasks).
func LoadPipeline(root string) (map[string]*taskgraph.Definition, error) {
	path := filepath.Join(root, pipelineFileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[string]*taskgraph.Definition{}, nil
	}
	if err != nil {
		return nil, &errs.ConfigError{Path: path, Cause: err}
	}

	var raw struct {
		Pipeline map[string]rawTaskDefinition `json:"pipeline"`
	}
	if err := jsonc.Unmarshal(data, &raw); err != nil {
		return nil, &errs.ConfigError{Path: path, Cause: err}
	}

	pipeline := make(map[string]*taskgraph.Definition, len(raw.Pipeline))
	for name, rt := range raw.Pipeline {
		pipeline[name] = &taskgraph.Definition{
			Name:              name,
			Command:           rt.Command,
			DependsOn:         rt.DependsOn,
			DependsOnPackages: rt.DependsOnPackages,
			Inputs:            rt.Inputs,
			Outputs:           rt.Outputs,
			Env:               rt.Env,
		}
	}
	return pipeline, nil
}

// LoadHooks reads <root>/hooks.json into a hooks.Runner rooted at root. A
// missing file resolves to an empty Runner.
func LoadHooks(root string) (*hooks.Runner, error) {
	path := filepath.Join(root, hooksFileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return hooks.NewRunner(root), nil
	}
	if err != nil {
		return nil, &errs.ConfigError{Path: path, Cause: err}
	}

	var cfg hooks.Config
	if err := jsonc.Unmarshal(data, &cfg); err != nil {
		return nil, &errs.ConfigError{Path: path, Cause: err}
	}
	runner, err := hooks.BuildRunner(cfg, root)
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", path)
	}
	return runner, nil
}

// TaskNames returns the sorted task names declared in pipeline.
func TaskNames(pipeline map[string]*taskgraph.Definition) []string {
	names := make([]string, 0, len(pipeline))
	for name := range pipeline {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// requireTasks validates that every name in tasks has a pipeline entry.
func requireTasks(pipeline map[string]*taskgraph.Definition, tasks []string) error {
	for _, t := range tasks {
		if _, ok := pipeline[t]; !ok {
			return &errs.NotFoundError{Kind: "task", Name: t}
		}
	}
	return nil
}
