package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"

	survey "github.com/AlecAivazis/survey/v2"
	"github.com/mitchellh/cli"
	"github.com/spf13/cobra"

	"github.com/lucasilverentand/canaveral/internal/config"
	"github.com/lucasilverentand/canaveral/internal/hooks"
)

// initCmd scaffolds a new workspace's canaveral.json pipeline and
// .canaveral/config.json, interactively, the way `npx turbo init`-style
// wizards walk a user through their first pipeline file.
func initCmd(h *Helper, termUI cli.Ui) *cobra.Command {
	cmd := &cobra.Command{
		Use:                   "init",
		Short:                 "Scaffold a canaveral.json pipeline and repo config interactively.",
		SilenceUsage:          true,
		SilenceErrors:         true,
		DisableFlagsInUseLine: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return executeInit(h, termUI)
		},
	}
	return cmd
}

type initAnswers struct {
	VersioningMode   string   `survey:"versioningMode"`
	Tasks            []string `survey:"tasks"`
	AddHooks         bool     `survey:"addHooks"`
	DisableTelemetry bool     `survey:"disableTelemetry"`
}

func executeInit(h *Helper, termUI cli.Ui) error {
	logger := h.Logger.Named("init")
	root, err := h.ResolveRoot(".")
	if err != nil {
		logFatal(logger, termUI, err)
		return err
	}

	answers := initAnswers{}
	qs := []*survey.Question{
		{
			Name: "versioningMode",
			Prompt: &survey.Select{
				Message: "Versioning mode:",
				Options: []string{"independent", "fixed", "grouped"},
				Default: "independent",
			},
		},
		{
			Name: "tasks",
			Prompt: &survey.MultiSelect{
				Message: "Tasks to scaffold into canaveral.json:",
				Options: []string{"build", "test", "lint"},
				Default: []string{"build", "test"},
			},
		},
		{
			Name:   "addHooks",
			Prompt: &survey.Confirm{Message: "Scaffold an empty hooks.json?", Default: false},
		},
		{
			Name:   "disableTelemetry",
			Prompt: &survey.Confirm{Message: "Disable anonymous telemetry?", Default: false},
		},
	}
	if err := survey.Ask(qs, &answers); err != nil {
		logFatal(logger, termUI, err)
		return err
	}

	if err := writeRepoConfig(root, answers.VersioningMode); err != nil {
		logFatal(logger, termUI, err)
		return err
	}
	termUI.Output("wrote " + filepath.Join(".canaveral", "config.json"))

	if err := writePipelineFile(root, answers.Tasks); err != nil {
		logFatal(logger, termUI, err)
		return err
	}
	termUI.Output("wrote " + pipelineFileName)

	if answers.AddHooks {
		if err := writeHooksFile(root); err != nil {
			logFatal(logger, termUI, err)
			return err
		}
		termUI.Output("wrote " + hooksFileName)
	}

	if answers.DisableTelemetry {
		uc, err := config.ReadUserConfigFile(h.UserConfigPath)
		if err != nil {
			logFatal(logger, termUI, err)
			return err
		}
		if err := uc.SetTelemetryDisabled(true); err != nil {
			logFatal(logger, termUI, err)
			return err
		}
		termUI.Output("disabled telemetry in " + h.UserConfigPath)
	}

	return nil
}

func writeRepoConfig(root, versioningMode string) error {
	path := filepath.Join(root, ".canaveral", "config.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	doc := map[string]interface{}{
		"cacheDir":       ".canaveral/cache",
		"concurrency":    0,
		"versioningMode": versioningMode,
		"groups":         map[string][]string{},
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func writePipelineFile(root string, tasks []string) error {
	path := filepath.Join(root, pipelineFileName)
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	pipeline := make(map[string]rawTaskDefinition, len(tasks))
	for _, t := range tasks {
		def := rawTaskDefinition{DependsOnPackages: true}
		switch t {
		case "build":
			def.Command = "build"
			def.Outputs = []string{"dist/**"}
		case "test":
			def.Command = "test"
			def.DependsOn = []string{"build"}
		case "lint":
			def.Command = "lint"
			def.DependsOnPackages = false
		default:
			def.Command = t
		}
		pipeline[t] = def
	}

	doc := map[string]interface{}{"pipeline": pipeline}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func writeHooksFile(root string) error {
	path := filepath.Join(root, hooksFileName)
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	cfg := hooks.Config{Hooks: map[string][]hooks.HookConfig{}}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
