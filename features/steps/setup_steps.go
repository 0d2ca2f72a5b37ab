//go:build integration

package steps

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cucumber/godog"

	"m4a-extractor/cmd"
	"m4a-extractor/infrastructure/config"
)

type setupContext struct {
	tempDir         string
	configPath      string
	setupCancelled  bool
	originalContent string
	err             error
}

var SharedSetupContext = &setupContext{}

// MockPrompter implements cmd.Prompter for testing
type MockPrompter struct {
	inputResponses   []string
	confirmResponses []bool
	selectResponses  []string
	inputIndex       int
	confirmIndex     int
	selectIndex      int
}

func NewMockPrompter(inputs []string, confirms []bool, selects []string) *MockPrompter {
	return &MockPrompter{
		inputResponses:   inputs,
		confirmResponses: confirms,
		selectResponses:  selects,
	}
}

func (m *MockPrompter) Input(message string, defaultValue string) (string, error) {
	if m.inputIndex >= len(m.inputResponses) {
		return "", fmt.Errorf("no more input responses available for message: %s", message)
	}
	response := m.inputResponses[m.inputIndex]
	m.inputIndex++
	return response, nil
}

func (m *MockPrompter) Confirm(message string, defaultValue bool) (bool, error) {
	if m.confirmIndex >= len(m.confirmResponses) {
		return defaultValue, nil
	}
	response := m.confirmResponses[m.confirmIndex]
	m.confirmIndex++
	return response, nil
}

func (m *MockPrompter) Select(message string, options []string, defaultValue string) (string, error) {
	if m.selectIndex >= len(m.selectResponses) {
		return defaultValue, nil
	}
	response := m.selectResponses[m.selectIndex]
	m.selectIndex++
	return response, nil
}

func InitializeSetupScenario(ctx *godog.ScenarioContext) {
	testCtx := SharedSetupContext

	ctx.Before(func(c context.Context, sc *godog.Scenario) (context.Context, error) {
		// Create temp directory for each scenario
		tempDir, err := os.MkdirTemp("", "setup-test-*")
		if err != nil {
			return c, err
		}
		testCtx.tempDir = tempDir
		testCtx.configPath = filepath.Join(tempDir, "config", "config.yaml")
		testCtx.setupCancelled = false
		testCtx.originalContent = ""
		testCtx.err = nil
		return c, nil
	})

	ctx.After(func(c context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		// Cleanup temp directory
		if testCtx.tempDir != "" {
			os.RemoveAll(testCtx.tempDir)
		}
		return c, nil
	})

	ctx.Step(`^no config file exists for setup$`, testCtx.noConfigFileExistsForSetup)
	ctx.Step(`^a config file already exists for setup$`, testCtx.aConfigFileAlreadyExistsForSetup)
	ctx.Step(`^I run the setup command with answers:$`, testCtx.iRunTheSetupCommandWithAnswers)
	ctx.Step(`^I attempt the setup command with answers:$`, testCtx.iAttemptTheSetupCommandWithAnswers)
	ctx.Step(`^I run the setup command with confirmation "([^"]*)"$`, testCtx.iRunTheSetupCommandWithConfirmation)
	ctx.Step(`^a config file should exist$`, testCtx.aConfigFileShouldExist)
	ctx.Step(`^the config should have source_directory "([^"]*)"$`, testCtx.theConfigShouldHaveSourceDirectory)
	ctx.Step(`^the config should have output_directory "([^"]*)"$`, testCtx.theConfigShouldHaveOutputDirectory)
	ctx.Step(`^the config should have output format "([^"]*)"$`, testCtx.theConfigShouldHaveOutputFormat)
	ctx.Step(`^the config should have audio_folder_id "([^"]*)"$`, testCtx.theConfigShouldHaveAudioFolderID)
	ctx.Step(`^the config should have no audio folder$`, testCtx.theConfigShouldHaveNoAudioFolder)
	ctx.Step(`^the config should share uploads$`, testCtx.theConfigShouldShareUploads)
	ctx.Step(`^the setup should fail with "([^"]*)"$`, testCtx.theSetupShouldFailWith)
	ctx.Step(`^the setup should be cancelled$`, testCtx.theSetupShouldBeCancelled)
	ctx.Step(`^the existing config should be unchanged$`, testCtx.theExistingConfigShouldBeUnchanged)
}

func (s *setupContext) noConfigFileExistsForSetup() error {
	// Just ensure the config path directory exists but no config file
	return os.MkdirAll(filepath.Dir(s.configPath), 0755)
}

func (s *setupContext) aConfigFileAlreadyExistsForSetup() error {
	if err := os.MkdirAll(filepath.Dir(s.configPath), 0755); err != nil {
		return err
	}

	content := `paths:
  source_directory: "/original/source"
  output_directory: "/original/audio"
output:
  format: "m4a"
google:
  audio_folder_id: "original-folder-id"
`
	s.originalContent = content
	return os.WriteFile(s.configPath, []byte(content), 0644)
}

func (s *setupContext) runSetup(table *godog.Table) error {
	inputs, confirms, selects := parseAnswerTable(table)
	prompter := NewMockPrompter(inputs, confirms, selects)
	return cmd.RunSetupWithPrompter(prompter, s.configPath, io.Discard)
}

func (s *setupContext) iRunTheSetupCommandWithAnswers(table *godog.Table) error {
	s.err = s.runSetup(table)
	if s.err != nil {
		return fmt.Errorf("setup command failed: %w", s.err)
	}
	return nil
}

func (s *setupContext) iAttemptTheSetupCommandWithAnswers(table *godog.Table) error {
	s.err = s.runSetup(table)
	return nil
}

func (s *setupContext) iRunTheSetupCommandWithConfirmation(confirmation string) error {
	confirm := strings.ToLower(confirmation) == "y"
	prompter := NewMockPrompter(nil, []bool{confirm}, nil)

	s.err = cmd.RunSetupWithPrompter(prompter, s.configPath, io.Discard)
	if !confirm {
		s.setupCancelled = true
	}
	return nil
}

// confirmPrompts are the yes/no questions setup asks
var confirmPrompts = map[string]bool{
	"overwrite":       true,
	"upload to drive": true,
	"share":           true,
}

func parseAnswerTable(table *godog.Table) (inputs []string, confirms []bool, selects []string) {
	for i, row := range table.Rows {
		if i == 0 {
			continue // Skip header row
		}
		prompt := strings.ToLower(row.Cells[0].Value)
		value := row.Cells[1].Value

		switch {
		case prompt == "format":
			selects = append(selects, value)
		case confirmPrompts[prompt]:
			confirms = append(confirms, strings.ToLower(value) == "y")
		default:
			inputs = append(inputs, value)
		}
	}
	return inputs, confirms, selects
}

func (s *setupContext) load() (*config.Config, error) {
	cfg, err := config.Load(s.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func (s *setupContext) aConfigFileShouldExist() error {
	if _, err := os.Stat(s.configPath); os.IsNotExist(err) {
		return fmt.Errorf("config file does not exist at %s", s.configPath)
	}
	return nil
}

func (s *setupContext) theConfigShouldHaveSourceDirectory(expected string) error {
	cfg, err := s.load()
	if err != nil {
		return err
	}
	if cfg.Paths.SourceDirectory != expected {
		return fmt.Errorf("expected source_directory %q, got %q", expected, cfg.Paths.SourceDirectory)
	}
	return nil
}

func (s *setupContext) theConfigShouldHaveOutputDirectory(expected string) error {
	cfg, err := s.load()
	if err != nil {
		return err
	}
	if cfg.Paths.OutputDirectory != expected {
		return fmt.Errorf("expected output_directory %q, got %q", expected, cfg.Paths.OutputDirectory)
	}
	return nil
}

func (s *setupContext) theConfigShouldHaveOutputFormat(expected string) error {
	cfg, err := s.load()
	if err != nil {
		return err
	}
	if cfg.Output.Format != expected {
		return fmt.Errorf("expected output format %q, got %q", expected, cfg.Output.Format)
	}
	return nil
}

func (s *setupContext) theConfigShouldHaveAudioFolderID(expected string) error {
	cfg, err := s.load()
	if err != nil {
		return err
	}
	if cfg.Google.AudioFolderID != expected {
		return fmt.Errorf("expected audio_folder_id %q, got %q", expected, cfg.Google.AudioFolderID)
	}
	return nil
}

func (s *setupContext) theConfigShouldHaveNoAudioFolder() error {
	return s.theConfigShouldHaveAudioFolderID("")
}

func (s *setupContext) theConfigShouldShareUploads() error {
	cfg, err := s.load()
	if err != nil {
		return err
	}
	if !cfg.Google.Share {
		return fmt.Errorf("expected google.share to be true")
	}
	return nil
}

func (s *setupContext) theSetupShouldFailWith(text string) error {
	if s.err == nil {
		return fmt.Errorf("expected setup to fail with %q", text)
	}
	if !strings.Contains(s.err.Error(), text) {
		return fmt.Errorf("expected error containing %q, got: %v", text, s.err)
	}
	return nil
}

func (s *setupContext) theSetupShouldBeCancelled() error {
	if !s.setupCancelled {
		return fmt.Errorf("expected setup to be cancelled")
	}
	return nil
}

func (s *setupContext) theExistingConfigShouldBeUnchanged() error {
	content, err := os.ReadFile(s.configPath)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	if string(content) != s.originalContent {
		return fmt.Errorf("config content was changed")
	}
	return nil
}
