//go:build integration

package steps

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cucumber/godog"

	"m4a-extractor/cmd"
	"m4a-extractor/infrastructure/config"
)

type configContext struct {
	tempDir    string
	configPath string
	cfg        *config.Config
	loadErr    error
	cmdErr     error
	output     *bytes.Buffer
}

// SharedConfigContext is reset before each scenario via Before hook
var SharedConfigContext = &configContext{}

func InitializeConfigScenario(ctx *godog.ScenarioContext) {
	ctx.Before(func(c context.Context, sc *godog.Scenario) (context.Context, error) {
		tempDir, err := os.MkdirTemp("", "config-test-*")
		if err != nil {
			return c, err
		}
		SharedConfigContext = &configContext{
			tempDir:    tempDir,
			configPath: filepath.Join(tempDir, "config.yaml"),
			output:     &bytes.Buffer{},
		}
		return c, nil
	})

	ctx.After(func(c context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		if SharedConfigContext.tempDir != "" {
			os.RemoveAll(SharedConfigContext.tempDir)
		}
		SharedConfigContext = &configContext{}
		return c, nil
	})

	ctx.Step(`^a config file with:$`, func(doc *godog.DocString) error { return SharedConfigContext.aConfigFileWith(doc) })
	ctx.Step(`^I load the configuration$`, func() error { return SharedConfigContext.iLoadTheConfiguration() })
	ctx.Step(`^I attempt to load the configuration$`, func() error { return SharedConfigContext.iAttemptToLoadTheConfiguration() })
	ctx.Step(`^the output directory should be "([^"]*)"$`, func(v string) error { return SharedConfigContext.theOutputDirectoryShouldBe(v) })
	ctx.Step(`^the output format should be "([^"]*)"$`, func(v string) error { return SharedConfigContext.theOutputFormatShouldBe(v) })
	ctx.Step(`^the config value "([^"]*)" should be "([^"]*)"$`, func(k, v string) error { return SharedConfigContext.theConfigValueShouldBe(k, v) })
	ctx.Step(`^I should receive a configuration error$`, func() error { return SharedConfigContext.iShouldReceiveAConfigurationError() })
	ctx.Step(`^I set config "([^"]*)" to "([^"]*)"$`, func(k, v string) error { return SharedConfigContext.iSetConfigTo(k, v) })
	ctx.Step(`^I reset config "([^"]*)"$`, func(k string) error { return SharedConfigContext.iResetConfig(k) })
	ctx.Step(`^I list the config$`, func() error { return SharedConfigContext.iListTheConfig() })
	ctx.Step(`^the command should succeed$`, func() error { return SharedConfigContext.theCommandShouldSucceed() })
	ctx.Step(`^the command should fail with "([^"]*)"$`, func(v string) error { return SharedConfigContext.theCommandShouldFailWith(v) })
	ctx.Step(`^the saved config value "([^"]*)" should be "([^"]*)"$`, func(k, v string) error { return SharedConfigContext.theSavedConfigValueShouldBe(k, v) })
	ctx.Step(`^the listing output should contain "([^"]*)"$`, func(v string) error { return SharedConfigContext.theListingOutputShouldContain(v) })
}

func (c *configContext) aConfigFileWith(doc *godog.DocString) error {
	return os.WriteFile(c.configPath, []byte(doc.Content), 0644)
}

func (c *configContext) iLoadTheConfiguration() error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return fmt.Errorf("unexpected error loading config: %w", err)
	}
	c.cfg = cfg
	return nil
}

func (c *configContext) iAttemptToLoadTheConfiguration() error {
	c.cfg, c.loadErr = config.Load(c.configPath)
	return nil
}

func (c *configContext) theOutputDirectoryShouldBe(expected string) error {
	if c.cfg == nil {
		return fmt.Errorf("config was not loaded")
	}
	if c.cfg.Paths.OutputDirectory != expected {
		return fmt.Errorf("expected output directory %q, got %q", expected, c.cfg.Paths.OutputDirectory)
	}
	return nil
}

func (c *configContext) theOutputFormatShouldBe(expected string) error {
	if c.cfg == nil {
		return fmt.Errorf("config was not loaded")
	}
	if got := c.cfg.OutputFormat().String(); got != expected {
		return fmt.Errorf("expected output format %q, got %q", expected, got)
	}
	return nil
}

func (c *configContext) theConfigValueShouldBe(key, expected string) error {
	if c.cfg == nil {
		return fmt.Errorf("config was not loaded")
	}
	got, err := config.NewConfigManager(c.cfg, c.configPath).Get(key)
	if err != nil {
		return err
	}
	if got != expected {
		return fmt.Errorf("expected %s = %q, got %q", key, expected, got)
	}
	return nil
}

func (c *configContext) iShouldReceiveAConfigurationError() error {
	if c.loadErr == nil {
		return fmt.Errorf("expected an error but got none")
	}
	return nil
}

// loaded returns the config the commands operate on
func (c *configContext) loaded() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}
	c.cfg = cfg
	return cfg, nil
}

func (c *configContext) iSetConfigTo(key, value string) error {
	cfg, err := c.loaded()
	if err != nil {
		return err
	}
	c.cmdErr = cmd.RunConfigSetWithDependencies(cfg, c.configPath, key, value, c.output)
	return nil
}

func (c *configContext) iResetConfig(key string) error {
	cfg, err := c.loaded()
	if err != nil {
		return err
	}
	c.cmdErr = cmd.RunConfigResetWithDependencies(cfg, c.configPath, key, c.output)
	return nil
}

func (c *configContext) iListTheConfig() error {
	cfg, err := c.loaded()
	if err != nil {
		return err
	}
	c.cmdErr = cmd.RunConfigListWithDependencies(cfg, c.configPath, c.output)
	return nil
}

func (c *configContext) theCommandShouldSucceed() error {
	if c.cmdErr != nil {
		return fmt.Errorf("expected success, got: %v", c.cmdErr)
	}
	return nil
}

func (c *configContext) theCommandShouldFailWith(text string) error {
	if c.cmdErr == nil {
		return fmt.Errorf("expected an error containing %q but got none", text)
	}
	if !strings.Contains(c.cmdErr.Error(), text) {
		return fmt.Errorf("expected error containing %q, got: %v", text, c.cmdErr)
	}
	return nil
}

func (c *configContext) theSavedConfigValueShouldBe(key, expected string) error {
	saved, err := config.Load(c.configPath)
	if err != nil {
		return fmt.Errorf("failed to reload config: %w", err)
	}
	got, err := config.NewConfigManager(saved, c.configPath).Get(key)
	if err != nil {
		return err
	}
	if got != expected {
		return fmt.Errorf("expected saved %s = %q, got %q", key, expected, got)
	}
	return nil
}

func (c *configContext) theListingOutputShouldContain(text string) error {
	if !strings.Contains(c.output.String(), text) {
		return fmt.Errorf("expected listing to contain %q, got:\n%s", text, c.output.String())
	}
	return nil
}
