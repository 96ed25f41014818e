package main

import (
	"cmp"
	"fmt"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"vidpipe/internal/apiclient"
	"vidpipe/internal/config"
)

type commandContext struct {
	configFlag *string
	apiFlag    *string
	envFlag    *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configSeen bool
	configErr  error
}

func newCommandContext(configFlag, apiFlag, envFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		apiFlag:    apiFlag,
		envFlag:    envFlag,
	}
}

// flagValue reads a persistent flag bound by the root command.
func flagValue(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}

// loadEnvFile applies --env-file before config resolution so the file can
// supply api keys referenced by api_key_env.
func (c *commandContext) loadEnvFile() error {
	path := flagValue(c.envFlag)
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// ensureConfig loads and prepares the configuration once per process.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, resolved, exists, err := config.Load(flagValue(c.configFlag))
		if err == nil {
			err = cfg.EnsureDirectories()
		}
		if err != nil {
			c.configErr = err
			return
		}
		c.config, c.configPath, c.configSeen = cfg, resolved, exists
	})
	return c.config, c.configErr
}

// client targets --api when given, otherwise server.bind.
func (c *commandContext) client() (*apiclient.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return apiclient.New(cmp.Or(flagValue(c.apiFlag), cfg.Server.Bind), cfg.Server.Token)
}

// wrapAPIError turns connection failures into an actionable message.
func wrapAPIError(err error) error {
	if err == nil {
		return nil
	}
	if apiclient.IsAPIUnavailable(err) {
		return fmt.Errorf("connect to daemon: %w; start it with `vidpipe serve`", err)
	}
	return err
}

// shouldSkipConfig honours the skipConfigLoad annotation on cmd or any parent.
func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
