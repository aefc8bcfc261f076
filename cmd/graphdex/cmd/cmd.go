package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/systemshift/graphdex/internal/logging"
	"github.com/systemshift/graphdex/internal/server/extension"
)

const (
	optionNameHostName           = "host-name"
	optionNameIndexSpec          = "index-spec"
	optionNameDiscovery          = "discovery"
	optionNameIncludeIDField     = "include-id-field"
	optionNameIncludeLabelsField = "include-labels-field"
	optionNameEnableAutoIndex    = "enable-auto-index"
	optionNameAsync              = "async"
	optionNameDispatchWorkers    = "dispatch-workers"
	optionNameDispatchQueue      = "dispatch-queue"
	optionNameMappingTypes       = "mapping-types"
	optionNameRequestTimeout     = "request-timeout"
	optionNameDataDir            = "data-dir"
	optionNameAPIAddr            = "api-addr"
	optionNameNeo4jURI           = "neo4j-uri"
	optionNameNeo4jUser          = "neo4j-user"
	optionNameNeo4jPassword      = "neo4j-password"
	optionNameVerbosity          = "verbosity"
)

func init() {
	cobra.EnableCommandSorting = false
}

type command struct {
	root    *cobra.Command
	config  *viper.Viper
	cfgFile string
	homeDir string
}

type option func(*command)

func newCommand(opts ...option) (c *command, err error) {
	c = &command{
		root: &cobra.Command{
			Use:           "graphdex",
			Short:         "keep search indexes in step with a property graph",
			SilenceErrors: true,
			SilenceUsage:  true,
			PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
				return c.initConfig()
			},
		},
	}

	for _, o := range opts {
		o(c)
	}

	// Find home directory.
	if err := c.setHomeDir(); err != nil {
		return nil, err
	}

	c.initGlobalFlags()
	c.initStartCmd()
	c.initIndexCmd()
	c.initSpecCmd()
	c.initVersionCmd()

	return c, nil
}

func (c *command) Execute() (err error) {
	return c.root.Execute()
}

// Execute parses command line arguments and runs appropriate functions.
func Execute() (err error) {
	c, err := newCommand()
	if err != nil {
		return err
	}
	return c.Execute()
}

func (c *command) initGlobalFlags() {
	globalFlags := c.root.PersistentFlags()
	globalFlags.StringVar(&c.cfgFile, "config", "", "config file (default is $HOME/.graphdex.yaml)")
}

func (c *command) initConfig() (err error) {
	config := viper.New()
	configName := ".graphdex"
	if c.cfgFile != "" {
		// Use config file from the flag.
		config.SetConfigFile(c.cfgFile)
	} else {
		// Search config in home directory with name ".graphdex" (without extension).
		config.AddConfigPath(c.homeDir)
		config.SetConfigName(configName)
	}

	// Environment
	config.SetEnvPrefix("graphdex")
	config.AutomaticEnv() // read in environment variables that match
	config.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// If a config file is found, read it in.
	if err := config.ReadInConfig(); err != nil {
		var e viper.ConfigFileNotFoundError
		if !errors.As(err, &e) {
			return err
		}
	}
	c.config = config
	return nil
}

func (c *command) setHomeDir() (err error) {
	if c.homeDir != "" {
		return
	}
	dir, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	c.homeDir = dir
	return nil
}

// setIndexFlags registers the options shared by every command that talks to
// the search cluster.
func (c *command) setIndexFlags(cmd *cobra.Command) {
	def := extension.DefaultConfig()
	cmd.Flags().String(optionNameHostName, def.HostName, "search cluster URL, several may be separated by commas")
	cmd.Flags().String(optionNameIndexSpec, "", "index spec, e.g. people:Person(name,age),pets:Pet(name)")
	cmd.Flags().Bool(optionNameDiscovery, false, "discover cluster nodes periodically")
	cmd.Flags().Bool(optionNameIncludeIDField, def.IncludeIDField, "add the node id to every document")
	cmd.Flags().Bool(optionNameIncludeLabelsField, def.IncludeLabelsField, "add the node labels to every document")
	cmd.Flags().Bool(optionNameMappingTypes, false, "send the node label as document type (clusters before 7.0)")
	cmd.Flags().Duration(optionNameRequestTimeout, def.Timeout, "timeout for each bulk request")
	cmd.Flags().String(optionNameDataDir, filepath.Join(c.homeDir, ".graphdex"), "data directory")
	cmd.Flags().String(optionNameVerbosity, "info", "log verbosity level 0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=trace")
}

func (c *command) extensionConfig() extension.Config {
	timeout := c.config.GetDuration(optionNameRequestTimeout)
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return extension.Config{
		HostName:           c.config.GetString(optionNameHostName),
		IndexSpec:          c.config.GetString(optionNameIndexSpec),
		Discovery:          c.config.GetBool(optionNameDiscovery),
		IncludeIDField:     c.config.GetBool(optionNameIncludeIDField),
		IncludeLabelsField: c.config.GetBool(optionNameIncludeLabelsField),
		EnableAutoIndex:    c.config.GetBool(optionNameEnableAutoIndex),
		Async:              c.config.GetBool(optionNameAsync),
		MappingTypes:       c.config.GetBool(optionNameMappingTypes),
		DispatchWorkers:    c.config.GetInt(optionNameDispatchWorkers),
		DispatchQueue:      c.config.GetInt(optionNameDispatchQueue),
		Timeout:            timeout,
	}
}

func (c *command) storePath() string {
	return filepath.Join(c.config.GetString(optionNameDataDir), "graph.db")
}

func newLogger(cmd *cobra.Command, verbosity string) (logging.Logger, error) {
	level, ok, err := logging.ParseVerbosity(verbosity)
	if err != nil {
		return nil, err
	}
	if !ok {
		return logging.New(io.Discard, level), nil
	}
	return logging.New(cmd.OutOrStdout(), level), nil
}

func (c *command) logger(cmd *cobra.Command) (logging.Logger, error) {
	v := strings.ToLower(c.config.GetString(optionNameVerbosity))
	logger, err := newLogger(cmd, v)
	if err != nil {
		return nil, fmt.Errorf("new logger: %v", err)
	}
	return logger, nil
}
