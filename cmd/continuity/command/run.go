package command

import (
	"os"
	"path/filepath"

	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dogwoodlogic/bedrock-ledger-consensus-continuity/src/config"
	"github.com/dogwoodlogic/bedrock-ledger-consensus-continuity/src/ledger"
)

// NewRunCmd returns the command that starts a ledger node.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run node",
		PreRunE: loadConfig,
		RunE:    runLedger,
	}
	addRunFlags(cmd)
	return cmd
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("datadir", "d", _config.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().StringP("listen", "l", _config.BindAddr, "Listen IP:Port for ledger node")
	cmd.Flags().String("advertise", _config.AdvertiseAddr, "Advertise IP:Port to other nodes")
	cmd.Flags().StringP("service-listen", "s", _config.ServiceAddr, "Listen IP:Port for HTTP service")
	cmd.Flags().Bool("no-service", _config.NoService, "Disable the HTTP service")
	cmd.Flags().String("log", _config.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("moniker", _config.Moniker, "Optional name")
	cmd.Flags().Bool("store", _config.Store, "Use badgerDB instead of in-mem DB")
	cmd.Flags().String("db", _config.DatabaseDir, "Database directory")
	cmd.Flags().Bool("bootstrap", _config.Bootstrap, "Load from an existing database")
	cmd.Flags().Duration("heartbeat", _config.HeartbeatTimeout, "Time between gossips")
	cmd.Flags().DurationP("timeout", "t", _config.TCPTimeout, "TCP timeout")
	cmd.Flags().Int("max-pool", _config.MaxPool, "Connection pool size max")
	cmd.Flags().Int("cache-size", _config.CacheSize, "Number of items in LRU caches")
	cmd.Flags().Int("sync-limit", _config.SyncLimit, "Max number of events for sync")
}

// loadConfig reads the flags, the optional config file, and the environment
// into the config object.
func loadConfig(cmd *cobra.Command, args []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	viper.SetConfigName("continuity")

	datadir, err := cmd.Flags().GetString("datadir")
	if err != nil {
		return err
	}
	viper.AddConfigPath(datadir)

	if err := viper.ReadInConfig(); err == nil {
		_config.Logger().Debugf("using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Logger().Debug("no config file found")
	} else {
		return err
	}

	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	_config.SetDataDir(_config.DataDir)

	logFields := logrus.Fields{
		"datadir":        _config.DataDir,
		"listen":         _config.BindAddr,
		"service-listen": _config.ServiceAddr,
		"store":          _config.Store,
		"heartbeat":      _config.HeartbeatTimeout,
		"cache-size":     _config.CacheSize,
		"sync-limit":     _config.SyncLimit,
	}
	_config.Logger().WithFields(logFields).Debug("run")

	return nil
}

// runLedger starts the node and blocks until shutdown.
func runLedger(cmd *cobra.Command, args []string) error {
	addLogFileHook(_config)

	engine := ledger.NewLedger(_config)

	if err := engine.Init(); err != nil {
		_config.Logger().WithError(err).Error("init")
		return err
	}

	engine.Run()

	return nil
}

// addLogFileHook tees log output to files in the data directory, one per
// level, keeping stderr output intact.
func addLogFileHook(conf *config.Config) {
	pathMap := lfshook.PathMap{}

	infoPath := filepath.Join(conf.DataDir, "continuity_info.log")
	if _, err := os.OpenFile(infoPath, os.O_CREATE|os.O_WRONLY, 0666); err == nil {
		pathMap[logrus.InfoLevel] = infoPath
	}

	debugPath := filepath.Join(conf.DataDir, "continuity_debug.log")
	if _, err := os.OpenFile(debugPath, os.O_CREATE|os.O_WRONLY, 0666); err == nil {
		pathMap[logrus.DebugLevel] = debugPath
	}

	if len(pathMap) == 0 {
		return
	}

	conf.Logger().Logger.Hooks.Add(lfshook.NewHook(
		pathMap,
		&logrus.TextFormatter{},
	))
}
