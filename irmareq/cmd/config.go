package cmd

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-errors/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	irma "github.com/privacybydesign/irmarequestor"
	"github.com/privacybydesign/irmarequestor/internal/sessionstore"
	"github.com/privacybydesign/irmarequestor/requestor"
)

var logger = logrus.New()

func init() {
	logger.Formatter = &prefixed.TextFormatter{FullTimestamp: true}
}

func readConfig(cmd *cobra.Command, name string, configpaths []string) {
	dashReplacer := strings.NewReplacer("-", "_")
	viper.SetEnvKeyReplacer(dashReplacer)
	viper.SetEnvPrefix(strings.ToUpper(name))
	viper.AutomaticEnv()

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		die("", err)
	}

	// Locate and read configuration file
	confpath := viper.GetString("config")
	if confpath != "" {
		dir, file := filepath.Dir(confpath), filepath.Base(confpath)
		viper.SetConfigName(strings.TrimSuffix(file, filepath.Ext(file)))
		viper.AddConfigPath(dir)
	} else {
		viper.SetConfigName(name)
		for _, path := range configpaths {
			viper.AddConfigPath(path)
		}
	}

	err := viper.ReadInConfig() // Hold error checking until we know how much of it to log

	logger = newLogger(viper.GetInt("verbose"), viper.GetBool("quiet"), viper.GetBool("log-json"))
	irma.SetLogger(logger)
	logger.WithFields(logrus.Fields{
		"version":   irma.Version,
		"verbosity": verbosity(viper.GetInt("verbose")),
	}).Debug("irmareq running")

	if err != nil {
		if _, notfound := err.(viper.ConfigFileNotFoundError); notfound {
			logger.Debug("No configuration file found")
		} else {
			die("", errors.WrapPrefix(err, "Failed to unmarshal configuration file at "+viper.ConfigFileUsed(), 0))
		}
	} else {
		logger.Info("Config file: ", viper.ConfigFileUsed())
	}
}

func newLogger(verbose int, quiet bool, logJSON bool) *logrus.Logger {
	l := logrus.New()
	if quiet {
		l.Out = io.Discard
		return l
	}
	l.Level = verbosity(verbose)
	l.Out = os.Stderr
	if logJSON {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&prefixed.TextFormatter{FullTimestamp: true})
	}
	return l
}

func verbosity(level int) logrus.Level {
	switch {
	case level == 1:
		return logrus.DebugLevel
	case level > 1:
		return logrus.TraceLevel
	default:
		return logrus.InfoLevel
	}
}

func authmethodAlias(f *pflag.FlagSet, name string) pflag.NormalizedName {
	switch name {
	case "authmethod":
		name = "auth-method"
	}
	return pflag.NormalizedName(name)
}

func defaultStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "irmareq.db"
	}
	return filepath.Join(dir, "irmareq", "sessions.db")
}

func requestorConfiguration() *requestor.Configuration {
	return &requestor.Configuration{
		URL:        viper.GetString("server"),
		AuthMethod: requestor.AuthMethod(viper.GetString("auth-method")),
		Key:        requestor.Secret(viper.GetString("key")),
		KeyFile:    viper.GetString("key-file"),
		Name:       viper.GetString("name"),
	}
}

func configureClient() *requestor.Client {
	client, err := requestorConfiguration().Client()
	if err != nil {
		die("Failed to configure IRMA server client", err)
	}
	return client
}

func storeConfiguration() *sessionstore.Configuration {
	conf := &sessionstore.Configuration{
		Type:   viper.GetString("store-type"),
		Path:   viper.GetString("store-path"),
		Logger: logger,
	}
	if conf.Type == sessionstore.TypeRedis {
		conf.RedisSettings = &sessionstore.RedisSettings{
			Addr:     viper.GetString("redis-addr"),
			Password: viper.GetString("redis-pw"),
			DB:       viper.GetInt("redis-db"),
		}
	}
	return conf
}

func openStore() sessionstore.Store {
	conf := storeConfiguration()
	if conf.Type == sessionstore.TypeBbolt {
		if err := os.MkdirAll(filepath.Dir(conf.Path), 0700); err != nil {
			die("Failed to create session database directory", err)
		}
	}
	store, err := sessionstore.New(conf)
	if err != nil {
		die("Failed to open session store", err)
	}
	return store
}
