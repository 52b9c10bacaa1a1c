package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	irma "github.com/privacybydesign/irmarequestor"
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "irmareq",
	Short: "Start and follow IRMA sessions at an IRMA server",
	Long: `irmareq starts disclosure, signature and issuance sessions at an IRMA server using its
requestor API, follows their status, and retrieves their results.

Started sessions are recorded in a session store, so that the watch and history
commands can follow them afterwards.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		readConfig(cmd, "irmareq", []string{".", "$HOME/.irmareq"})
	},
}

// Execute adds all child commands to the root command sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(-1)
	}
}

func init() {
	flags := RootCmd.PersistentFlags()
	flags.SortFlags = false

	flags.StringP("config", "c", "", "path to configuration file")
	flags.StringP("server", "s", "http://localhost:8088", "URL of the IRMA server")
	flags.StringP("auth-method", "a", "none", "authentication method to server (none, token, rsa, hmac)")
	flags.SetNormalizeFunc(authmethodAlias)
	flags.String("key", "", "token or key to authenticate to the server with")
	flags.String("key-file", "", "path to file containing the token or key")
	flags.String("name", "", "requestor name (hmac and rsa)")

	flags.String("store-type", "bbolt", "where to record started sessions (memory, bbolt, redis)")
	flags.String("store-path", defaultStorePath(), "path to session database (bbolt)")
	flags.String("redis-addr", "", "Redis address, to be specified as host:port (redis)")
	flags.String("redis-pw", "", "Redis server password (redis)")
	flags.Int("redis-db", 0, "database to be selected after connecting to Redis")

	flags.CountP("verbose", "v", "verbose (repeatable)")
	flags.BoolP("quiet", "q", false, "quiet")
	flags.Bool("log-json", false, "Log in JSON format")

	RootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print irmareq version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("irmareq")
			fmt.Println("Version: ", irma.Version)
			fmt.Println("OS/Arch: ", runtime.GOOS+"/"+runtime.GOARCH)
		},
	})
}

func die(message string, err error) {
	var m string
	if message != "" {
		m = message + ": "
	}
	if err != nil {
		m = m + err.Error()
	}
	fmt.Fprintln(os.Stderr, m)
	os.Exit(1)
}

func prettyprint(v interface{}) string {
	b, err := json.MarshalIndent(v, "", "   ")
	if err != nil {
		die("Failed to serialize", err)
	}
	return string(b)
}
