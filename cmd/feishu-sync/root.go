package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "feishu-sync",
		Short: "Read and reconcile Feishu tasks",
		Long: `feishu-sync talks to the Feishu task API with a tenant app's credentials.

Config comes from --config (YAML or TOML) and FEISHU_* environment variables,
for example FEISHU_PROVIDER_APP_ID and FEISHU_PROVIDER_APP_SECRET.

Pass --driver and --dsn to keep tokens, sync marks and run history in
sqlite or postgres instead of memory.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&a.opts.configFile, "config", "", "config file (yaml or toml)")
	flags.StringVarP(&a.opts.output, "output", "o", outputJSON, "output format: json or yaml")
	flags.StringVar(&a.opts.logFile, "log-file", "", "write logs to a rotating file instead of stderr")
	flags.StringVar(&a.opts.logLevel, "log-level", "info", "log level: trace, debug, info, warn or error")
	flags.StringVar(&a.opts.driver, "driver", "", "sql store driver: sqlite3 or postgres")
	flags.StringVar(&a.opts.dsn, "dsn", "", "sql store data source name")
	flags.StringVar(&a.opts.tokenKey, "token-key", "", "key that seals stored tenant tokens (or FEISHU_TOKEN_KEY)")

	root.AddCommand(
		newTestCmd(a),
		newGetCmd(a),
		newListCmd(a),
		newSearchCmd(a),
		newReconcileCmd(a),
		newPollCmd(a),
		newRunsCmd(a),
		newMigrateCmd(a),
	)
	return root
}
