package cli

import (
	"log/slog"
	"os"

	"github.com/me/hibernate/internal/logging"
	"github.com/spf13/cobra"
)

var (
	flagServer    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
	client *Client
)

// defaultServer returns the default server URL, checking HIBERNATE_SERVER env var first.
func defaultServer() string {
	if s := os.Getenv("HIBERNATE_SERVER"); s != "" {
		return s
	}
	return "http://localhost:8080"
}

// NewRootCmd creates the root cobra command for the hibernate CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "hibernate",
		Short: "Hibernate — scheduled EC2 start/stop",
		Long:  "Hibernate manages weekly start/stop schedules for EC2 instances in your own AWS account.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagDebug {
				flagLogLevel = "debug"
			}
			logger = logging.New(logging.ParseLevel(flagLogLevel), flagLogFormat)
			client = NewClient(flagServer, logger)
			client.Token = LoadToken()
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagServer, "server", defaultServer(), "Hibernate server URL (or HIBERNATE_SERVER env)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newRegisterCmd(),
		newLoginCmd(),
		newLogoutCmd(),
		newRoleCmd(),
		newInstancesCmd(),
		newSchedulesCmd(),
	)

	return root
}
