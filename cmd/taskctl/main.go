package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"taskmanager/internal/client"

	"github.com/spf13/cobra"
)

var Version = "dev"

type app struct {
	cfg   *Config
	api   *client.API
	cache *client.Cache
	out   io.Writer
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var configPath, serverURL string

	rootCmd := &cobra.Command{
		Use:           "taskctl",
		Short:         "Command line client for the task service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(configPath)
			if err != nil {
				return err
			}
			if serverURL != "" {
				cfg.Server = serverURL
			}
			a.cfg = cfg
			a.out = cmd.OutOrStdout()
			session := client.NewSession(client.FileTokenStore{Path: cfg.SessionFile})
			a.api = client.NewAPI(cfg.Server, session).WithTimeout(cfg.Timeout)
			a.cache = client.NewCache(a.api, a.notifier())
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.taskctl.yaml)")
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "", "task service base URL")

	rootCmd.AddCommand(registerCmd(a))
	rootCmd.AddCommand(loginCmd(a))
	rootCmd.AddCommand(logoutCmd(a))
	rootCmd.AddCommand(meCmd(a))
	rootCmd.AddCommand(listCmd(a))
	rootCmd.AddCommand(createCmd(a))
	rootCmd.AddCommand(updateCmd(a))
	rootCmd.AddCommand(deleteCmd(a))
	rootCmd.AddCommand(watchCmd(a))
	rootCmd.AddCommand(adminCmd(a))
	return rootCmd
}

func (a *app) notifier() client.Notifier {
	return client.NotifierFunc(func(n client.Notice) {
		fmt.Fprintf(a.out, "[%s] %s: %s\n", strings.ToUpper(string(n.Level)), n.Title, n.Message)
	})
}
