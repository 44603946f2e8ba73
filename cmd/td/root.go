package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "td",
		Short:         "Tabsdata server operator CLI",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
	}

	cmd.PersistentFlags().String("server", "", "server base URL (default from profile)")
	cmd.PersistentFlags().String("user", "", "acting user id")
	_ = viper.BindPFlag("server", cmd.PersistentFlags().Lookup("server"))
	_ = viper.BindPFlag("user", cmd.PersistentFlags().Lookup("user"))

	cmd.AddCommand(fnCmd())
	cmd.AddCommand(tableCmd())
	cmd.AddCommand(collectionCmd())
	cmd.AddCommand(execCmd())
	return cmd
}

// initConfig loads the profile file; flags bound in rootCmd win over it.
func initConfig() error {
	viper.SetConfigName("td")
	viper.SetConfigType("yaml")
	if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(filepath.Join(home, ".tabsdata"))
	}
	viper.AddConfigPath(".")
	viper.SetEnvPrefix("TD")
	viper.AutomaticEnv()

	viper.SetDefault("server", "http://localhost:2457")
	viper.SetDefault("user", "cli")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}
	return nil
}
