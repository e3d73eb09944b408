package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"harbor/internal/logging"
	"harbor/internal/version"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "hbr",
		Short: "Harbor - Local tool server orchestration host",
		Long: `Harbor is a local host process that manages a fleet of tool server
subprocesses, aggregates the tools, prompts, and resources they expose,
and routes requests to the right server under per-caller access policy.`,
		Version: version.GetVersionString(),
	}
)

func init() {
	cobra.OnInitialize(initConfig)
	cobra.OnInitialize(initLogging)

	rootCmd.SetVersionTemplate(version.GetFullVersionString() + "\n")

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./harbor.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(callCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(keyCmd)

	keyCmd.AddCommand(keyGenerateCmd)

	serveCmd.Flags().StringP("manifest", "m", "", "fleet manifest file (mcpServers format)")
	serveCmd.Flags().Bool("debug", false, "enable debug logging")

	callCmd.Flags().StringP("manifest", "m", "", "fleet manifest file (mcpServers format)")
	callCmd.Flags().StringP("args", "a", "{}", "tool arguments as a JSON object")
	callCmd.Flags().StringSlice("allow", nil, "restrict routing to these client IDs")

	listCmd.Flags().StringP("manifest", "m", "", "fleet manifest file (mcpServers format)")

	viper.BindPFlag("manifest", serveCmd.Flags().Lookup("manifest"))
	viper.BindPFlag("debug", serveCmd.Flags().Lookup("debug"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("harbor")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("HARBOR")

	if err := viper.ReadInConfig(); err == nil {
		fmt.Printf("Using config file: %s\n", viper.ConfigFileUsed())
	}
}

func initLogging() {
	logging.Initialize(viper.GetBool("debug"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
