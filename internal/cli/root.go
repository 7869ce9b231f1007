// Package cli provides the command-line interface for the clinical note
// extraction engine.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "clinextract",
	Short:   "Clinical note extraction engine",
	Long:    "clinextract drives the section extraction pipeline against a speaker-annotated encounter transcript, producing structured, citation-grounded clinical document sections.",
	Version: "1.0.0",
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./clinextract.yaml)")
	rootCmd.PersistentFlags().String("db-path", "", "override the engine's db_path")
	viper.BindPFlag("db_path", rootCmd.PersistentFlags().Lookup("db-path"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.clinextract")
		viper.AddConfigPath("/etc/clinextract")
		viper.SetConfigName("clinextract")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("CLINEXTRACT")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}
