package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/relab/ofcons/logging"
	"github.com/spf13/cobra"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// rootCmd represents the base command when called without any subcommands
var (
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "ofcons",
		Short: "A command-line utility for running consensus experiments.",
		Long: `ofcons runs experiments with a ballot-based uniform consensus protocol.
A set of replicas runs in a single process, each proposing a random binary value.
A random subset of the replicas is made fault-prone and may crash on any message.

To run an experiment, use the 'ofcons run' command.
By default, this command runs ten replicas of which four are fault-prone.
Use 'ofcons help run' to view all possible parameters for this command.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Usage()
		},
	}
)

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.ofcons.yaml)")

	rootCmd.PersistentFlags().String("log-level", "info", "sets the log level (debug, info, warn, error)")
	cobra.CheckErr(viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level")))
	rootCmd.PersistentFlags().StringSlice("log-pkgs", []string{}, "set the log level on a per-package basis.")
	cobra.CheckErr(viper.BindPFlag("log-pkgs", rootCmd.PersistentFlags().Lookup("log-pkgs")))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".ofcons" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigName(".ofcons")
	}

	viper.SetEnvPrefix("ofcons")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	if err := logging.SetLogLevel(viper.GetString("log-level")); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := logging.SetPackageLogLevels(viper.GetStringSlice("log-pkgs")); err != nil {
		fmt.Println("log-pkgs flag must be a comma-separated list of package:level strings:", err)
		os.Exit(1)
	}
}
