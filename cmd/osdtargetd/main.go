// Command osdtargetd starts an OSD-2 target core over a root
// directory. It exists only as a process shell around the target
// package: flag/config handling via cobra and viper, the way
// cuemby-warren's storage daemon wires its root command, wrapping the
// zerolog-backed clog.Clog the rest of this module already takes.
package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rob-gra/osd-target/clog"
	"github.com/rob-gra/osd-target/target"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "osdtargetd",
		Short:         "OSD-2 object storage target core",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./osdtargetd.yaml)")
	cmd.AddCommand(newServeCmd())
	return cmd
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "open the target root directory and serve commands",
		RunE:  runServe,
	}
	flags := cmd.Flags()
	flags.String("root-path", "", "target root directory (required)")
	flags.Bool("format-on-missing-db", true, "create the database if the root directory is empty")
	flags.Uint32("block-size", 4096, "logical block size reported on the root information page")
	flags.Bool("verbose", false, "enable debug logging")

	_ = viper.BindPFlag("root-path", flags.Lookup("root-path"))
	_ = viper.BindPFlag("format-on-missing-db", flags.Lookup("format-on-missing-db"))
	_ = viper.BindPFlag("block-size", flags.Lookup("block-size"))
	_ = viper.BindPFlag("verbose", flags.Lookup("verbose"))
	return cmd
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("osdtargetd")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}
	viper.SetEnvPrefix("OSDTARGETD")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()
}

func runServe(cmd *cobra.Command, args []string) error {
	initConfig()

	rootPath := viper.GetString("root-path")
	if rootPath == "" {
		return fmt.Errorf("osdtargetd: --root-path is required")
	}

	log := clog.NewLogger("target")
	log.LogMode(viper.GetBool("verbose"))

	runID := uuid.New()
	log.Warn("osdtargetd: starting run %s", runID)

	opts := target.Options{
		RootPath:          rootPath,
		FormatOnMissingDB: viper.GetBool("format-on-missing-db"),
		BlockSize:         viper.GetUint32("block-size"),
	}

	t, err := target.Open(opts, log)
	if err != nil {
		return fmt.Errorf("osdtargetd: open: %w", err)
	}
	defer t.Close()

	log.Warn("osdtargetd: opened %s, waiting for a transport to drive Target.Submit (none wired in this core)", rootPath)
	select {}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
