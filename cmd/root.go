package cmd

import (
	"fmt"
	"os"
	"strings"

	logging "github.com/ipfs/go-log/v2"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/adhikar/registry/nodebuilder"
)

const envPrefix = "ADHIKAR"

var (
	cfgFile    string
	namespace  string
	logLvlName string
)

var log = logging.Logger("cmd")

var logLevels = map[string]string{
	"critical": "fatal",
	"error":    "error",
	"warn":     "warn",
	"info":     "info",
	"debug":    "debug",
}

func getLogLevel(lvlName string) (string, error) {
	lvl, ok := logLevels[lvlName]
	if !ok {
		return "", fmt.Errorf("Invalid log level %v. Must be either `critical`, `error`, `warn`, `info`, or `debug`.", lvlName)
	}
	return lvl, nil
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "adhikar",
	Short: "Adhikar land registry",
	Long:  `Adhikar records council-attested land claims on a public ledger and verifies them from the ledger alone`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		lvl, err := getLogLevel(logLvlName)
		if err != nil {
			panic(err.Error())
		}
		if err := logging.SetLogLevel("*", lvl); err != nil {
			fmt.Println("unknown log level")
		}
		if addr := viper.GetString("pprof"); addr != "" {
			if _, err := startProfiler(addr); err != nil {
				fmt.Println(err)
			}
		}
	},
}

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

	rootCmd.PersistentFlags().StringVarP(&logLvlName, "log-level", "L", "error", "Log level")
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to a node config file (default <config dir>/<namespace>/config.toml)")
	rootCmd.PersistentFlags().StringVarP(&namespace, "namespace", "n", "default", "configuration namespace")
	rootCmd.PersistentFlags().String("pprof", "", "serve runtime profiles on this address, e.g. localhost:6060")
	if err := viper.BindPFlag("pprof", rootCmd.PersistentFlags().Lookup("pprof")); err != nil {
		panic(err)
	}
}

// initConfig wires environment overrides: ADHIKAR_SIGNER_KEY,
// ADHIKAR_RPC_URL, ADHIKAR_KEYSTORE_PASSPHRASE and ADHIKAR_PPROF.
func initConfig() {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// loadNodeConfig reads the config file and applies environment overrides.
func loadNodeConfig() (*nodebuilder.Config, error) {
	path := configPath()
	hc, err := nodebuilder.LoadHumanConfig(path)
	if err != nil {
		return nil, err
	}
	if hc.Namespace == "" {
		hc.Namespace = namespace
	}
	if v := viper.GetString("signer_key"); v != "" {
		hc.Ledger.SignerKeyHex = v
	}
	if v := viper.GetString("rpc_url"); v != "" {
		hc.Ledger.RPCURL = v
	}
	if v := viper.GetString("keystore_passphrase"); v != "" {
		hc.Keystore.Passphrase = v
	}
	c, err := nodebuilder.HumanConfigToConfig(*hc)
	if err != nil {
		return nil, errors.Wrapf(err, "error in %s", path)
	}
	log.Debugw("loaded config", "path", path, "namespace", c.Namespace)
	return c, nil
}
