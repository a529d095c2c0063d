package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/illarion/cryptvault/internal/core"
)

const (
	keyFile      = "file"
	keyKeyfile   = "keyfile"
	keyVerbose   = "verbose"
	keySecret    = "secret"
	keyNewSecret = "new_secret"

	newSecretEnv = "VAULT_NEW_SECRET"
)

// Execute runs the vault command line
func Execute() error {
	return newRootCmd().Execute()
}

type app struct {
	cfg     *viper.Viper
	cfgFile string
}

func newRootCmd() *cobra.Command {
	a := &app{cfg: viper.New()}

	rootCmd := &cobra.Command{
		Use:   "vault",
		Short: "Encrypt strings and store secrets in a local vault file",
		Long: "vault keeps a random data key in a vault file, protected by a secret or a keyfile,\n" +
			"and uses it to encrypt and decrypt strings and named secrets.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return a.loadConfig()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (any format viper reads)")
	flags.StringP(keyFile, "f", core.DefaultFilename, "vault file")
	flags.StringP(keyKeyfile, "k", "", "keyfile (empty: protect the key with a secret)")
	flags.BoolP(keyVerbose, "v", false, "diagnostic logging")

	for _, name := range []string{keyFile, keyKeyfile, keyVerbose} {
		_ = a.cfg.BindPFlag(name, flags.Lookup(name))
	}

	rootCmd.AddCommand(
		newInitCmd(a),
		newEncryptCmd(a),
		newDecryptCmd(a),
		newSetCmd(a),
		newGetCmd(a),
		newRmCmd(a),
		newLsCmd(a),
		newDiffCmd(a),
		newPasswdCmd(a),
		newStatusCmd(a),
		newCompactCmd(a),
		newKeyringCmd(a),
	)

	return rootCmd
}

func (a *app) loadConfig() error {
	a.cfg.SetEnvPrefix("VAULT")
	a.cfg.AutomaticEnv()
	_ = a.cfg.BindEnv(keySecret, core.SecretEnv)
	_ = a.cfg.BindEnv(keyNewSecret, newSecretEnv)

	if a.cfgFile == "" {
		return nil
	}
	a.cfg.SetConfigFile(a.cfgFile)
	if err := a.cfg.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", a.cfgFile, err)
	}
	return nil
}

func (a *app) options() core.Options {
	return core.Options{
		Filename: a.cfg.GetString(keyFile),
		Keyfile:  a.cfg.GetString(keyKeyfile),
		Verbose:  a.cfg.GetBool(keyVerbose),
	}
}
