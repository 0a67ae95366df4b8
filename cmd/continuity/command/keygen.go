package command

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dogwoodlogic/bedrock-ledger-consensus-continuity/src/crypto/keys"
)

// NewKeygenCmd returns the command that generates a key pair.
func NewKeygenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a new key pair",
		RunE:  keygen,
	}
	cmd.Flags().StringP("priv", "p", defaultPrivateKeyFile(), "File where the private key will be written")
	return cmd
}

func keygen(cmd *cobra.Command, args []string) error {
	privKeyFile, err := cmd.Flags().GetString("priv")
	if err != nil {
		return err
	}

	if _, err := os.Stat(privKeyFile); err == nil {
		return fmt.Errorf("a key already lives under: %s", privKeyFile)
	}

	key, err := keys.GenerateECDSAKey()
	if err != nil {
		return fmt.Errorf("generating a new key: %v", err)
	}

	simpleKeyfile := keys.NewSimpleKeyfile(privKeyFile)
	if err := simpleKeyfile.WriteKey(key); err != nil {
		return fmt.Errorf("writing private key: %v", err)
	}

	fmt.Printf("Your private key has been saved to: %s\n", privKeyFile)
	fmt.Printf("PublicKey: %s\n", keys.PublicKeyHex(&key.PublicKey))

	return nil
}

func defaultPrivateKeyFile() string {
	return filepath.Join(_config.DataDir, "priv_key")
}
