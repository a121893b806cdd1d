package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"github.com/adhikar/registry/council"
	"github.com/adhikar/registry/nodebuilder"
)

var (
	generateKeysCount  int
	generateKeysOutput string
)

type keyPair struct {
	KeyHex  string `json:"keyHex"`
	Address string `json:"address"`
}

func generateKeys(n int) ([]keyPair, error) {
	var pairs []keyPair
	for i := 0; i < n; i++ {
		key, err := crypto.GenerateKey()
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, keyPair{
			KeyHex:  hexutil.Encode(crypto.FromECDSA(key)),
			Address: crypto.PubkeyToAddress(key.PublicKey).Hex(),
		})
	}
	return pairs, nil
}

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage council signing keys",
}

var generateKeysCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate secp256k1 signing keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		pairs, err := generateKeys(generateKeysCount)
		if err != nil {
			return err
		}
		switch generateKeysOutput {
		case "text":
			for i, p := range pairs {
				fmt.Printf("================ Key %v ================\n", i+1)
				fmt.Printf("key: '%v'\naddress: '%v'\n", p.KeyHex, p.Address)
			}
		case "json":
			out, err := json.MarshalIndent(pairs, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
		default:
			return fmt.Errorf("output must be text or json, got %q", generateKeysOutput)
		}
		return nil
	},
}

var importKeyCmd = &cobra.Command{
	Use:   "import <memberID> <keyHex>",
	Short: "Store a council member's signing key in the encrypted keystore",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		config, err := loadNodeConfig()
		if err != nil {
			return err
		}
		if config.Keystore.Path == "" {
			return fmt.Errorf("no [Keystore] Path configured")
		}
		key, err := council.DecodeKeyHex(args[1])
		if err != nil {
			return err
		}

		ks, err := nodebuilder.OpenKeystore(ctx, config.Keystore)
		if err != nil {
			return err
		}
		defer ks.Close()

		if err := council.NewStoredKeyring(ks.EncryptedStore, nil).Import(ctx, args[0], key); err != nil {
			return err
		}
		fmt.Printf("stored key for %s (%s)\n", args[0], crypto.PubkeyToAddress(key.PublicKey).Hex())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(generateKeysCmd, importKeyCmd)
	generateKeysCmd.Flags().IntVar(&generateKeysCount, "count", 1, "how many keys to generate")
	generateKeysCmd.Flags().StringVarP(&generateKeysOutput, "output", "o", "text", "output format: text or json")
}
