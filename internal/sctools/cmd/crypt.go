package cmd

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"sctools/internal/cipher"
	"sctools/internal/config"
)

type cryptOptions struct {
	Input   string
	Output  string
	Cipher  string
	Key     []byte
	Encrypt bool
}

func newCryptCmd(encrypt bool) *cobra.Command {
	verb, ext := "decrypt", ".dec"
	if encrypt {
		verb, ext = "encrypt", ".enc"
	}
	c := &cobra.Command{
		Use:   verb + " <file>",
		Short: strings.ToUpper(verb[:1]) + verb[1:] + " a code file",
		Long: fmt.Sprintf(`%s a code file in place of the game's loader. The output has the
same length as the input, except with xxtea-framed, which stores the length. The key is hex on the command line or raw bytes
in --key-file; sctools.toml may provide both defaults.`, strings.ToUpper(verb[:1])+verb[1:]),
		Example: fmt.Sprintf(`
sctools %s --cipher aes --key-file key.bin script.bin
sctools %s --cipher xxtea --key 30313233343536373839616263646566 -o out%s script.bin
  `, verb, verb, ext),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := cryptKey(cmd)
			if err != nil {
				return err
			}
			o := cryptOptions{Input: args[0], Key: key, Encrypt: encrypt, Cipher: project.Cipher.Algorithm}
			if cmd.Flags().Changed("cipher") {
				o.Cipher, _ = cmd.Flags().GetString("cipher")
			}
			o.Output, _ = cmd.Flags().GetString("output")
			if o.Output == "" {
				o.Output = defaultCryptOutput(o.Input, encrypt)
			}
			return runCrypt(o)
		},
	}
	c.Flags().String("cipher", "aes", "Cipher: "+strings.Join(cipher.Names(), " or "))
	c.Flags().String("key", "", "Key as hex")
	c.Flags().String("key-file", "", "File holding the raw key bytes")
	c.Flags().StringP("output", "o", "", "Output file (default: input with "+ext+" added or removed)")
	return c
}

func init() {
	rootCmd.AddCommand(newCryptCmd(true), newCryptCmd(false))
}

func cryptKey(cmd *cobra.Command) ([]byte, error) {
	if s, _ := cmd.Flags().GetString("key"); s != "" {
		key, err := hex.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("--key: %w", err)
		}
		return key, nil
	}
	if path, _ := cmd.Flags().GetString("key-file"); path != "" {
		return os.ReadFile(path)
	}
	key, err := project.CipherKey()
	if err != nil {
		return nil, err
	}
	if key == nil {
		return nil, fmt.Errorf("no key: use --key, --key-file or [cipher] in %s", config.FileName)
	}
	return key, nil
}

func defaultCryptOutput(input string, encrypt bool) string {
	if encrypt {
		return input + ".enc"
	}
	if strings.HasSuffix(input, ".enc") {
		return strings.TrimSuffix(input, ".enc")
	}
	return input + ".dec"
}

func runCrypt(o cryptOptions) error {
	c, err := cipher.Lookup(o.Cipher)
	if err != nil {
		return err
	}
	if err := c.CheckKey(o.Key); err != nil {
		return err
	}
	data, err := os.ReadFile(o.Input)
	if err != nil {
		return err
	}
	transform, verb := c.Decrypt, "decrypted"
	if o.Encrypt {
		transform, verb = c.Encrypt, "encrypted"
	}
	out, err := transform(data, o.Key)
	if err != nil {
		return fmt.Errorf("%s: %w", o.Input, err)
	}
	if err := os.WriteFile(o.Output, out, 0o644); err != nil {
		return err
	}
	logger.Info(verb, "cipher", c.Name, "file", o.Output, "bytes", len(out))
	return nil
}
