package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/parisxmas/kobodash/internal/auth"
)

var hashSecretCmd = &cobra.Command{
	Use:   "hash-secret",
	Short: "Read a webhook password from stdin and print its bcrypt hash",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if err != nil {
				return fmt.Errorf("read password: %w", err)
			}
			return errors.New("empty password")
		}
		hash, err := auth.HashPassword(line)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
		return err
	},
}

func init() {
	rootCmd.AddCommand(hashSecretCmd)
}
