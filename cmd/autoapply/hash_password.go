package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pranavsaji/autoapply-pro/internal/config"
)

var hashPasswordCommand = &cobra.Command{
	Use:   "hash-password <password>",
	Short: "Hash an API password for the config file",
	Long:  "Prints the bcrypt hash of the given password for the password_hash config field, which gates token issuance on the HTTP API.",
	Args:  cobra.ExactArgs(1),
	RunE:  runHashPasswordCmd,
}

func init() {
	rootCmd.AddCommand(hashPasswordCommand)
}

func runHashPasswordCmd(cmd *cobra.Command, args []string) error {
	pc, err := config.NewPasswordConfig()
	if err != nil {
		return err
	}
	hash, err := pc.HashPassword(args[0])
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}
