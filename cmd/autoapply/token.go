package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pranavsaji/autoapply-pro/internal/config"
	"github.com/pranavsaji/autoapply-pro/internal/httpapi"
)

var tokenCommand = &cobra.Command{
	Use:   "token",
	Short: "Mint an API bearer token",
	Long:  "Issues a signed JWT for the HTTP API from the configured jwt_secret, for operators and scripts that skip the password exchange.",
	RunE:  runTokenCmd,
}

var tokenConfigPath string

func init() {
	tokenCommand.Flags().StringVar(&tokenConfigPath, "config", "", "Path to config.yaml (optional)")
	rootCmd.AddCommand(tokenCommand)
}

func runTokenCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(tokenConfigPath)
	if err != nil {
		return err
	}
	token, err := mintToken(cfg)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

// mintToken issues a token with the same signing settings the server uses.
func mintToken(cfg config.Config) (string, error) {
	jwtCfg, err := config.NewJWTConfig(cfg)
	if err != nil {
		return "", err
	}
	return httpapi.NewJWTService(jwtCfg).GenerateToken()
}
