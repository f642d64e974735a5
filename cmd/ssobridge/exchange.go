package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/otiai10/ssobridge/pkg/client"
)

var exchangeCmd = &cobra.Command{
	Use:   "exchange",
	Short: "Exchange an ID token against a running server",
	Long: `Posts an ID token to a running exchange endpoint and prints the custom
token it returns. The ID token is read from --id-token or, when that is
"-", from standard input.`,
	Example: `  ssobridge exchange --server http://localhost:8080 --id-token "$ID_TOKEN"
  ssobridge exchange --server https://REGION-PROJECT.cloudfunctions.net/generateSsoToken --path / --id-token - < token.txt`,
	RunE: func(cmd *cobra.Command, args []string) error {
		server, _ := cmd.Flags().GetString("server")
		path, _ := cmd.Flags().GetString("path")
		idToken, _ := cmd.Flags().GetString("id-token")

		if idToken == "-" {
			raw, err := readAllTrimmed(cmd)
			if err != nil {
				return fmt.Errorf("reading id token from stdin: %w", err)
			}
			idToken = raw
		}

		c := client.New(server, client.WithPath(path))
		customToken, correlation, err := c.Exchange(cmd.Context(), idToken)
		if err != nil {
			return err
		}

		log.Debug().Str("correlation_id", correlation).Msg("custom token received")
		_, err = fmt.Fprintln(cmd.OutOrStdout(), customToken)
		return err
	},
}

func readAllTrimmed(cmd *cobra.Command) (string, error) {
	raw, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

func init() {
	rootCmd.AddCommand(exchangeCmd)

	exchangeCmd.Flags().String("server", envOr("SSOBRIDGE_SERVER", "http://localhost:8080"), "base URL of the exchange server")
	exchangeCmd.Flags().String("path", "/generateSsoToken", "exchange path on the server")
	exchangeCmd.Flags().String("id-token", "", `ID token to exchange ("-" reads stdin)`)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
