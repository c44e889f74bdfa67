package cmd

import (
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

type tokenInfo struct {
	TokenType   string    `json:"token_type"`
	Scope       string    `json:"scope,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
	ExpiresIn   string    `json:"expires_in"`
	AccessToken string    `json:"access_token,omitempty"`
}

func tokenTable(items []tokenInfo) (table.Row, []table.Row) {
	rows := make([]table.Row, 0, len(items))
	for _, t := range items {
		rows = append(rows, table.Row{t.TokenType, t.Scope, t.ExpiresAt.Format(time.RFC3339), t.ExpiresIn})
	}
	return table.Row{"Type", "Scope", "Expires", "Expires In"}, rows
}

func newTokenCommand(a *app) *cobra.Command {
	var show, refresh bool

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Obtain an access token and show its expiry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, cleanup, err := a.newClient()
			if err != nil {
				return err
			}
			defer cleanup()

			token, err := c.Tokens().Token(cmd.Context(), refresh)
			if err != nil {
				return err
			}

			info := tokenInfo{
				TokenType: token.TokenType,
				Scope:     token.Scope,
				ExpiresAt: token.ExpiresAt(),
				ExpiresIn: time.Until(token.ExpiresAt()).Round(time.Second).String(),
			}
			if show {
				info.AccessToken = token.AccessToken
			}
			return renderOne(cmd.OutOrStdout(), a.output, &info, tokenTable)
		},
	}
	cmd.Flags().BoolVar(&show, "show", false, "include the access token in the output")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "force a new token exchange")
	return cmd
}
