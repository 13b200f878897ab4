package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/dataverse-go/internal/auth"
	"github.com/tonimelisma/dataverse-go/internal/dataverse"
)

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Acquire a token and store it in the token cache",
		Long: `Acquire an access token for the configured organization. With a client
secret the client-credentials grant is used; otherwise a cached refresh token,
then the configured interactive flow (device code or browser).`,
		Args: cobra.NoArgs,
		RunE: runLogin,
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove cached tokens for the configured client",
		Args:  cobra.NoArgs,
		RunE:  runLogout,
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the calling user, business unit, and organization",
		Args:  cobra.NoArgs,
		RunE:  runWhoami,
	}
}

func newTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Print an access token for the configured organization",
		Args:  cobra.NoArgs,
		RunE:  runToken,
	}
}

// tokenOutput is the structured form of `token` and `login`.
type tokenOutput struct {
	Account     string    `json:"account,omitempty" yaml:"account,omitempty"`
	AccessToken string    `json:"access_token,omitempty" yaml:"access_token,omitempty"`
	Scopes      []string  `json:"scopes" yaml:"scopes"`
	ExpiresOn   time.Time `json:"expires_on" yaml:"expires_on"`
}

func runLogin(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	return withSession(ctx, cc, func(s *Session) error {
		tok, err := s.Provider.Token(ctx)
		if err != nil {
			return err
		}

		out := tokenOutput{Account: accountName(s.Provider), Scopes: tok.Scopes, ExpiresOn: tok.ExpiresOn}
		cc.Logger.Info("login successful", slog.String("account", out.Account))

		if done, err := writeStructured(cmd.OutOrStdout(), cc.Flags.Output, out); done {
			return err
		}

		cc.Statusf("Signed in as %s (token valid until %s)\n", out.Account, tok.ExpiresOn.Local().Format(time.RFC1123))

		return nil
	})
}

func runLogout(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	provider, err := openProvider(ctx, cc.Cfg, "", newHTTPClient(cc.Cfg), cc.Logger)
	if err != nil {
		return err
	}

	defer func() {
		if err := provider.Close(); err != nil {
			cc.Logger.Warn("closing token cache", slog.String("error", err.Error()))
		}
	}()

	n, err := provider.Logout(ctx)
	if err != nil {
		return err
	}

	cc.Statusf("Removed %d cached account(s).\n", n)

	return nil
}

func runWhoami(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	return withSession(ctx, cc, func(s *Session) error {
		who, err := s.Client.WhoAmI(ctx)
		if err != nil {
			return err
		}

		record := dataverse.Record{
			"UserId":         who.UserID,
			"BusinessUnitId": who.BusinessUnitID,
			"OrganizationId": who.OrganizationID,
		}

		if acct := accountName(s.Provider); acct != "" {
			record["Account"] = acct
		}

		return writeRecord(cmd.OutOrStdout(), cc.Flags.Output, record)
	})
}

func runToken(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	return withSession(ctx, cc, func(s *Session) error {
		tok, err := s.Provider.Token(ctx)
		if err != nil {
			return err
		}

		out := tokenOutput{
			Account:     accountName(s.Provider),
			AccessToken: tok.Value,
			Scopes:      tok.Scopes,
			ExpiresOn:   tok.ExpiresOn,
		}

		if done, err := writeStructured(cmd.OutOrStdout(), cc.Flags.Output, out); done {
			return err
		}

		_, err = fmt.Fprintln(cmd.OutOrStdout(), tok.Value)

		return err
	})
}

// accountName returns the username of the first cached account, if any.
func accountName(p *auth.Provider) string {
	accounts := p.Accounts()
	if len(accounts) == 0 {
		return ""
	}

	return accounts[0].Username
}
