package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/centsible/centsible/client"
	"github.com/centsible/centsible/client/credentials"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage authentication for centsiblectl",
}

var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Register a new account and store its credential pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, password, err := promptCredentials()
		if err != nil {
			return err
		}
		resp, err := apiClient().Signup(cmd.Context(), email, password)
		if err != nil {
			return err
		}
		if err := storeTokens(resp); err != nil {
			return err
		}
		fmt.Printf("Account %s created. Session expires %s.\n", resp.User.Email, resp.SessionExpiresAt.Format("2006-01-02"))
		return nil
	},
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and store the issued credential pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, password, err := promptCredentials()
		if err != nil {
			return err
		}
		resp, err := apiClient().Login(cmd.Context(), email, password)
		if errors.Is(err, client.ErrUnauthenticated) {
			return errors.New("invalid email or password")
		}
		if err != nil {
			return err
		}
		if err := storeTokens(resp); err != nil {
			return err
		}
		fmt.Printf("Logged in as %s. Session expires %s.\n", resp.User.Email, resp.SessionExpiresAt.Format("2006-01-02"))
		return nil
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Rotate the stored refresh token for a fresh pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		creds, cleanup, err := credentialStore()
		if err != nil {
			return err
		}
		defer cleanup()

		refreshToken, err := creds.Get(credentials.KeyRefreshToken)
		if errors.Is(err, credentials.ErrNotFound) {
			return errors.New("not logged in")
		}
		if err != nil {
			return err
		}

		resp, err := apiClient().Refresh(cmd.Context(), refreshToken)
		if errors.Is(err, client.ErrUnauthenticated) {
			creds.Delete(credentials.KeyAccessToken)
			creds.Delete(credentials.KeyRefreshToken)
			return errors.New("session is no longer valid, please log in again")
		}
		if err != nil {
			return err
		}

		if err := creds.Set(credentials.KeyAccessToken, resp.AccessToken); err != nil {
			return err
		}
		if err := creds.Set(credentials.KeyRefreshToken, resp.RefreshToken); err != nil {
			return err
		}
		fmt.Println("Tokens rotated.")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Verify the stored access token against the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		creds, cleanup, err := credentialStore()
		if err != nil {
			return err
		}
		defer cleanup()

		accessToken, err := creds.Get(credentials.KeyAccessToken)
		if errors.Is(err, credentials.ErrNotFound) {
			return errors.New("not logged in")
		}
		if err != nil {
			return err
		}

		resp, err := apiClient().Verify(cmd.Context(), accessToken)
		if err != nil {
			return err
		}
		if !resp.Valid {
			fmt.Println("Stored access token is expired or invalid. Run 'centsiblectl auth refresh'.")
			return nil
		}
		fmt.Printf("Authenticated as user %s.\n", resp.UserID)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Revoke the current session and clear stored credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		creds, cleanup, err := credentialStore()
		if err != nil {
			return err
		}
		defer cleanup()

		accessToken, atErr := creds.Get(credentials.KeyAccessToken)
		refreshToken, rtErr := creds.Get(credentials.KeyRefreshToken)
		if atErr == nil && rtErr == nil {
			if err := apiClient().Logout(cmd.Context(), accessToken, refreshToken); err != nil && !errors.Is(err, client.ErrUnauthenticated) {
				fmt.Fprintln(os.Stderr, "Warning: server-side revocation failed:", err)
			}
		}
		creds.Delete(credentials.KeyAccessToken)
		creds.Delete(credentials.KeyRefreshToken)
		fmt.Println("Logged out.")
		return nil
	},
}

var storeHealthCmd = &cobra.Command{
	Use:   "store-health",
	Short: "Report reachability of both local credential stores",
	RunE: func(cmd *cobra.Command, args []string) error {
		creds, cleanup, err := credentialStore()
		if err != nil {
			return err
		}
		defer cleanup()

		h := creds.Health()
		fmt.Printf("durable store: %s\n", healthWord(h.DurableOK))
		fmt.Printf("flat store:    %s\n", healthWord(h.FlatOK))

		for _, key := range []string{credentials.KeyAccessToken, credentials.KeyRefreshToken} {
			_, err := creds.Get(key)
			fmt.Printf("%s: present=%t\n", key, err == nil)
		}
		return nil
	},
}

func healthWord(ok bool) string {
	if ok {
		return "ok"
	}
	return "unreachable"
}

func promptCredentials() (string, string, error) {
	fmt.Print("Email: ")
	reader := bufio.NewReader(os.Stdin)
	email, err := reader.ReadString('\n')
	if err != nil {
		return "", "", fmt.Errorf("failed to read email: %w", err)
	}
	email = strings.TrimSpace(email)

	fmt.Print("Password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", "", fmt.Errorf("failed to read password: %w", err)
	}
	return email, string(bytePassword), nil
}

func storeTokens(resp *client.AuthResponse) error {
	creds, cleanup, err := credentialStore()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := creds.Set(credentials.KeyAccessToken, resp.AccessToken); err != nil {
		return err
	}
	return creds.Set(credentials.KeyRefreshToken, resp.RefreshToken)
}

func init() {
	authCmd.AddCommand(signupCmd, loginCmd, refreshCmd, whoamiCmd, logoutCmd, storeHealthCmd)
	rootCmd.AddCommand(authCmd)
}
