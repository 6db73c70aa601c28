package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"postharvest/pkg/auth"
	"postharvest/pkg/bluesky"
	"postharvest/pkg/config"
	"postharvest/pkg/logger"
)

var (
	loginService string
	skipVerify   bool
	skipGuide    bool
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage Bluesky credentials",
	Long: `Manage stored Bluesky credentials securely.

Credentials are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables BLUESKY_HANDLE and BLUESKY_APP_PASSWORD (read only)

Use an app password, never your account password.`,
}

// loginCmd represents the auth login command
var loginCmd = &cobra.Command{
	Use:   "login [handle]",
	Short: "Store a Bluesky handle and app password",
	Long: `Store a Bluesky handle and app password in the system keychain or an
encrypted file.

The credentials are checked against the server before they are saved
unless --no-verify is given.`,
	Example: `  # Interactive login
  postharvest auth login

  # Login with a handle
  postharvest auth login alice.bsky.social`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

// logoutCmd represents the auth logout command
var logoutCmd = &cobra.Command{
	Use:   "logout [handle]",
	Short: "Remove stored credentials",
	Long: `Remove stored Bluesky credentials.

If no handle is provided, you will be shown a list of stored accounts
to choose from.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogout,
}

// listCmd represents the auth list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stored accounts",
	Long:  `List all stored Bluesky accounts with masked app passwords.`,
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(listCmd)

	loginCmd.Flags().StringVar(&loginService, "service", "", "PDS URL for accounts not hosted on bsky.social")
	loginCmd.Flags().BoolVar(&skipVerify, "no-verify", false, "save without logging in first")
	loginCmd.Flags().BoolVar(&skipGuide, "no-guide", false, "do not print the app password instructions")
}

func runLogin(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager("")
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	reader := bufio.NewReader(os.Stdin)

	if !skipGuide {
		auth.ShowAppPasswordGuide(os.Stdout)
	}

	var handle string
	if len(args) > 0 {
		handle = args[0]
	} else {
		fmt.Print("Bluesky handle: ")
		input, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read handle: %w", err)
		}
		handle = input
	}
	handle = bluesky.NormalizeHandle(handle)
	if !bluesky.IsValidHandle(handle) {
		return fmt.Errorf("invalid handle %q (expected something like alice.bsky.social)", handle)
	}

	if existing, _ := manager.Retrieve(handle); existing != nil {
		fmt.Printf("Account '%s' already exists. Update credentials? (y/N): ", handle)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return nil
		}
	}

	fmt.Print("App password (hidden): ")
	password, err := readPassword(reader)
	if err != nil {
		return fmt.Errorf("failed to read app password: %w", err)
	}
	if password == "" {
		return fmt.Errorf("app password is required")
	}
	if !auth.LooksLikeAppPassword(password) {
		printer.Warning("That does not look like an app password (xxxx-xxxx-xxxx-xxxx).")
		printer.Dim("  Using your account password works but cannot be revoked separately.")
	}

	if !skipVerify {
		if err := verifyLogin(handle, password, loginService); err != nil {
			return fmt.Errorf("login check failed (use --no-verify to save anyway): %w", err)
		}
		printer.Success("Logged in as " + handle)
	}

	account := &auth.Account{
		Handle:       handle,
		AppPassword:  password,
		Service:      loginService,
		LastModified: time.Now(),
	}
	if err := manager.Store(account); err != nil {
		return fmt.Errorf("failed to store credentials: %w", err)
	}

	printer.Success("Account saved: " + handle)
	fmt.Println("\nStart collecting with:")
	fmt.Println("  postharvest collect <keyword>")
	if accounts, _ := manager.List(); len(accounts) > 1 {
		fmt.Printf("\nSeveral accounts are stored; select this one with --account %s\n", handle)
	}
	return nil
}

// verifyLogin creates a session with the given credentials
func verifyLogin(handle, password, service string) error {
	cfg := config.DefaultConfig().Bluesky
	cfg.Handle = handle
	cfg.AppPassword = password
	if service != "" {
		cfg.BaseURL = service
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	return bluesky.NewClient(cfg, nil, logger.NewNopLogger()).Login(ctx)
}

func runLogout(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager("")
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	if len(args) == 1 {
		handle := bluesky.NormalizeHandle(args[0])
		if err := manager.Delete(handle); err != nil {
			return fmt.Errorf("failed to remove account: %w", err)
		}
		printer.Success("Account removed: " + handle)
		return nil
	}

	accounts, err := manager.List()
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		printer.Dim("No stored accounts.")
		return nil
	}

	fmt.Println("Select account to remove:")
	for i, account := range accounts {
		fmt.Printf("  %d. %s\n", i+1, account.Handle)
	}
	fmt.Printf("  0. Cancel\n\n")

	reader := bufio.NewReader(os.Stdin)
	fmt.Print("Choice: ")
	input, _ := reader.ReadString('\n')

	var choice int
	fmt.Sscanf(strings.TrimSpace(input), "%d", &choice)
	if choice == 0 {
		return nil
	}
	if choice < 0 || choice > len(accounts) {
		return fmt.Errorf("invalid choice %q", strings.TrimSpace(input))
	}

	handle := accounts[choice-1].Handle
	if err := manager.Delete(handle); err != nil {
		return fmt.Errorf("failed to remove account: %w", err)
	}
	printer.Success("Account removed: " + handle)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager("")
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	accounts, err := manager.List()
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}

	if len(accounts) == 0 {
		printer.Info("No stored accounts", "Use 'postharvest auth login' to add an account")
		return nil
	}

	for i, account := range accounts {
		sanitized := auth.SanitizeAccount(account)
		fmt.Printf("%d. Handle: %s\n", i+1, sanitized.Handle)
		fmt.Printf("   App password: %s\n", sanitized.AppPassword)
		if sanitized.Service != "" {
			fmt.Printf("   Service: %s\n", sanitized.Service)
		}
		if !sanitized.LastModified.IsZero() {
			fmt.Printf("   Last modified: %s\n", sanitized.LastModified.Format("2006-01-02 15:04:05"))
		}
		fmt.Println()
	}
	return nil
}

// readPassword reads a password from stdin without echoing
func readPassword(reader *bufio.Reader) (string, error) {
	if term.IsTerminal(int(syscall.Stdin)) {
		password, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err == nil {
			return strings.TrimSpace(string(password)), nil
		}
	}

	// Fallback to regular input, e.g. when piped
	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
