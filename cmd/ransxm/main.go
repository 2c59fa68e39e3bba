package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	ransxm "github.com/ransxm/ransxm-console"
	"github.com/ransxm/ransxm-console/console"
	"github.com/ransxm/ransxm-console/nav"
	"github.com/ransxm/ransxm-console/render"
)

// errReported marks failures the view has already shown.
var errReported = errors.New("command failed")

var (
	// Global flags
	configFile string

	stdin = bufio.NewReader(os.Stdin)
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ransxm",
		Short: "RANSXM license key console",
		Long: `A terminal console for the RANSXM license service.

Admins manage license keys (create, edit, ban, reset HWID, export) and
users; plain users see their account and the usage of their keys.
The session is kept in a local DuckDB file by default, so one login
serves every subsequent command.`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "Config file (default $XDG_CONFIG_HOME/ransxm/config.yaml)")
	flags.String("api", "", "RANSXM API base URL")
	flags.String("store", "", "Session store: duckdb, redis or memory")
	flags.BoolP("yes", "y", false, "Answer yes to every confirmation")
	flags.String("log-level", "", "Log level: debug, info, warn or error")

	// Add subcommands
	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(registerCmd())
	rootCmd.AddCommand(logoutCmd())
	rootCmd.AddCommand(whoamiCmd())
	rootCmd.AddCommand(keysCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(logsCmd())
	rootCmd.AddCommand(analyticsCmd())
	rootCmd.AddCommand(usersCmd())
	rootCmd.AddCommand(myLogsCmd())
	rootCmd.AddCommand(shellCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

// app is one command's wired console.
type app struct {
	*ransxm.Console
	view    *render.Terminal
	logger  *zap.Logger
	cleanup func()
}

func openApp(cmd *cobra.Command) (*app, error) {
	cfg, err := ransxm.LoadConfig(ransxm.LoadOptions{
		ConfigFile: configFile,
		Flags:      cmd.Flags(),
	})
	if err != nil {
		return nil, err
	}

	logger, cleanup, err := ransxm.NewLogger(cfg, os.Stderr)
	if err != nil {
		return nil, err
	}

	terminal := render.NewTerminal(os.Stdout, render.Detect(os.Stdout, cfg.AssumeYes))
	c, err := ransxm.New(cmd.Context(), cfg, ransxm.Options{View: terminal, Logger: logger})
	if err != nil {
		cleanup()
		return nil, err
	}
	logger.Debug("Command started", zap.String("command", cmd.CommandPath()))
	return &app{Console: c, view: terminal, logger: logger, cleanup: cleanup}, nil
}

func (a *app) Close() {
	if err := a.Console.Close(); err != nil {
		a.logger.Warn("Failed to close session store", zap.Error(err))
	}
	a.cleanup()
}

// done turns a controller outcome into a command result and explains
// redirects the gates or the gateway requested.
func (a *app) done(ctx context.Context, ok bool) error {
	if ok {
		return nil
	}
	if page, moved := a.Nav.Last(); moved {
		switch page {
		case nav.EntryPage:
			if !a.Auth.IsLoggedIn(ctx) {
				fmt.Fprintln(os.Stderr, "Not signed in. Run 'ransxm login' first.")
			}
		case nav.UserDashboard:
			fmt.Fprintln(os.Stderr, "This command requires an admin account.")
		case nav.AdminDashboard:
			fmt.Fprintln(os.Stderr, "This command requires a super admin account.")
		}
	}
	return errReported
}

// requireAdmin applies the admin dashboard gates.
func (a *app) requireAdmin(ctx context.Context) bool {
	return a.Auth.RequireAuth(ctx) && a.Auth.RequireAdmin(ctx)
}

// withApp opens the console for one command.
func withApp(fn func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd.Context(), a, args)
	}
}

func prompt(label string) (string, error) {
	fmt.Fprint(os.Stderr, label)
	line, err := stdin.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func promptPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return prompt("")
	}
	fmt.Fprint(os.Stderr, "Password: ")
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(pw), nil
}

func credentials(email, password string) (string, string, error) {
	var err error
	if email == "" {
		if email, err = prompt("Email: "); err != nil {
			return "", "", err
		}
	}
	if password == "" {
		if password, err = promptPassword(); err != nil {
			return "", "", err
		}
	}
	if email == "" || password == "" {
		return "", "", fmt.Errorf("email and password are required")
	}
	return email, password, nil
}

// loginCmd creates the login command
func loginCmd() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
			return runLogin(ctx, a, email, password)
		}),
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email (prompted when empty)")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Account password (prompted when empty)")

	return cmd
}

func runLogin(ctx context.Context, a *app, email, password string) error {
	email, password, err := credentials(email, password)
	if err != nil {
		return err
	}
	res := a.Auth.Login(ctx, email, password)
	if !res.Success {
		a.view.Alert(console.AlertError, res.Error)
		return errReported
	}
	printSignedIn(ctx, a)
	return nil
}

func printSignedIn(ctx context.Context, a *app) {
	user := a.Auth.GetUser(ctx)
	if user == nil {
		fmt.Println("✓ Logged in")
		return
	}
	fmt.Printf("✓ Logged in as %s (%s)\n", user.Email, user.Role)
	switch a.Auth.RedirectToDashboard(ctx) {
	case nav.AdminDashboard:
		fmt.Println("Run 'ransxm keys list' to manage license keys.")
	case nav.UserDashboard:
		fmt.Println("Run 'ransxm whoami --remote' or 'ransxm my-logs' to see your account.")
	}
}

// registerCmd creates the register command
func registerCmd() *cobra.Command {
	var email, password, key string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account bound to a license key",
		RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
			email, password, err := credentials(email, password)
			if err != nil {
				return err
			}
			res := a.Auth.Register(ctx, email, password, key)
			if !res.Success {
				a.view.Alert(console.AlertError, res.Error)
				return errReported
			}
			printSignedIn(ctx, a)
			return nil
		}),
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email (prompted when empty)")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Account password (prompted when empty)")
	cmd.Flags().StringVarP(&key, "key", "k", "", "License key to bind")

	return cmd
}

// logoutCmd creates the logout command
func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the stored session",
		RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
			a.Auth.Logout(ctx)
			fmt.Println("✓ Logged out")
			return nil
		}),
	}
}

// whoamiCmd creates the whoami command
func whoamiCmd() *cobra.Command {
	var remote bool

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
			if !a.Auth.RequireAuth(ctx) {
				return a.done(ctx, false)
			}
			if remote {
				_, ok := a.Account.LoadIdentity(ctx)
				return a.done(ctx, ok)
			}
			a.view.RenderIdentity(a.Auth.GetUser(ctx))
			if exp, ok := a.Auth.TokenExpiry(ctx); ok {
				fmt.Printf("Session expires %s (%s)\n", humanize.Time(exp), exp.Local().Format("2006-01-02 15:04"))
			}
			return nil
		}),
	}

	cmd.Flags().BoolVar(&remote, "remote", false, "Ask the service instead of the stored session")

	return cmd
}

// statsCmd creates the stats command
func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show dashboard statistics",
		RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
			if !a.requireAdmin(ctx) {
				return a.done(ctx, false)
			}
			return a.done(ctx, a.Admin.LoadStats(ctx))
		}),
	}
}

// myLogsCmd creates the my-logs command
func myLogsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "my-logs",
		Short: "Show usage logs of your keys",
		RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
			if !a.Auth.RequireAuth(ctx) {
				return a.done(ctx, false)
			}
			return a.done(ctx, a.Account.LoadMyLogs(ctx))
		}),
	}
}

// shellCmd creates the interactive shell command
func shellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Open the interactive console",
		Long: `Open the interactive console for the signed-in account.

Admins start on the key dashboard; every dashboard action is a command
(type 'help'). 'search <text>' is debounced like typing in the search box.`,
		RunE: withApp(runShell),
	}
}

func runShell(ctx context.Context, a *app, _ []string) error {
	if !a.Auth.RequireAuth(ctx) {
		return a.done(ctx, false)
	}
	if a.Auth.IsAdmin(ctx) {
		a.Keys.Init(ctx)
	} else {
		a.Account.Init(ctx)
	}

	r := a.Registry(ctx)
	quit := false
	r.MustRegister("help", "help", "List commands", func(context.Context, []string) error {
		for _, c := range r.Commands() {
			fmt.Printf("  %-50s %s\n", c.Usage, c.Help)
		}
		return nil
	})
	r.MustRegister("whoami", "whoami", "Show the signed-in account", func(ctx context.Context, _ []string) error {
		a.view.RenderIdentity(a.Auth.GetUser(ctx))
		return nil
	})
	r.MustRegister("logout", "logout", "Sign out and leave the console", func(ctx context.Context, _ []string) error {
		a.Auth.Logout(ctx)
		quit = true
		return nil
	})
	leave := func(context.Context, []string) error {
		quit = true
		return nil
	}
	r.MustRegister("exit", "exit", "Leave the console", leave)
	r.MustRegister("quit", "quit", "Leave the console", leave)

	interactive := render.IsTerminal(os.Stdout)
	scanner := bufio.NewScanner(stdin)
	for !quit {
		if interactive {
			fmt.Print("ransxm> ")
		}
		if !scanner.Scan() {
			break
		}
		if err := r.Dispatch(ctx, scanner.Text()); err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		if !a.Auth.IsLoggedIn(ctx) {
			fmt.Fprintln(os.Stderr, "Session ended.")
			break
		}
		if ctx.Err() != nil {
			break
		}
	}
	if a.Auth.IsLoggedIn(ctx) && ctx.Err() == nil {
		a.Keys.FlushSearch()
	} else {
		a.Keys.StopSearch()
	}
	return scanner.Err()
}
