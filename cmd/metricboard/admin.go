package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"syscall"
	"text/tabwriter"

	"golang.org/x/term"

	"github.com/CivStat/MetricBoard/internal/adapter/postgres"
	"github.com/CivStat/MetricBoard/internal/config"
	"github.com/CivStat/MetricBoard/internal/domain/sector"
	"github.com/CivStat/MetricBoard/internal/domain/user"
	"github.com/CivStat/MetricBoard/internal/service"
)

// runAdmin dispatches admin subcommands (create-user, reset-password,
// list-users, create-sector).
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "create-user":
		return runAdminCreateUser(args[1:])
	case "reset-password":
		return runAdminResetPassword(args[1:])
	case "list-users":
		return runAdminListUsers(args[1:])
	case "create-sector":
		return runAdminCreateSector(args[1:])
	case "unsubmit":
		return runAdminUnsubmit(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: metricboard admin <command> [options]

Commands:
  create-user      Create a new user
  reset-password   Reset a user's password
  list-users       List all users
  create-sector    Create a new sector
  unsubmit         Reset a submitted metric table back to draft
  help             Show this help message

Examples:
  metricboard admin create-user --email stats@transport.gov --name "Transport Analyst" --agency transport
  metricboard admin create-user --email admin@localhost --name "Admin" --admin
  metricboard admin reset-password --email admin@localhost
  metricboard admin create-sector --name "Road Transport" --agency transport
  metricboard admin unsubmit --id 7d0f7c2e-1f3a-4b54-9a37-0a4f4d2f9f21
  metricboard admin list-users
`)
}

type adminDeps struct {
	auth    *service.AuthService
	sectors *service.SectorService
	metrics *service.MetricsService
	cleanup func()
}

func loadAdminDeps() (*adminDeps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	store := postgres.NewStore(pool)
	return &adminDeps{
		auth:    service.NewAuthService(store, &cfg.Auth),
		sectors: service.NewSectorService(store),
		metrics: service.NewMetricsService(store, nil, nil, nil, nil, cfg.Apply, cfg.Cache),
		cleanup: pool.Close,
	}, nil
}

func runAdminCreateUser(args []string) error {
	fs := flag.NewFlagSet("create-user", flag.ContinueOnError)
	email := fs.String("email", "", "user email address (required)")
	name := fs.String("name", "", "user display name (required)")
	password := fs.String("password", "", "password (prompted if not provided)") //nolint:gosec // CLI flag
	agency := fs.String("agency", "", "agency ID (required for agency users)")
	admin := fs.Bool("admin", false, "grant admin role")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *email == "" {
		return fmt.Errorf("--email is required")
	}
	if *name == "" {
		return fmt.Errorf("--name is required")
	}
	if !*admin && *agency == "" {
		return fmt.Errorf("--agency is required for non-admin users")
	}

	pass := *password
	if pass == "" {
		var err error
		pass, err = promptPassword("Password: ")
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		confirm, err := promptPassword("Confirm password: ")
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		if pass != confirm {
			return fmt.Errorf("passwords do not match")
		}
	}

	role := user.RoleAgency
	if *admin {
		role = user.RoleAdmin
	}

	deps, err := loadAdminDeps()
	if err != nil {
		return err
	}
	defer deps.cleanup()

	u, err := deps.auth.Register(context.Background(), &user.CreateRequest{
		Email:    *email,
		Name:     *name,
		Password: pass,
		Role:     role,
		AgencyID: *agency,
	})
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	fmt.Fprintf(os.Stderr, "User created: %s (id=%s, role=%s)\n", u.Email, u.ID, u.Role)
	return nil
}

func runAdminResetPassword(args []string) error {
	fs := flag.NewFlagSet("reset-password", flag.ContinueOnError)
	email := fs.String("email", "", "user email address (required)")
	password := fs.String("password", "", "new password (prompted if not provided)") //nolint:gosec // CLI flag
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *email == "" {
		return fmt.Errorf("--email is required")
	}

	newPass := *password
	if newPass == "" {
		var err error
		newPass, err = promptPassword("New password: ")
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		confirm, err := promptPassword("Confirm password: ")
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		if newPass != confirm {
			return fmt.Errorf("passwords do not match")
		}
	}

	deps, err := loadAdminDeps()
	if err != nil {
		return err
	}
	defer deps.cleanup()

	if err := deps.auth.ResetPassword(context.Background(), *email, newPass); err != nil {
		return fmt.Errorf("reset password: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Password reset successfully for %s\n", *email)
	return nil
}

func runAdminListUsers(args []string) error {
	fs := flag.NewFlagSet("list-users", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	deps, err := loadAdminDeps()
	if err != nil {
		return err
	}
	defer deps.cleanup()

	users, err := deps.auth.ListUsers(context.Background())
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	if len(users) == 0 {
		fmt.Println("No users found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tEMAIL\tNAME\tROLE\tAGENCY\tENABLED")
	for i := range users {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%t\n",
			users[i].ID, users[i].Email, users[i].Name, users[i].Role, users[i].AgencyID, users[i].Enabled)
	}
	return w.Flush()
}

func runAdminCreateSector(args []string) error {
	fs := flag.NewFlagSet("create-sector", flag.ContinueOnError)
	name := fs.String("name", "", "sector display name (required)")
	agency := fs.String("agency", "", "owning agency ID (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *name == "" {
		return fmt.Errorf("--name is required")
	}
	if *agency == "" {
		return fmt.Errorf("--agency is required")
	}

	deps, err := loadAdminDeps()
	if err != nil {
		return err
	}
	defer deps.cleanup()

	admin := &user.User{Role: user.RoleAdmin}
	s, err := deps.sectors.Create(context.Background(), admin, &sector.CreateRequest{
		Name:     *name,
		AgencyID: *agency,
	})
	if err != nil {
		return fmt.Errorf("create sector: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Sector created: %s (id=%s, agency=%s)\n", s.Name, s.ID, s.AgencyID)
	return nil
}

func runAdminUnsubmit(args []string) error {
	fs := flag.NewFlagSet("unsubmit", flag.ContinueOnError)
	id := fs.String("id", "", "metric table ID (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *id == "" {
		return fmt.Errorf("--id is required")
	}

	deps, err := loadAdminDeps()
	if err != nil {
		return err
	}
	defer deps.cleanup()

	admin := &user.User{Role: user.RoleAdmin}
	m, err := deps.metrics.Unsubmit(context.Background(), admin, *id)
	if err != nil {
		return fmt.Errorf("unsubmit: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Metric table %s (%s) is back in draft\n", m.ID, m.TableName)
	return nil
}

// promptPassword reads a password from the terminal without echoing.
func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin)) //nolint:unconvert // int conversion needed on some platforms
	fmt.Fprintln(os.Stderr) // newline after password input
	if err != nil {
		return "", err
	}
	return string(b), nil
}
