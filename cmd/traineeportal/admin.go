package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aliuyar1234/traineeportal/internal/app"
	"github.com/aliuyar1234/traineeportal/internal/audit"
	"github.com/aliuyar1234/traineeportal/internal/cohorts"
	"github.com/aliuyar1234/traineeportal/internal/config"
	"github.com/aliuyar1234/traineeportal/internal/db"
	"github.com/aliuyar1234/traineeportal/internal/identity"
	"github.com/aliuyar1234/traineeportal/internal/invites"
	"github.com/aliuyar1234/traineeportal/internal/profiles"
	"github.com/aliuyar1234/traineeportal/internal/signup"
	"github.com/aliuyar1234/traineeportal/internal/validation"
	"github.com/jackc/pgx/v5/pgxpool"
)

const adminTimeout = 30 * time.Second

func runAdmin(args []string) int {
	if len(args) == 0 {
		printAdminUsage()
		return 2
	}

	switch args[0] {
	case "migrate":
		return runMigrate(args[1:])
	case "create-staff":
		return runCreateStaff(args[1:])
	case "reset-password":
		return runResetPassword(args[1:])
	case "issue-invite":
		return runIssueInvite(args[1:])
	case "repair-profile":
		return runRepairProfile(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown admin command: %s\n", args[0])
		printAdminUsage()
		return 2
	}
}

func printAdminUsage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  traineeportal admin migrate [--db-dsn <dsn>] [--dry-run]")
	fmt.Fprintln(os.Stderr, "  traineeportal admin create-staff --email a@b.c --name \"First Last\" [--password <pw>] [--admin] [--db-dsn <dsn>]")
	fmt.Fprintln(os.Stderr, "  traineeportal admin reset-password --email a@b.c [--password <new>] [--db-dsn <dsn>]")
	fmt.Fprintln(os.Stderr, "  traineeportal admin issue-invite --email a@b.c [--cohort <id|name>] [--days N] [--send]")
	fmt.Fprintln(os.Stderr, "  traineeportal admin repair-profile --email a@b.c --name \"First Last\" [--cohort <id|name>] [--token <tpi_...>] [--db-dsn <dsn>]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Notes:")
	fmt.Fprintln(os.Stderr, "  - If --password is omitted, a random password is generated and printed.")
	fmt.Fprintln(os.Stderr, "  - --db-dsn defaults to TP_DB_DSN. issue-invite reads the full TP_* configuration.")
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) (int, bool) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0, false
		}
		return 2, false
	}
	return 0, true
}

func resolveDSN(dsn string) (string, error) {
	if dsn == "" {
		dsn = strings.TrimSpace(os.Getenv("TP_DB_DSN"))
	}
	if dsn == "" {
		return "", fmt.Errorf("--db-dsn is required (or set TP_DB_DSN)")
	}
	return dsn, nil
}

func openPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	dsn, err := resolveDSN(dsn)
	if err != nil {
		return nil, err
	}
	return db.Connect(ctx, dsn, db.PoolOptions{MaxConns: 4, MinConns: 1})
}

func runMigrate(args []string) int {
	fs := newFlagSet("migrate")
	var dbDSN string
	var dryRun bool
	fs.StringVar(&dbDSN, "db-dsn", "", "Postgres DSN (defaults to TP_DB_DSN)")
	fs.BoolVar(&dryRun, "dry-run", false, "List pending migrations without applying them")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := openPool(ctx, dbDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	pending, err := db.PendingMigrations(ctx, pool)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list migrations: %v\n", err)
		return 1
	}
	for _, name := range pending {
		fmt.Fprintf(os.Stdout, "pending: %s\n", name)
	}
	if dryRun || len(pending) == 0 {
		fmt.Fprintf(os.Stdout, "%d migration(s) pending.\n", len(pending))
		return 0
	}

	if err := db.RunMigrations(ctx, pool); err != nil {
		fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
		return 1
	}
	fmt.Fprintf(os.Stdout, "Applied %d migration(s).\n", len(pending))
	return 0
}

func runCreateStaff(args []string) int {
	fs := newFlagSet("create-staff")
	var email, name, password, dbDSN string
	var admin bool
	fs.StringVar(&email, "email", "", "Staff email")
	fs.StringVar(&name, "name", "", "Display name")
	fs.StringVar(&password, "password", "", "Password (if empty, generates one)")
	fs.BoolVar(&admin, "admin", false, "Grant the admin role instead of staff")
	fs.StringVar(&dbDSN, "db-dsn", "", "Postgres DSN (defaults to TP_DB_DSN)")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	password, generated, err := passwordOrGenerate(password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to generate password: %v\n", err)
		return 1
	}

	role := profiles.RoleStaff
	if admin {
		role = profiles.RoleAdmin
	}

	ctx, cancel := context.WithTimeout(context.Background(), adminTimeout)
	defer cancel()

	pool, err := openPool(ctx, dbDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	d := newAdminDeps(pool)
	profile, err := createStaff(ctx, d, email, password, name, role)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create staff account: %v\n", err)
		return 1
	}

	fmt.Fprintf(os.Stdout, "Created %s account %s (%s).\n", profile.Role, profile.Email, profile.IdentityID)
	if generated {
		fmt.Fprintln(os.Stdout, password)
	}
	return 0
}

func runResetPassword(args []string) int {
	fs := newFlagSet("reset-password")
	var email, password, dbDSN string
	fs.StringVar(&email, "email", "", "User email")
	fs.StringVar(&password, "password", "", "New password (if empty, generates one)")
	fs.StringVar(&dbDSN, "db-dsn", "", "Postgres DSN (defaults to TP_DB_DSN)")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	email = strings.TrimSpace(email)
	if email == "" {
		fmt.Fprintln(os.Stderr, "--email is required")
		return 2
	}

	password, generated, err := passwordOrGenerate(password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to generate password: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), adminTimeout)
	defer cancel()

	pool, err := openPool(ctx, dbDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	if err := resetPassword(ctx, newAdminDeps(pool), email, password); err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			fmt.Fprintf(os.Stderr, "No user found with email %q\n", email)
			return 1
		}
		fmt.Fprintf(os.Stderr, "Failed to update password: %v\n", err)
		return 1
	}

	fmt.Fprintln(os.Stdout, "Password updated.")
	if generated {
		fmt.Fprintln(os.Stdout, password)
	}
	return 0
}

func runIssueInvite(args []string) int {
	fs := newFlagSet("issue-invite")
	var email, cohortRef string
	var days int
	var send bool
	fs.StringVar(&email, "email", "", "Invitee email")
	fs.StringVar(&cohortRef, "cohort", "", "Cohort id or name")
	fs.IntVar(&days, "days", 0, "Validity in days (defaults to TP_INVITE_DAYS)")
	fs.BoolVar(&send, "send", false, "Email the sign-up link")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), adminTimeout)
	defer cancel()

	pool, err := openPool(ctx, cfg.DBDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	notifier, err := app.NewNotifier(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	svc := app.NewServices(cfg, pool, notifier)

	d := newAdminDeps(pool)
	d.invites = svc.Invites
	d.dispatcher = svc.Dispatcher

	if err := issueInvite(ctx, d, os.Stdout, email, cohortRef, days, send); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to issue invitation: %v\n", err)
		return 1
	}
	return 0
}

func runRepairProfile(args []string) int {
	fs := newFlagSet("repair-profile")
	var email, name, cohortRef, token, dbDSN string
	fs.StringVar(&email, "email", "", "Email of the identity missing a profile")
	fs.StringVar(&name, "name", "", "Display name")
	fs.StringVar(&cohortRef, "cohort", "", "Cohort id or name")
	fs.StringVar(&token, "token", "", "Invitation token to mark used once the profile exists")
	fs.StringVar(&dbDSN, "db-dsn", "", "Postgres DSN (defaults to TP_DB_DSN)")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	ctx, cancel := context.WithTimeout(context.Background(), adminTimeout)
	defer cancel()

	pool, err := openPool(ctx, dbDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	d := newAdminDeps(pool)
	d.invites = invites.NewService(invites.NewPostgresStore(pool), invites.Options{})

	if err := repairProfile(ctx, d, os.Stdout, email, name, cohortRef, token); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to repair profile: %v\n", err)
		return 1
	}
	return 0
}

// adminDeps are the services the admin commands operate on.
type adminDeps struct {
	identities *identity.Service
	profiles   profiles.Store
	cohorts    *cohorts.Service
	invites    *invites.Service
	dispatcher *invites.Dispatcher
	auditor    *audit.Writer
}

func newAdminDeps(pool *pgxpool.Pool) *adminDeps {
	return &adminDeps{
		identities: identity.NewService(identity.NewPostgresStore(pool), identity.BcryptCost),
		profiles:   profiles.NewPostgresStore(pool),
		cohorts:    cohorts.NewService(cohorts.NewPostgresStore(pool)),
		auditor:    audit.NewWriter(pool),
	}
}

func createStaff(ctx context.Context, d *adminDeps, email, password, name string, role profiles.Role) (*profiles.Profile, error) {
	name, err := validation.NormalizeName(name)
	if err != nil {
		return nil, fmt.Errorf("--name: %w", err)
	}

	ident, err := d.identities.CreateIdentity(ctx, email, password)
	if err != nil {
		return nil, err
	}

	first, last := signup.SplitDisplayName(name)
	profile, err := d.profiles.Insert(ctx, profiles.Profile{
		IdentityID: ident.ID,
		Email:      ident.Email,
		FirstName:  first,
		LastName:   last,
		Role:       role,
	})
	if err != nil {
		return nil, fmt.Errorf("identity %s created but profile insert failed (run repair-profile): %w", ident.ID, err)
	}

	if err := d.auditor.LogStaffCreated(ctx, ident.ID, ident.Email, string(role)); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to write audit log: %v\n", err)
	}
	return profile, nil
}

func resetPassword(ctx context.Context, d *adminDeps, email, password string) error {
	ident, err := d.identities.SetPassword(ctx, email, password)
	if err != nil {
		return err
	}
	if err := d.auditor.LogPasswordReset(ctx, ident.ID); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to write audit log: %v\n", err)
	}
	return nil
}

func issueInvite(ctx context.Context, d *adminDeps, out io.Writer, email, cohortRef string, days int, send bool) error {
	params := invites.IssueParams{Email: email, ValidityDays: days}
	if cohortRef != "" {
		cohort, err := d.cohorts.Resolve(ctx, cohortRef)
		if err != nil {
			return fmt.Errorf("cohort %q: %w", cohortRef, err)
		}
		params.CohortID = &cohort.ID
	}

	inv, err := d.invites.IssueToken(ctx, params)
	if err != nil {
		return err
	}
	if err := d.auditor.LogInviteIssued(ctx, nil, inv.ID, inv.Email, inv.CohortID); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to write audit log: %v\n", err)
	}

	fmt.Fprintf(out, "Invitation %s for %s expires %s\n", inv.ID, inv.Email, inv.ExpiresAt.Format(time.RFC3339))
	fmt.Fprintf(out, "token: %s\n", inv.Token)
	fmt.Fprintf(out, "link:  %s\n", d.dispatcher.SignupURL(inv.Token))

	if !send {
		return nil
	}

	res, err := d.dispatcher.Dispatch(ctx, inv)
	if err != nil {
		if auditErr := d.auditor.LogInviteDispatchFailed(ctx, nil, inv.ID, err.Error()); auditErr != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to write audit log: %v\n", auditErr)
		}
		fmt.Fprintf(out, "email: NOT SENT (%v); share the link manually\n", err)
		return nil
	}
	if err := d.auditor.LogInviteDispatched(ctx, nil, inv.ID, res.DeliveryID); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to write audit log: %v\n", err)
	}
	fmt.Fprintf(out, "email: sent (%s)\n", res.DeliveryID)
	return nil
}

// repairProfile finishes a registration that stopped after the identity was
// created: it inserts the missing trainee profile and, given the token,
// marks the invitation used.
func repairProfile(ctx context.Context, d *adminDeps, out io.Writer, email, name, cohortRef, token string) error {
	name, err := validation.NormalizeName(name)
	if err != nil {
		return fmt.Errorf("--name: %w", err)
	}

	ident, err := d.identities.Lookup(ctx, strings.TrimSpace(email))
	if err != nil {
		return err
	}

	var cohort *cohorts.Cohort
	if cohortRef != "" {
		cohort, err = d.cohorts.Resolve(ctx, cohortRef)
		if err != nil {
			return fmt.Errorf("cohort %q: %w", cohortRef, err)
		}
	}

	if existing, err := d.profiles.Get(ctx, ident.ID); err == nil {
		fmt.Fprintf(out, "Profile already present for %s (%s %s).\n", existing.Email, existing.FirstName, existing.LastName)
	} else if errors.Is(err, profiles.ErrNotFound) {
		first, last := signup.SplitDisplayName(name)
		p := profiles.Profile{
			IdentityID: ident.ID,
			Email:      ident.Email,
			FirstName:  first,
			LastName:   last,
			Role:       profiles.RoleTrainee,
		}
		if cohort != nil {
			p.CohortID = &cohort.ID
		}
		if _, err := d.profiles.Insert(ctx, p); err != nil {
			return err
		}
		if err := d.auditor.LogProfileRepaired(ctx, ident.ID); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to write audit log: %v\n", err)
		}
		fmt.Fprintf(out, "Profile created for %s.\n", ident.Email)
	} else {
		return err
	}

	if token == "" {
		return nil
	}
	inv, err := d.invites.GetTokenData(ctx, token)
	if err != nil {
		return fmt.Errorf("invitation: %w", err)
	}
	if inv.Email != ident.Email {
		return fmt.Errorf("invitation is bound to a different email")
	}
	if _, err := d.invites.MarkUsed(ctx, token); err != nil {
		return err
	}
	fmt.Fprintln(out, "Invitation marked used.")
	return nil
}

func passwordOrGenerate(password string) (string, bool, error) {
	if password != "" {
		return password, false, nil
	}
	pw, err := generatePassword(24)
	return pw, err == nil, err
}

func generatePassword(bytesLen int) (string, error) {
	if bytesLen < 8 {
		bytesLen = 8
	}

	b := make([]byte, bytesLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	// URL-safe, printable, without padding.
	return base64.RawURLEncoding.EncodeToString(b), nil
}
