package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
	"gorm.io/gorm"

	"fintrack/internal/auth"
	"fintrack/internal/config"
	"fintrack/internal/db"
	"fintrack/internal/model"
	"fintrack/internal/repository"
)

// openFunc returns the credential store the command writes to.
type openFunc func() (repository.UserRepository, error)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr, openDatabase); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func openDatabase() (repository.UserRepository, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	gormDB, err := db.Open(cfg.DBDriver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := gormDB.AutoMigrate(&model.User{}); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return repository.NewUserRepository(gormDB), nil
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer, open openFunc) error {
	fs := flag.NewFlagSet("adduser", flag.ContinueOnError)
	fs.SetOutput(stderr)

	username := fs.String("user", "", "Username")
	email := fs.String("email", "", "Email address")
	passwordFlag := fs.String("password", "", "Password (optional, will prompt if omitted)")
	admin := fs.Bool("admin", false, "Grant administrator rights")

	if err := fs.Parse(args); err != nil {
		return err
	}

	var missing []string
	if *username == "" {
		missing = append(missing, "user")
	}
	if *email == "" {
		missing = append(missing, "email")
	}
	if len(missing) > 0 {
		fmt.Fprintln(stdout, "Usage: adduser -user <username> -email <email> [-password <password>] [-admin]")
		fs.PrintDefaults()
		return fmt.Errorf("missing required flags: %s", strings.Join(missing, ", "))
	}

	password := *passwordFlag
	if password == "" {
		fmt.Fprint(stdout, "Password: ")
		var err error
		password, err = readPassword(stdin)
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(stdout)
	}

	if strings.TrimSpace(password) == "" {
		return fmt.Errorf("password cannot be empty")
	}

	users, err := open()
	if err != nil {
		return err
	}

	ctx := context.Background()
	normalizedEmail := strings.ToLower(strings.TrimSpace(*email))
	if _, err := users.FindByUsername(ctx, *username); err == nil {
		return fmt.Errorf("user %s already exists", *username)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to look up user: %w", err)
	}
	if _, err := users.FindByEmail(ctx, normalizedEmail); err == nil {
		return fmt.Errorf("email %s already exists", normalizedEmail)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to look up email: %w", err)
	}

	hash, err := auth.NewBcryptHasher(0).Hash(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		Username:     *username,
		Email:        normalizedEmail,
		PasswordHash: hash,
		IsActive:     true,
		IsAdmin:      *admin,
	}
	if err := users.Create(ctx, user); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	role := "user"
	if user.IsAdmin {
		role = "admin"
	}
	fmt.Fprintf(stdout, "User %s created successfully with ID %s (%s)\n", user.Username, user.ID, role)
	return nil
}

func readPassword(stdin io.Reader) (string, error) {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		bytePassword, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(bytePassword), nil
	}

	// Pipes and tests.
	scanner := bufio.NewScanner(stdin)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}
