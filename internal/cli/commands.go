// Package cli implements the account management commands: creating
// superusers and regular accounts from a terminal.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
)

// Subcommands.
const (
	CmdCreateSuperuser = "createsuperuser"
	CmdCreateUser      = "createuser"
)

// PasswordEnv supplies the password when prompting is disabled.
const PasswordEnv = "ACCOUNTS_PASSWORD"

// maxAttempts bounds the interactive retries of a single prompt.
const maxAttempts = 3

// ErrUsage reports an unknown or missing subcommand.
var ErrUsage = errors.New("usage: accountctl [flags] createsuperuser|createuser [-email addr] [-name name] [-noinput]")

// Directory is the part of the account directory the commands call.
type Directory interface {
	CreateAccount(ctx context.Context, email, password, name string) (*models.User, error)
	CreatePrivilegedAccount(ctx context.Context, email, password, name string) (*models.User, error)
	ValidatePassword(password string) error
}

// Options are the command-line values of a create command. Empty Email or
// Name are prompted for unless NoInput is set.
type Options struct {
	Email   string
	Name    string
	NoInput bool
}

// Runner executes management commands against a Directory.
type Runner struct {
	dir    Directory
	reader *bufio.Reader
	out    io.Writer
	getenv func(string) string
}

func NewRunner(dir Directory, in io.Reader, out io.Writer) *Runner {
	return &Runner{dir: dir, reader: bufio.NewReader(in), out: out, getenv: os.Getenv}
}

// Run executes the named subcommand.
func (r *Runner) Run(ctx context.Context, cmd string, opts Options) error {
	switch cmd {
	case CmdCreateSuperuser:
		return r.create(ctx, opts, true)
	case CmdCreateUser:
		return r.create(ctx, opts, false)
	default:
		return ErrUsage
	}
}

func (r *Runner) create(ctx context.Context, opts Options, privileged bool) error {
	email, name, password := opts.Email, opts.Name, ""

	if opts.NoInput {
		password = r.getenv(PasswordEnv)
		if email == "" {
			return common.NewValidationError("email", "email required")
		}
		if password == "" {
			return fmt.Errorf("%s must be set when -noinput is used", PasswordEnv)
		}
	} else {
		var err error
		if email == "" {
			if email, err = r.promptEmail(); err != nil {
				return err
			}
		}
		if name == "" {
			if name, err = GetSimpleText(r.reader, "Name (optional)", r.out); err != nil && !errors.Is(err, io.EOF) {
				return err
			}
		}
		if password, err = r.promptPassword(); err != nil {
			return err
		}
	}

	create := r.dir.CreateAccount
	if privileged {
		create = r.dir.CreatePrivilegedAccount
	}

	u, err := create(ctx, email, password, name)
	if err != nil {
		if errors.Is(err, common.ErrAlreadyExists) {
			return fmt.Errorf("an account with email %s already exists", email)
		}
		return err
	}

	kind := "Account"
	if privileged {
		kind = "Superuser"
	}
	fmt.Fprintf(r.out, "%s created successfully: %s\n", kind, u.Email)
	return nil
}

func (r *Runner) promptEmail() (string, error) {
	for i := 0; i < maxAttempts; i++ {
		email, err := GetSimpleText(r.reader, "Email address", r.out)
		if err != nil {
			return "", err
		}
		if email != "" {
			return email, nil
		}
		fmt.Fprintln(r.out, "Error: This field cannot be blank.")
	}
	return "", common.NewValidationError("email", "email required")
}

func (r *Runner) promptPassword() (string, error) {
	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		pw, err := GetPassword("Password: ", r.out)
		if err != nil {
			return "", err
		}
		again, err := GetPassword("Password (again): ", r.out)
		if err != nil {
			return "", err
		}
		if pw != again {
			lastErr = errors.New("passwords do not match")
			fmt.Fprintln(r.out, "Error: Your passwords didn't match.")
			continue
		}
		if err := r.dir.ValidatePassword(pw); err != nil {
			lastErr = err
			fmt.Fprintf(r.out, "Error: %v\n", err)
			continue
		}
		return pw, nil
	}
	return "", lastErr
}
