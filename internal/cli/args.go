package cli

import (
	"flag"
	"io"

	"github.com/dmitrijs2005/accountkeeper/internal/flagx"
)

// configValueFlags are the server configuration flags that take a value;
// they are skipped when looking for the subcommand.
var configValueFlags = []string{"-c", "-config", "-a", "-D", "-d", "-s", "-t", "-r", "-m", "-l", "-f"}

var ownFlags = []string{"-email", "-name", "-noinput"}

// ParseArgs finds the subcommand in args and parses the command's own
// flags. Configuration flags may appear anywhere and are ignored here.
func ParseArgs(args []string) (string, Options, error) {
	var opts Options

	positional := flagx.Positional(args, append(configValueFlags, "-email", "-name"))
	if len(positional) != 1 {
		return "", opts, ErrUsage
	}

	fs := flag.NewFlagSet("accountctl", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&opts.Email, "email", "", "account email")
	fs.StringVar(&opts.Name, "name", "", "display name")
	fs.BoolVar(&opts.NoInput, "noinput", false, "do not prompt; read the password from "+PasswordEnv)

	// FilterArgs may pair a bool flag with the following token; skip such
	// strays and keep parsing.
	rest := flagx.FilterArgs(args, ownFlags)
	for {
		if err := fs.Parse(rest); err != nil {
			return "", opts, err
		}
		if fs.NArg() == 0 {
			break
		}
		rest = fs.Args()[1:]
	}
	return positional[0], opts, nil
}
