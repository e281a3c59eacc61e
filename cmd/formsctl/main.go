// Command formsctl reviews exception forms from the terminal.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"exceptionforms/client"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// app holds what every subcommand needs once the root flags are parsed.
type app struct {
	client *client.Client
	out    io.Writer
	in     io.Reader
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "formsctl:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, in io.Reader, out io.Writer) error {
	root := newRootCmd(in, out)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	var (
		server      string
		sessionPath string
	)
	a := &app{out: out, in: in}

	root := &cobra.Command{
		Use:   "formsctl",
		Short: "Review overtime exception forms",
		Long: `Review overtime exception forms.

The server defaults to $FORMSCTL_SERVER or http://localhost:8080. The login
session is kept in the user config directory unless --session is given.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			path := sessionPath
			if path == "" {
				p, err := client.DefaultSessionPath()
				if err != nil {
					return err
				}
				path = p
			}
			c, err := client.New(server, client.WithSessionStore(client.NewSessionStore(path)))
			if err != nil {
				return err
			}
			a.client = c
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = cmd.Help()
			return errors.New("missing command")
		},
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(out)

	root.PersistentFlags().StringVar(&server, "server", envOr("FORMSCTL_SERVER", "http://localhost:8080"), "API base URL")
	root.PersistentFlags().StringVar(&sessionPath, "session", "", "session file (default under the user config dir)")

	root.AddCommand(
		a.loginCmd(),
		a.logoutCmd(),
		a.registerCmd(),
		a.passwdCmd(),
		a.dashboardCmd(),
		a.showCmd(),
		a.saveCmd(),
		a.deleteCmd(),
		a.uploadCmd(),
		a.exportCmd(),
		a.auditCmd(),
		a.modeCmd(),
	)
	return root
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
