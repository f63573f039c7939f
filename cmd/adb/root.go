package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pion/logging"
	"github.com/spf13/cobra"

	"github.com/droidlink/droidlink/pkg/adb"
	"github.com/droidlink/droidlink/pkg/auth"
	"github.com/droidlink/droidlink/pkg/host"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

var (
	serverAddress string
	deviceAddress string
	keyPaths      []string
	verbose       bool
)

var rootCmd = &cobra.Command{
	Use:           "adb",
	Short:         "Debug bridge client for Android devices",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&serverAddress, "server", host.DefaultAddress, "host server address")
	pf.StringVarP(&deviceAddress, "device", "d", "", "device TCP address (host:port)")
	pf.StringArrayVarP(&keyPaths, "key", "k", nil, "private key file (repeatable)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError{err}
	})
}

// usageError marks argument and flag mistakes so run can exit 2.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

// exactArgs is cobra.ExactArgs with the usage exit code attached.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return usageError{fmt.Errorf("%q needs %d argument(s), got %d", cmd.Name(), n, len(args))}
		}
		return nil
	}
}

// minimumArgs is cobra.MinimumNArgs with the usage exit code attached.
func minimumArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) < n {
			return usageError{fmt.Errorf("%q needs at least %d argument(s), got %d", cmd.Name(), n, len(args))}
		}
		return nil
	}
}

func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetArgs(args)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "adb: %v\n", err)
		var ue usageError
		if errors.As(err, &ue) {
			return exitUsage
		}
		return exitFailure
	}
	return exitOK
}

// loggerFactory builds the shared factory, nil unless --verbose.
func loggerFactory() logging.LoggerFactory {
	if !verbose {
		return nil
	}
	factory := logging.NewDefaultLoggerFactory()
	factory.DefaultLogLevel = logging.LogLevelDebug
	return factory
}

// serverClient builds a host server client from the global flags.
func serverClient() *host.Client {
	return host.NewClient(host.ClientConfig{
		Address:       serverAddress,
		LoggerFactory: loggerFactory(),
	})
}

// dialDevice connects and authenticates against --device.
func dialDevice(ctx context.Context) (*adb.Client, error) {
	if deviceAddress == "" {
		return nil, usageError{errors.New("no device address, pass --device host:port")}
	}

	ks, err := auth.NewKeyStore(auth.KeyStoreConfig{
		KeyPaths:      keyPaths,
		Generate:      true,
		LoggerFactory: loggerFactory(),
	})
	if err != nil {
		return nil, err
	}

	return adb.Dial(ctx, adb.Config{
		Address:       deviceAddress,
		Signers:       ks.Signers(),
		LoggerFactory: loggerFactory(),
	})
}
