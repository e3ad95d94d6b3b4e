package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/airwatch-iot/gasmon/internal/app"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "override config path (optional)")
	prefsPath := flag.String("prefs", "", "override prefs path (optional)")
	email := flag.String("email", "", "account email; defaults to the last one used")
	password := flag.String("password", "", "log in with this password before starting (or set GASMON_PASSWORD)")
	logout := flag.Bool("logout", false, "forget the stored login and exit")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	opts := app.Options{
		ConfigPath: *configPath,
		PrefsPath:  *prefsPath,
		Email:      *email,
		Password:   *password,
	}
	if *logout {
		if err := app.Logout(opts); err != nil {
			fmt.Fprintf(os.Stderr, "gasmon: %v\n", err)
			return 1
		}
		fmt.Println("gasmon: logged out")
		return 0
	}
	if opts.Password == "" {
		opts.Password = os.Getenv("GASMON_PASSWORD")
	}

	if err := app.Run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "gasmon: %v\n", err)
		return 1
	}
	return 0
}
