// Command flagctl is a manual smoke-test CLI for the flagkit client: it
// resolves one flag or sends one capture event against the configured
// project, then exits. It is not a flag-management surface (spec §6
// excludes that from the core).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	flagkit "github.com/flagkit/flagkit-go"
	"github.com/flagkit/flagkit-go/internal/envconfig"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := envconfig.Load()
	if err != nil {
		fail("load config: %v", err)
	}

	client, err := flagkit.NewClient(flagkit.Config{
		ProjectAPIKey:           cfg.ProjectAPIKey,
		PersonalAPIKey:          cfg.PersonalAPIKey,
		HostURL:                 cfg.HostURL,
		FeatureFlagPollInterval: cfg.PollInterval,
		FlushInterval:           cfg.FlushInterval,
	})
	if err != nil {
		fail("build client: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch os.Args[1] {
	case "flag":
		runFlag(ctx, client, os.Args[2:])
	case "capture":
		runCapture(ctx, client, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func runFlag(ctx context.Context, client *flagkit.Client, args []string) {
	fs := flag.NewFlagSet("flag", flag.ExitOnError)
	onlyLocal := fs.Bool("only-local", false, "never fall back to the remote decision endpoint")
	fs.Parse(args)
	if fs.NArg() != 2 {
		fail("usage: flagctl flag [-only-local] <key> <distinct-id>")
	}
	key, distinctID := fs.Arg(0), fs.Arg(1)

	result, err := client.GetFeatureFlag(ctx, distinctID, key, nil, nil, *onlyLocal)
	if err != nil {
		fail("resolve flag: %v", err)
	}
	fmt.Printf("key=%s enabled=%t variant=%q\n", result.Key, result.Enabled, result.VariantKey)
}

func runCapture(ctx context.Context, client *flagkit.Client, args []string) {
	fs := flag.NewFlagSet("capture", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 2 {
		fail("usage: flagctl capture <event> <distinct-id>")
	}
	event, distinctID := fs.Arg(0), fs.Arg(1)

	client.Capture(ctx, distinctID, event, nil, nil, false)
	client.Flush()
	fmt.Printf("captured event=%s distinct_id=%s\n", event, distinctID)
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: flagctl <flag|capture> ...")
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
