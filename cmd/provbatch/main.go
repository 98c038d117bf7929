// Command provbatch runs a bounded-concurrency provisioning batch against an
// external provider CLI or a remote provisioning API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jojo552/provbatch"
)

func main() {
	var (
		mode        = flag.String("mode", "provision", "Batch mode: provision or teardown")
		count       = flag.Int("n", 1, "Number of resources to provision (provision mode)")
		idsFile     = flag.String("ids", "", "Path to a newline-delimited resource ID list")
		prefix      = flag.String("prefix", "provbatch", "Prefix for generated resource IDs")
		concurrency = flag.Int("concurrency", 4, "Maximum simultaneously running tasks")
		outputDir   = flag.String("out", "", "Parent directory for session output (default: temp dir)")
		attempts    = flag.Int("attempts", 3, "Attempts per step")
		baseDelay   = flag.Duration("base-delay", 2*time.Second, "Base backoff delay between attempts")
		field       = flag.String("field", "credential", "JSON field holding the issued credential")
		verbose     = flag.Bool("v", false, "Enable debug logging")

		command    = flag.String("cli", "", "Provider CLI binary (enables the CLI provider)")
		createArgs = flag.String("create-args", "", "Space-separated create argument template, {id} expands")
		enableArgs = flag.String("enable-args", "", "Space-separated enable argument template")
		issueArgs  = flag.String("issue-args", "", "Space-separated issue argument template")
		deleteArgs = flag.String("delete-args", "", "Space-separated delete argument template")

		baseURL = flag.String("url", "", "Provisioning API base URL (enables the HTTP provider)")
	)
	flag.Parse()

	console := zerolog.ConsoleWriter{Out: os.Stderr}
	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	log.Logger = log.Output(console).Level(level)

	provider, err := buildProvider(*command, *baseURL, *createArgs, *enableArgs, *issueArgs, *deleteArgs)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid provider configuration")
	}

	cfg := provbatch.Config{
		Count:       *count,
		Prefix:      *prefix,
		Concurrency: *concurrency,
		Retry: provbatch.Policy{
			MaxAttempts: *attempts,
			BaseDelay:   *baseDelay,
			Jitter:      true,
		},
		Provider:   provider,
		Extract:    provbatch.JSONFieldExtractor(*field),
		OutputDir:  *outputDir,
		ConsoleLog: console,
	}

	switch *mode {
	case "provision":
		cfg.Mode = provbatch.Provision
	case "teardown":
		cfg.Mode = provbatch.Teardown
	default:
		log.Fatal().Str("mode", *mode).Msg("unknown mode")
	}

	if *idsFile != "" {
		ids, err := readIDs(*idsFile)
		if err != nil {
			log.Fatal().Err(err).Str("path", *idsFile).Msg("failed to read ID list")
		}
		cfg.IDs = ids
	}

	batch, err := provbatch.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid batch configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := batch.Run(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("batch failed")
	}

	fmt.Printf("succeeded: %d, failed: %d (of %d admitted)\n",
		summary.Succeeded, summary.Failed, summary.Admitted)
	fmt.Printf("artifacts: %s\n", summary.ArtifactLinesPath)
	fmt.Printf("joined:    %s\n", summary.ArtifactJoinedPath)
	fmt.Printf("log:       %s\n", summary.LogPath)
}

// buildProvider selects the CLI or HTTP provider from the flag set.
func buildProvider(command, baseURL, create, enable, issue, del string) (provbatch.Provider, error) {
	switch {
	case command != "" && baseURL != "":
		return nil, fmt.Errorf("-cli and -url are mutually exclusive")
	case command != "":
		p := &provbatch.CLIProvider{
			Command:    command,
			CreateArgs: strings.Fields(create),
			EnableArgs: strings.Fields(enable),
			IssueArgs:  strings.Fields(issue),
			DeleteArgs: strings.Fields(del),
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		return p, nil
	case baseURL != "":
		p := &provbatch.HTTPProvider{BaseURL: strings.TrimSuffix(baseURL, "/")}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("one of -cli or -url is required")
	}
}

// readIDs loads a newline-delimited ID list, skipping blanks.
func readIDs(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ids []string
	for line := range strings.Lines(string(data)) {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			ids = append(ids, trimmed)
		}
	}
	return ids, nil
}
