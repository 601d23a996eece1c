// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/repofetch/repofetch/internal/tui"
	"github.com/repofetch/repofetch/pkg/repofetch"
)

// RootOpts holds global CLI options.
type RootOpts struct {
	Token    string
	JSONOut  bool
	Quiet    bool
	Verbose  bool
	Config   string
	LogLevel string
}

// Execute runs the CLI with the given version string.
func Execute(version string) error {
	ro := &RootOpts{}
	ctx, cancel := signalContext(context.Background())
	defer cancel()

	root := &cobra.Command{
		Use:           "repofetch",
		Short:         "Concurrent, rate-limited, filterable repository downloader",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}

	root.PersistentFlags().StringVarP(&ro.Token, "token", "t", "", "access token for the remote API (also reads REPOFETCH_TOKEN env)")
	root.PersistentFlags().BoolVar(&ro.JSONOut, "json", false, "emit the final result as JSON instead of a human summary")
	root.PersistentFlags().BoolVarP(&ro.Quiet, "quiet", "q", false, "suppress the live progress bar")
	root.PersistentFlags().BoolVarP(&ro.Verbose, "verbose", "v", false, "debug-level logging")
	root.PersistentFlags().StringVar(&ro.Config, "config", "", "path to a config file (JSON or YAML)")
	root.PersistentFlags().StringVar(&ro.LogLevel, "log-level", "info", "log level: debug, info, warn, error")

	fetchCmd := newFetchCmd(ctx, ro)
	root.AddCommand(fetchCmd)
	root.AddCommand(newVersionCmd(version))
	root.AddCommand(newServeCmd(ro, version))
	root.AddCommand(newConfigCmd())

	root.RunE = fetchCmd.RunE
	root.SetHelpCommand(&cobra.Command{Use: "help", Hidden: true})

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return err
	}
	return nil
}

func newLogger(ro *RootOpts) zerolog.Logger {
	level, err := zerolog.ParseLevel(ro.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if ro.Verbose {
		level = zerolog.DebugLevel
	}
	if ro.Quiet {
		level = zerolog.ErrorLevel
	}
	w := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

func newFetchCmd(ctx context.Context, ro *RootOpts) *cobra.Command {
	req := repofetch.DefaultDownloadRequest()
	var includeGlobs, excludeGlobs, includeExts, excludeExts, targetPaths []string
	var minSize, maxSize int64
	var refName string

	cmd := &cobra.Command{
		Use:   "fetch [REPO]",
		Short: "Download a filtered subset of a repository",
		Args:  cobra.MaximumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return applyConfigDefaults(cmd, ro, &req)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := finalizeRequest(args, ro, &req, refName, includeGlobs, excludeGlobs, includeExts, excludeExts, targetPaths, minSize, maxSize); err != nil {
				return err
			}

			log := newLogger(ro)
			orch := buildOrchestrator(req.Token, log)

			var renderer *tui.LiveRenderer
			if !ro.Quiet && !ro.JSONOut && tui.IsInteractive() {
				renderer = tui.NewLiveRenderer(orch, req.Repo.DisplayName())
			}

			result, err := orch.Execute(ctx, req)
			if renderer != nil {
				renderer.Close()
			}
			if err != nil {
				return err
			}

			if ro.JSONOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			if req.DryRun {
				fmt.Printf("Plan for %s@%s (%d files):\n", req.Repo.DisplayName(), refName, len(result.MatchedFiles))
				return nil
			}
			tui.Summarize(result)
			if result.Status == repofetch.StatusFailed {
				return fmt.Errorf("repofetch: %d file(s) failed", len(result.FailedFiles))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&req.Repo.Owner, "owner", "o", "", "repository owner")
	cmd.Flags().StringVarP(&req.Repo.Name, "repo", "r", "", "repository name")
	cmd.Flags().StringVarP(&refName, "ref", "b", "main", "branch, tag, or commit to download")
	cmd.Flags().StringVarP(&req.Destination, "destination", "d", "", "local destination directory")
	cmd.Flags().BoolVar(&req.OverwriteExisting, "overwrite", false, "overwrite files that already exist locally")
	cmd.Flags().BoolVar(&req.PreserveStructure, "preserve-structure", true, "mirror the repository's directory layout")
	cmd.Flags().IntVarP(&req.MaxConcurrent, "concurrency", "c", req.MaxConcurrent, "maximum concurrent file downloads")
	cmd.Flags().DurationVar(&req.Timeout, "timeout", req.Timeout, "per-operation timeout")
	cmd.Flags().BoolVar(&req.DryRun, "dry-run", false, "compute the matched file set without downloading")

	cmd.Flags().StringSliceVar(&includeGlobs, "include", nil, "glob patterns a path must match at least one of")
	cmd.Flags().StringSliceVar(&excludeGlobs, "exclude", nil, "glob patterns a path must match none of")
	cmd.Flags().StringSliceVar(&includeExts, "include-ext", nil, "file extensions to allow (e.g. .go,.md)")
	cmd.Flags().StringSliceVar(&excludeExts, "exclude-ext", nil, "file extensions to reject")
	cmd.Flags().StringSliceVar(&targetPaths, "path", nil, "only consider paths under these prefixes")
	cmd.Flags().BoolVar(&req.Filters.IncludeHidden, "include-hidden", false, "include dotfile paths")
	cmd.Flags().Int64Var(&minSize, "min-size", 0, "minimum file size in bytes")
	cmd.Flags().Int64Var(&maxSize, "max-size", 0, "maximum file size in bytes (0 = no limit)")

	return cmd
}

func buildOrchestrator(token string, log zerolog.Logger) *repofetch.Orchestrator {
	limiter := repofetch.NewRateLimiter(time.Second, 60*time.Second, true)
	retryer := repofetch.NewRetryer(repofetch.DefaultRetryConfig(), log)
	cache := repofetch.NewManifestCache(repofetch.DefaultManifestCacheTTL)
	api := repofetch.NewHTTPAPIService(token, limiter, retryer)
	sink := repofetch.NewFilesystemSink()
	return repofetch.NewOrchestrator(api, sink, cache, limiter, retryer, log)
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-ch:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func finalizeRequest(args []string, ro *RootOpts, req *repofetch.DownloadRequest, refName string, includeGlobs, excludeGlobs, includeExts, excludeExts, targetPaths []string, minSize, maxSize int64) error {
	tok := strings.TrimSpace(ro.Token)
	if tok == "" {
		tok = strings.TrimSpace(os.Getenv("REPOFETCH_TOKEN"))
	}
	req.Token = tok

	if req.Repo.Owner == "" && req.Repo.Name == "" && len(args) > 0 {
		owner, name, found := strings.Cut(args[0], "/")
		if !found {
			return fmt.Errorf("repofetch: expected REPO in owner/name form, got %q", args[0])
		}
		req.Repo.Owner, req.Repo.Name = owner, name
	}
	if req.Repo.Owner == "" || req.Repo.Name == "" {
		return fmt.Errorf("repofetch: missing repository (owner/name). Pass as positional arg or --owner/--repo")
	}
	if req.Destination == "" {
		req.Destination = filepath.Join(".", req.Repo.Name)
	}

	req.Ref = repofetch.GitRef{Name: refName, Kind: repofetch.RefBranch}

	req.Filters.IncludeGlobs = includeGlobs
	req.Filters.ExcludeGlobs = excludeGlobs
	req.Filters.TargetPaths = targetPaths
	req.Filters.IncludedExts = extSet(includeExts)
	req.Filters.ExcludedExts = extSet(excludeExts)
	if minSize > 0 {
		req.Filters.MinSize = &minSize
	}
	if maxSize > 0 {
		req.Filters.MaxSize = &maxSize
	}

	return req.Validate()
}

func extSet(exts []string) map[string]struct{} {
	if len(exts) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		set[e] = struct{}{}
	}
	return set
}

func applyConfigDefaults(cmd *cobra.Command, ro *RootOpts, req *repofetch.DownloadRequest) error {
	path := ro.Config
	if path == "" {
		home, _ := os.UserHomeDir()
		for _, candidate := range []string{"repofetch.yaml", "repofetch.yml", "repofetch.json"} {
			p := filepath.Join(home, ".config", candidate)
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}
	if path == "" {
		return nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var cfg map[string]any
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return fmt.Errorf("invalid YAML config file: %w", err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return fmt.Errorf("invalid JSON config file: %w", err)
		}
	}

	setInt := func(flagName string, set func(int)) {
		if cmd.Flags().Changed(flagName) {
			return
		}
		if v, ok := cfg[flagName]; ok && v != nil {
			var x int
			fmt.Sscan(fmt.Sprint(v), &x)
			set(x)
		}
	}
	setStr := func(flagName string, set func(string)) {
		if cmd.Flags().Changed(flagName) {
			return
		}
		if v, ok := cfg[flagName]; ok && v != nil {
			set(fmt.Sprint(v))
		}
	}

	setStr("destination", func(v string) { req.Destination = v })
	setInt("concurrency", func(v int) { req.MaxConcurrent = v })
	setStr("token", func(v string) {
		if !cmd.Flags().Changed("token") && os.Getenv("REPOFETCH_TOKEN") == "" {
			ro.Token = v
		}
	})

	return nil
}
