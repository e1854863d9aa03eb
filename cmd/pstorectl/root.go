package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/packlock/pstore"
)

var (
	flagRegistry     string
	flagStorePath    string
	flagConcurrency  int
	flagAlwaysAuth   bool
	flagOffline      bool
	flagUpdate       bool
	flagVerify       bool
	flagTimeout      time.Duration
	flagHTTPProxy    string
	flagHTTPSProxy   string
	flagLocalAddress string
	flagRawRegistry  []string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pstorectl <pref>",
		Short: "Resolve and fetch a package into a content-addressed store",
		Long: `pstorectl resolves a single dependency reference (a name@version or
name@latest reference, a tarball URL, a file:/link: directory, or an oci:// artifact) and fetches it
into a local store, printing progress as it goes.`,
		Args: cobra.ExactArgs(1),
		RunE: runFetch,
	}

	root.PersistentFlags().StringVar(&flagRegistry, "registry", "https://registry.npmjs.org", "default registry for semver prefs")
	root.PersistentFlags().StringVar(&flagStorePath, "store", defaultStorePath(), "store directory")
	root.PersistentFlags().IntVar(&flagConcurrency, "concurrency", 16, "max concurrent package downloads")
	root.PersistentFlags().BoolVar(&flagAlwaysAuth, "always-auth", false, "send auth headers to every registry request")
	root.PersistentFlags().BoolVar(&flagOffline, "offline", false, "fail resolution that needs the network; downloads are not blocked")
	root.PersistentFlags().BoolVar(&flagUpdate, "update", false, "re-resolve even when a lockfile resolution is supplied")
	root.PersistentFlags().BoolVar(&flagVerify, "verify-integrity", false, "recompute per-file digests even on a store hit")
	root.PersistentFlags().DurationVar(&flagTimeout, "timeout", 5*time.Minute, "overall fetch timeout")
	root.PersistentFlags().StringVar(&flagHTTPProxy, "proxy", "", "HTTP proxy URL for registry/tarball requests")
	root.PersistentFlags().StringVar(&flagHTTPSProxy, "https-proxy", "", "HTTPS proxy URL, falling back to --proxy when unset")
	root.PersistentFlags().StringVar(&flagLocalAddress, "local-address", "", "local IP address to dial outbound connections from")
	root.PersistentFlags().StringArrayVar(&flagRawRegistry, "raw-registry-config", nil, `extra npm-style config entries, e.g. "@scope:registry=https://registry.example.com" (repeatable)`)

	return root
}

func parseRawRegistryConfig(entries []string) map[string]string {
	if len(entries) == 0 {
		return nil
	}
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		key, value, ok := strings.Cut(e, "=")
		if !ok {
			continue
		}
		out[key] = value
	}
	return out
}

func defaultStorePath() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home + "/.pstore"
	}
	return ".pstore"
}

func runFetch(cmd *cobra.Command, args []string) error {
	pref := args[0]

	observer := pstore.ObserverFunc(func(e pstore.Event) {
		fmt.Fprintf(cmd.ErrOrStderr(), "[%s] %s\n", e.Status, e.PkgID)
	})

	s, err := pstore.New(pstore.Config{
		Registry:           flagRegistry,
		StorePath:          flagStorePath,
		AlwaysAuth:         flagAlwaysAuth,
		NetworkConcurrency: flagConcurrency,
		RawRegistryConfig:  parseRawRegistryConfig(flagRawRegistry),
		Proxy: pstore.Proxy{
			HTTP:         flagHTTPProxy,
			HTTPS:        flagHTTPSProxy,
			LocalAddress: flagLocalAddress,
		},
	}, pstore.WithObserver(observer))
	if err != nil {
		return fmt.Errorf("building store: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), flagTimeout)
	defer cancel()

	handle, local, err := s.ResolveAndFetch(ctx, pstore.WantedDependency{Pref: pref},
		pstore.WithOffline(flagOffline),
		pstore.WithUpdate(flagUpdate),
		pstore.WithVerifyStoreIntegrity(flagVerify),
	)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", pref, err)
	}

	if local != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "%s@%s -> %s (local)\n", local.Pkg.Name, local.Pkg.Version, local.Resolution.Path)
		return nil
	}

	pkg, err := handle.FetchingPkg().Wait(ctx)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", pref, err)
	}
	if _, err := handle.FetchingFiles().Wait(ctx); err != nil {
		return fmt.Errorf("unpacking %s: %w", pref, err)
	}
	if _, err := handle.CalculatingIntegrity().Wait(ctx); err != nil {
		return fmt.Errorf("recording integrity for %s: %w", pref, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s@%s -> %s\n", pkg.Name, pkg.Version, handle.Path)
	return nil
}
