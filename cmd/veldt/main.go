// Package main provides the Veldt CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/veldtdb/veldt/pkg/auth"
	"github.com/veldtdb/veldt/pkg/config"
	"github.com/veldtdb/veldt/pkg/graph"
	"github.com/veldtdb/veldt/pkg/veldt"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "veldt",
		Short: "Veldt - Embedded multi-tenant graph database with vector search",
		Long: `Veldt is an embedded multi-tenant graph database written in Go.

Tenants own graphs; graphs own nodes and edges; nodes and edges carry
labels, tags, and embedding vectors. Similarity queries run against a
per-graph HNSW index with exhaustive fallback.`,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML configuration file")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Veldt v%s (%s)\n", version, commit)
		},
	})

	initCmd := &cobra.Command{
		Use:   "init <tenant-name> <admin-email> <admin-password>",
		Short: "Create the store with a first tenant, user, and credential",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd.Context(), configPath, args[0], args[1], args[2])
		},
	}
	rootCmd.AddCommand(initCmd)

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Print tenant, graph, and index statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd.Context(), configPath)
		},
	}
	rootCmd.AddCommand(statsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func openDB(configPath string) (*veldt.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return veldt.Open(veldt.Options{
		DatabasePath: cfg.DatabasePath,
		DataDir:      cfg.DataDir,
		DefaultIndex: cfg.IndexConfig(),
	})
}

func runInit(ctx context.Context, configPath, tenantName, email, password string) error {
	db, err := openDB(configPath)
	if err != nil {
		return err
	}
	defer db.Close()

	tenant, err := db.CreateTenant(ctx, &graph.Tenant{Name: tenantName, Active: true})
	if err != nil {
		return err
	}

	authenticator := auth.NewAuthenticator(db.Client)
	hash, err := authenticator.HashPassword(password)
	if err != nil {
		return err
	}
	user, err := db.CreateUser(ctx, &graph.User{
		TenantGUID: tenant.GUID,
		Email:      email,
		Password:   hash,
		Active:     true,
	})
	if err != nil {
		return err
	}

	token, err := auth.GenerateBearerToken()
	if err != nil {
		return err
	}
	cred, err := db.CreateCredential(ctx, &graph.Credential{
		TenantGUID:  tenant.GUID,
		UserGUID:    user.GUID,
		Name:        "bootstrap",
		BearerToken: token,
		Active:      true,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Tenant:       %s (%s)\n", tenant.Name, tenant.GUID)
	fmt.Printf("User:         %s (%s)\n", user.Email, user.GUID)
	fmt.Printf("Bearer token: %s\n", cred.BearerToken)
	return nil
}

func runStats(ctx context.Context, configPath string) error {
	db, err := openDB(configPath)
	if err != nil {
		return err
	}
	defer db.Close()

	tenants, err := db.ListTenants(ctx)
	if err != nil {
		return err
	}
	for _, tenant := range tenants {
		fmt.Printf("Tenant %s (%s)\n", tenant.Name, tenant.GUID)

		req := graph.EnumerationRequest{TenantGUID: tenant.GUID, MaxResults: graph.DefaultMaxResults}
		for {
			page, err := db.EnumerateGraphs(ctx, req)
			if err != nil {
				return err
			}
			for _, g := range page.Objects {
				stats, err := db.GetVectorIndexStatistics(ctx, tenant.GUID, g.GUID)
				if err != nil {
					return err
				}
				payload, err := json.MarshalIndent(stats, "    ", "  ")
				if err != nil {
					return err
				}
				fmt.Printf("  Graph %s (%s)\n    %s\n", g.Name, g.GUID, payload)
			}
			if page.EndOfResults {
				break
			}
			req.ContinuationToken = page.ContinuationToken
		}
	}
	return nil
}
