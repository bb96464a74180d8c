package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/oab-process-sync/internal/auth"
	"github.com/JakeFAU/oab-process-sync/internal/courts"
)

func newTokenCmd() *cobra.Command {
	var (
		tenant string
		user   string
		role   string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a development bearer token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := runtimeFrom(cmd.Context())
			if err != nil {
				return err
			}
			a := rt.cfg.Auth
			if err := rt.cfg.ValidateServe(); err != nil {
				return err
			}
			verifier, err := auth.NewVerifier([]byte(a.JWTSecret), a.Issuer, a.Leeway)
			if err != nil {
				return err
			}
			token, err := verifier.Issue(auth.Principal{TenantID: tenant, UsuarioID: user, Role: auth.Role(role)}, ttl)
			if err != nil {
				return fmt.Errorf("issue token: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant id")
	cmd.Flags().StringVar(&user, "user", "", "user id")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleLawyer), "user role")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newCourtsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "courts",
		Short: "List the courts eligible for capture",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := runtimeFrom(cmd.Context())
			if err != nil {
				return err
			}
			dir, err := courts.New(rt.cfg.Courts.List, rt.cfg.Courts.Default)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(dir.List())
		},
	}
}
