package main

import (
	"fmt"

	"github.com/spf13/cobra"

	jwttoken "medvault/internal/jwt_token"
	"medvault/internal/platform/config"
	id "medvault/pkg/domain"
)

// newTokenCmd mints an access token signed with the server's configured key.
// Outside development it needs JWT_SIGNING_KEY like the server does.
func newTokenCmd() *cobra.Command {
	var subject, role, authority string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development access token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			caller, err := parseCaller(subject, role, authority)
			if err != nil {
				return err
			}
			token, err := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.TokenTTL).
				GenerateAccessToken(cmd.Context(), caller)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "subject UUID (generated when empty)")
	cmd.Flags().StringVar(&role, "role", string(id.RolePatient), "patient, doctor or health_authority")
	cmd.Flags().StringVar(&authority, "authority", "", "health authority UUID (doctors only)")
	return cmd
}

func parseCaller(subject, role, authority string) (id.Caller, error) {
	r, err := id.ParseRole(role)
	if err != nil {
		return id.Caller{}, err
	}
	caller := id.Caller{Role: r, SubjectID: id.NewSubjectID()}
	if subject != "" {
		if caller.SubjectID, err = id.ParseSubjectID(subject); err != nil {
			return id.Caller{}, err
		}
	}
	if authority != "" {
		if caller.AuthorityID, err = id.ParseAuthorityID(authority); err != nil {
			return id.Caller{}, err
		}
	}
	return caller, nil
}
