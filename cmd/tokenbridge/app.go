package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/amoylab/tokenbridge/internal/auth"
	"github.com/amoylab/tokenbridge/internal/auth/storage"
	"github.com/amoylab/tokenbridge/internal/common/cnst"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type appOptions struct {
	name       string
	clientID   string
	clientType string
	grantTypes []string
	scope      string
	userID     uint
}

var (
	appOpts appOptions

	appCmd = &cobra.Command{
		Use:   "app",
		Short: "Manage OAuth2 applications",
	}

	appCreateCmd = &cobra.Command{
		Use:   "create",
		Short: "Register an OAuth2 application",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Storage.Type == cnst.StoreTypeMemory {
				return fmt.Errorf("applications cannot be registered in %s storage", cnst.StoreTypeMemory)
			}
			lg, err := initLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = lg.Sync() }()

			db, store, err := initStores(lg, cfg)
			if err != nil {
				return err
			}
			defer func() {
				_ = store.Close()
				_ = db.Close()
			}()

			return createApp(cmd.Context(), lg, store, &appOpts, cmd.OutOrStdout())
		},
	}
)

func init() {
	f := appCreateCmd.Flags()
	f.StringVar(&appOpts.name, "name", "", "display name of the application")
	f.StringVar(&appOpts.clientID, "client-id", "", "client_id, generated when empty")
	f.StringVar(&appOpts.clientType, "client-type", string(cnst.ClientConfidential), "confidential or public")
	f.StringSliceVar(&appOpts.grantTypes, "grant-types",
		[]string{cnst.GrantConvertToken.String(), cnst.GrantRefreshToken.String()}, "allowed grant types")
	f.StringVar(&appOpts.scope, "scope", "read write", "space delimited scopes, empty allows the default scopes")
	f.UintVar(&appOpts.userID, "user-id", 0, "owning user id")
	appCmd.AddCommand(appCreateCmd)
}

// createApp stores a new application and prints its credentials. The plain
// client secret is only shown once, the store keeps its bcrypt hash.
func createApp(ctx context.Context, lg *zap.Logger, store storage.Store, opts *appOptions, out io.Writer) error {
	clientType := strings.ToLower(strings.TrimSpace(opts.clientType))
	if clientType != string(cnst.ClientConfidential) && clientType != string(cnst.ClientPublic) {
		return fmt.Errorf("invalid client type: %s", opts.clientType)
	}

	app := &storage.Application{
		ClientID:   opts.clientID,
		ClientType: clientType,
		GrantTypes: opts.grantTypes,
		Scope:      opts.scope,
		Name:       opts.name,
		UserID:     opts.userID,
	}
	if app.ClientID == "" {
		app.ClientID = strings.ReplaceAll(uuid.NewString(), "-", "")
	}

	var secret string
	if clientType == string(cnst.ClientConfidential) {
		gen, err := auth.NewGenerator(false, "")
		if err != nil {
			return err
		}
		if secret, err = gen.Generate(); err != nil {
			return fmt.Errorf("failed to generate client secret: %w", err)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("failed to hash client secret: %w", err)
		}
		app.ClientSecret = string(hash)
	}

	if err := store.CreateApplication(ctx, app); err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	lg.Info("Application created",
		zap.String("client_id", app.ClientID),
		zap.String("client_type", clientType))

	_, _ = fmt.Fprintf(out, "client_id: %s\n", app.ClientID)
	if secret != "" {
		_, _ = fmt.Fprintf(out, "client_secret: %s\n", secret)
	}
	return nil
}
