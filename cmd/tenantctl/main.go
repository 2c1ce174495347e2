package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jhoicas/saas-tenancy-api/internal/application/audit"
	"github.com/jhoicas/saas-tenancy-api/internal/application/auth"
	"github.com/jhoicas/saas-tenancy-api/internal/application/dto"
	"github.com/jhoicas/saas-tenancy-api/internal/application/quota"
	"github.com/jhoicas/saas-tenancy-api/internal/application/usecase"
	"github.com/jhoicas/saas-tenancy-api/internal/domain/entity"
	"github.com/jhoicas/saas-tenancy-api/internal/domain/repository"
	"github.com/jhoicas/saas-tenancy-api/internal/infrastructure/storage"
	"github.com/jhoicas/saas-tenancy-api/pkg/config"
	"github.com/jhoicas/saas-tenancy-api/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// env configuración y dependencias compartidas por los subcomandos.
type env struct {
	cfg      *config.Config
	log      *logger.Logger
	store    repository.Store
	recorder *audit.Recorder
	tenants  *usecase.TenantUseCase
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "tenantctl",
		Short:        "Administración de tenants de la plataforma",
		SilenceUsage: true,
	}
	cmd.AddCommand(
		newMigrateCommand(),
		newCreateTenantCommand(),
		newIssueTokenCommand(),
		newStatusCommand("suspend", "Suspender un tenant", entity.TenantStatusSuspended),
		newStatusCommand("activate", "Reactivar un tenant suspendido", entity.TenantStatusActive),
	)
	return cmd
}

// open carga la configuración y, si withStore, abre el almacenamiento sin migrar.
func open(ctx context.Context, withStore bool) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	e := &env{
		cfg: cfg,
		log: logger.New(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel, Writer: os.Stderr}),
	}
	if !withStore {
		return e, nil
	}
	e.store, err = storage.Open(ctx, cfg.DB, false, e.log)
	if err != nil {
		return nil, err
	}
	e.recorder = audit.NewRecorder(e.store, cfg.Audit.BufferSize, e.log)
	qm := quota.NewManager(e.store, cfg.Quota.ResetPeriod, quota.WithLogger(e.log))
	e.tenants = usecase.NewTenantUseCase(e.store, qm, e.recorder, e.log)
	return e, nil
}

func (e *env) close() {
	if e.recorder != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = e.recorder.Close(ctx)
	}
	if e.store != nil {
		e.store.Close()
	}
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Aplicar las migraciones pendientes de PostgreSQL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := open(ctx, false)
			if err != nil {
				return err
			}
			if e.cfg.DB.Backend != config.BackendPostgres {
				return fmt.Errorf("migrate requiere STORAGE_BACKEND=postgres")
			}
			store, err := storage.Open(ctx, e.cfg.DB, true, e.log)
			if err != nil {
				return err
			}
			store.Close()
			return nil
		},
	}
}

func newCreateTenantCommand() *cobra.Command {
	var in dto.CreateTenantRequest
	cmd := &cobra.Command{
		Use:   "create-tenant",
		Short: "Crear un tenant con settings y cuota por defecto",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := open(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer e.close()
			out, err := e.tenants.CreateTenant(cmd.Context(), in)
			if err != nil {
				return err
			}
			return printJSON(cmd, out)
		},
	}
	cmd.Flags().StringVar(&in.Name, "name", "", "nombre del tenant")
	cmd.Flags().StringVar(&in.Slug, "slug", "", "identificador único en minúsculas")
	cmd.Flags().StringVar(&in.Email, "email", "", "email de contacto (y del admin)")
	cmd.Flags().StringVar(&in.Plan, "plan", entity.PlanFree, "plan: free|starter|pro|enterprise")
	cmd.Flags().StringVar(&in.AdminPassword, "admin-password", "", "si se indica, crea el usuario admin")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("slug")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newIssueTokenCommand() *cobra.Command {
	var (
		tenantID string
		userID   string
		role     string
		plan     string
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "issue-token",
		Short: "Firmar una credencial para un tenant (operación y pruebas)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := open(cmd.Context(), false)
			if err != nil {
				return err
			}
			r := entity.Role(role)
			if !r.Valid() {
				return fmt.Errorf("rol desconocido %q", role)
			}
			if userID == "" {
				userID = entity.SystemActor
			}
			creds := auth.NewCredentialParser(auth.JWTConfig{
				Secret:     e.cfg.JWT.Secret,
				ExpMinutes: e.cfg.JWT.Expiration,
				Issuer:     e.cfg.JWT.Issuer,
			})
			tok, err := creds.Issue(entity.TenantContext{
				TenantID:    tenantID,
				UserID:      userID,
				Role:        r,
				Permissions: entity.NewPermissionSet(entity.DefaultRolePermissions[r]...),
				Plan:        plan,
			}, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
			return err
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "id del tenant")
	cmd.Flags().StringVar(&userID, "user", "", "id del usuario (por defecto system)")
	cmd.Flags().StringVar(&role, "role", string(entity.RoleAdmin), "rol: admin|manager|user|viewer")
	cmd.Flags().StringVar(&plan, "plan", entity.PlanFree, "plan que viaja en la credencial")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "duración; 0 usa JWT_EXPIRATION_MINUTES")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func newStatusCommand(use, short, status string) *cobra.Command {
	var tenantID string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := open(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer e.close()
			var out *dto.TenantResponse
			if status == entity.TenantStatusSuspended {
				out, err = e.tenants.SuspendTenant(cmd.Context(), nil, tenantID)
			} else {
				out, err = e.tenants.ActivateTenant(cmd.Context(), nil, tenantID)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd, out)
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "id del tenant")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
