package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	listingpersistence "github.com/menusam/listing-moderation/modules/listings/infrastructure/persistence"
	"github.com/menusam/listing-moderation/modules/listings/services"
	logpersistence "github.com/menusam/listing-moderation/modules/logging/infrastructure/persistence"
	logsvc "github.com/menusam/listing-moderation/modules/logging/services"
	notifpersistence "github.com/menusam/listing-moderation/modules/notifications/infrastructure/persistence"
	notifsvc "github.com/menusam/listing-moderation/modules/notifications/services"
	"github.com/menusam/listing-moderation/pkg/composables"
	"github.com/menusam/listing-moderation/pkg/configuration"
	"github.com/menusam/listing-moderation/pkg/eventbus"
)

const exitUsage = 2

type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "moderationctl",
		Short:         "Operator tool for listing profile moderation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().Duration("timeout", 30*time.Second, "overall command timeout")

	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newFinalizeCmd())
	cmd.AddCommand(newPendingCmd())
	return cmd
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		if _, ok := err.(*usageError); ok {
			os.Exit(exitUsage)
		}
		os.Exit(1)
	}
}

type session struct {
	ctx  context.Context
	conf *configuration.Configuration
	pool *pgxpool.Pool
	stop func()
}

func (s *session) Close() {
	s.pool.Close()
	s.stop()
	s.conf.Unload()
}

// connect loads configuration and opens a pool. The session context carries the pool and is bounded by --timeout.
func connect(cmd *cobra.Command) (*session, error) {
	conf, err := configuration.Load(".env", ".env.local")
	if err != nil {
		return nil, err
	}
	timeout, _ := cmd.Flags().GetDuration("timeout")
	ctx, stop := context.WithTimeout(cmd.Context(), timeout)

	pool, err := pgxpool.New(ctx, conf.Database.Opts)
	if err != nil {
		stop()
		conf.Unload()
		return nil, err
	}
	ctx = composables.WithPool(ctx, pool)
	ctx = composables.WithLogger(ctx, conf.Logger().WithField("component", "moderationctl"))
	return &session{ctx: ctx, conf: conf, pool: pool, stop: stop}, nil
}

type moderationServices struct {
	finalizer *services.Finalizer
	decisions *services.DecisionService
}

func newModerationServices(s *session) *moderationServices {
	conf := s.conf
	logger := conf.Logger()
	establishments := listingpersistence.NewEstablishmentRepository()
	drafts := listingpersistence.NewDraftRepository()
	changelogs := listingpersistence.NewChangeLogRepository()

	notifier := notifsvc.NewNotificationService(notifpersistence.NewNotificationRepository(), logger)
	bus := eventbus.NewEventPublisher(logger)
	bus.Subscribe(notifier.OnDraftFinalized)

	opts := services.Options{
		PageSize: conf.Moderation.FinalizePageSize,
		Audit:    logsvc.NewAuditService(logpersistence.NewAuditLogRepository()),
		Notifier: notifier,
	}
	applier := services.NewChangeApplier(establishments, changelogs, nil)
	finalizer := services.NewFinalizer(drafts, establishments, listingpersistence.NewModerationRepository(), bus, opts)
	return &moderationServices{
		finalizer: finalizer,
		decisions: services.NewDecisionService(drafts, establishments, changelogs, applier, finalizer, opts),
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
