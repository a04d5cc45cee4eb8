package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mhrivnak/orderflow/pkg/config"
	"github.com/mhrivnak/orderflow/pkg/database"
	"github.com/mhrivnak/orderflow/pkg/database/repositories"
	"github.com/mhrivnak/orderflow/pkg/logging"
)

// app carries the state shared by the commands. Commands open the database on first use
// unless db is already set.
type app struct {
	cfg *config.Config
	log logrus.FieldLogger
	db  *database.DB

	users  *repositories.UserRepository
	groups *repositories.GroupRepository
	orders *repositories.OrderRepository
	opened bool
}

func (a *app) init() error {
	if a.cfg == nil {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		a.cfg = cfg
	}
	if a.log == nil {
		a.log = logging.New(a.cfg)
	}
	if a.db == nil {
		db, err := database.NewConnection(a.cfg, a.log)
		if err != nil {
			return err
		}
		if err := db.AutoMigrate(); err != nil {
			_ = db.Close()
			return err
		}
		a.db = db
		a.opened = true
	}
	a.users = repositories.NewUserRepository(a.db.DB)
	a.groups = repositories.NewGroupRepository(a.db.DB)
	a.orders = repositories.NewOrderRepository(a.db.DB)
	return nil
}

func (a *app) close() error {
	if !a.opened {
		return nil
	}
	a.opened = false
	return a.db.Close()
}

func newRootCommand(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "orderctl",
		Short:         "Administer orderflow users, groups, quotas and hooks",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.close()
		},
	}

	rootCmd.AddCommand(
		newUserCommand(a),
		newGroupCommand(a),
		newOrderCommand(a),
		newRunHookCommand(a),
	)
	return rootCmd
}
