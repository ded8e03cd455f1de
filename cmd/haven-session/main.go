package main

import (
	"fmt"
	"os"

	"github.com/chathaven/haven-client/config"
	"github.com/chathaven/haven-client/globals"
	"github.com/chathaven/haven-client/persistence"
	"github.com/chathaven/haven-client/types"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
)

// A very simple CLI tool for inspecting and clearing the locally persisted
// chat session.

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "haven-session",
		Short: "inspect the locally persisted chat session",
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file or directory")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "show the stored session record",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPersister(func(p persistence.Persister) error {
				rec := types.SessionRecord{}
				err := p.GetSession(&rec)
				if err == persistence.ErrNotFound {
					fmt.Println("no session record stored")
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Printf("room:     %s\n", rec.Room)
				fmt.Printf("username: %s\n", rec.Username)
				fmt.Printf("updated:  %s\n", rec.UpdatedAt)
				for k, v := range rec.Tags {
					fmt.Printf("tag %s: %s\n", k, v)
				}
				return nil
			})
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "erase the stored session record",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPersister(func(p persistence.Persister) error {
				return p.DeleteSession()
			})
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "recent",
		Short: "list recently joined rooms",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPersister(func(p persistence.Persister) error {
				rooms, err := p.GetRecentRooms()
				if err != nil {
					return err
				}
				for _, room := range rooms {
					fmt.Printf("%s\t%s\n", room.Code, room.LastSeen.Format("2006-01-02 15:04:05"))
				}
				return nil
			})
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func withPersister(fn func(persistence.Persister) error) error {
	cfg, err := config.ReadConfiguration(configPath, config.GetFlagSet())
	if err != nil {
		return err
	}
	if cfg.LogLevel != "" {
		globals.AppLogger.SetLevel(hclog.LevelFromString(cfg.LogLevel))
	}
	persister, err := persistence.NewPersister(cfg)
	if err != nil {
		return err
	}
	if persister == nil {
		return fmt.Errorf("no persistence configured")
	}
	defer persister.Close()
	return fn(persister)
}
