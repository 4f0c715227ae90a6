package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"agoragate/internal/config"
	"agoragate/internal/db"
	"agoragate/internal/gateway"
	"agoragate/internal/migrate"
	"agoragate/internal/repo"
	"agoragate/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "agg",
	Short: "Agora Gate, the shared store gateway",
	Long: `Agora Gate is the single write path to the agent economy's shared store.
The Bank, Task Board, Identity, Reputation and Court services send their
writes here; each write commits business rows and one audit event in a
single transaction. The Observatory reads the event feed.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("AGORAGATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(eventsCmd())
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("base-path") {
				cfg.Server.BasePath = basePath
			}
			if secret := viper.GetString("auth-secret"); secret != "" {
				cfg.Auth.Secret = secret
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			handles, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer handles.Close()
			if err := migrate.Migrate(handles.Writer); err != nil {
				return err
			}

			g := gateway.New(handles, cfg)
			handler, err := server.New(server.Config{
				Gateway:      g,
				BasePath:     cfg.Server.BasePath,
				MaxBodyBytes: cfg.Server.MaxBodyBytes,
				Auth:         server.AuthConfig{Secret: cfg.Auth.Secret},
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			log.Printf("serving Agora Gate API on http://%s%s", cfg.Server.Addr, cfg.Server.BasePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHandles(func(handles *db.Handles) error {
				if err := migrate.Migrate(handles.Writer); err != nil {
					return err
				}
				v, err := migrate.Version(handles.Writer)
				if err != nil {
					return err
				}
				fmt.Printf("schema version %d\n", v)
				return nil
			})
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show store status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHandles(func(handles *db.Handles) error {
				workspace := viper.GetString("workspace")
				version, err := migrate.Version(handles.Writer)
				if err != nil {
					return err
				}
				r := repo.Repo{DB: handles.Reader}
				total, err := r.CountEvents(cmd.Context())
				if err != nil {
					return err
				}
				var size int64
				if st, err := os.Stat(db.Path(workspace)); err == nil {
					size = st.Size()
				}
				out := map[string]any{
					"database":       db.Path(workspace),
					"schema_version": version,
					"total_events":   total,
					"database_bytes": size,
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				t := table.NewWriter()
				t.SetOutputMirror(os.Stdout)
				t.AppendHeader(table.Row{"database", "schema", "events", "bytes"})
				t.AppendRow(table.Row{db.Path(workspace), version, total, size})
				t.Render()
				return nil
			})
		},
	}
}

func eventsCmd() *cobra.Command {
	events := &cobra.Command{
		Use:   "events",
		Short: "Inspect the event log",
	}
	events.AddCommand(eventsTailCmd())
	return events
}

func eventsTailCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the most recent events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHandles(func(handles *db.Handles) error {
				r := repo.Repo{DB: handles.Reader}
				items, err := r.LatestEvents(cmd.Context(), n)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				t := table.NewWriter()
				t.SetOutputMirror(os.Stdout)
				t.AppendHeader(table.Row{"id", "source", "type", "agent", "task", "timestamp"})
				for _, e := range items {
					t.AppendRow(table.Row{e.EventID, e.EventSource, e.EventType, e.AgentID, e.TaskID, e.Timestamp})
				}
				t.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	return cmd
}

// --- helpers ---

func withHandles(fn func(*db.Handles) error) error {
	workspace := viper.GetString("workspace")
	handles, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer handles.Close()
	if err := migrate.Migrate(handles.Writer); err != nil {
		return err
	}
	return fn(handles)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
