// triplogctl inspects the durable route store offline.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"backend-triplog/internal/config"
	"backend-triplog/internal/kv"
	"backend-triplog/internal/route"
	"backend-triplog/internal/routestore"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

type cli struct {
	kvPath  string
	backend *kv.SQLiteBackend
	store   *routestore.Store
}

func main() {
	if err := newRootCmd(config.Load().KVPath).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(defaultPath string) *cobra.Command {
	c := &cli{}
	rootCmd := &cobra.Command{
		Use:           "triplogctl",
		Short:         "Inspect recorded routes and the sync queue",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if c.kvPath == "" {
				return fmt.Errorf("--kv path required")
			}
			backend, err := kv.OpenSQLite(c.kvPath)
			if err != nil {
				return err
			}
			c.backend = backend
			c.store = routestore.New(kv.New(backend), nil)
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if c.backend == nil {
				return nil
			}
			return c.backend.Close()
		},
	}
	rootCmd.PersistentFlags().StringVar(&c.kvPath, "kv", defaultPath, "sqlite file backing the route store")

	rootCmd.AddCommand(c.routesCmd())
	rootCmd.AddCommand(c.showCmd())
	rootCmd.AddCommand(c.queueCmd())
	rootCmd.AddCommand(c.draftCmd())
	rootCmd.AddCommand(c.keysCmd())
	return rootCmd
}

func (c *cli) routesCmd() *cobra.Command {
	var routeType string
	cmd := &cobra.Command{
		Use:   "routes",
		Short: "List completed routes, most recent first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tTYPE\tSTARTED\tDISTANCE\tPOINTS")
			for _, r := range c.store.Routes() {
				if routeType != "" && r.Metadata.Type != routeType {
					continue
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n",
					r.ID, r.Metadata.Name, r.Metadata.Type, formatMillis(r.StartAt), formatDistance(r.Distance), len(r.Track))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&routeType, "type", "", "only routes of this type")
	return cmd
}

func (c *cli) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <route-id>",
		Short: "Print one route as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, ok := c.store.Route(args[0])
			if !ok {
				return fmt.Errorf("route %s not found", args[0])
			}
			return writeJSON(cmd.OutOrStdout(), r)
		},
	}
}

func (c *cli) queueCmd() *cobra.Command {
	var flush bool
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "List pending sync tasks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if flush {
				n := c.store.FlushSyncQueue()
				fmt.Fprintf(cmd.OutOrStdout(), "flushed %d tasks\n", n)
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TYPE\tROUTE\tQUEUED")
			for _, task := range c.store.SyncQueue() {
				fmt.Fprintf(w, "%s\t%s\t%s\n", task.Type, taskTarget(task), formatMillis(task.QueuedAt))
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&flush, "flush", false, "drop every pending task")
	return cmd
}

func (c *cli) draftCmd() *cobra.Command {
	var discard bool
	cmd := &cobra.Command{
		Use:   "draft",
		Short: "Show the unfinished route, if any",
		RunE: func(cmd *cobra.Command, _ []string) error {
			draft := c.store.ActiveDraft()
			if draft == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "no active draft")
				return nil
			}
			if discard {
				c.store.SaveActiveDraft(nil)
				fmt.Fprintf(cmd.OutOrStdout(), "cleared draft %s\n", draft.ID)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s started %s, %d points, %s\n",
				draft.ID, draft.Status, formatMillis(draft.StartAt), len(draft.Track), formatDistance(draft.Distance))
			return nil
		},
	}
	cmd.Flags().BoolVar(&discard, "clear", false, "discard the draft")
	return cmd
}

func (c *cli) keysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List stored keys",
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, key := range kv.New(c.backend).Keys() {
				fmt.Fprintln(cmd.OutOrStdout(), key)
			}
			return nil
		},
	}
}

func taskTarget(task route.SyncTask) string {
	if task.Type == route.SyncReplace {
		return strings.Join(task.RouteIDs, ",")
	}
	return task.RouteID
}

func formatMillis(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

func formatDistance(m float64) string {
	if m >= 1000 {
		return fmt.Sprintf("%.2f km", m/1000)
	}
	return fmt.Sprintf("%.0f m", m)
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
