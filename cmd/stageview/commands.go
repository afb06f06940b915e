package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"entgo.io/ent/dialect/sql"
	"github.com/spf13/cobra"

	"github.com/syssam/stageview/collection"
	"github.com/syssam/stageview/config"
	"github.com/syssam/stageview/index"
	"github.com/syssam/stageview/preview"
	"github.com/syssam/stageview/schema"
	"github.com/syssam/stageview/scope"
)

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	f := &flags{}
	var a *app
	root := &cobra.Command{
		Use:           "stageview",
		Short:         "Inspect tenant scoping and preview staged category assignments",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := loadConfig(f)
			if err != nil {
				return err
			}
			if a, err = newApp(cfg, path, out, errOut); err != nil {
				return err
			}
			return a.serveMetrics(cfg.Metrics.Addr)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.close(context.WithoutCancel(cmd.Context()))
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)
	pf := root.PersistentFlags()
	pf.StringVarP(&f.config, "config", "c", "stageview.yaml", "configuration file")
	pf.StringVar(&f.dialect, "dialect", "", "database dialect: mysql, postgres or sqlite")
	pf.StringVar(&f.dsn, "dsn", "", "database DSN, overrides the configuration file")

	get := func() *app { return a }
	root.AddCommand(
		newColumnsCmd(get, f),
		newAuditCmd(get, f),
		newResolveCmd(get),
		newPreviewCmd(get),
		newServeCmd(get, f),
	)
	// PersistentPostRunE is skipped when a command fails.
	for _, c := range root.Commands() {
		run := c.RunE
		c.RunE = func(cmd *cobra.Command, args []string) error {
			if err := run(cmd, args); err != nil {
				return errors.Join(err, a.close(context.WithoutCancel(cmd.Context())))
			}
			return nil
		}
	}
	return root
}

func newColumnsCmd(get func() *app, f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "columns TABLE...",
		Short: "Print the columns of tables and the tenant column used for scoping",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, tables []string) error {
			a := get()
			d, err := a.describer(f.atlas)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := a.cache.Warm(ctx, d, tables...); err != nil {
				return err
			}
			for _, t := range tables {
				cols, err := a.cache.Columns(ctx, d, t)
				if err != nil {
					return err
				}
				tenant, ok := cols.First(a.cfg.Scope.Columns...)
				if !ok {
					tenant = "-"
				}
				fmt.Fprintf(a.out, "%s\ttenant=%s\tcolumns=%s\n", t, tenant, strings.Join(cols, ","))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&f.atlas, "atlas", false, "inspect tables with atlas instead of information_schema queries")
	return cmd
}

func newAuditCmd(get func() *app, f *flags) *cobra.Command {
	var allow []string
	cmd := &cobra.Command{
		Use:   "audit TABLE...",
		Short: "Report tables that admin reads cannot scope to stores or websites",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, tables []string) error {
			a := get()
			d, err := a.describer(f.atlas)
			if err != nil {
				return err
			}
			allow = append(allow, a.cfg.Scope.AllowUnscoped...)
			res, err := schema.AuditTenantColumns(cmd.Context(), a.cache, d, tables,
				schema.AllowUnscoped(allow...),
				schema.WithTenantColumns(a.cfg.Scope.Columns...),
			)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, res.String())
			if res.HasErrors() {
				return fmt.Errorf("audit: %d unscoped tables", len(res.Unscoped()))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&f.atlas, "atlas", false, "inspect tables with atlas instead of information_schema queries")
	cmd.Flags().StringSliceVar(&allow, "allow", nil, "tables allowed to be read unscoped")
	return cmd
}

func newResolveCmd(get func() *app) *cobra.Command {
	var stores []int
	cmd := &cobra.Command{
		Use:   "resolve [TABLE]",
		Short: "Print the store shard names of a dimensional index table",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			a := get()
			table := a.cfg.Index.MainTable
			if len(args) == 1 {
				table = args[0]
			}
			r := a.resolver()
			for _, id := range stores {
				live := r.Resolve(table, index.StoreDimension(id))
				fmt.Fprintf(a.out, "%d\t%s\t%s\n", id, live, index.Shorten(live+"_tmp", a.cfg.Index.MaxNameLength))
			}
			return nil
		},
	}
	cmd.Flags().IntSliceVarP(&stores, "store", "s", []int{1}, "store ids")
	return cmd
}

func newPreviewCmd(get func() *app) *cobra.Command {
	var (
		root, store, category int
		version               int64
	)
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "List the products of a category before, during and after the preview of a staging version",
		Long: `preview lists the products of a category from the store shard of the
category product index. With --version the category tree hook runs in
preview mode: the staged assignments of the root category are materialized
into a temporary table and the listing is redirected to it. Without
--version the hook does nothing and every listing reads the live shard.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := get()
			drv, err := a.driver()
			if err != nil {
				return err
			}
			if category == 0 {
				category = root
			}
			ctx := cmd.Context()
			if version != 0 {
				ctx = preview.WithVersion(ctx, version)
			}
			dims := a.resolver()
			dataset := preview.NewTableBuilder(drv, dims,
				preview.WithTable(a.cfg.Index.MainTable),
				preview.WithBuilderLogger(a.log),
			)
			m := preview.NewMaterializer(
				preview.NewCategoryRepository(drv),
				preview.NewSQLCandidates(drv),
				dataset, dims, a.registry,
				preview.WithIndexTable(a.cfg.Index.MainTable),
				preview.WithLogger(a.log),
			)
			hook := preview.NewTreeHook(preview.ContextMode, m)
			list := func(ctx context.Context, label string) error {
				c, err := collection.New(drv, a.cfg.Index.MainTable,
					collection.WithResolver(index.NewMappedResolver(dims, a.registry), index.StoreDimension(store)),
					collection.WithScope(a.filter, scope.RestrictedTo([]int{store}, nil)),
					collection.WithLogger(a.log),
				)
				if err != nil {
					return err
				}
				c.WhereP(sql.FieldEQ("category_id", category))
				c.Order("product_id")
				ids, err := c.IDs(ctx, "product_id")
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "%s\t%s\t%v\n", label, c.MainTable(), ids)
				return nil
			}
			if err := list(ctx, "live"); err != nil {
				return err
			}
			if err := hook.BeforeGetTree(ctx, root, store); err != nil {
				return err
			}
			live := dims.Resolve(a.cfg.Index.MainTable, index.StoreDimension(store))
			label := "live"
			if _, ok := a.registry.Get(live); ok {
				label = "preview"
			}
			err = list(ctx, label)
			a.registry.Clear(live)
			if err != nil {
				return err
			}
			return list(ctx, "live")
		},
	}
	fl := cmd.Flags()
	fl.IntVar(&root, "root", 0, "root category id")
	fl.IntVarP(&store, "store", "s", 1, "store id")
	fl.IntVar(&category, "category", 0, "category to list, defaults to the root category")
	fl.Int64Var(&version, "version", 0, "staging version id, enables preview mode")
	_ = cmd.MarkFlagRequired("root")
	return cmd
}

func newServeCmd(get func() *app, f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [TABLE...]",
		Short: "Warm the column cache and serve metrics until interrupted",
		Long: `serve describes the given tables into the column cache, then blocks
until interrupted. The log level and the slow statement threshold are
reloaded when the configuration file changes.`,
		RunE: func(cmd *cobra.Command, tables []string) error {
			a := get()
			ctx := cmd.Context()
			d, err := a.describer(f.atlas)
			if err != nil {
				return err
			}
			if err := a.cache.Warm(ctx, d, tables...); err != nil {
				return err
			}
			a.log.InfoContext(ctx, "column cache warmed", "tables", a.cache.Len())
			if a.path == "" {
				a.log.InfoContext(ctx, "no configuration file to watch")
				<-ctx.Done()
				return nil
			}
			return config.Watch(ctx, a.path, a.reload, a.log)
		},
	}
	cmd.Flags().BoolVar(&f.atlas, "atlas", false, "inspect tables with atlas instead of information_schema queries")
	return cmd
}
