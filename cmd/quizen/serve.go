package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/quizen/internal/config"
	"github.com/pavelanni/quizen/internal/handler"
	appI18n "github.com/pavelanni/quizen/internal/i18n"
	"github.com/pavelanni/quizen/internal/store"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only run inspection API",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	def := config.Default()
	f := cmd.Flags()
	f.StringP("addr", "a", def.Addr, "HTTP listen address")
	f.StringP("lang", "l", def.Lang, "Default label language (en, ko)")
	f.String("admin-password", "", "Initial operator password (or set QUIZEN_ADMIN_PASSWORD)")
	addCommonFlags(f)
	return cmd
}

func operatorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "operator",
		Short: "Manage inspection API operators",
	}

	add := &cobra.Command{
		Use:   "add USERNAME",
		Short: "Create an operator",
		Args:  cobra.ExactArgs(1),
		RunE:  runOperatorAdd,
	}
	add.Flags().String("password", "", "Operator password (or set QUIZEN_PASSWORD)")
	addCommonFlags(add.Flags())

	disable := &cobra.Command{
		Use:   "disable USERNAME",
		Short: "Disable an operator",
		Args:  cobra.ExactArgs(1),
		RunE:  runOperatorDisable,
	}
	addCommonFlags(disable.Flags())

	list := &cobra.Command{
		Use:   "list",
		Short: "List operators",
		Args:  cobra.NoArgs,
		RunE:  runOperatorList,
	}
	addCommonFlags(list.Flags())

	cmd.AddCommand(add, disable, list)
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := seedOperator(cmd.Context(), db, v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed operator: %w", err)
	}

	lang := v.GetString("lang")
	initLanguage(lang)

	h := handler.New(db, slog.Default())

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))
	h.Routes(r)

	addr := v.GetString("addr")
	runs, err := db.RunCount(cmd.Context())
	if err != nil {
		return fmt.Errorf("count runs: %w", err)
	}
	slog.Info("starting server", "addr", addr, "lang", lang, "runs", runs)
	return http.ListenAndServe(addr, r)
}

// seedOperator creates the "admin" operator when none exists.
func seedOperator(ctx context.Context, db *store.Store, password string) error {
	count, err := db.OperatorCount(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	if password == "" {
		return fmt.Errorf("admin password is required: set --admin-password flag or QUIZEN_ADMIN_PASSWORD env var")
	}
	if err := createOperator(ctx, db, "admin", password); err != nil {
		return err
	}
	slog.Info("seeded default operator", "username", "admin")
	return nil
}

func createOperator(ctx context.Context, db *store.Store, username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	_, err = db.CreateOperator(ctx, store.Operator{
		Username:     username,
		PasswordHash: string(hash),
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("create operator %s: %w", username, err)
	}
	return nil
}

func runOperatorAdd(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	password := v.GetString("password")
	if password == "" {
		return fmt.Errorf("password is required: set --password flag or QUIZEN_PASSWORD env var")
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	return createOperator(cmd.Context(), db, args[0], password)
}

func runOperatorDisable(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	op, err := db.GetOperator(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if op == nil {
		return fmt.Errorf("operator %s not found", args[0])
	}
	return db.SetOperatorActive(cmd.Context(), args[0], false)
}

func runOperatorList(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ops, err := db.ListOperators(cmd.Context())
	if err != nil {
		return fmt.Errorf("list operators: %w", err)
	}
	rows := make([][]string, 0, len(ops))
	for _, op := range ops {
		rows = append(rows, []string{op.Username, strconv.FormatBool(op.Active), op.CreatedAt.Local().Format("2006-01-02 15:04")})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Username", "Active", "Created"}, rows, nil))
	return nil
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration helpers",
	}
	initCmd := &cobra.Command{
		Use:   "init [PATH]",
		Short: "Write a commented sample config (default ./quizen.toml)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.FileName + ".toml"
			if len(args) == 1 {
				path = args[0]
			}
			force, _ := cmd.Flags().GetBool("force")
			if err := config.CreateSample(path, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().Bool("force", false, "Overwrite an existing file")
	cmd.AddCommand(initCmd)
	return cmd
}
