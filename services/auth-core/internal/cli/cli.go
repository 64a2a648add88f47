// Package cli реализует revocationctl - утилиту оператора для работы с черным списком.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	apperrors "AuthCorePlatform/pkg/errors"
	"AuthCorePlatform/services/auth-core/internal/audit"
	"AuthCorePlatform/services/auth-core/internal/domain"
	"AuthCorePlatform/services/auth-core/internal/pkg/token"
	"AuthCorePlatform/services/auth-core/internal/revocation"
)

// Форматы вывода
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

// Operator операции над черным списком, доступные из командной строки
type Operator interface {
	BlacklistStats(ctx context.Context) (domain.BlacklistStats, error)
	RevokeToken(ctx context.Context, tok string) (*token.Claims, error)
	RevokeAllForUser(ctx context.Context, userID, reason string) (int, error)
	RestoreToken(ctx context.Context, tok string) error
}

// Factory подключается к хранилищу по файлу конфигурации и возвращает Operator
// и функцию освобождения ресурсов
type Factory func(ctx context.Context, configFile string) (Operator, audit.Recorder, func(), error)

type app struct {
	viper    *viper.Viper
	factory  Factory
	operator Operator
	recorder audit.Recorder
	closer   func()
}

// NewRootCommand создает корневую команду revocationctl
func NewRootCommand(factory Factory) *cobra.Command {
	a := &app{viper: viper.New(), factory: factory}

	root := &cobra.Command{
		Use:   "revocationctl",
		Short: "Управление черным списком токенов",
		Long: `revocationctl работает с тем же хранилищем, что и сервис auth-core:
показывает статистику черного списка, отзывает токены и восстанавливает их.`,
		SilenceUsage:      true,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.connect(cmd.Context())
		},
	}

	flags := root.PersistentFlags()
	flags.StringP("config", "c", "", "config file (default: built-in defaults and environment)")
	flags.StringP("output", "o", FormatTable, "output format (table, json, yaml)")
	flags.String("operator", os.Getenv("USER"), "operator name recorded in the audit trail")

	a.viper.SetEnvPrefix("REVOCATIONCTL")
	a.viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.viper.AutomaticEnv()
	for _, name := range []string{"config", "output", "operator"} {
		_ = a.viper.BindPFlag(name, flags.Lookup(name))
	}

	root.AddCommand(
		a.statsCommand(),
		a.revokeTokenCommand(),
		a.revokeUserCommand(),
		a.restoreCommand(),
	)
	return root
}

func (a *app) connect(ctx context.Context) error {
	if err := validateFormat(a.viper.GetString("output")); err != nil {
		return err
	}
	operator, recorder, closer, err := a.factory(ctx, a.viper.GetString("config"))
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	a.operator, a.recorder, a.closer = operator, recorder, closer
	return nil
}

// run освобождает подключение после выполнения команды
func (a *app) run(fn func(cmd *cobra.Command, args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		defer func() {
			if a.closer != nil {
				a.closer()
			}
		}()
		return fn(cmd, args)
	}
}

func (a *app) statsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Показать статистику черного списка",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			stats, err := a.operator.BlacklistStats(cmd.Context())
			if err != nil {
				return describe(err)
			}
			a.record(cmd.Context(), audit.NewAction(domain.ActionViewStats, a.performer(), "", ""), "success")

			return a.print(cmd.OutOrStdout(), stats, [][2]string{
				{"Total", fmt.Sprint(stats.Total)},
				{"Expiring soon", fmt.Sprint(stats.ExpiringSoon)},
				{"Approx memory", stats.ApproxMemory},
			})
		}),
	}
}

func (a *app) revokeTokenCommand() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "revoke-token <token>",
		Short: "Отозвать токен",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			signature, err := revocation.SignatureOf(args[0])
			if err != nil {
				return describe(err)
			}
			action := audit.NewAction(domain.ActionBlacklistToken, a.performer(), signature, reason)

			claims, err := a.operator.RevokeToken(cmd.Context(), args[0])
			if err != nil {
				a.record(cmd.Context(), action, "failed")
				return describe(err)
			}
			action.Count = 1
			a.record(cmd.Context(), action, "success")

			result := map[string]interface{}{"revoked": true, "userId": claims.UserID, "signature": signature}
			return a.print(cmd.OutOrStdout(), result, [][2]string{
				{"Revoked", "true"},
				{"User", claims.UserID},
				{"Signature", signature},
			})
		}),
	}
	cmd.Flags().StringVarP(&reason, "reason", "r", "", "reason recorded in the audit trail")
	return cmd
}

func (a *app) revokeUserCommand() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "revoke-user <userId>",
		Short: "Отозвать все токены пользователя",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			userID := args[0]
			action := audit.NewAction(domain.ActionBlacklistUser, a.performer(), userID, reason)

			count, err := a.operator.RevokeAllForUser(cmd.Context(), userID, reason)
			if err != nil {
				a.record(cmd.Context(), action, "failed")
				return describe(err)
			}
			action.Count = count
			a.record(cmd.Context(), action, "success")

			result := map[string]interface{}{"userId": userID, "revoked": count}
			return a.print(cmd.OutOrStdout(), result, [][2]string{
				{"User", userID},
				{"Revoked", fmt.Sprint(count)},
			})
		}),
	}
	cmd.Flags().StringVarP(&reason, "reason", "r", "", "reason recorded in the audit trail")
	return cmd
}

func (a *app) restoreCommand() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "restore <token>",
		Short: "Удалить токен из черного списка",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			signature, err := revocation.SignatureOf(args[0])
			if err != nil {
				return describe(err)
			}
			action := audit.NewAction(domain.ActionUnblacklist, a.performer(), signature, reason)

			if err := a.operator.RestoreToken(cmd.Context(), args[0]); err != nil {
				a.record(cmd.Context(), action, "failed")
				return describe(err)
			}
			action.Count = 1
			a.record(cmd.Context(), action, "success")

			result := map[string]interface{}{"restored": true, "signature": signature}
			return a.print(cmd.OutOrStdout(), result, [][2]string{
				{"Restored", "true"},
				{"Signature", signature},
			})
		}),
	}
	cmd.Flags().StringVarP(&reason, "reason", "r", "", "reason recorded in the audit trail")
	return cmd
}

func (a *app) performer() string {
	if operator := a.viper.GetString("operator"); operator != "" {
		return "cli:" + operator
	}
	return "cli"
}

func (a *app) record(ctx context.Context, action domain.AdminAction, result string) {
	if a.recorder == nil {
		return
	}
	action.Result = result
	_ = a.recorder.Record(ctx, action)
}

// print выводит результат в выбранном формате
func (a *app) print(w io.Writer, data interface{}, rows [][2]string) error {
	switch a.viper.GetString("output") {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case FormatYAML:
		out, err := yaml.Marshal(data)
		if err != nil {
			return err
		}
		_, err = w.Write(out)
		return err
	default:
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		for _, row := range rows {
			fmt.Fprintf(tw, "%s:\t%s\n", row[0], row[1])
		}
		return tw.Flush()
	}
}

func validateFormat(format string) error {
	switch format {
	case FormatTable, FormatJSON, FormatYAML:
		return nil
	}
	return apperrors.New(apperrors.ErrInvalidRequest, "unknown output format").WithDetails(format)
}

// describe переводит ошибку ядра в сообщение для оператора
func describe(err error) error {
	switch {
	case errors.Is(err, domain.ErrMalformedToken), errors.Is(err, domain.ErrInvalidSignature):
		return fmt.Errorf("%s: %w", apperrors.ErrInvalidToken, err)
	case errors.Is(err, domain.ErrNotFound):
		return fmt.Errorf("%s: %w", apperrors.ErrNotFound, err)
	default:
		return fmt.Errorf("%s: %w", apperrors.CodeOf(err), err)
	}
}
