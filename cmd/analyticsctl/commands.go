package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/paulohenriquevn/lovedcrm-sub002/internal/cache"
	"github.com/paulohenriquevn/lovedcrm-sub002/internal/config"
	"github.com/paulohenriquevn/lovedcrm-sub002/internal/domain"
	"github.com/paulohenriquevn/lovedcrm-sub002/internal/middleware"
	"github.com/paulohenriquevn/lovedcrm-sub002/pkg/logger"
)

// env is what the store-facing commands need; tests swap the store.
type env struct {
	configPath string
	store      func(ctx context.Context, cfg *config.Config, log *zap.Logger) (cache.Store, func(), error)
}

func newRootCmd() *cobra.Command {
	return buildRootCmd(&env{store: redisStore})
}

func buildRootCmd(e *env) *cobra.Command {
	root := &cobra.Command{
		Use:           "analyticsctl",
		Short:         "Inspect and manage the LovedCRM analytics cache",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&e.configPath, "config", "c", "", "Path to config.yaml (defaults + APP_* env when empty)")

	root.AddCommand(keyCmd())
	root.AddCommand(ttlCmd())
	root.AddCommand(statsCmd(e))
	root.AddCommand(invalidateCmd(e))
	root.AddCommand(tokenCmd(e))

	return root
}

func keyCmd() *cobra.Command {
	var (
		org    string
		params []string
	)

	cmd := &cobra.Command{
		Use:   "key <operation>",
		Short: "Print the cache key for an operation, organization and parameters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseParams(params)
			if err != nil {
				return err
			}
			key, err := cache.DeriveKey(args[0], org, parsed)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}

	cmd.Flags().StringVar(&org, "org", "", "Organization id")
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "Parameter as name=value; values are parsed as YAML scalars")
	_ = cmd.MarkFlagRequired("org")

	return cmd
}

func ttlCmd() *cobra.Command {
	var freshness float64

	cmd := &cobra.Command{
		Use:   "ttl [operation...]",
		Short: "Show the TTL each operation gets for a freshness window",
		RunE: func(cmd *cobra.Command, args []string) error {
			ops := args
			if len(ops) == 0 {
				ops = cache.KnownOperations()
			}
			out := cmd.OutOrStdout()
			for _, op := range ops {
				fmt.Fprintf(out, "%-22s %6ds\n", op, cache.TTLSeconds(op, freshness))
			}
			return nil
		},
	}

	cmd.Flags().Float64Var(&freshness, "freshness", cache.DefaultFreshnessHours, "Freshness window in hours")
	return cmd
}

func statsCmd(e *env) *cobra.Command {
	var org, output string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache store statistics, optionally for one organization",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := e.service(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			return render(cmd.OutOrStdout(), output, svc.Stats(cmd.Context(), org))
		},
	}

	cmd.Flags().StringVar(&org, "org", "", "Organization id for the per-operation breakdown")
	cmd.Flags().StringVarP(&output, "output", "o", "yaml", "Output format: json or yaml")
	return cmd
}

func invalidateCmd(e *env) *cobra.Command {
	var org, event string

	cmd := &cobra.Command{
		Use:   "invalidate",
		Short: "Drop cached analytics for an organization",
		Long: `Without --event every analytics entry of the organization is removed.
With --event only the operations affected by that event category are removed,
exactly as the running service does after a data change.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := e.service(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			out := cmd.OutOrStdout()
			if event == "" {
				res := svc.Invalidator().InvalidateTenant(cmd.Context(), org)
				if res.Err != nil {
					return res.Err
				}
				fmt.Fprintf(out, "deleted %d keys for %s\n", res.Value, org)
				return nil
			}

			report := svc.Invalidator().OnDomainEvent(cmd.Context(), org, "", domain.EventCategory(event))
			ops := make([]string, 0, len(report.Deleted))
			for op := range report.Deleted {
				ops = append(ops, op)
			}
			sort.Strings(ops)
			for _, op := range ops {
				fmt.Fprintf(out, "%-22s %d\n", op, report.Deleted[op])
			}
			if len(report.Failed) > 0 {
				return fmt.Errorf("invalidation failed for: %s", strings.Join(report.Failed, ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&org, "org", "", "Organization id")
	cmd.Flags().StringVar(&event, "event", "", "Event category: lead_created, lead_updated, lead_deleted or stage_change")
	_ = cmd.MarkFlagRequired("org")
	return cmd
}

func tokenCmd(e *env) *cobra.Command {
	var user, org string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := e.config()
			if err != nil {
				return err
			}
			auth := middleware.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer, zap.NewNop())
			token, err := auth.Issue(user, org, jwt.RegisteredClaims{
				IssuedAt:  jwt.NewNumericDate(time.Now()),
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "User id (sub claim)")
	cmd.Flags().StringVar(&org, "org", "", "Organization id (org_id claim)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("org")
	return cmd
}

func (e *env) config() (*config.Config, error) {
	if err := config.Load(e.configPath); err != nil {
		return nil, err
	}
	return config.Get(), nil
}

func (e *env) service(ctx context.Context) (*cache.Service, func(), error) {
	cfg, err := e.config()
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New("warn", false)
	if err != nil {
		return nil, nil, err
	}

	store, closeFn, err := e.store(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	if !store.Available() {
		closeFn()
		return nil, nil, fmt.Errorf("cache store at %s is unavailable", cfg.Redis.Addr)
	}
	return cache.NewService(store, log), closeFn, nil
}

func redisStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (cache.Store, func(), error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Redis.Addr,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		DialTimeout: cfg.Redis.DialTimeout,
	})
	return cache.NewRedisStore(ctx, client, log), func() { _ = client.Close() }, nil
}

// parseParams turns name=value pairs into call parameters. "30" becomes an int and
// "true" a bool, so keys match what the service derives from typed values.
func parseParams(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	params := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid parameter %q: expected name=value", pair)
		}
		var v any
		if err := yaml.Unmarshal([]byte(raw), &v); err != nil || v == nil {
			v = raw
		}
		params[name] = v
	}
	return params, nil
}

func render(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		// Round-trip through JSON so the yaml output keeps the json field names.
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var generic any
		if err := yaml.Unmarshal(raw, &generic); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(generic)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
