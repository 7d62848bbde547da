package main

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/noData0079/SecOPS.v1-sub002/gate"
	"github.com/noData0079/SecOPS.v1-sub002/internal/pathutil"
)

func gateConfigFromViper() gate.Config {
	viper.SetDefault("gate.approvals.dsn", "~/.secops/approvals.db")
	viper.SetDefault("gate.rate_limit.capacity", 10.0)
	viper.SetDefault("gate.rate_limit.refill_per_second", 1.0)
	viper.SetDefault("gate.rate_limit.bucket_retention", time.Hour)
	viper.SetDefault("gate.rate_limit.sweep_interval", 5*time.Minute)
	viper.SetDefault("gate.kill_switch.path", "~/.secops/killswitch.json")
	viper.SetDefault("gate.audit.jsonl_path", "~/.secops/gate_audit.jsonl")
	viper.SetDefault("gate.audit.rotate_max_bytes", int64(100*1024*1024))

	return gate.Config{
		Approvals: gate.ApprovalsConfig{
			DSN: pathutil.ExpandHomePath(viper.GetString("gate.approvals.dsn")),
		},
		RateLimit: gate.RateLimitConfig{
			Capacity:        viper.GetFloat64("gate.rate_limit.capacity"),
			RefillPerSecond: viper.GetFloat64("gate.rate_limit.refill_per_second"),
			BucketRetention: viper.GetDuration("gate.rate_limit.bucket_retention"),
			SweepInterval:   viper.GetDuration("gate.rate_limit.sweep_interval"),
		},
		Kill: gate.KillSwitchConfig{
			Path: pathutil.ExpandHomePath(viper.GetString("gate.kill_switch.path")),
		},
		Audit: gate.AuditConfig{
			JSONLPath:      pathutil.ExpandHomePath(viper.GetString("gate.audit.jsonl_path")),
			RotateMaxBytes: viper.GetInt64("gate.audit.rotate_max_bytes"),
		},
	}
}

// gatekeeperFromConfig assembles the live core. The returned closer releases
// the store and audit sink.
func gatekeeperFromConfig(cfg gate.Config, log *slog.Logger) (*gate.Gatekeeper, func(), error) {
	store, err := gate.NewSQLiteApprovalStore(cfg.Approvals.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open approval store: %w", err)
	}

	var audit gate.AuditSink = gate.NopAuditSink{}
	if strings.TrimSpace(cfg.Audit.JSONLPath) != "" {
		sink, err := gate.NewJSONLAuditSink(cfg.Audit.JSONLPath, cfg.Audit.RotateMaxBytes)
		if err != nil {
			_ = store.Close()
			return nil, nil, fmt.Errorf("open audit sink: %w", err)
		}
		audit = sink
	}

	var kill gate.KillSwitch = &gate.MemoryKillSwitch{}
	if strings.TrimSpace(cfg.Kill.Path) != "" {
		fk, err := gate.NewFileKillSwitch(cfg.Kill.Path)
		if err != nil {
			_ = audit.Close()
			_ = store.Close()
			return nil, nil, fmt.Errorf("open kill switch: %w", err)
		}
		kill = fk
	}

	limiter := gate.NewTokenBucketLimiter(
		cfg.RateLimit.Capacity,
		cfg.RateLimit.RefillPerSecond,
		gate.WithBucketRetention(cfg.RateLimit.BucketRetention, cfg.RateLimit.SweepInterval),
	)

	g, err := gate.NewGatekeeper(store,
		gate.WithKillSwitch(kill),
		gate.WithRateLimiter(limiter),
		gate.WithAuditSink(audit),
		gate.WithLogger(log),
	)
	if err != nil {
		_ = audit.Close()
		_ = store.Close()
		return nil, nil, err
	}

	closer := func() {
		_ = audit.Close()
		_ = store.Close()
	}
	return g, closer, nil
}

func killSwitchFromViper() (gate.KillSwitch, error) {
	cfg := gateConfigFromViper()
	if strings.TrimSpace(cfg.Kill.Path) == "" {
		return nil, fmt.Errorf("gate.kill_switch.path is not configured")
	}
	return gate.NewFileKillSwitch(cfg.Kill.Path)
}
