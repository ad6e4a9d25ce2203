package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	feishu "github.com/goliatone/go-feishu"
	"github.com/goliatone/go-feishu/adapters/gologger"
	"github.com/goliatone/go-feishu/core"
	"github.com/goliatone/go-feishu/security"
	sqlstore "github.com/goliatone/go-feishu/store/sql"
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v3"
)

const envPrefix = "FEISHU"

const (
	outputJSON = "json"
	outputYAML = "yaml"
)

// settingKind tells the env loader how to coerce a raw string.
type settingKind int

const (
	kindString settingKind = iota
	kindBool
	kindInt
	kindDuration
	kindStrings
)

// envSettings are the config keys that can be set through FEISHU_* env vars.
var envSettings = map[string]settingKind{
	"api.base_url":                    kindString,
	"api.request_timeout":             kindDuration,
	"token.refresh_buffer":            kindDuration,
	"pagination.page_size":            kindInt,
	"pagination.max_pages":            kindInt,
	"sync.cooldown":                   kindDuration,
	"sync.poll_interval":              kindDuration,
	"sync.concurrency":                kindInt,
	"provider.enabled":                kindBool,
	"provider.app_id":                 kindString,
	"provider.app_secret":             kindString,
	"provider.search_issues_from_api": kindBool,
	"provider.auto_poll":              kindBool,
	"provider.auto_add_to_backlog":    kindBool,
	"provider.filter_user_id":         kindString,
	"provider.filter_tasklist_ids":    kindStrings,
	"provider.two_way_sync":           kindBool,
	"provider.sync_task_status":       kindBool,
	"provider.sync_task_content":      kindBool,
	"provider.sync_comments":          kindBool,
}

type rootOptions struct {
	configFile string
	output     string
	logFile    string
	logLevel   string
	driver     string
	dsn        string
	tokenKey   string
}

// app carries the process streams and the extra service options tests use
// to swap the transport.
type app struct {
	stdout io.Writer
	stderr io.Writer

	opts           rootOptions
	serviceOptions []feishu.Option
	closers        []io.Closer
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{stdout: stdout, stderr: stderr}
}

// loadSettings reads the optional config file and FEISHU_* env vars into the
// raw map cfgx decodes.
func (a *app) loadSettings() (map[string]any, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key := range envSettings {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	if path := strings.TrimSpace(a.opts.configFile); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	settings := v.AllSettings()
	for key, kind := range envSettings {
		if !v.IsSet(key) {
			continue
		}
		setNested(settings, key, coerce(v, key, kind))
	}
	return settings, nil
}

func coerce(v *viper.Viper, key string, kind settingKind) any {
	switch kind {
	case kindBool:
		return v.GetBool(key)
	case kindInt:
		return v.GetInt(key)
	case kindDuration:
		return v.GetDuration(key)
	case kindStrings:
		return v.GetStringSlice(key)
	default:
		return v.GetString(key)
	}
}

func setNested(target map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	current := target
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			next = map[string]any{}
			current[part] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
}

// logger writes JSON records to stderr, or to a rotating file when
// --log-file is set.
func (a *app) logger() *gologger.SlogLogger {
	var out io.Writer = a.stderr
	if path := strings.TrimSpace(a.opts.logFile); path != "" {
		rotating := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		}
		a.closers = append(a.closers, rotating)
		out = rotating
	}
	return gologger.NewSlogLogger(out, a.opts.logLevel)
}

// openStore opens and migrates the SQL store when --driver is set. A nil
// result means the service keeps its in-memory stores.
func (a *app) openStore(ctx context.Context) (*sqlstore.Stores, error) {
	driver := strings.TrimSpace(a.opts.driver)
	if driver == "" {
		return nil, nil
	}
	client, err := a.openClient(ctx, driver)
	if err != nil {
		return nil, err
	}
	var opts []sqlstore.StoresOption
	key := strings.TrimSpace(a.opts.tokenKey)
	if key == "" {
		key = strings.TrimSpace(os.Getenv(envPrefix + "_TOKEN_KEY"))
	}
	if key != "" {
		secrets, err := security.NewAppKeySecretProviderFromString(key)
		if err != nil {
			return nil, err
		}
		opts = append(opts, sqlstore.WithSealedTokens(secrets))
	}
	return sqlstore.NewStores(client, opts...)
}

func (a *app) openClient(ctx context.Context, driver string) (*persistence.Client, error) {
	if strings.TrimSpace(a.opts.dsn) == "" {
		return nil, fmt.Errorf("--dsn is required with --driver")
	}
	client, err := sqlstore.Open(driver, a.opts.dsn)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, client)
	if err := sqlstore.Migrate(ctx, client, driver); err != nil {
		return nil, err
	}
	return client, nil
}

func (a *app) newService(ctx context.Context) (*feishu.Service, error) {
	settings, err := a.loadSettings()
	if err != nil {
		return nil, err
	}
	logger := a.logger()
	opts := []feishu.Option{
		feishu.WithLogger(logger),
		feishu.WithLoggerProvider(gologger.SlogProvider{Root: logger}),
		feishu.WithConfigProvider(core.NewCfgxConfigProvider(core.StaticRawConfigLoader{Values: settings})),
	}

	stores, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	if stores != nil {
		cacheService, err := sqlstore.NewCacheService(sqlstore.DefaultCacheTTL)
		if err != nil {
			return nil, err
		}
		cached, err := stores.Cached(cacheService)
		if err != nil {
			return nil, err
		}
		opts = append(opts,
			feishu.WithCredentialCache(cached.Credentials),
			feishu.WithRateLimitStore(cached.RateLimits),
			feishu.WithBookkeepingStore(stores.SyncMarks),
			feishu.WithRunStore(stores.Runs),
		)
	}
	opts = append(opts, a.serviceOptions...)
	return feishu.New(feishu.Config{}, opts...)
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i].Close()
	}
	a.closers = nil
}

// render writes value as indented JSON or as YAML. YAML goes through the
// JSON form so field names match the json tags.
func (a *app) render(value any) error {
	encoded, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(a.opts.output)) {
	case "", outputJSON:
		_, err = fmt.Fprintln(a.stdout, string(encoded))
		return err
	case outputYAML:
		var node yaml.Node
		if err := yaml.Unmarshal(encoded, &node); err != nil {
			return fmt.Errorf("encode output: %w", err)
		}
		blockStyle(&node)
		encoder := yaml.NewEncoder(a.stdout)
		encoder.SetIndent(2)
		if err := encoder.Encode(&node); err != nil {
			return fmt.Errorf("encode output: %w", err)
		}
		return encoder.Close()
	default:
		return fmt.Errorf("unknown output format %q", a.opts.output)
	}
}

// blockStyle drops the flow and quoting styles the JSON parse leaves on
// every node.
func blockStyle(node *yaml.Node) {
	node.Style = 0
	for _, child := range node.Content {
		blockStyle(child)
	}
}
