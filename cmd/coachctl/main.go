package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/coachstream/coach"
	"github.com/vovakirdan/coachstream/coach/relay"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := submain(ctx, os.Args[1:])
	cancel()
	os.Exit(code)
}

func submain(ctx context.Context, args []string) int {
	root := newRootCmd(os.Stdout, os.Stderr)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		logger := zerolog.New(zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) { w.Out = os.Stderr }))
		logger.Error().Err(err).Msg("coachctl failed")
		return 1
	}
	return 0
}

// globals holds the persistent flags shared by every subcommand.
type globals struct {
	configPath string
	logLevel   string
	url        string
	token      string

	stdout io.Writer
	stderr io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	g := &globals{stdout: stdout, stderr: stderr}
	root := &cobra.Command{
		Use:           "coachctl",
		Short:         "Talk to the coach streaming chat backend",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "path to a YAML config file")
	pf.StringVar(&g.logLevel, "log-level", "warn", "log level (trace, debug, info, warn, error)")
	pf.StringVar(&g.url, "url", "", "websocket URL, overrides the config file")
	pf.StringVar(&g.token, "token", "", "bearer token, overrides the config file")

	root.AddCommand(newChatCmd(g))
	root.AddCommand(newReplayCmd(g))
	root.AddCommand(newListenCmd(g))
	root.AddCommand(newConfigCmd(g))
	return root
}

func (g *globals) logger() (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(g.logLevel))
	if err != nil {
		return zerolog.Nop(), errors.Wrapf(err, "invalid log level %q", g.logLevel)
	}
	return zerolog.New(zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) { w.Out = g.stderr })).
		Level(level).
		With().
		Timestamp().
		Logger(), nil
}

func (g *globals) config() (coach.Config, error) {
	cfg, err := coach.LoadConfig(g.configPath)
	if err != nil {
		return coach.Config{}, err
	}
	if g.url != "" {
		cfg.URL = g.url
	}
	if g.token != "" {
		cfg.Token = g.token
	}
	return cfg, nil
}

// redisFlags are shared by the commands that can talk to Redis Streams.
type redisFlags struct {
	cfg   relay.RedisConfig
	topic string
}

func (r *redisFlags) register(cmd *cobra.Command, requireAddr bool) {
	f := cmd.Flags()
	usage := "redis address for mirroring frames"
	if requireAddr {
		usage = "redis address to read frames from"
	}
	f.StringVar(&r.cfg.Addr, "redis-addr", "", usage)
	f.StringVar(&r.cfg.Group, "redis-group", "", "redis consumer group")
	f.StringVar(&r.cfg.Consumer, "redis-consumer", "coachctl", "redis consumer name")
	f.StringVar(&r.topic, "topic", "", "stream topic (default derived from the conversation id)")
	if requireAddr {
		_ = cmd.MarkFlagRequired("redis-addr")
	}
}

func (r *redisFlags) topicFor(cfg coach.Config) string {
	if r.topic != "" {
		return r.topic
	}
	return relay.TopicForConversation(cfg.ConversationID)
}
