package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/coachstream/coach"
	"github.com/vovakirdan/coachstream/coach/relay"
)

func newListenCmd(g *globals) *cobra.Command {
	var rf redisFlags
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Follow a conversation mirrored to Redis Streams",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListen(cmd.Context(), g, &rf)
		},
	}
	rf.register(cmd, true)
	return cmd
}

func runListen(ctx context.Context, g *globals, rf *redisFlags) error {
	logger, err := g.logger()
	if err != nil {
		return err
	}
	cfg, err := g.config()
	if err != nil {
		return err
	}
	topic := rf.topicFor(cfg)

	if err := relay.EnsureGroupAtTail(ctx, rf.cfg, topic); err != nil {
		return err
	}
	sub, err := relay.NewRedisSubscriber(rf.cfg, logger)
	if err != nil {
		return err
	}

	d := coach.NewDispatcher(
		coach.WithDispatcherLogger(logger.With().Str("component", "dispatcher").Logger()),
		coach.WithSignalTypes(cfg.SignalTypes...),
		coach.WithStrictTypes(cfg.StrictTypes),
	)
	attachPrinter(d, g.stdout)

	r := relay.New(topic, sub, d, logger)
	if err := r.Start(ctx); err != nil {
		_ = sub.Close()
		return err
	}
	defer r.Close()

	<-ctx.Done()
	return nil
}
