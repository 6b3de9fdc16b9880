package main

import (
	"context"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/coachstream/coach"
	"github.com/vovakirdan/coachstream/coach/relay"
)

var errReplyCut = errors.New("connection closed before the reply finished")

func newChatCmd(g *globals) *cobra.Command {
	var rf redisFlags
	cmd := &cobra.Command{
		Use:   "chat <prompt>",
		Short: "Send one prompt and print the streamed reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), g, &rf, strings.Join(args, " "))
		},
	}
	rf.register(cmd, false)
	return cmd
}

func runChat(ctx context.Context, g *globals, rf *redisFlags, prompt string) error {
	logger, err := g.logger()
	if err != nil {
		return err
	}
	cfg, err := g.config()
	if err != nil {
		return err
	}

	opts := []coach.ClientOption{coach.WithLogger(logger)}
	if rf.cfg.Addr != "" {
		pub, err := relay.NewRedisPublisher(rf.cfg, logger)
		if err != nil {
			return err
		}
		defer pub.Close()
		opts = append(opts, coach.WithFrameTap(mirror(pub, rf.topicFor(cfg), logger)))
	}

	client := coach.NewClient(cfg, opts...)
	attachPrinter(client.Dispatcher(), g.stdout)

	finished := make(chan error, 1)
	client.Dispatcher().OnDone(func() { signalDone(finished, nil) })
	client.Dispatcher().OnError(func(err error) { signalDone(finished, err) })
	client.States().OnChange(func(ev coach.StateEvent) {
		switch ev.NewState.Phase() {
		case coach.PhaseDisconnected:
			signalDone(finished, errReplyCut)
		case coach.PhaseError:
			signalDone(finished, ev.NewState.Err())
		}
	})

	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer client.Close()

	if err := client.SendChat(ctx, prompt); err != nil {
		return errors.Wrap(err, "send prompt")
	}

	select {
	case err := <-finished:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func signalDone(ch chan<- error, err error) {
	select {
	case ch <- err:
	default:
	}
}

func mirror(pub message.Publisher, topic string, logger zerolog.Logger) func([]byte) {
	return func(raw []byte) {
		frame := append([]byte(nil), raw...)
		if err := relay.PublishRaw(pub, topic, frame); err != nil {
			logger.Warn().Err(err).Str("topic", topic).Msg("mirror frame failed")
		}
	}
}
