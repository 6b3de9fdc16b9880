package main

import (
	"bufio"
	"bytes"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/coachstream/coach"
	"github.com/vovakirdan/coachstream/coach/relay"
)

const maxFrameSize = 1 << 20

func newReplayCmd(g *globals) *cobra.Command {
	var rf redisFlags
	cmd := &cobra.Command{
		Use:   "replay <file.jsonl|->",
		Short: "Dispatch a captured transcript, one stream message per line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(g, &rf, args[0])
		},
	}
	rf.register(cmd, false)
	return cmd
}

func runReplay(g *globals, rf *redisFlags, path string) error {
	logger, err := g.logger()
	if err != nil {
		return err
	}
	cfg, err := g.config()
	if err != nil {
		return err
	}

	var in io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return errors.Wrap(err, "open transcript")
		}
		defer f.Close()
		in = f
	}

	d := coach.NewDispatcher(
		coach.WithDispatcherLogger(logger.With().Str("component", "dispatcher").Logger()),
		coach.WithSignalTypes(cfg.SignalTypes...),
		coach.WithStrictTypes(cfg.StrictTypes),
	)
	attachPrinter(d, g.stdout)

	var h relay.FrameHandler = d
	if rf.cfg.Addr != "" {
		pub, err := relay.NewRedisPublisher(rf.cfg, logger)
		if err != nil {
			return err
		}
		defer pub.Close()
		h = relay.Tee(d, pub, rf.topicFor(cfg), logger)
	}

	n, err := replayFrames(in, h)
	logger.Info().Int("frames", n).Msg("replay finished")
	return err
}

// replayFrames feeds every non-blank line of r to h and returns the number
// of frames delivered.
func replayFrames(r io.Reader, h relay.FrameHandler) (int, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxFrameSize)

	n := 0
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		h.HandleRaw(append([]byte(nil), line...))
		n++
	}
	return n, errors.Wrap(sc.Err(), "read transcript")
}
