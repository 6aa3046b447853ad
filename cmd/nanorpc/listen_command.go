package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"sync"

	"github.com/lightforgemedia/go-nanorpc/internal/config"
	"github.com/lightforgemedia/go-nanorpc/pkg/bridge"
	"github.com/lightforgemedia/go-nanorpc/pkg/filewatcher"
	"github.com/lightforgemedia/go-nanorpc/pkg/ws"
	"github.com/spf13/cobra"
)

func newListenCommand(ctx *commandContext) *cobra.Command {
	var (
		topics     []string
		ack        bool
		subsFile   string
		watch      bool
		natsURL    string
		natsPrefix string
		stats      bool
	)

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Subscribe to node topics and print push messages as JSON lines",
		Example: `  nanorpc listen --topic confirmation --ack
  nanorpc listen --subscriptions subscriptions.yaml --watch --nats nats://localhost:4222`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig(cmd)
			if err != nil {
				return err
			}
			if subsFile == "" {
				subsFile = cfg.Subscriptions
			}
			if natsURL == "" {
				natsURL = cfg.NATS.URL
			}
			if natsPrefix == "" {
				natsPrefix = cfg.NATS.SubjectPrefix
			}

			flagSubs := make([]config.Subscription, 0, len(topics))
			for _, t := range topics {
				flagSubs = append(flagSubs, config.Subscription{Topic: t, Ack: ack})
			}
			var fileSubs []config.Subscription
			if subsFile != "" {
				if fileSubs, err = config.LoadSubscriptions(subsFile); err != nil {
					return err
				}
			}
			subs := mergeSubscriptions(flagSubs, fileSubs)
			if len(subs) == 0 {
				return fmt.Errorf("nothing to listen to: pass --topic or --subscriptions")
			}
			if watch && subsFile == "" {
				return fmt.Errorf("--watch needs a subscriptions file")
			}

			ep, err := cfg.WSEndpoint()
			if err != nil {
				return err
			}
			client := ws.NewClient(ep, append(cfg.WSOptions(), ws.WithLogger(ctx.logger), ws.WithMetrics(ctx.metrics))...)

			l := newListener(client, cmd.OutOrStdout(), ctx.logger)
			if natsURL != "" {
				b, err := bridge.Dial(bridge.Options{
					URL:           natsURL,
					SubjectPrefix: natsPrefix,
					Logger:        ctx.logger,
					Metrics:       ctx.metrics,
				})
				if err != nil {
					return err
				}
				defer b.Close()
				l.bridge = b
			}

			runCtx := cmd.Context()
			ctx.serveMetrics(runCtx)

			if err := client.Connect(runCtx); err != nil {
				return err
			}
			defer client.Shutdown()
			go l.logStates(runCtx)

			if err := l.apply(runCtx, config.DiffSubscriptions(nil, subs)); err != nil {
				return err
			}
			l.track(fileSubs, flagSubs)

			if watch {
				w, err := filewatcher.New(func(path string) { l.reload(runCtx, path) }, []string{subsFile},
					filewatcher.WithLogger(ctx.logger))
				if err != nil {
					return err
				}
				if err := w.Start(); err != nil {
					return err
				}
				defer w.Stop()
			}

			<-runCtx.Done()
			ctx.logger.Info("shutting down")
			if stats {
				fmt.Fprintln(cmd.OutOrStdout(), l.statsTable())
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringArrayVarP(&topics, "topic", "t", nil, "Topic to subscribe to (repeatable)")
	flags.BoolVar(&ack, "ack", false, "Wait for the node to acknowledge --topic subscriptions")
	flags.StringVarP(&subsFile, "subscriptions", "s", "", "YAML file listing subscriptions")
	flags.BoolVarP(&watch, "watch", "w", false, "Apply changes to the subscriptions file while running")
	flags.StringVar(&natsURL, "nats", "", "Forward push messages to this NATS server")
	flags.StringVar(&natsPrefix, "nats-prefix", "", "NATS subject prefix (default from config)")
	flags.BoolVar(&stats, "stats", false, "Print per-topic message counts on exit")
	return cmd
}

// listener prints push messages and keeps the client's subscriptions in line with a file.
type listener struct {
	client *ws.Client
	logger *slog.Logger
	bridge *bridge.Bridge

	outMu sync.Mutex
	out   io.Writer

	countsMu sync.Mutex
	counts   map[string]uint64

	reloadMu  sync.Mutex
	fileSubs  []config.Subscription
	extraSubs map[string]bool // topics from flags, never removed by a reload
}

// mergeSubscriptions lets file entries replace flag entries for the same topic.
func mergeSubscriptions(flagSubs, fileSubs []config.Subscription) []config.Subscription {
	inFile := make(map[string]bool, len(fileSubs))
	for _, s := range fileSubs {
		inFile[s.Topic] = true
	}
	out := make([]config.Subscription, 0, len(flagSubs)+len(fileSubs))
	for _, s := range flagSubs {
		if !inFile[s.Topic] {
			out = append(out, s)
		}
	}
	return append(out, fileSubs...)
}

func newListener(client *ws.Client, out io.Writer, logger *slog.Logger) *listener {
	return &listener{
		client:    client,
		logger:    logger,
		out:       out,
		counts:    make(map[string]uint64),
		extraSubs: make(map[string]bool),
	}
}

func (l *listener) handler() ws.Handler {
	if l.bridge != nil {
		return l.bridge.Handler(l.print)
	}
	return l.print
}

func (l *listener) print(_ context.Context, msg ws.Message) error {
	l.countsMu.Lock()
	l.counts[msg.Topic]++
	l.countsMu.Unlock()

	l.outMu.Lock()
	defer l.outMu.Unlock()
	if _, err := l.out.Write(append([]byte(msg.Raw), '\n')); err != nil {
		return err
	}
	return nil
}

// apply performs a subscription diff. It stops at the first failure.
func (l *listener) apply(ctx context.Context, d config.SubscriptionDiff) error {
	for _, topic := range d.Removed {
		if err := l.client.Unsubscribe(ctx, topic, false); err != nil {
			return err
		}
		l.logger.Info("unsubscribed", "topic", topic)
	}
	for _, s := range d.Updated {
		if err := l.client.Update(ctx, s.Topic, s.FrameOptions(), s.Ack); err != nil {
			return err
		}
		l.logger.Info("updated subscription", "topic", s.Topic)
	}
	for _, s := range d.Added {
		if !ws.IsKnownTopic(s.Topic) {
			l.logger.Warn("subscribing to a topic the node may not publish", "topic", s.Topic)
		}
		if err := l.client.Subscribe(ctx, s.Topic, l.handler(), s.FrameOptions(), s.Ack); err != nil {
			return err
		}
		l.logger.Info("subscribed", "topic", s.Topic, "ack", s.Ack)
	}
	return nil
}

// track records the file subscriptions reloads diff against and the flag topics they keep.
func (l *listener) track(fileSubs, flagSubs []config.Subscription) {
	l.reloadMu.Lock()
	defer l.reloadMu.Unlock()
	l.fileSubs = fileSubs
	for _, s := range flagSubs {
		l.extraSubs[s.Topic] = true
	}
}

// reload re-reads the subscriptions file and applies the difference. A broken file is logged
// and the current subscriptions stay.
func (l *listener) reload(ctx context.Context, path string) {
	l.reloadMu.Lock()
	defer l.reloadMu.Unlock()

	next, err := config.LoadSubscriptions(path)
	if err != nil {
		l.logger.Error("ignoring invalid subscriptions file", "path", path, "error", err)
		return
	}
	d := config.DiffSubscriptions(l.fileSubs, next)
	kept := d.Removed[:0]
	for _, topic := range d.Removed {
		if !l.extraSubs[topic] {
			kept = append(kept, topic)
		}
	}
	d.Removed = kept
	if d.Empty() {
		l.fileSubs = next
		return
	}
	l.logger.Info("applying subscriptions file", "path", path,
		"added", len(d.Added), "updated", len(d.Updated), "removed", len(d.Removed))
	if err := l.apply(ctx, d); err != nil {
		l.logger.Error("applying subscriptions file failed", "path", path, "error", err)
	}
	l.fileSubs = next
}

func (l *listener) logStates(ctx context.Context) {
	states, stop := l.client.StateChanges()
	defer stop()
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-states:
			if !ok {
				return
			}
			l.logger.Info("connection state changed", "state", s.String())
		}
	}
}

func (l *listener) statsTable() string {
	l.countsMu.Lock()
	topics := make([]string, 0, len(l.counts))
	for t := range l.counts {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	rows := make([][]string, 0, len(topics))
	for _, t := range topics {
		rows = append(rows, []string{t, strconv.FormatUint(l.counts[t], 10)})
	}
	l.countsMu.Unlock()

	if l.bridge != nil {
		published := l.bridge.Published()
		for i, row := range rows {
			rows[i] = append(row, strconv.FormatUint(published[row[0]], 10))
		}
		return renderTable([]string{"Topic", "Messages", "Forwarded"}, rows, []columnAlignment{alignLeft, alignRight, alignRight})
	}
	return renderTable([]string{"Topic", "Messages"}, rows, []columnAlignment{alignLeft, alignRight})
}
