package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"sync"
	"syscall"

	"github.com/fatih/color"
	"github.com/fivetwenty-io/masto/internal/constants"
	"github.com/fivetwenty-io/masto/internal/relay"
	"github.com/fivetwenty-io/masto/pkg/masto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type streamFlags struct {
	transport     string
	maxReconnects int
	dedupWindow   int
	natsURL       string
	subjectPrefix string
	metricsAddr   string
	quiet         bool
}

// NewStreamCommand creates the stream command
func NewStreamCommand() *cobra.Command {
	flags := &streamFlags{}

	cmd := &cobra.Command{
		Use:   "stream [CHANNEL...]",
		Short: "Follow realtime events",
		Long: `Print events from one or more streaming channels until interrupted.

Channels: user, user:notification, public, public:local, public:remote,
direct, hashtag:<tag>, hashtag:local:<tag>, list:<id>. The default is user.

With --nats-url every event is also published to
<subject-prefix>.<channel>.<event> on NATS.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			channels, err := parseChannels(args)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runStream(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), flags, channels)
		},
	}

	cmd.Flags().StringVar(&flags.transport, "transport", string(masto.StreamTransportAuto), "websocket, sse or auto")
	cmd.Flags().IntVar(&flags.maxReconnects, "max-reconnects", 0, "reconnect attempts per outage (0 retries forever)")
	cmd.Flags().IntVar(&flags.dedupWindow, "dedup-window", 256, "recent events remembered to drop duplicates after a reconnect")
	cmd.Flags().StringVar(&flags.natsURL, "nats-url", "", "relay events to this NATS server")
	cmd.Flags().StringVar(&flags.subjectPrefix, "subject-prefix", "masto", "NATS subject prefix for relayed events")
	cmd.Flags().StringVar(&flags.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	cmd.Flags().BoolVarP(&flags.quiet, "quiet", "q", false, "do not print events (useful with --nats-url)")

	return cmd
}

func parseChannels(args []string) ([]masto.Channel, error) {
	if len(args) == 0 {
		return []masto.Channel{masto.UserChannel()}, nil
	}

	channels := make([]masto.Channel, 0, len(args))

	for _, arg := range args {
		channel, err := masto.ParseChannel(arg)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", constants.ErrUnknownChannel, arg)
		}

		channels = append(channels, channel)
	}

	return channels, nil
}

func runStream(ctx context.Context, out, errOut io.Writer, flags *streamFlags, channels []masto.Channel) error {
	var metrics *masto.Metrics

	if flags.metricsAddr != "" {
		reg := prometheus.NewRegistry()

		var err error

		metrics, err = masto.NewMetrics(reg)
		if err != nil {
			return err
		}

		go serveMetrics(ctx, errOut, flags.metricsAddr, reg)
	}

	client, err := newClient(ctx, func(config *masto.Config) {
		if metrics != nil {
			config.Interceptors = masto.NewInterceptorChain().
				AddResponseInterceptor(masto.MetricsResponseInterceptor(metrics))
		}

		config.Stream = masto.StreamConfig{
			Transport:     masto.StreamTransport(flags.transport),
			MaxReconnects: flags.maxReconnects,
			DedupWindow:   flags.dedupWindow,
			OnStateChange: func(from, to masto.StreamState, err error) {
				reportState(errOut, from, to, err)
			},
		}
	})
	if err != nil {
		return err
	}

	defer func() { _ = client.Close() }()

	var r *relay.Relay

	if flags.natsURL != "" {
		r, err = relay.New(relay.Config{
			URL:           flags.natsURL,
			Name:          "masto-cli",
			SubjectPrefix: flags.subjectPrefix,
		})
		if err != nil {
			return err
		}

		defer func() { _ = r.Close() }()

		err = r.Forward(ctx, client.Streaming(), channels...)
		if err != nil {
			return err
		}
	}

	printer := newEventPrinter(out, viper.GetBool("no-color"))

	var subs []masto.Subscription

	if metrics != nil {
		for _, channel := range channels {
			_, err := client.Streaming().Subscribe(ctx, channel, metrics.ObserveEvent)
			if err != nil {
				return fmt.Errorf("failed to subscribe to %s: %w", channel, err)
			}
		}
	}

	if !flags.quiet {
		for _, channel := range channels {
			sub, err := client.Streaming().Subscribe(ctx, channel, printer.print)
			if err != nil {
				return fmt.Errorf("failed to subscribe to %s: %w", channel, err)
			}

			subs = append(subs, sub)
		}
	}

	return waitForStream(ctx, subs)
}

// serveMetrics exposes reg on addr until ctx is done.
func serveMetrics(ctx context.Context, errOut io.Writer, addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: constants.MetricsReadHeaderTimeout}

	go func() {
		<-ctx.Done()

		_ = server.Close()
	}()

	err := server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		_, _ = fmt.Fprintf(errOut, "metrics server: %v\n", err)
	}
}

// waitForStream blocks until ctx is done or a subscription ends with an error.
func waitForStream(ctx context.Context, subs []masto.Subscription) error {
	failed := make(chan error, 1)

	for _, sub := range subs {
		go func() {
			select {
			case <-sub.Done():
				if err := sub.Err(); err != nil {
					select {
					case failed <- err:
					default:
					}
				}
			case <-ctx.Done():
			}
		}()
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-failed:
		return err
	}
}

func reportState(w io.Writer, from, to masto.StreamState, err error) {
	msg := fmt.Sprintf("stream %s -> %s", from, to)
	if err != nil {
		msg += ": " + err.Error()
	}

	_, _ = fmt.Fprintln(w, color.New(color.Faint).Sprint(msg))
}

type eventPrinter struct {
	mu     sync.Mutex
	out    io.Writer
	colors map[string]*color.Color
	plain  *color.Color
}

func newEventPrinter(out io.Writer, noColor bool) *eventPrinter {
	p := &eventPrinter{
		out: out,
		colors: map[string]*color.Color{
			masto.EventUpdate:       color.New(color.FgGreen),
			masto.EventStatusUpdate: color.New(color.FgCyan),
			masto.EventDelete:       color.New(color.FgRed),
			masto.EventNotification: color.New(color.FgYellow, color.Bold),
			masto.EventConversation: color.New(color.FgMagenta),
		},
		plain: color.New(color.FgWhite),
	}

	if noColor {
		for _, c := range p.colors {
			c.DisableColor()
		}

		p.plain.DisableColor()
	}

	return p
}

func (p *eventPrinter) print(event masto.Event) {
	c, ok := p.colors[event.Type]
	if !ok {
		c = p.plain
	}

	line := describeEvent(event)

	p.mu.Lock()
	defer p.mu.Unlock()

	_, _ = c.Fprintf(p.out, "[%s] %-12s %s\n", event.Channel, event.Type, line)
}

func describeEvent(event masto.Event) string {
	if status, ok := event.Status(); ok {
		return fmt.Sprintf("@%s: %s", status.Account.Acct,
			truncate(plainText(status.Content), constants.StringTruncationLimit))
	}

	if n, ok := event.Notification(); ok {
		return fmt.Sprintf("%s from @%s", n.Type, n.Account.Acct)
	}

	if id, ok := event.DeletedID(); ok {
		return id
	}

	if c, ok := event.Conversation(); ok {
		return "conversation " + c.ID
	}

	return string(event.Raw)
}
