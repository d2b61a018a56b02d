package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gopota/pollchat"
)

var flagMetricsAddr string

func init() {
	openCmd.Flags().StringVar(&flagMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	rootCmd.AddCommand(openCmd)
}

var openCmd = &cobra.Command{
	Use:   "open <target>",
	Short: "Open a chat and talk interactively",
	Long: "Open a group chat (\"general\") or a direct conversation (\"dm:bob\") and chat interactively.\n" +
		"Each line typed is sent. Commands: /open <target>, /online, /quit.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var opts []pollchat.ClientOption
		if flagMetricsAddr != "" {
			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector())
			opts = append(opts, pollchat.WithRegisterer(reg))
			srv := serveMetrics(flagMetricsAddr, reg)
			defer shutdown(srv)
		}

		client, closeFn, err := getClient(opts...)
		if err != nil {
			return err
		}
		defer closeFn()

		engine, err := client.Resume()
		if errors.Is(err, pollchat.ErrNoSession) {
			return errors.New("not logged in; run 'pollchat login <nickname>' first")
		}
		if err != nil {
			return err
		}

		p := &printer{engine: engine, out: os.Stdout}
		p.attach()
		if err := engine.Navigate(args[0]); err != nil {
			return err
		}
		return chatLoop(ctx, engine)
	},
}

func chatLoop(ctx context.Context, engine *pollchat.Engine) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-engine.Done():
			if errors.Is(engine.Err(), pollchat.ErrUnauthorized) {
				return errors.New("session expired; run 'pollchat login <nickname>' again")
			}
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := handleLine(ctx, engine, line); quit {
				return nil
			}
		}
	}
}

func handleLine(ctx context.Context, engine *pollchat.Engine, line string) (quit bool) {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return false
	case line == "/quit":
		return true
	case line == "/online":
		fmt.Printf("online: %s\n", valueOrDefault(strings.Join(engine.Online(), ", "), "(nobody)"))
		return false
	case strings.HasPrefix(line, "/open "):
		if err := engine.Navigate(strings.TrimPrefix(line, "/open ")); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
		return false
	}

	engine.SetDraft(line)
	sctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := engine.Submit(sctx, engine.Draft()); err != nil {
		fmt.Fprintf(os.Stderr, "send failed: %v\n", err)
	}
	return false
}

// printer writes newly appended messages and presence changes to out.
type printer struct {
	engine *pollchat.Engine
	out    io.Writer

	mu      sync.Mutex
	conv    pollchat.Conversation
	printed int
	online  []string
}

func (p *printer) attach() {
	p.engine.On(pollchat.EventOpened, func(_ string, payload any) {
		conv := payload.(pollchat.Conversation)
		p.mu.Lock()
		defer p.mu.Unlock()
		fmt.Fprintf(p.out, "── %s ──\n", conv)
		// The first batch of conv may already have been printed.
		if conv != p.conv {
			p.reset(conv)
		}
	})
	p.engine.On(pollchat.EventMessages, func(string, any) { p.flush() })
	p.engine.On(pollchat.EventPresence, func(_ string, payload any) {
		users := payload.([]string)
		p.mu.Lock()
		defer p.mu.Unlock()
		if !slices.Equal(users, p.online) {
			p.online = users
			fmt.Fprintf(p.out, "online: %s\n", valueOrDefault(strings.Join(users, ", "), "(nobody)"))
		}
	})
}

// reset starts printing conv's log from its first message. Every open
// rebuilds the log, including a reopen of an earlier conversation.
func (p *printer) reset(conv pollchat.Conversation) {
	p.conv = conv
	p.printed = 0
	p.online = nil
}

// flush prints the messages appended since the last call.
func (p *printer) flush() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if conv, _ := p.engine.Current(); conv != p.conv {
		p.reset(conv)
	}
	msgs := p.engine.MessagesSince(p.printed)
	session := p.engine.Session()
	for _, m := range msgs {
		fmt.Fprintln(p.out, formatMessage(m, session))
	}
	p.printed += len(msgs)
}

func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn().Err(err).Msg("metrics server stopped")
		}
	}()
	log.Info().Msgf("serving metrics at http://%s/metrics", addr)
	return srv
}

func shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && err != context.Canceled {
		log.Error().Err(err).Msg("http server shutdown error")
	}
}
