package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	realtime "github.com/codewandler/realtime-go"
	"github.com/codewandler/realtime-go/conversation"
	"github.com/codewandler/realtime-go/events"
	"github.com/codewandler/realtime-go/gateway"
	"github.com/codewandler/realtime-go/metrics"
	"github.com/codewandler/realtime-go/tool"
)

type timeParams struct {
	Timezone string `json:"timezone,omitempty" jsonschema:"description=IANA timezone name, e.g. Europe/Berlin"`
}

func timeTool() tool.Registration {
	def, h := tool.Typed("get_time", "Get the current time",
		func(_ context.Context, p timeParams) (any, error) {
			loc := time.Local
			if p.Timezone != "" {
				l, err := time.LoadLocation(p.Timezone)
				if err != nil {
					return nil, err
				}
				loc = l
			}
			return map[string]string{"time": time.Now().In(loc).Format(time.RFC3339)}, nil
		})
	return tool.Registration{Tool: def, Handler: h}
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := newLogger()
	out := cmd.OutOrStdout()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg, "rtchat")
	if metricsAddr != "" {
		srv := &http.Server{Addr: metricsAddr, Handler: metrics.Handler(reg), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", slog.Any("err", err))
			}
		}()
		defer func() { _ = srv.Close() }()
	}

	tools := []tool.Registration{timeTool()}

	if gatewayPath != "" {
		cfg, err := gateway.LoadConfig(gatewayPath)
		if err != nil {
			return err
		}
		gw := gateway.New(gateway.WithLogger(logger))
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := gw.Shutdown(sctx); err != nil {
				logger.Error("gateway shutdown failed", slog.Any("err", err))
			}
		}()
		if err := gw.Start(ctx, cfg); err != nil {
			return fmt.Errorf("start gateway: %w", err)
		}
		tools = append(tools, gw.Registrations()...)
	}

	opts := []realtime.ClientOption{
		realtime.WithLogger(logger),
		realtime.WithInstruction(instructions),
		realtime.WithMetrics(m),
		realtime.WithTools(tools...),
	}
	if !audioReplies {
		opts = append(opts, realtime.WithSession(events.WithModalities("text")))
	}
	if model != "" {
		opts = append(opts, realtime.WithModel(model))
	}
	if apiKey != "" {
		opts = append(opts, realtime.WithKey(apiKey))
	}

	client, err := realtime.New(opts...)
	if err != nil {
		return err
	}

	client.On(realtime.EventConversationUpdated, func(payload any) {
		u := payload.(realtime.ConversationUpdate)
		if u.Item == nil || u.Delta == nil || u.Item.Role != "assistant" {
			return
		}
		fmt.Fprint(out, u.Delta.Text+u.Delta.Transcript)
	})
	client.On(realtime.EventItemCompleted, func(payload any) {
		item := payload.(*conversation.Item)
		switch {
		case item.Type == events.ItemTypeFunctionCall:
			fmt.Fprintf(out, "[tool %s %s]\n", item.Name, item.Arguments)
		case item.Role == "assistant":
			fmt.Fprintln(out)
		}
	})
	client.On(realtime.EventError, func(payload any) {
		logger.Error("realtime error", slog.Any("err", payload))
	})

	closed := make(chan error, 1)
	client.On(realtime.EventClose, func(payload any) {
		select {
		case closed <- payload.(realtime.CloseEvent).Err:
		default:
		}
	})

	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer func() { _ = client.Disconnect(context.Background()) }()

	if err := client.WaitForSessionCreated(ctx); err != nil {
		return err
	}
	fmt.Fprintf(out, "connected, %d tools available\n", len(client.Tools()))

	lines := make(chan string)
	go func() {
		defer close(lines)
		s := bufio.NewScanner(cmd.InOrStdin())
		for s.Scan() {
			lines <- s.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-closed:
			return err
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if err := client.SendText(line); err != nil {
				return err
			}
		}
	}
}
