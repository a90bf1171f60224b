package ingest

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"

	"fraudguard/internal/config"
	"fraudguard/internal/model"
)

// StartTCPStream accepts newline-delimited JSON events on a raw TCP socket,
// one connection per device feed.
func StartTCPStream(ctx context.Context, cfg *config.Manager, parser *Parser, out chan<- model.RawEvent, logger *slog.Logger) {
	current := cfg.Get().Ingest.TCPStream
	if !current.Enabled {
		if logger != nil {
			logger.Info("tcp stream ingest disabled")
		}
		return
	}
	if logger != nil {
		logger.Info("tcp stream ingest enabled", "addr", current.Addr)
	}
	ln, err := net.Listen("tcp", current.Addr)
	if err != nil {
		if logger != nil {
			logger.Error("tcp stream listen error", "err", err)
		}
		return
	}
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				if logger != nil {
					logger.Warn("tcp stream accept error", "err", err)
				}
				continue
			}
			go handleTCPStreamConn(ctx, conn, parser, out, logger)
		}
	}()
}

func handleTCPStreamConn(ctx context.Context, conn net.Conn, parser *Parser, out chan<- model.RawEvent, logger *slog.Logger) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 8192), 1024*1024)
	for scanner.Scan() {
		ev, err := parser.ParseLine(scanner.Text())
		if err != nil || ev == nil {
			continue
		}
		SendNonBlocking(ctx, out, *ev, logger)
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
	if err := scanner.Err(); err != nil && logger != nil {
		logger.Warn("tcp stream scanner error", "err", err)
	}
}
