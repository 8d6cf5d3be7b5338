package ingest

import (
	"bufio"
	"context"
	"errors"
	"net"

	"go.uber.org/zap"

	"safewatch/internal/config"
	"safewatch/internal/model"
	"safewatch/internal/normalize"
)

// StartTCPStream listens for gateways writing one reading per line. It returns
// the listener so callers can learn the bound address.
func StartTCPStream(ctx context.Context, cfg *config.Manager, out chan<- model.Reading, logger *zap.Logger) (net.Listener, error) {
	current := cfg.Get().Ingest.TCP
	if !current.Enabled {
		logger.Info("tcp stream ingest disabled")
		return nil, nil
	}
	ln, err := net.Listen("tcp", current.Addr)
	if err != nil {
		return nil, err
	}
	logger.Info("tcp stream ingest enabled", zap.String("addr", ln.Addr().String()))
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	go func() {
		parser := NewParser()
		for {
			conn, err := ln.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				logger.Warn("tcp stream accept error", zap.Error(err))
				continue
			}
			go handleTCPStreamConn(ctx, conn, cfg, parser, out, logger)
		}
	}()
	return ln, nil
}

func handleTCPStreamConn(ctx context.Context, conn net.Conn, cfg *config.Manager, parser *Parser, out chan<- model.Reading, logger *zap.Logger) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 8192), 1024*1024)
	for scanner.Scan() {
		fields, err := parser.ParseLine(scanner.Text())
		if err != nil || fields == nil {
			continue
		}
		r, err := normalize.Normalize(*fields, location(cfg.Get()))
		if err != nil {
			logger.Warn("tcp stream normalize error", zap.Error(err))
			continue
		}
		r.Source = "tcp"
		SendNonBlocking(ctx, out, r, logger)
		if ctx.Err() != nil {
			return
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		logger.Warn("tcp stream scanner error", zap.Error(err))
	}
}
