package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"rdgram/pkg/config"
	"rdgram/pkg/engine"
	"rdgram/pkg/observability"
	"rdgram/pkg/transport"
	"rdgram/pkg/transport/quic"
	"rdgram/pkg/transport/udp"
)

func main() {
	cfgPath := flag.String("config", "", "path to rdgram.yaml (optional)")
	kind := flag.String("transport", "udp", "transport kind: udp|quic")
	addr := flag.String("addr", ":7700", "address to listen on")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fatalf("load config: %v", err)
	}
	logger, err := observability.SetupLogger(cfg.Log)
	if err != nil {
		fatalf("setup logger: %v", err)
	}
	defer logger.Sync()

	conn, err := listen(*kind, *addr)
	if err != nil {
		fatalf("listen %s %s: %v", *kind, *addr, err)
	}

	eng, err := engine.New(conn, engine.FromConfig(cfg))
	if err != nil {
		fatalf("new engine: %v", err)
	}
	defer eng.Close()

	eng.OnMessage(func(d engine.Delivery) {
		zap.L().Info("echoing message",
			zap.String("id", d.RequestID),
			zap.String("from", d.Remote.Addr()))
		if err := eng.Respond(d.RequestID, d.Body, d.Remote.Host, d.Remote.Port); err != nil {
			zap.L().Warn("echo failed", zap.String("id", d.RequestID), zap.Error(err))
		}
	})
	eng.OnPassthrough(func(b []byte, from transport.Remote) {
		zap.L().Info("non-protocol datagram", zap.Int("bytes", len(b)), zap.String("from", from.Addr()))
	})

	zap.L().Info("echo server up", zap.String("transport", *kind), zap.Stringer("addr", conn.LocalAddr()))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	s := eng.Stats()
	zap.L().Info("shutting down",
		zap.Uint64("delivered", s.Delivered),
		zap.Uint64("acked", s.Acked),
		zap.Uint64("retries", s.Retries))
}

func listen(kind, addr string) (transport.Conn, error) {
	switch kind {
	case "udp":
		return udp.Listen(addr)
	case "quic":
		return quic.Listen(addr)
	default:
		return nil, fmt.Errorf("unknown transport %q", kind)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
