package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

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
	host := flag.String("host", "127.0.0.1", "destination host")
	port := flag.Int("port", 7700, "destination port")
	msg := flag.String("message", `{"message":"hello rdgram"}`, "JSON value to send")
	timeout := flag.Duration("timeout", 10*time.Second, "overall wait")
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

	var value any
	if err := json.Unmarshal([]byte(*msg), &value); err != nil {
		// not JSON: send the raw text as a string value
		value = *msg
	}

	conn, err := listen(*kind)
	if err != nil {
		fatalf("open %s socket: %v", *kind, err)
	}
	eng, err := engine.New(conn, engine.FromConfig(cfg))
	if err != nil {
		fatalf("new engine: %v", err)
	}
	defer eng.Close()

	done := make(chan struct{})
	eng.Send(value, *host, *port, func(v any, err error) {
		defer close(done)
		if err != nil {
			zap.L().Error("send failed", zap.Error(err))
			return
		}
		out, _ := json.Marshal(v)
		fmt.Println(string(out))
	})

	select {
	case <-done:
	case <-time.After(*timeout):
		fatalf("no outcome within %s", *timeout)
	}
}

func listen(kind string) (transport.Conn, error) {
	switch kind {
	case "udp":
		return udp.Listen(":0")
	case "quic":
		return quic.Listen(":0")
	default:
		return nil, fmt.Errorf("unknown transport %q", kind)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
