// Command vmusim emulates the companion peer: a TCP listener speaking the
// ASCII-hex frame protocol against a 128 KB memory-card block store. It is
// the counterpart to vmulinkd for manual end-to-end runs.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/vmulink/vmulink/internal/transport"
)

func main() {
	addr := flag.String("addr", transport.DefaultAddr, "listen address (host:port)")
	flag.Parse()

	if err := run(*addr); err != nil {
		fmt.Fprintln(os.Stderr, "vmusim:", err)
		os.Exit(1)
	}
}

func run(addr string) error {
	log, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	log.Info("simulator listening", zap.String("addr", ln.Addr().String()))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info("shutting down")
		ln.Close()
	}()

	newSimulator(log).serve(ln)
	return nil
}
