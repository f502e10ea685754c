// Command bexdemo spins up a client/server Endpoint pair over a chosen
// transport and runs examples/echo's sample procedure table against
// it, the same role the teacher's cmd/ublk-mem plays for its memory
// backend: a small, runnable demonstration of the library next to the
// library itself.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/bexproto/bex"
	"github.com/bexproto/bex/examples/echo"
	"github.com/bexproto/bex/internal/logging"
)

func main() {
	var (
		message   = flag.String("message", "hello from bexdemo", "string to send through the Say procedure")
		verbose   = flag.Bool("v", false, "verbose logging")
		transport = flag.String("transport", "loopback", "transport to use: loopback")
	)
	flag.Parse()

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	if *transport != "loopback" {
		fmt.Fprintf(os.Stderr, "bexdemo: unsupported transport %q (only \"loopback\" is wired up)\n", *transport)
		os.Exit(1)
	}

	clientTransport, serverTransport := bex.NewLoopbackTransport()

	table := echo.Table()

	server, err := bex.NewEndpoint(bex.Config{
		Table:     table,
		Local:     echo.Server,
		Transport: serverTransport,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("failed to create server endpoint", "error", err)
		os.Exit(1)
	}
	defer server.Close()

	if err := server.BindHandler("Say", echo.PrintHandler("server")); err != nil {
		logger.Error("failed to bind Say handler", "error", err)
		os.Exit(1)
	}

	client, err := bex.NewEndpoint(bex.Config{
		Table:     table,
		Local:     echo.Client,
		Transport: clientTransport,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("failed to create client endpoint", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	logger.Info("sending Say call", "message", *message)
	if err := client.Call("Say", bex.Str(*message)); err != nil {
		logger.Error("Say call failed", "error", err)
		os.Exit(1)
	}
	if err := client.Flush(); err != nil {
		logger.Error("flush failed", "error", err)
		os.Exit(1)
	}

	// Loopback delivery runs on its own goroutine; give it a moment to
	// land before the process exits.
	time.Sleep(50 * time.Millisecond)
}
