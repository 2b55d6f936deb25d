// sonifyctl - drives a running sonify console from another machine.
//
//	sonifyctl status     print the current status
//	sonifyctl continue   press the operator button
//	sonifyctl watch      stream status updates
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/go-sonify/internal/config"
	"github.com/teslashibe/go-sonify/internal/log"
	"github.com/teslashibe/go-sonify/pkg/web"
)

func main() {
	addr := flag.String("addr", config.ConsoleURL(), "Console base URL (overrides SONIFY_CONSOLE env var)")
	timeout := flag.Duration("timeout", 5*time.Second, "Request timeout")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] status|continue|watch\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	log.Init("warn")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c := web.NewClient(*addr, *timeout)
	var status json.RawMessage
	var err error

	switch flag.Arg(0) {
	case "status":
		if err = c.Status(ctx, &status); err == nil {
			printJSON(status)
		}
	case "continue":
		if err = c.Continue(ctx, &status); err == nil {
			printJSON(status)
		}
	case "watch":
		err = c.Watch(ctx, printJSON)
		if ctx.Err() != nil {
			err = nil
		}
	default:
		flag.Usage()
		os.Exit(2)
	}

	if err != nil {
		log.Error(flag.Arg(0)+" failed", "addr", *addr, "error", err)
		os.Exit(1)
	}
}

func printJSON(raw json.RawMessage) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		fmt.Println(string(raw))
		return
	}
	out, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(out))
}
