// Command tutorly is a terminal client for the tutorly gRPC server.
//
//	tutorly [-addr host:port] [-client id] <command> [flags]
//
// Commands: slots, create, reschedule, delete, book, bookings, watch.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	grpcTransport "tutorly/backend/internal/transport/grpc"
)

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, app *app, args []string) error
}

var commands = []command{
	{name: "slots", summary: "show a tutor's calendar", run: runSlots},
	{name: "create", summary: "create a slot or a weekly series", run: runCreate},
	{name: "reschedule", summary: "move an available slot", run: runReschedule},
	{name: "delete", summary: "delete a slot", run: runDelete},
	{name: "book", summary: "book a slot as a student", run: runBook},
	{name: "bookings", summary: "list a student's bookings", run: runBookings},
	{name: "watch", summary: "follow a tutor's availability live", run: runWatch},
}

type app struct {
	client *grpcTransport.Client
	out    io.Writer
	log    *slog.Logger
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("tutorly", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", envOr("TUTORLY_SERVER_ADDR", "127.0.0.1:50051"), "server address")
	clientID := fs.String("client", os.Getenv("TUTORLY_CLIENT_ID"), "client id sent for rate limiting")
	verbose := fs.Bool("v", false, "log debug output to stderr")
	fs.Usage = func() { usage(fs) }
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	cmd, ok := lookup(fs.Arg(0))
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n", fs.Arg(0))
		fs.Usage()
		return 2
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	conn, err := grpc.NewClient(*addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		fmt.Fprintf(stderr, "connect %s: %v\n", *addr, err)
		return 1
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if id := strings.TrimSpace(*clientID); id != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, grpcTransport.ClientIDHeader, id)
	}

	a := &app{client: grpcTransport.NewClient(conn, log), out: stdout, log: log}
	if err := cmd.run(ctx, a, fs.Args()[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 2
		}
		fmt.Fprintln(stderr, describe(err))
		return 1
	}
	return 0
}

func lookup(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func usage(fs *flag.FlagSet) {
	w := fs.Output()
	fmt.Fprintln(w, "usage: tutorly [flags] <command> [command flags]")
	fmt.Fprintln(w, "\ncommands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-11s %s\n", c.name, c.summary)
	}
	fmt.Fprintln(w, "\nflags:")
	fs.PrintDefaults()
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
