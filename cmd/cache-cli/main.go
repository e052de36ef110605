// cache-cli is an interactive client for the cache cluster's router: a
// liner-backed REPL sending PING/PUT/GET lines over a socket.Multiplexer and
// printing the RES that comes back. Connection and failover across routers
// are this command's job; internal/wire and internal/socket carry the
// specified protocol (spec.md §1 names the CLI surface out of scope).
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/peterh/liner"

	flag "github.com/spf13/pflag"

	"github.com/ocx/cachecluster/internal/socket"
	"github.com/ocx/cachecluster/internal/wire"
)

func main() {
	var (
		routers = flag.StringSlice("routers", []string{"127.0.0.1:9000"}, "router addresses to try, in order")
		timeout = flag.Duration("timeout", 2*time.Second, "per-request timeout")
	)
	flag.Parse()

	if err := run(*routers, *timeout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(routers []string, timeout time.Duration) error {
	conn, addr, err := dialWithFailover(routers)
	if err != nil {
		return fmt.Errorf("connecting to a router: %w", err)
	}
	defer conn.Close()

	mux := socket.New(uuid.NewString(), conn, timeout, nil)
	defer mux.Close()

	go func() {
		reader := bufio.NewReader(conn)
		for {
			line, readErr := reader.ReadString('\n')
			if line != "" {
				mux.DispatchLine(line)
			}
			if readErr != nil {
				return
			}
		}
	}()

	repl := &REPL{mux: mux, addr: addr}
	return repl.Run()
}

// dialWithFailover tries each router address in order (spec's original
// client-side failover, supplemented here symmetrically with the node side).
func dialWithFailover(addrs []string) (net.Conn, string, error) {
	var lastErr error
	for _, addr := range addrs {
		conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
		if err == nil {
			return conn, addr, nil
		}
		lastErr = err
	}
	return nil, "", lastErr
}

// REPL is the interactive command loop.
type REPL struct {
	mux   *socket.Multiplexer
	addr  string
	liner *liner.State
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".cache-cli_history")
}

func (r *REPL) Run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(r.completer)

	if f, err := os.Open(historyFile()); err == nil {
		r.liner.ReadHistory(f)
		f.Close()
	}

	fmt.Printf("cache-cli - connected to %s\n", r.addr)
	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	for {
		line, err := r.liner.Prompt("cache> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println("\nBye!")
				break
			}
			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		r.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "exit", "quit", "q":
			fmt.Println("Bye!")
			r.saveHistory()
			return nil
		case "help", "?":
			r.printHelp()
		case "ping":
			r.cmdPing()
		case "put":
			r.cmdPut(args)
		case "get":
			r.cmdGet(args)
		default:
			fmt.Printf("Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}

	r.saveHistory()
	return nil
}

func (r *REPL) saveHistory() {
	if path := historyFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			r.liner.WriteHistory(f)
			f.Close()
		}
	}
}

func (r *REPL) completer(line string) []string {
	commands := []string{"ping", "put", "get", "help", "exit", "quit", "q"}
	var out []string
	lower := strings.ToLower(line)
	for _, c := range commands {
		if strings.HasPrefix(c, lower) {
			out = append(out, c)
		}
	}
	return out
}

func (r *REPL) printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  ping                  Check router connectivity")
	fmt.Println("  put <key> <value> [ttl_ms]   Store a value, optionally with a TTL")
	fmt.Println("  get <key>             Fetch a value")
	fmt.Println("  help                  Show this help")
	fmt.Println("  exit / quit / q       Exit")
}

func (r *REPL) cmdPing() {
	resp, err := r.mux.Request(context.Background(), "PING", "")
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Printf("%d %s\n", resp.Code, resp.Payload)
}

func (r *REPL) cmdPut(args []string) {
	if len(args) < 2 {
		fmt.Println("Usage: put <key> <value> [ttl_ms]")
		return
	}
	key, value := args[0], args[1]
	payload := key + " " + wire.Quote(value)
	if len(args) >= 3 {
		if _, err := strconv.ParseUint(args[2], 10, 64); err != nil {
			fmt.Printf("error: ttl_ms must be a non-negative integer: %v\n", err)
			return
		}
		payload += " " + args[2]
	}

	resp, err := r.mux.Request(context.Background(), "PUT", payload)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	if resp.Code >= 200 && resp.Code < 300 {
		fmt.Println("OK")
		return
	}
	fmt.Printf("%d %s\n", resp.Code, resp.Payload)
}

func (r *REPL) cmdGet(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: get <key>")
		return
	}

	resp, err := r.mux.Request(context.Background(), "GET", args[0])
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	if resp.Code >= 200 && resp.Code < 300 {
		if resp.Payload == "" {
			fmt.Println("(not found)")
			return
		}
		fmt.Println(resp.Payload)
		return
	}
	fmt.Printf("%d %s\n", resp.Code, resp.Payload)
}
