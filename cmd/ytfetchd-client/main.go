// Command ytfetchd-client is an interactive shell that talks to a running
// ytfetchd server, grounded on the teacher's examples/client/main.go dial
// loop and the source's cmd.Cmd-based shell (client.py): one letter command
// per line, the same "a"/"f"/"r"/"d"/"l"/"q" vocabulary.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/smukkama/ytfetchd/internal/codec"
	"github.com/smukkama/ytfetchd/internal/protocol"
	"github.com/smukkama/ytfetchd/internal/session"
	"github.com/smukkama/ytfetchd/internal/transport"
	"github.com/smukkama/ytfetchd/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	tr := transport.New()
	if err := tr.Dial(cfg.Comm.Addr(), cfg.Client.ResponseTimeout()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to %s: %v\n", cfg.Comm.Addr(), err)
		os.Exit(1)
	}
	defer tr.Close()

	proto := protocol.New(tr)
	sess := session.New(proto, 0)

	fmt.Println("\nytfetchd client")
	fmt.Println("===============")
	fmt.Println("Type 'help' to list commands.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\nytfetchd> ")
		select {
		case <-sess.Done:
			fmt.Println("\nserver disconnected")
			return
		default:
		}

		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		cmd, args := fields[0], fields[1:]

		switch cmd {
		case "help", "?":
			printHelp()
		case "a":
			doAdd(sess, cfg, args)
		case "f":
			doFile(sess, cfg, args)
		case "r":
			sess.Notify(codec.Retry{})
		case "d":
			sess.Notify(codec.Discard{})
		case "l":
			doList(sess, cfg)
		case "q":
			fmt.Println("terminating client")
			return
		default:
			fmt.Printf("ERROR: unknown command %q\n", cmd)
		}
	}
}

func printHelp() {
	fmt.Println()
	fmt.Println("Commands")
	fmt.Println("========")
	fmt.Println()
	fmt.Println("a CODE [CODE ...]")
	fmt.Println("        add item or playlist codes to the download list")
	fmt.Println()
	fmt.Println("f FILE [FILE ...]")
	fmt.Println("        add all codes found in files to the download list")
	fmt.Println()
	fmt.Println("l       list queued, running, finished and failed jobs")
	fmt.Println()
	fmt.Println("r       retry: queue all failed jobs again")
	fmt.Println()
	fmt.Println("d       discard: empty the queue of failed jobs")
	fmt.Println()
	fmt.Println("q       disconnect and exit")
}

func doAdd(sess *session.Session, cfg *config.Config, codes []string) {
	if len(codes) == 0 {
		fmt.Println("ERROR: add: code expected")
		return
	}
	for _, code := range codes {
		addOne(sess, cfg, code)
	}
}

func addOne(sess *session.Session, cfg *config.Config, code string) {
	switch len(code) {
	case 11:
		item := codec.ItemID(code)
		resp, err := sess.Request(context.Background(), func(id codec.QueryID) codec.Message {
			return codec.AddCode{QueryID: id, Item: item}
		}, cfg.Client.ResponseTimeout())
		printResponse(resp, err)

	case 34:
		playlist := codec.PlaylistID(code)
		resps, err := sess.RequestAll(context.Background(), func(id codec.QueryID) codec.Message {
			return codec.AddList{QueryID: id, Playlist: playlist}
		}, cfg.Client.LongResponseTimeout())
		if err != nil {
			fmt.Printf("ERROR: server response timeout: %v\n", err)
			return
		}
		for _, resp := range resps {
			fmt.Println(resp.Text)
		}

	default:
		fmt.Printf("ERROR: bad code: %s\n", code)
	}
}

func doFile(sess *session.Session, cfg *config.Config, files []string) {
	if len(files) == 0 {
		fmt.Println("ERROR: add: filename expected")
		return
	}
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			fmt.Printf("ERROR: file %q: %v\n", file, err)
			continue
		}
		doAdd(sess, cfg, strings.Fields(string(data)))
	}
}

func doList(sess *session.Session, cfg *config.Config) {
	resp, err := sess.Request(context.Background(), func(id codec.QueryID) codec.Message {
		return codec.List{QueryID: id}
	}, cfg.Client.ResponseTimeout())
	printResponse(resp, err)
}

func printResponse(resp codec.Response, err error) {
	if err != nil {
		fmt.Printf("ERROR: server response timeout: %v\n", err)
		return
	}
	fmt.Println(resp.Text)
}
