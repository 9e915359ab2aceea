// notevox-trigger publishes note triggers to a running daemon over NATS.
// It doubles as a mapping linter so table edits can be checked without
// restarting anything.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/stratojets/notevox/internal/mapping"
	"github.com/stratojets/notevox/internal/protocol"
)

var version = "0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "expected 'play', 'check', or 'version'")
		os.Exit(2)
	}

	switch os.Args[1] {
	case "play":
		if err := runPlay(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	case "check":
		if err := runCheck(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println("mapping valid")
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		os.Exit(2)
	}
}

func runPlay(args []string) error {
	playCmd := flag.NewFlagSet("play", flag.ExitOnError)
	server := playCmd.String("server", nats.DefaultURL, "NATS server URL")
	subject := playCmd.String("subject", protocol.SubjectTrigger, "Trigger subject")
	note := playCmd.Int("note", 60, "MIDI note to trigger")
	text := playCmd.String("text", "", "Override syllable text")
	playCmd.Parse(args)

	conn, err := nats.Connect(*server, nats.Name("notevox-trigger"), nats.Timeout(2*time.Second))
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", *server, err)
	}
	defer conn.Close()

	req := protocol.TriggerRequest{
		Note:      *note,
		Text:      *text,
		Source:    "cli",
		Timestamp: time.Now().UTC(),
	}
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	if err := conn.Publish(*subject, data); err != nil {
		return fmt.Errorf("publishing trigger: %w", err)
	}
	return conn.Flush()
}

func runCheck(args []string) error {
	checkCmd := flag.NewFlagSet("check", flag.ExitOnError)
	path := checkCmd.String("file", "mapping.xml", "Path to note mapping")
	checkCmd.Parse(args)

	m, err := mapping.Load(*path)
	if err != nil {
		return err
	}
	fmt.Printf("%d notes bound\n", m.NoteCount())
	return nil
}
