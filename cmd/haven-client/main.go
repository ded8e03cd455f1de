package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/chathaven/haven-client/auth"
	"github.com/chathaven/haven-client/config"
	"github.com/chathaven/haven-client/globals"
	"github.com/chathaven/haven-client/persistence"
	"github.com/chathaven/haven-client/session"
	"github.com/chathaven/haven-client/ws"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/pflag"
)

var (
	configPath = pflag.StringP("config", "c", "", "path to config file or directory")
)

func main() {
	flagSet := config.GetFlagSet()
	pflag.CommandLine.AddFlagSet(flagSet)
	pflag.Parse()

	cfg, err := config.ReadConfiguration(*configPath, flagSet)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not read configuration: %s\n", err)
		os.Exit(1)
	}
	if cfg.LogLevel != "" {
		globals.AppLogger.SetLevel(hclog.LevelFromString(cfg.LogLevel))
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %s\n", err)
		os.Exit(1)
	}

	tokens, err := auth.FromConfig(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "authentication unavailable: %s\n", err)
		os.Exit(1)
	}
	persister, err := persistence.NewPersister(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not open session store: %s\n", err)
		os.Exit(1)
	}
	if persister != nil {
		defer persister.Close()
	}

	conn := ws.NewConn(cfg.ServerConfig.Url, cfg.ServerConfig.Origin, tokens)
	sess, err := session.New(cfg, conn, persister)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not build session: %s\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	go func() {
		<-c
		sess.Close()
		cancel()
		os.Exit(0)
	}()

	if err := sess.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "could not connect: %s\n", err)
		os.Exit(1)
	}
	defer sess.Close()

	fmt.Printf("connected to %s as %s\n", cfg.ServerConfig.Url, sess.DisplayName())
	fmt.Println("commands: /create /join CODE /ai /delete /leave /recent /who /log /quit, anything else is sent as a message")
	repl(sess)
}

func repl(sess *session.Session) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			sess.TypingInput()
			if err := sess.SendMessage(line); err != nil {
				fmt.Printf("! %s\n", err)
			}
			continue
		}
		fields := strings.Fields(line)
		switch fields[0] {
		case "/create":
			code, err := sess.CreateRoom()
			if err != nil {
				fmt.Printf("! %s\n", err)
				continue
			}
			fmt.Printf("creating room %s...\n", code)
		case "/join":
			if len(fields) < 2 {
				fmt.Println("! usage: /join CODE")
				continue
			}
			if err := sess.JoinRoom(fields[1]); err != nil {
				fmt.Printf("! %s\n", err)
			}
		case "/ai":
			if err := sess.JoinAssistant(); err != nil {
				fmt.Printf("! %s\n", err)
			}
		case "/delete":
			if err := sess.DeleteRoom(); err != nil {
				fmt.Printf("! %s\n", err)
			}
		case "/leave":
			if err := sess.LeaveRoom(); err != nil {
				fmt.Printf("! %s\n", err)
			}
		case "/recent":
			for _, code := range sess.RecentRooms() {
				fmt.Printf("  %s\n", code)
			}
		case "/who":
			printStatus(sess)
		case "/log":
			for _, msg := range sess.State().Messages {
				marker := " "
				if msg.Highlight {
					marker = "*"
				}
				fmt.Printf("%s[%s] %s: %s\n", marker, msg.Time, msg.Username, msg.Message)
			}
		case "/quit":
			return
		default:
			fmt.Printf("! unknown command %s\n", fields[0])
		}
	}
}

func printStatus(sess *session.Session) {
	snap := sess.State()
	fmt.Printf("connection: %s\n", snap.ConnState)
	fmt.Printf("room:       %s (%s", snap.Room.Code, snap.Phase)
	if snap.Phase == session.PhaseActive {
		fmt.Printf(", %s", snap.Room.Role)
	}
	fmt.Println(")")
	if len(snap.Presence) > 0 {
		fmt.Printf("online:     %s\n", strings.Join(snap.Presence, ", "))
	}
	if len(snap.Typing) > 0 {
		fmt.Printf("typing:     %s\n", strings.Join(snap.Typing, ", "))
	}
	if snap.LastError != "" {
		fmt.Printf("error:      %s\n", snap.LastError)
	}
	if snap.Notice != "" {
		fmt.Printf("notice:     %s\n", snap.Notice)
	}
}
