package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/chatroom-server/internal/proto"
)

// frame mirrors proto.Outbound with raw data so each event decodes into its own type.
type frame struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	user := flag.String("user", "", "requested username (empty for a generated guest name)")
	token := flag.String("token", "", "JWT issued by /api/login")
	flag.Parse()

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	target := *addr
	if *token != "" {
		target += "?token=" + url.QueryEscape(*token)
	}

	conn, _, err := websocket.Dial(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	if err := send(ctx, conn, proto.InboundTypeRequestUsername, proto.RequestUsernameData{
		Custom:   *user,
		Protocol: proto.ProtocolVersion,
	}); err != nil {
		return err
	}

	fmt.Printf("Connected to %s\n", *addr)
	fmt.Println("Type messages and press Enter to send. Commands: /edit <id> <text>, /ban <user> [reason], /unban <user>, /promote <user>, /demote <user>. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, conn)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

func send(ctx context.Context, conn *websocket.Conn, typ string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", typ, err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: payload}); err != nil {
		return fmt.Errorf("send %s: %w", typ, err)
	}
	return nil
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var out frame
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				fmt.Println("server closed the connection")
				return
			case websocket.StatusPolicyViolation:
				fmt.Println("disconnected by a moderator")
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		if out.Type == proto.OutboundTypeError && out.Error != nil {
			fmt.Printf("! %s (%s)\n", out.Error.Msg, out.Error.Code)
			continue
		}
		if err := printEvent(out); err != nil {
			log.Printf("decode %s: %v", out.Event, err)
		}
	}
}

func printEvent(out frame) error {
	switch out.Event {
	case proto.EventSetUsername:
		var evt proto.EventSetUsernameData
		if err := json.Unmarshal(out.Data, &evt); err != nil {
			return err
		}
		fmt.Printf("* you are %s (%s)\n", evt.Username, evt.Color)
	case proto.EventChatHistory:
		var evt proto.EventChatHistoryData
		if err := json.Unmarshal(out.Data, &evt); err != nil {
			return err
		}
		for _, item := range evt.Messages {
			printMessage(item.EventMessageData)
		}
	case proto.EventMessage:
		var evt proto.EventMessageData
		if err := json.Unmarshal(out.Data, &evt); err != nil {
			return err
		}
		printMessage(evt)
	case proto.EventMessageEdited:
		var evt proto.EventMessageEditedData
		if err := json.Unmarshal(out.Data, &evt); err != nil {
			return err
		}
		fmt.Printf("* message #%d edited: %s\n", evt.MessageID, evt.NewContent)
	case proto.EventUserJoined, proto.EventUserLeft:
		var evt proto.EventPresenceData
		if err := json.Unmarshal(out.Data, &evt); err != nil {
			return err
		}
		verb := "joined"
		if out.Event == proto.EventUserLeft {
			verb = "left"
		}
		fmt.Printf("* %s %s\n", evt.Username, verb)
	case proto.EventSystem:
		var evt proto.EventSystemData
		if err := json.Unmarshal(out.Data, &evt); err != nil {
			return err
		}
		fmt.Printf("* %s\n", evt.Message)
	case proto.EventUsernameChanged:
		var evt proto.EventUsernameChangedData
		if err := json.Unmarshal(out.Data, &evt); err != nil {
			return err
		}
		fmt.Printf("* account renamed from %s to %s, log in again\n", evt.OldUsername, evt.NewUsername)
	case proto.EventRateLimited:
		var evt proto.EventRateLimitedData
		if err := json.Unmarshal(out.Data, &evt); err != nil {
			return err
		}
		fmt.Printf("! slow down, retry in %ds\n", evt.RetryAfterSeconds)
	case proto.EventUpdateUserList:
		var evt proto.EventUserListData
		if err := json.Unmarshal(out.Data, &evt); err != nil {
			return err
		}
		names := make([]string, 0, len(evt.Users))
		for _, u := range evt.Users {
			names = append(names, u.Username)
		}
		fmt.Printf("* online: %s\n", strings.Join(names, ", "))
	default:
		fmt.Printf("event=%s data=%s\n", out.Event, string(out.Data))
	}
	return nil
}

func printMessage(evt proto.EventMessageData) {
	ts := time.Unix(evt.Timestamp, 0).Format("15:04:05")
	edited := ""
	if evt.EditedAt != nil {
		edited = " (edited)"
	}
	fmt.Printf("[%s] #%d %s: %s%s\n", ts, evt.MessageID, evt.Username, evt.Message, edited)
}

func writeLoop(ctx context.Context, conn *websocket.Conn) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}

			typ, data, err := parseLine(text)
			if err != nil {
				fmt.Printf("! %v\n", err)
				continue
			}
			if err := send(ctx, conn, typ, data); err != nil {
				log.Printf("send error: %v", err)
				return
			}
		}
	}
}

var moderationCommands = map[string]string{
	"/ban":     proto.InboundTypeBan,
	"/unban":   proto.InboundTypeUnban,
	"/promote": proto.InboundTypePromote,
	"/demote":  proto.InboundTypeDemote,
}

func parseLine(text string) (string, any, error) {
	if !strings.HasPrefix(text, "/") {
		return proto.InboundTypeMessage, proto.MessageData{Message: text}, nil
	}

	fields := strings.Fields(text)
	cmd := fields[0]
	if cmd == "/edit" {
		if len(fields) < 3 {
			return "", nil, errors.New("usage: /edit <id> <text>")
		}
		id, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return "", nil, fmt.Errorf("invalid message id %q", fields[1])
		}
		return proto.InboundTypeEditMessage, proto.EditMessageData{
			MessageID:  id,
			NewContent: strings.Join(fields[2:], " "),
		}, nil
	}

	typ, ok := moderationCommands[cmd]
	if !ok {
		return "", nil, fmt.Errorf("unknown command %s", cmd)
	}
	if len(fields) < 2 {
		return "", nil, fmt.Errorf("usage: %s <user>", cmd)
	}
	return typ, proto.ModerationData{Username: fields[1], Reason: strings.Join(fields[2:], " ")}, nil
}
