package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/chatroom-server/internal/proto"
)

type frame struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	user := flag.String("user", "tester", "username to request")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	mustSend := func(typ string, data any) error {
		payload, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", typ, err)
		}
		if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: payload}); err != nil {
			return fmt.Errorf("send: %w", err)
		}
		return nil
	}

	if err := mustSend(proto.InboundTypeRequestUsername, proto.RequestUsernameData{
		Custom:   *user,
		Protocol: proto.ProtocolVersion,
	}); err != nil {
		return err
	}

	identified := false
	for {
		var out frame
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			return fmt.Errorf("read: %w", err)
		}

		fmt.Printf("Received outbound: type=%s", out.Type)
		if out.Event != "" {
			fmt.Printf(" event=%s", out.Event)
		}
		fmt.Println()

		if out.Error != nil {
			return fmt.Errorf("server error %s: %s", out.Error.Code, out.Error.Msg)
		}

		switch out.Event {
		case proto.EventSetUsername:
			var evt proto.EventSetUsernameData
			if err := json.Unmarshal(out.Data, &evt); err != nil {
				return fmt.Errorf("unmarshal set_username: %w", err)
			}
			fmt.Printf("Identified: username=%s color=%s moderator=%t\n", evt.Username, evt.Color, evt.IsModerator)
		case proto.EventChatHistory:
			var evt proto.EventChatHistoryData
			if err := json.Unmarshal(out.Data, &evt); err != nil {
				return fmt.Errorf("unmarshal chat_history: %w", err)
			}
			fmt.Printf("History: %d entries\n", len(evt.Messages))
			if !identified {
				identified = true
				if err := mustSend(proto.InboundTypeMessage, proto.MessageData{Message: *text}); err != nil {
					return err
				}
			}
		case proto.EventMessage:
			var evt proto.EventMessageData
			if err := json.Unmarshal(out.Data, &evt); err != nil {
				fmt.Printf("Raw data: %s\n", string(out.Data))
				return fmt.Errorf("unmarshal message: %w", err)
			}
			fmt.Printf("EventMessage: id=%d user=%s text=%q ts=%d\n", evt.MessageID, evt.Username, evt.Message, evt.Timestamp)
			return nil
		case proto.EventUserJoined:
			var evt proto.EventPresenceData
			if err := json.Unmarshal(out.Data, &evt); err == nil {
				fmt.Printf("Join: user=%s\n", evt.Username)
			}
		default:
			// keep looping for message
		}
	}
}
