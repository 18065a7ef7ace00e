// Package protocol carries parking commands over a websocket. Every request
// packet gets a unique id which the response echoes, so a client may have
// any number of requests in flight on one connection. Packets without an id
// are unsolicited pushes from the server.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Commands understood by the server, plus the pushes it may send.
const (
	CommandLogin          = "LOGIN"
	CommandLogout         = "LOGOUT"
	CommandCreate         = "CREATE"
	CommandCurrentParking = "CURRENT_PARKING"
	CommandReport         = "REPORT"
	CommandDeposit        = "DEPOSIT"
	CommandPickup         = "PICKUP"
	CommandExtend         = "EXTEND"
	CommandReserve        = "RESERVE"
	CommandEditUser       = "EDIT_USER"
	CommandUserHistory    = "USER_HISTORY"
	CommandRecover        = "RECOVER"
	CommandDisconnect     = "DISCONNECT"
	CommandShutdown       = "SHUTDOWN"
)

// Packet is the single envelope exchanged in both directions.
type Packet struct {
	ID          string              `json:"id,omitempty"`
	Command     string              `json:"command"`
	Args        map[string]string   `json:"args,omitempty"`
	Table       []map[string]string `json:"table,omitempty"`
	Answer      int                 `json:"answer"`
	Description string              `json:"description"`
}

// Arg returns a trimmed argument, or "" when absent.
func (p Packet) Arg(key string) string {
	return strings.TrimSpace(p.Args[key])
}

// Encode serialises a packet for one text frame.
func Encode(p Packet) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode packet: %w", err)
	}
	return data, nil
}

// Decode parses one frame. The command name is upper-cased.
func Decode(data []byte) (Packet, error) {
	var p Packet
	if err := json.Unmarshal(data, &p); err != nil {
		return Packet{}, fmt.Errorf("failed to decode packet: %w", err)
	}
	p.Command = strings.ToUpper(strings.TrimSpace(p.Command))
	return p, nil
}
