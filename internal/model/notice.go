package model

import "encoding/json"

type NoticeType string

const (
	NoticeState   NoticeType = "state"   // full Game snapshot
	NoticeHand    NoticeType = "hand"    // HandPayload, recipient only
	NoticeMessage NoticeType = "message" // Message append
	NoticeReady   NoticeType = "ready"   // PlayerRef
	NoticeTurn    NoticeType = "turn"    // PlayerRef
	NoticeError   NoticeType = "error"   // ErrorPayload
	NoticeAck     NoticeType = "ack"     // GameActionResponse, actor only
)

// Notice is one item on a game's event channel.
// Recipient scopes delivery to a single player; empty means broadcast.
type Notice struct {
	Type      NoticeType      `json:"type"`
	GameID    string          `json:"gameId"`
	Recipient string          `json:"-"`
	Payload   json.RawMessage `json:"payload"`
}

func (n *Notice) UnmarshalJSON(b []byte) error {
	o, err := decodeObject(b)
	if err != nil {
		return err
	}
	var out Notice
	t, err := o.str("type")
	if err != nil {
		return err
	}
	switch NoticeType(t) {
	case NoticeState, NoticeHand, NoticeMessage, NoticeReady, NoticeTurn, NoticeError, NoticeAck:
	default:
		return malformed("type", "unknown notice type "+t)
	}
	out.Type = NoticeType(t)
	if out.GameID, err = o.str("gameId"); err != nil {
		return err
	}
	raw, ok := o.present("payload")
	if !ok {
		return malformed("payload", "required")
	}
	out.Payload = append(json.RawMessage(nil), raw...)
	*n = out
	return nil
}

// NewNotice encodes payload into a notice.
func NewNotice(t NoticeType, gameID string, payload any) Notice {
	b, _ := json.Marshal(payload)
	return Notice{Type: t, GameID: gameID, Payload: b}
}

// To scopes the notice to one player.
func (n Notice) To(playerID string) Notice {
	n.Recipient = playerID
	return n
}

// HandPayload carries one player's private hand.
type HandPayload struct {
	Player string `json:"player"`
	Hand   Hand   `json:"hand"`
}

func (h *HandPayload) UnmarshalJSON(b []byte) error {
	o, err := decodeObject(b)
	if err != nil {
		return err
	}
	var out HandPayload
	if out.Player, err = o.str("player"); err != nil {
		return err
	}
	cards, err := o.cards("hand")
	if err != nil {
		return err
	}
	out.Hand = cards
	*h = out
	return nil
}

// PlayerRef names a player in ready/turn notices.
type PlayerRef struct {
	Player string `json:"player"`
}

func (p *PlayerRef) UnmarshalJSON(b []byte) error {
	o, err := decodeObject(b)
	if err != nil {
		return err
	}
	id, err := o.str("player")
	if err != nil {
		return err
	}
	p.Player = id
	return nil
}
