package types

// Button is an inline reply option; Data is sent back as chat text.
type Button struct {
	Text string `json:"text"`
	Data string `json:"data"`
}

type OutboundMessage struct {
	ChatID  int64    `json:"chat_id"`
	Text    string   `json:"text"`
	Buttons []Button `json:"buttons,omitempty"`
}
