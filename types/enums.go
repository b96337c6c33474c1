package types

type ChatState string

const (
	StateIdle            ChatState = "idle"
	StateAwaitingOption  ChatState = "awaiting_option"
	StateAwaitingPayment ChatState = "awaiting_payment"
	StateAwaitingTarget  ChatState = "awaiting_target"
	StateActive          ChatState = "active"
	StateStopped         ChatState = "stopped"
)

func (s ChatState) Valid() bool {
	switch s {
	case StateIdle, StateAwaitingOption, StateAwaitingPayment, StateAwaitingTarget, StateActive, StateStopped:
		return true
	default:
		return false
	}
}

type BindingStatus string

const (
	BindingPending   BindingStatus = "pending"
	BindingConfirmed BindingStatus = "confirmed"
)

const (
	CommandStart string = "/start"
	CommandStop  string = "/stop"
	CommandHelp  string = "/help"
)

// PaymentStatusFinished is the only processor status that confirms a payment.
const PaymentStatusFinished string = "finished"
