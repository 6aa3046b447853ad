package ws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Message is a push message delivered to a subscription handler.
type Message struct {
	Topic string
	Time  string
	Body  json.RawMessage // the "message" field
	Raw   json.RawMessage // the whole frame
}

// Handler processes push messages of one topic. It runs on the subscription's own goroutine,
// one message at a time in arrival order. ctx is cancelled when the subscription ends.
// A returned error is logged.
type Handler func(ctx context.Context, msg Message) error

var validate = validator.New(validator.WithRequiredStructEnabled())

// Typed decodes the message body into T and validates it before calling fn.
func Typed[T any](fn func(ctx context.Context, v T) error) Handler {
	return func(ctx context.Context, msg Message) error {
		var v T
		if err := json.Unmarshal(msg.Body, &v); err != nil {
			return fmt.Errorf("decode %s message: %w", msg.Topic, err)
		}
		if err := validateValue(&v); err != nil {
			return fmt.Errorf("validate %s message: %w", msg.Topic, err)
		}
		return fn(ctx, v)
	}
}

func validateValue(v any) error {
	err := validate.Struct(v)
	if _, ok := err.(*validator.InvalidValidationError); ok {
		return nil
	}
	return err
}

// Filter nests node filter options under the "options" key of a control frame.
//
//	reg.Subscribe(ctx, ws.TopicConfirmation, h, ws.Filter(ws.ConfirmationFilter{Accounts: accts}), true)
func Filter(v any) map[string]any {
	return map[string]any{"options": v}
}

// ConfirmationFilter is the options object of the confirmation topic.
type ConfirmationFilter struct {
	Accounts             []string `json:"accounts,omitempty"`
	ConfirmationType     string   `json:"confirmation_type,omitempty"`
	AllLocalAccounts     bool     `json:"all_local_accounts,omitempty"`
	IncludeElectionInfo  bool     `json:"include_election_info,omitempty"`
	IncludeBlock         *bool    `json:"include_block,omitempty"`
	IncludeSidebandInfo  bool     `json:"include_sideband_info,omitempty"`
	IncludeLinkedAccount bool     `json:"include_linked_account,omitempty"`
}

// VoteFilter is the options object of the vote topic.
type VoteFilter struct {
	Representatives      []string `json:"representatives,omitempty"`
	IncludeReplays       bool     `json:"include_replays,omitempty"`
	IncludeIndeterminate bool     `json:"include_indeterminate,omitempty"`
}
