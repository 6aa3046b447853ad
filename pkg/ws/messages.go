package ws

import (
	"github.com/lightforgemedia/go-nanorpc/pkg/rpc"
	"github.com/shopspring/decimal"
)

// Block is the state block carried by confirmation and new_unconfirmed_block messages.
type Block struct {
	Type           string  `json:"type" validate:"required"`
	Account        string  `json:"account" validate:"required"`
	Previous       string  `json:"previous"`
	Representative string  `json:"representative"`
	Balance        rpc.Raw `json:"balance"`
	Link           string  `json:"link"`
	LinkAsAccount  string  `json:"link_as_account"`
	Signature      string  `json:"signature"`
	Work           string  `json:"work"`
	Subtype        string  `json:"subtype"`
}

type ElectionInfo struct {
	Duration     rpc.Int `json:"duration"`
	Time         rpc.Int `json:"time"`
	Tally        rpc.Raw `json:"tally"`
	RequestCount rpc.Int `json:"request_count"`
	Blocks       rpc.Int `json:"blocks"`
	Voters       rpc.Int `json:"voters"`
}

type Confirmation struct {
	Account          string        `json:"account" validate:"required"`
	Amount           rpc.Raw       `json:"amount"`
	Hash             string        `json:"hash" validate:"required"`
	ConfirmationType string        `json:"confirmation_type"`
	ElectionInfo     *ElectionInfo `json:"election_info,omitempty"`
	Block            *Block        `json:"block,omitempty"`
}

type Vote struct {
	Account   string           `json:"account" validate:"required"`
	Signature string           `json:"signature"`
	Sequence  rpc.Int          `json:"sequence"`
	Timestamp rpc.Int          `json:"timestamp"`
	Blocks    rpc.List[string] `json:"blocks"`
	Type      string           `json:"type"`
}

type StoppedElection struct {
	Hash string `json:"hash" validate:"required"`
}

type ActiveDifficulty struct {
	Multiplier            decimal.Decimal `json:"multiplier"`
	NetworkCurrent        string          `json:"network_current"`
	NetworkMinimum        string          `json:"network_minimum"`
	NetworkReceiveCurrent string          `json:"network_receive_current"`
	NetworkReceiveMinimum string          `json:"network_receive_minimum"`
}

type WorkRequest struct {
	Hash       string          `json:"hash"`
	Difficulty string          `json:"difficulty"`
	Multiplier decimal.Decimal `json:"multiplier"`
	Version    string          `json:"version"`
}

type WorkResult struct {
	Source     string          `json:"source"`
	Work       string          `json:"work"`
	Difficulty string          `json:"difficulty"`
	Multiplier decimal.Decimal `json:"multiplier"`
}

// Work reports a work generation attempt. The node sends an empty string for BadPeers when
// there were none.
type Work struct {
	Success  rpc.Bool         `json:"success"`
	Reason   string           `json:"reason"`
	Duration rpc.Int          `json:"duration"`
	Request  WorkRequest      `json:"request"`
	Result   *WorkResult      `json:"result,omitempty"`
	BadPeers rpc.List[string] `json:"bad_peers"`
}

type Telemetry = rpc.Telemetry

type Bootstrap struct {
	Reason   string  `json:"reason" validate:"required"`
	ID       string  `json:"id"`
	Mode     string  `json:"mode"`
	Total    rpc.Int `json:"total"`
	Duration rpc.Int `json:"duration"`
}
