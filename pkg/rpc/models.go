package rpc

import "github.com/shopspring/decimal"

type AccountBalance struct {
	Balance    Raw `json:"balance" validate:"required"`
	Pending    Raw `json:"pending"`
	Receivable Raw `json:"receivable"`
}

type HistoryEntry struct {
	Type           string `json:"type" validate:"required"`
	Account        string `json:"account"`
	Amount         Raw    `json:"amount"`
	LocalTimestamp Int    `json:"local_timestamp"`
	Height         Int    `json:"height"`
	Hash           string `json:"hash" validate:"required"`
	Confirmed      Bool   `json:"confirmed"`
	Subtype        string `json:"subtype,omitempty"`
	Previous       string `json:"previous,omitempty"`
	Representative string `json:"representative,omitempty"`
	Link           string `json:"link,omitempty"`
	Signature      string `json:"signature,omitempty"`
	Work           string `json:"work,omitempty"`
}

type AccountHistory struct {
	Account  string             `json:"account" validate:"required"`
	History  List[HistoryEntry] `json:"history" validate:"dive"`
	Previous string             `json:"previous,omitempty"`
	Next     string             `json:"next,omitempty"`
}

type AccountInfo struct {
	Frontier                   string `json:"frontier" validate:"required"`
	OpenBlock                  string `json:"open_block"`
	RepresentativeBlock        string `json:"representative_block"`
	Balance                    Raw    `json:"balance" validate:"required"`
	ModifiedTimestamp          Int    `json:"modified_timestamp"`
	BlockCount                 Int    `json:"block_count"`
	AccountVersion             Int    `json:"account_version"`
	ConfirmationHeight         Int    `json:"confirmation_height"`
	ConfirmationHeightFrontier string `json:"confirmation_height_frontier"`
	Representative             string `json:"representative,omitempty"`
	Weight                     Raw    `json:"weight"`
	Pending                    Raw    `json:"pending"`
	Receivable                 Raw    `json:"receivable"`
	ConfirmedBalance           Raw    `json:"confirmed_balance"`
	ConfirmedReceivable        Raw    `json:"confirmed_receivable"`
	ConfirmedRepresentative    string `json:"confirmed_representative,omitempty"`
}

// Block is the JSON form of a state block.
type Block struct {
	Type           string `json:"type" validate:"required"`
	Account        string `json:"account" validate:"required"`
	Previous       string `json:"previous"`
	Representative string `json:"representative"`
	Balance        Raw    `json:"balance"`
	Link           string `json:"link"`
	LinkAsAccount  string `json:"link_as_account,omitempty"`
	Signature      string `json:"signature"`
	Work           string `json:"work"`
}

type BlockInfo struct {
	BlockAccount   string `json:"block_account" validate:"required"`
	Amount         Raw    `json:"amount"`
	Balance        Raw    `json:"balance"`
	Height         Int    `json:"height"`
	LocalTimestamp Int    `json:"local_timestamp"`
	Successor      string `json:"successor"`
	Confirmed      Bool   `json:"confirmed"`
	Contents       Block  `json:"contents" validate:"required"`
	Subtype        string `json:"subtype,omitempty"`
	SourceAccount  string `json:"source_account,omitempty"`
}

type BlockCount struct {
	Count     Int `json:"count"`
	Unchecked Int `json:"unchecked"`
	Cemented  Int `json:"cemented"`
}

// SignedBlock is a block built and signed by the node.
type SignedBlock struct {
	Hash       string `json:"hash" validate:"required"`
	Difficulty string `json:"difficulty"`
	Block      Block  `json:"block" validate:"required"`
}

type BlocksInfo struct {
	Blocks         Map[BlockInfo] `json:"blocks" validate:"dive"`
	BlocksNotFound List[string]   `json:"blocks_not_found"`
}

type ActiveConfirmations struct {
	Confirmations List[string] `json:"confirmations"`
	Unconfirmed   Int          `json:"unconfirmed"`
	Confirmed     Int          `json:"confirmed"`
}

type Confirmation struct {
	Tally           Raw      `json:"tally"`
	Contents        Block    `json:"contents"`
	Representatives Map[Raw] `json:"representatives,omitempty"`
}

type ConfirmationInfo struct {
	Announcements Int               `json:"announcements"`
	LastWinner    string            `json:"last_winner" validate:"required"`
	TotalTally    Raw               `json:"total_tally"`
	Blocks        Map[Confirmation] `json:"blocks"`
}

// Keypair is a private key with its public key and account address.
type Keypair struct {
	Private string `json:"private" validate:"required"`
	Public  string `json:"public" validate:"required"`
	Account string `json:"account" validate:"required"`
}

type LazyBootstrap struct {
	Started     Bool `json:"started"`
	KeyInserted Bool `json:"key_inserted"`
}

type LedgerEntry struct {
	Frontier            string `json:"frontier" validate:"required"`
	OpenBlock           string `json:"open_block"`
	RepresentativeBlock string `json:"representative_block"`
	Balance             Raw    `json:"balance"`
	ModifiedTimestamp   Int    `json:"modified_timestamp"`
	BlockCount          Int    `json:"block_count"`
	Representative      string `json:"representative,omitempty"`
	Weight              Raw    `json:"weight"`
	Pending             Raw    `json:"pending"`
	Receivable          Raw    `json:"receivable"`
}

type QuorumPeer struct {
	Account string `json:"account"`
	IP      string `json:"ip"`
	Weight  Raw    `json:"weight"`
}

type ConfirmationQuorum struct {
	QuorumDelta               Raw              `json:"quorum_delta"`
	OnlineWeightQuorumPercent Int              `json:"online_weight_quorum_percent"`
	OnlineWeightMinimum       Raw              `json:"online_weight_minimum"`
	OnlineStakeTotal          Raw              `json:"online_stake_total"`
	PeersStakeTotal           Raw              `json:"peers_stake_total"`
	TrendedStakeTotal         Raw              `json:"trended_stake_total"`
	Peers                     List[QuorumPeer] `json:"peers"`
}

type PeerInfo struct {
	ProtocolVersion Int    `json:"protocol_version"`
	NodeID          string `json:"node_id"`
	Type            string `json:"type"`
}

type ReceivableBlock struct {
	Amount Raw    `json:"amount" validate:"required"`
	Source string `json:"source"`
}

type Telemetry struct {
	BlockCount        Int    `json:"block_count"`
	CementedCount     Int    `json:"cemented_count"`
	UncheckedCount    Int    `json:"unchecked_count"`
	AccountCount      Int    `json:"account_count"`
	BandwidthCap      Int    `json:"bandwidth_cap"`
	PeerCount         Int    `json:"peer_count"`
	ProtocolVersion   Int    `json:"protocol_version"`
	Uptime            Int    `json:"uptime"`
	GenesisBlock      string `json:"genesis_block"`
	MajorVersion      Int    `json:"major_version"`
	MinorVersion      Int    `json:"minor_version"`
	PatchVersion      Int    `json:"patch_version"`
	PreReleaseVersion Int    `json:"pre_release_version"`
	Maker             Int    `json:"maker"`
	Timestamp         Int    `json:"timestamp"`
	ActiveDifficulty  string `json:"active_difficulty"`
	NodeID            string `json:"node_id,omitempty"`
	Signature         string `json:"signature,omitempty"`
	Address           string `json:"address,omitempty"`
	Port              string `json:"port,omitempty"`
}

type UncheckedEntry struct {
	Key               string `json:"key"`
	Hash              string `json:"hash" validate:"required"`
	ModifiedTimestamp Int    `json:"modified_timestamp"`
	Contents          Block  `json:"contents"`
}

type VersionInfo struct {
	RPCVersion        Int    `json:"rpc_version"`
	StoreVersion      Int    `json:"store_version"`
	ProtocolVersion   Int    `json:"protocol_version"`
	NodeVendor        string `json:"node_vendor" validate:"required"`
	StoreVendor       string `json:"store_vendor"`
	Network           string `json:"network"`
	NetworkIdentifier string `json:"network_identifier"`
	BuildInfo         string `json:"build_info"`
}

type WorkInfo struct {
	Work       string          `json:"work" validate:"required"`
	Difficulty string          `json:"difficulty"`
	Multiplier decimal.Decimal `json:"multiplier"`
	Hash       string          `json:"hash"`
}

type WorkValidation struct {
	Valid        Bool            `json:"valid"`
	ValidAll     Bool            `json:"valid_all"`
	ValidReceive Bool            `json:"valid_receive"`
	Difficulty   string          `json:"difficulty"`
	Multiplier   decimal.Decimal `json:"multiplier"`
}
