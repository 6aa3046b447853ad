package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/lightforgemedia/go-nanorpc/pkg/wire"
	"github.com/shopspring/decimal"
)

// field calls action and decodes the single response field key into T.
func field[T any](ctx context.Context, c *Client, action, key string, params Params) (T, error) {
	var zero T
	var fields map[string]json.RawMessage
	if err := c.Call(ctx, action, params, &fields); err != nil {
		return zero, err
	}
	raw, ok := fields[key]
	if !ok {
		return zero, &wire.DecodeError{Action: action, Err: fmt.Errorf("missing %q field", key)}
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, &wire.DecodeError{Action: action, Body: raw, Err: err}
	}
	if err := c.check(&out); err != nil {
		return zero, &wire.DecodeError{Action: action, Body: raw, Err: err}
	}
	return out, nil
}

// success calls an action whose answer is {"success": ""}.
func success(ctx context.Context, c *Client, action string, params Params) (bool, error) {
	var fields map[string]json.RawMessage
	if err := c.Call(ctx, action, params, &fields); err != nil {
		return false, err
	}
	_, ok := fields["success"]
	return ok, nil
}

func (c *Client) AccountBalance(ctx context.Context, account string, extra ...Params) (AccountBalance, error) {
	var out AccountBalance
	err := c.Call(ctx, "account_balance", merge(Params{"account": account}, extra), &out)
	return out, err
}

func (c *Client) AccountBlockCount(ctx context.Context, account string, extra ...Params) (Int, error) {
	return field[Int](ctx, c, "account_block_count", "block_count", merge(Params{"account": account}, extra))
}

// AccountGet returns the account address for a public key.
func (c *Client) AccountGet(ctx context.Context, key string, extra ...Params) (string, error) {
	return field[string](ctx, c, "account_get", "account", merge(Params{"key": key}, extra))
}

// AccountHistory pages through the account chain from the frontier. count -1 returns everything.
func (c *Client) AccountHistory(ctx context.Context, account string, count int, extra ...Params) (AccountHistory, error) {
	var out AccountHistory
	err := c.Call(ctx, "account_history", merge(Params{"account": account, "count": strconv.Itoa(count)}, extra), &out)
	return out, err
}

func (c *Client) AccountInfo(ctx context.Context, account string, extra ...Params) (AccountInfo, error) {
	var out AccountInfo
	err := c.Call(ctx, "account_info", merge(Params{"account": account}, extra), &out)
	return out, err
}

// AccountKey returns the public key of an account.
func (c *Client) AccountKey(ctx context.Context, account string, extra ...Params) (string, error) {
	return field[string](ctx, c, "account_key", "key", merge(Params{"account": account}, extra))
}

func (c *Client) AccountRepresentative(ctx context.Context, account string, extra ...Params) (string, error) {
	return field[string](ctx, c, "account_representative", "representative", merge(Params{"account": account}, extra))
}

func (c *Client) AccountWeight(ctx context.Context, account string, extra ...Params) (Raw, error) {
	return field[Raw](ctx, c, "account_weight", "weight", merge(Params{"account": account}, extra))
}

func (c *Client) AccountsBalances(ctx context.Context, accounts []string, extra ...Params) (Map[AccountBalance], error) {
	return field[Map[AccountBalance]](ctx, c, "accounts_balances", "balances", merge(Params{"accounts": accounts}, extra))
}

func (c *Client) AccountsFrontiers(ctx context.Context, accounts []string, extra ...Params) (Map[string], error) {
	return field[Map[string]](ctx, c, "accounts_frontiers", "frontiers", merge(Params{"accounts": accounts}, extra))
}

// AccountsPending maps each account to its receivable block hashes.
func (c *Client) AccountsPending(ctx context.Context, accounts []string, count int, extra ...Params) (Map[List[string]], error) {
	return field[Map[List[string]]](ctx, c, "accounts_pending", "blocks", merge(Params{"accounts": accounts, "count": strconv.Itoa(count)}, extra))
}

// AccountsPendingSources maps each account to its receivable blocks with amount and source.
func (c *Client) AccountsPendingSources(ctx context.Context, accounts []string, count int, extra ...Params) (Map[Map[ReceivableBlock]], error) {
	params := Params{"accounts": accounts, "count": strconv.Itoa(count), "source": "true"}
	return field[Map[Map[ReceivableBlock]]](ctx, c, "accounts_pending", "blocks", merge(params, extra))
}

func (c *Client) AccountsRepresentatives(ctx context.Context, accounts []string, extra ...Params) (Map[string], error) {
	return field[Map[string]](ctx, c, "accounts_representatives", "representatives", merge(Params{"accounts": accounts}, extra))
}

// AvailableSupply returns the amount in circulation, excluding burned and reserved funds.
func (c *Client) AvailableSupply(ctx context.Context, extra ...Params) (Raw, error) {
	return field[Raw](ctx, c, "available_supply", "available", merge(nil, extra))
}

func (c *Client) BlockAccount(ctx context.Context, hash string, extra ...Params) (string, error) {
	return field[string](ctx, c, "block_account", "account", merge(Params{"hash": hash}, extra))
}

// BlockConfirm requests confirmation of a block. It reports whether the election started.
func (c *Client) BlockConfirm(ctx context.Context, hash string, extra ...Params) (bool, error) {
	started, err := field[Bool](ctx, c, "block_confirm", "started", merge(Params{"hash": hash}, extra))
	return bool(started), err
}

// BlockCreate builds and signs a state block. Pass the signing key or wallet and account in extra.
func (c *Client) BlockCreate(ctx context.Context, balance Raw, representative, previous string, extra ...Params) (SignedBlock, error) {
	var out SignedBlock
	params := Params{
		"type":           "state",
		"balance":        balance.String(),
		"representative": representative,
		"previous":       previous,
		"json_block":     "true",
	}
	err := c.Call(ctx, "block_create", merge(params, extra), &out)
	return out, err
}

func (c *Client) BlockCount(ctx context.Context, extra ...Params) (BlockCount, error) {
	var out BlockCount
	err := c.Call(ctx, "block_count", merge(nil, extra), &out)
	return out, err
}

// BlockHash computes the hash of a JSON block.
func (c *Client) BlockHash(ctx context.Context, block any, extra ...Params) (string, error) {
	return field[string](ctx, c, "block_hash", "hash", merge(Params{"block": block, "json_block": "true"}, extra))
}

func (c *Client) BlockInfo(ctx context.Context, hash string, extra ...Params) (BlockInfo, error) {
	var out BlockInfo
	err := c.Call(ctx, "block_info", merge(Params{"hash": hash, "json_block": "true"}, extra), &out)
	return out, err
}

func (c *Client) Blocks(ctx context.Context, hashes []string, extra ...Params) (Map[Block], error) {
	return field[Map[Block]](ctx, c, "blocks", "blocks", merge(Params{"hashes": hashes, "json_block": "true"}, extra))
}

func (c *Client) BlocksInfo(ctx context.Context, hashes []string, extra ...Params) (BlocksInfo, error) {
	var out BlocksInfo
	err := c.Call(ctx, "blocks_info", merge(Params{"hashes": hashes, "json_block": "true"}, extra), &out)
	return out, err
}

// Chain lists block hashes from block back towards the open block. count -1 walks the whole chain.
func (c *Client) Bootstrap(ctx context.Context, address string, port int, extra ...Params) (bool, error) {
	return success(ctx, c, "bootstrap", merge(Params{"address": address, "port": strconv.Itoa(port)}, extra))
}

// BootstrapLazy starts a lazy bootstrap from hash.
func (c *Client) BootstrapLazy(ctx context.Context, hash string, extra ...Params) (LazyBootstrap, error) {
	var out LazyBootstrap
	err := c.Call(ctx, "bootstrap_lazy", merge(Params{"hash": hash}, extra), &out)
	return out, err
}

func (c *Client) Chain(ctx context.Context, block string, count int, extra ...Params) (List[string], error) {
	return field[List[string]](ctx, c, "chain", "blocks", merge(Params{"block": block, "count": strconv.Itoa(count)}, extra))
}

// ConfirmationActive lists the roots of active elections.
func (c *Client) ConfirmationActive(ctx context.Context, extra ...Params) (ActiveConfirmations, error) {
	var out ActiveConfirmations
	err := c.Call(ctx, "confirmation_active", merge(nil, extra), &out)
	return out, err
}

func (c *Client) ConfirmationInfo(ctx context.Context, root string, extra ...Params) (ConfirmationInfo, error) {
	var out ConfirmationInfo
	err := c.Call(ctx, "confirmation_info", merge(Params{"root": root, "json_block": "true"}, extra), &out)
	return out, err
}

func (c *Client) ConfirmationQuorum(ctx context.Context, extra ...Params) (ConfirmationQuorum, error) {
	var out ConfirmationQuorum
	err := c.Call(ctx, "confirmation_quorum", merge(nil, extra), &out)
	return out, err
}

// Delegators maps each delegating account to its balance.
func (c *Client) Delegators(ctx context.Context, account string, extra ...Params) (Map[Raw], error) {
	return field[Map[Raw]](ctx, c, "delegators", "delegators", merge(Params{"account": account}, extra))
}

func (c *Client) DelegatorsCount(ctx context.Context, account string, extra ...Params) (Int, error) {
	return field[Int](ctx, c, "delegators_count", "count", merge(Params{"account": account}, extra))
}

// DeterministicKey derives the keypair at index from seed.
func (c *Client) DeterministicKey(ctx context.Context, seed string, index int, extra ...Params) (Keypair, error) {
	var out Keypair
	err := c.Call(ctx, "deterministic_key", merge(Params{"seed": seed, "index": strconv.Itoa(index)}, extra), &out)
	return out, err
}

func (c *Client) FrontierCount(ctx context.Context, extra ...Params) (Int, error) {
	return field[Int](ctx, c, "frontier_count", "count", merge(nil, extra))
}

func (c *Client) Frontiers(ctx context.Context, account string, count int, extra ...Params) (Map[string], error) {
	return field[Map[string]](ctx, c, "frontiers", "frontiers", merge(Params{"account": account, "count": strconv.Itoa(count)}, extra))
}

func (c *Client) Keepalive(ctx context.Context, address string, port int, extra ...Params) (bool, error) {
	started, err := field[Bool](ctx, c, "keepalive", "started", merge(Params{"address": address, "port": strconv.Itoa(port)}, extra))
	return bool(started), err
}

func (c *Client) KeyCreate(ctx context.Context, extra ...Params) (Keypair, error) {
	var out Keypair
	err := c.Call(ctx, "key_create", merge(nil, extra), &out)
	return out, err
}

// KeyExpand derives the public key and account from a private key.
func (c *Client) KeyExpand(ctx context.Context, key string, extra ...Params) (Keypair, error) {
	var out Keypair
	err := c.Call(ctx, "key_expand", merge(Params{"key": key}, extra), &out)
	return out, err
}

// Ledger returns ledger entries for up to count accounts starting at account.
func (c *Client) Ledger(ctx context.Context, account string, count int, extra ...Params) (Map[LedgerEntry], error) {
	return field[Map[LedgerEntry]](ctx, c, "ledger", "accounts", merge(Params{"account": account, "count": strconv.Itoa(count)}, extra))
}

// Peers maps peer addresses to their protocol version.
func (c *Client) Peers(ctx context.Context, extra ...Params) (Map[Int], error) {
	return field[Map[Int]](ctx, c, "peers", "peers", merge(nil, extra))
}

func (c *Client) PeerDetails(ctx context.Context, extra ...Params) (Map[PeerInfo], error) {
	return field[Map[PeerInfo]](ctx, c, "peers", "peers", merge(Params{"peer_details": "true"}, extra))
}

// Process publishes a signed JSON block and returns its hash.
func (c *Client) Process(ctx context.Context, subtype string, block any, extra ...Params) (string, error) {
	return field[string](ctx, c, "process", "hash", merge(Params{"subtype": subtype, "block": block, "json_block": "true"}, extra))
}

// Receivable lists receivable block hashes for account.
func (c *Client) Receivable(ctx context.Context, account string, count int, extra ...Params) (List[string], error) {
	return field[List[string]](ctx, c, "receivable", "blocks", merge(Params{"account": account, "count": strconv.Itoa(count)}, extra))
}

// ReceivableAmounts maps receivable hashes at or above threshold to their amount.
func (c *Client) ReceivableAmounts(ctx context.Context, account string, count int, threshold Raw, extra ...Params) (Map[Raw], error) {
	params := Params{"account": account, "count": strconv.Itoa(count), "threshold": threshold.String()}
	return field[Map[Raw]](ctx, c, "receivable", "blocks", merge(params, extra))
}

// ReceivableSources maps receivable hashes to their amount and source account.
func (c *Client) ReceivableSources(ctx context.Context, account string, count int, extra ...Params) (Map[ReceivableBlock], error) {
	params := Params{"account": account, "count": strconv.Itoa(count), "source": "true"}
	return field[Map[ReceivableBlock]](ctx, c, "receivable", "blocks", merge(params, extra))
}

func (c *Client) ReceivableExists(ctx context.Context, hash string, extra ...Params) (bool, error) {
	exists, err := field[Bool](ctx, c, "receivable_exists", "exists", merge(Params{"hash": hash}, extra))
	return bool(exists), err
}

// Representatives maps representative accounts to their voting weight.
func (c *Client) Representatives(ctx context.Context, extra ...Params) (Map[Raw], error) {
	return field[Map[Raw]](ctx, c, "representatives", "representatives", merge(nil, extra))
}

func (c *Client) RepresentativesOnline(ctx context.Context, extra ...Params) (List[string], error) {
	return field[List[string]](ctx, c, "representatives_online", "representatives", merge(nil, extra))
}

type representativeWeight struct {
	Weight Raw `json:"weight"`
}

// RepresentativesOnlineWeight maps online representatives to their voting weight.
func (c *Client) RepresentativesOnlineWeight(ctx context.Context, extra ...Params) (map[string]Raw, error) {
	reps, err := field[Map[representativeWeight]](ctx, c, "representatives_online", "representatives", merge(Params{"weight": "true"}, extra))
	if err != nil {
		return nil, err
	}
	out := make(map[string]Raw, len(reps))
	for account, r := range reps {
		out[account] = r.Weight
	}
	return out, nil
}

// Republish rebroadcasts blocks starting at hash and returns the hashes sent.
func (c *Client) Republish(ctx context.Context, hash string, extra ...Params) (List[string], error) {
	return field[List[string]](ctx, c, "republish", "blocks", merge(Params{"hash": hash}, extra))
}

// Sign signs a JSON block. Pass the key or wallet and account in extra.
func (c *Client) Sign(ctx context.Context, block any, extra ...Params) (string, error) {
	return field[string](ctx, c, "sign", "signature", merge(Params{"block": block, "json_block": "true"}, extra))
}

func (c *Client) StatsClear(ctx context.Context, extra ...Params) (bool, error) {
	return success(ctx, c, "stats_clear", merge(nil, extra))
}

// Stop asks the node to shut down.
func (c *Client) Stop(ctx context.Context, extra ...Params) (bool, error) {
	return success(ctx, c, "stop", merge(nil, extra))
}

func (c *Client) Successors(ctx context.Context, block string, count int, extra ...Params) (List[string], error) {
	return field[List[string]](ctx, c, "successors", "blocks", merge(Params{"block": block, "count": strconv.Itoa(count)}, extra))
}

// Telemetry returns the network-wide telemetry averages.
func (c *Client) Telemetry(ctx context.Context, extra ...Params) (Telemetry, error) {
	var out Telemetry
	err := c.Call(ctx, "telemetry", merge(nil, extra), &out)
	return out, err
}

// TelemetryRaw returns the telemetry reported by each peer.
func (c *Client) TelemetryRaw(ctx context.Context, extra ...Params) (List[Telemetry], error) {
	return field[List[Telemetry]](ctx, c, "telemetry", "metrics", merge(Params{"raw": "true"}, extra))
}

// Uptime returns the node uptime in seconds.
func (c *Client) Uptime(ctx context.Context, extra ...Params) (Int, error) {
	return field[Int](ctx, c, "uptime", "seconds", merge(nil, extra))
}

func (c *Client) ValidateAccountNumber(ctx context.Context, account string, extra ...Params) (bool, error) {
	valid, err := field[Bool](ctx, c, "validate_account_number", "valid", merge(Params{"account": account}, extra))
	return bool(valid), err
}

func (c *Client) Version(ctx context.Context, extra ...Params) (VersionInfo, error) {
	var out VersionInfo
	err := c.Call(ctx, "version", merge(nil, extra), &out)
	return out, err
}

// Unchecked maps unchecked block hashes to their contents.
func (c *Client) Unchecked(ctx context.Context, count int, extra ...Params) (Map[Block], error) {
	return field[Map[Block]](ctx, c, "unchecked", "blocks", merge(Params{"count": strconv.Itoa(count), "json_block": "true"}, extra))
}

func (c *Client) UncheckedClear(ctx context.Context, extra ...Params) (bool, error) {
	return success(ctx, c, "unchecked_clear", merge(nil, extra))
}

// UncheckedGet returns the contents of an unchecked block.
func (c *Client) UncheckedGet(ctx context.Context, hash string, extra ...Params) (Block, error) {
	return field[Block](ctx, c, "unchecked_get", "contents", merge(Params{"hash": hash, "json_block": "true"}, extra))
}

// UncheckedKeys lists unchecked entries starting from key.
func (c *Client) UncheckedKeys(ctx context.Context, key string, count int, extra ...Params) (List[UncheckedEntry], error) {
	params := Params{"key": key, "count": strconv.Itoa(count), "json_block": "true"}
	return field[List[UncheckedEntry]](ctx, c, "unchecked_keys", "unchecked", merge(params, extra))
}

// Unopened maps unopened accounts to their receivable balance. An empty account starts from the beginning.
func (c *Client) Unopened(ctx context.Context, account string, count int, extra ...Params) (Map[Raw], error) {
	params := Params{"count": strconv.Itoa(count)}
	if account != "" {
		params["account"] = account
	}
	return field[Map[Raw]](ctx, c, "unopened", "accounts", merge(params, extra))
}

func (c *Client) WorkCancel(ctx context.Context, hash string, extra ...Params) (bool, error) {
	return success(ctx, c, "work_cancel", merge(Params{"hash": hash}, extra))
}

func (c *Client) WorkGenerate(ctx context.Context, hash string, extra ...Params) (WorkInfo, error) {
	var out WorkInfo
	err := c.Call(ctx, "work_generate", merge(Params{"hash": hash}, extra), &out)
	return out, err
}

func (c *Client) WorkPeerAdd(ctx context.Context, address string, port int, extra ...Params) (bool, error) {
	return success(ctx, c, "work_peer_add", merge(Params{"address": address, "port": strconv.Itoa(port)}, extra))
}

func (c *Client) WorkPeers(ctx context.Context, extra ...Params) (List[string], error) {
	return field[List[string]](ctx, c, "work_peers", "work_peers", merge(nil, extra))
}

func (c *Client) WorkPeersClear(ctx context.Context, extra ...Params) (bool, error) {
	return success(ctx, c, "work_peers_clear", merge(nil, extra))
}

func (c *Client) WorkValidate(ctx context.Context, work, hash string, extra ...Params) (WorkValidation, error) {
	var out WorkValidation
	err := c.Call(ctx, "work_validate", merge(Params{"work": work, "hash": hash}, extra), &out)
	return out, err
}

// NanoToRaw asks the node to convert a nano amount. See the package-level NanoToRaw for a local conversion.
func (c *Client) NanoToRaw(ctx context.Context, nano decimal.Decimal) (Raw, error) {
	return field[Raw](ctx, c, "nano_to_raw", "amount", Params{"amount": nano.String()})
}

// RawToNano asks the node to convert a raw amount.
func (c *Client) RawToNano(ctx context.Context, raw Raw) (decimal.Decimal, error) {
	return field[decimal.Decimal](ctx, c, "raw_to_nano", "amount", Params{"amount": raw.String()})
}
