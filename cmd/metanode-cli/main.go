package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"metanode/cmd/internal/passphrase"
	"metanode/core/genesis"
	"metanode/crypto"
	"metanode/rpc"
)

const (
	rpcURLEnv    = "METANODE_RPC_URL"
	rpcTokenEnv  = "METANODE_RPC_TOKEN"
	jwtSecretEnv = "METANODE_JWT_SECRET"
	jwtIssuerEnv = "METANODE_JWT_ISSUER"
	keystorePass = "METANODE_KEYSTORE_PASS"
)

type client struct {
	endpoint string
	token    string
	http     *http.Client
	out      io.Writer
}

// rpcCall is one request built from command line arguments.
type rpcCall struct {
	method string
	params interface{}
	auth   bool
}

type builder func(args []string) (rpcCall, error)

var commands = map[string]struct {
	usage string
	build builder
}{
	"status":          {"status", fixed("node_status", false)},
	"global":          {"global", fixed("stake_getGlobal", false)},
	"pools":           {"pools", fixed("stake_poolCount", false)},
	"pool":            {"pool <id>", poolCall("stake_getPool", false)},
	"update-pool":     {"update-pool <id>", poolCall("stake_updatePool", false)},
	"update-all":      {"update-all", fixed("stake_massUpdatePools", false)},
	"deposit":         {"deposit <pool> <amount>", poolAmountCall("stake_depositNative")},
	"deposit-token":   {"deposit-token <pool> <amount>", poolAmountCall("stake_deposit")},
	"unstake":         {"unstake <pool> <amount>", poolAmountCall("stake_unstake")},
	"withdraw":        {"withdraw <pool>", poolCall("stake_withdraw", true)},
	"claim":           {"claim <pool>", poolCall("stake_claim", true)},
	"pending":         {"pending <pool> <address> [block]", accountCall("stake_pendingReward", true)},
	"staked":          {"staked <pool> <address>", accountCall("stake_balance", false)},
	"withdrawable":    {"withdrawable <pool> <address>", accountCall("stake_withdrawAmount", false)},
	"requests":        {"requests <pool> <address>", accountCall("stake_unstakeRequests", false)},
	"balance":         {"balance <address> <symbol>", bankQueryCall("bank_balance")},
	"allowance":       {"allowance <address> <symbol>", bankQueryCall("bank_allowance")},
	"approve":         {"approve <symbol> <amount>", approveCall},
	"transfer":        {"transfer <to> <symbol> <amount>", transferCall("bank_transfer")},
	"mint":            {"mint <to> <symbol> <amount>", transferCall("bank_mint")},
	"tokens":          {"tokens", fixed("bank_tokens", false)},
	"mint-pause":      {"mint-pause <symbol> <on|off>", mintPauseCall},
	"pause":           {"pause <withdraw|claim>", gateCall("admin_pause")},
	"unpause":         {"unpause <withdraw|claim>", gateCall("admin_unpause")},
	"fund":            {"fund <amount>", amountCall("admin_fundRewards")},
	"set-reward-rate": {"set-reward-rate <amount>", amountCall("admin_setRewardPerBlock")},
	"history":         {"history [type]", historyCall},
}

func main() {
	c := &client{
		endpoint: defaultEndpoint(os.LookupEnv),
		token:    strings.TrimSpace(os.Getenv(rpcTokenEnv)),
		http:     &http.Client{Timeout: 30 * time.Second},
		out:      os.Stdout,
	}
	args, err := applyGlobalFlags(c, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := run(c, args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(c *client, args []string) error {
	if len(args) == 0 {
		printUsage(c.out)
		return nil
	}
	switch args[0] {
	case "help", "-h", "--help":
		printUsage(c.out)
		return nil
	case "token":
		return issueToken(c.out, args[1:])
	case "keygen":
		if len(args) != 2 {
			return fmt.Errorf("usage: keygen <keystore-path>")
		}
		return generateKey(c.out, args[1], passphrase.NewSource(keystorePass, "keystore passphrase"))
	case "address":
		if len(args) != 2 {
			return fmt.Errorf("usage: address <keystore-path>")
		}
		return showAddress(c.out, args[1], passphrase.NewSource(keystorePass, "keystore passphrase"))
	case "call":
		if len(args) < 2 {
			return fmt.Errorf("usage: call <method> [json-params]")
		}
		call := rpcCall{method: args[1], auth: c.token != ""}
		if len(args) > 2 {
			var params interface{}
			if err := json.Unmarshal([]byte(args[2]), &params); err != nil {
				return fmt.Errorf("params must be a JSON object: %w", err)
			}
			call.params = params
		}
		return c.execute(call)
	}
	cmd, ok := commands[args[0]]
	if !ok {
		return fmt.Errorf("unknown command %q", args[0])
	}
	call, err := cmd.build(args[1:])
	if err != nil {
		return fmt.Errorf("%w (usage: %s)", err, cmd.usage)
	}
	return c.execute(call)
}

func (c *client) execute(call rpcCall) error {
	result, err := c.do(call)
	if err != nil {
		return err
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, result, "", "  "); err != nil {
		_, err = fmt.Fprintln(c.out, string(result))
		return err
	}
	_, err = fmt.Fprintln(c.out, pretty.String())
	return err
}

func (c *client) do(call rpcCall) (json.RawMessage, error) {
	body := map[string]interface{}{"jsonrpc": "2.0", "id": 1, "method": call.method}
	if call.params != nil {
		body["params"] = []interface{}{call.params}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if call.auth {
		if c.token == "" {
			return nil, fmt.Errorf("%s requires %s to be set", call.method, rpcTokenEnv)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", c.endpoint, err)
	}
	defer resp.Body.Close()

	var decoded struct {
		Result json.RawMessage `json:"result"`
		Error  *rpc.RPCError   `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response (HTTP %d): %w", resp.StatusCode, err)
	}
	if decoded.Error != nil {
		return nil, decoded.Error
	}
	return decoded.Result, nil
}

// issueToken signs a caller token with the operator's JWT secret.
func issueToken(out io.Writer, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: token <address> [ttl]")
	}
	subject, err := genesis.ParseBech32Account(args[0])
	if err != nil {
		return fmt.Errorf("invalid address: %w", err)
	}
	ttl := 24 * time.Hour
	if len(args) > 1 {
		ttl, err = time.ParseDuration(args[1])
		if err != nil {
			return fmt.Errorf("invalid ttl: %w", err)
		}
	}
	secret, err := passphrase.NewSource(jwtSecretEnv, "RPC signing secret").Get()
	if err != nil {
		return err
	}
	token, err := rpc.IssueToken([]byte(secret), os.Getenv(jwtIssuerEnv), subject, ttl, time.Now())
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}

// generateKey creates an operator identity whose address can be used as a
// token subject.
func generateKey(out io.Writer, path string, pass *passphrase.Source) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("keystore %s already exists", path)
	}
	secret, err := pass.Get()
	if err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	if err := crypto.SaveKeystore(path, key, secret); err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, key.Address().String())
	return err
}

func showAddress(out io.Writer, path string, pass *passphrase.Source) error {
	secret, err := pass.Get()
	if err != nil {
		return err
	}
	key, err := crypto.LoadKeystore(path, secret)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, key.Address().String())
	return err
}

func defaultEndpoint(lookup func(string) (string, bool)) string {
	if v, ok := lookup(rpcURLEnv); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return "http://127.0.0.1:8545"
}

func applyGlobalFlags(c *client, args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--rpc" || arg == "--token":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for %s", arg)
			}
			if arg == "--rpc" {
				c.endpoint = args[i+1]
			} else {
				c.token = args[i+1]
			}
			i++
		case strings.HasPrefix(arg, "--rpc="):
			c.endpoint = strings.TrimPrefix(arg, "--rpc=")
		case strings.HasPrefix(arg, "--token="):
			c.token = strings.TrimPrefix(arg, "--token=")
		default:
			out = append(out, arg)
		}
	}
	return out, nil
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: metanode-cli [--rpc URL] [--token JWT] <command> [args]")
	fmt.Fprintln(w, "  token <address> [ttl]")
	fmt.Fprintln(w, "  keygen <keystore-path>")
	fmt.Fprintln(w, "  address <keystore-path>")
	fmt.Fprintln(w, "  call <method> [json-params]")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintln(w, "  "+commands[name].usage)
	}
}

func fixed(method string, auth bool) builder {
	return func([]string) (rpcCall, error) {
		return rpcCall{method: method, auth: auth}, nil
	}
}

func parsePool(raw string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid pool id %q", raw)
	}
	return id, nil
}

func poolCall(method string, auth bool) builder {
	return func(args []string) (rpcCall, error) {
		if len(args) != 1 {
			return rpcCall{}, fmt.Errorf("expected a pool id")
		}
		id, err := parsePool(args[0])
		if err != nil {
			return rpcCall{}, err
		}
		return rpcCall{method: method, params: map[string]interface{}{"pool": id}, auth: auth}, nil
	}
}

func poolAmountCall(method string) builder {
	return func(args []string) (rpcCall, error) {
		if len(args) != 2 {
			return rpcCall{}, fmt.Errorf("expected a pool id and an amount")
		}
		id, err := parsePool(args[0])
		if err != nil {
			return rpcCall{}, err
		}
		return rpcCall{method: method, params: map[string]interface{}{"pool": id, "amount": args[1]}, auth: true}, nil
	}
}

// accountCall builds a pool/address query. withBlock accepts an optional
// trailing block height.
func accountCall(method string, withBlock bool) builder {
	return func(args []string) (rpcCall, error) {
		if len(args) < 2 || len(args) > 3 || (len(args) == 3 && !withBlock) {
			return rpcCall{}, fmt.Errorf("expected a pool id and an address")
		}
		id, err := parsePool(args[0])
		if err != nil {
			return rpcCall{}, err
		}
		params := map[string]interface{}{"pool": id, "address": args[1]}
		if len(args) == 3 {
			block, err := strconv.ParseUint(args[2], 10, 64)
			if err != nil {
				return rpcCall{}, fmt.Errorf("invalid block %q", args[2])
			}
			params["block"] = block
		}
		return rpcCall{method: method, params: params}, nil
	}
}

func bankQueryCall(method string) builder {
	return func(args []string) (rpcCall, error) {
		if len(args) != 2 {
			return rpcCall{}, fmt.Errorf("expected an address and a symbol")
		}
		return rpcCall{method: method, params: map[string]interface{}{"address": args[0], "symbol": args[1]}}, nil
	}
}

func approveCall(args []string) (rpcCall, error) {
	if len(args) != 2 {
		return rpcCall{}, fmt.Errorf("expected a symbol and an amount")
	}
	return rpcCall{method: "bank_approve", params: map[string]interface{}{"symbol": args[0], "amount": args[1]}, auth: true}, nil
}

func transferCall(method string) builder {
	return func(args []string) (rpcCall, error) {
		if len(args) != 3 {
			return rpcCall{}, fmt.Errorf("expected a recipient, a symbol and an amount")
		}
		return rpcCall{method: method, params: map[string]interface{}{"to": args[0], "symbol": args[1], "amount": args[2]}, auth: true}, nil
	}
}

func gateCall(method string) builder {
	return func(args []string) (rpcCall, error) {
		if len(args) != 1 {
			return rpcCall{}, fmt.Errorf("expected a gate")
		}
		return rpcCall{method: method, params: map[string]interface{}{"gate": args[0]}, auth: true}, nil
	}
}

func amountCall(method string) builder {
	return func(args []string) (rpcCall, error) {
		if len(args) != 1 {
			return rpcCall{}, fmt.Errorf("expected an amount")
		}
		return rpcCall{method: method, params: map[string]interface{}{"amount": args[0]}, auth: true}, nil
	}
}

func mintPauseCall(args []string) (rpcCall, error) {
	if len(args) != 2 {
		return rpcCall{}, fmt.Errorf("expected a symbol and on or off")
	}
	var paused bool
	switch strings.ToLower(args[1]) {
	case "on", "true":
		paused = true
	case "off", "false":
	default:
		return rpcCall{}, fmt.Errorf("invalid pause state %q", args[1])
	}
	return rpcCall{method: "admin_setMintPaused", params: map[string]interface{}{"symbol": args[0], "paused": paused}, auth: true}, nil
}

func historyCall(args []string) (rpcCall, error) {
	if len(args) > 1 {
		return rpcCall{}, fmt.Errorf("expected at most one event type")
	}
	call := rpcCall{method: "history_query"}
	if len(args) == 1 {
		call.params = map[string]interface{}{"type": args[0]}
	}
	return call, nil
}
