package near

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mr-tron/base58"
	"github.com/tidwall/gjson"

	"nearfs.io/upload/model"
)

// RPC is a minimal NEAR JSON-RPC 2.0 client.
type RPC struct {
	URL    string
	Client *http.Client
}

// NewRPC returns a client for url. A nil client means http.DefaultClient.
func NewRPC(url string, client *http.Client) *RPC {
	if client == nil {
		client = http.DefaultClient
	}
	return &RPC{URL: url, Client: client}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

// call posts one request and returns its result member.
func (r *RPC) call(ctx context.Context, method string, params any) (gjson.Result, error) {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: "nearfs", Method: method, Params: params})
	if err != nil {
		return gjson.Result{}, model.WrapError(model.KindConfiguration, err, "rpc %s: encode request", method)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, bytes.NewReader(body))
	if err != nil {
		return gjson.Result{}, model.WrapError(model.KindConfiguration, err, "rpc %s", method)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.Client.Do(req)
	if err != nil {
		return gjson.Result{}, model.WrapError(model.KindNetwork, err, "rpc %s", method)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, model.WrapError(model.KindNetwork, err, "rpc %s: read response", method)
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusRequestTimeout {
		return gjson.Result{}, model.NewError(model.KindNetwork, "rpc %s: HTTP %d", method, resp.StatusCode)
	}
	if !gjson.ValidBytes(data) {
		if resp.StatusCode != http.StatusOK {
			return gjson.Result{}, model.NewError(model.KindNetwork, "rpc %s: HTTP %d", method, resp.StatusCode)
		}
		return gjson.Result{}, model.NewError(model.KindNetwork, "rpc %s: malformed response", method)
	}
	doc := gjson.ParseBytes(data)
	if e := doc.Get("error"); e.Exists() {
		return gjson.Result{}, classifyRPCError(method, e)
	}
	if resp.StatusCode != http.StatusOK {
		return gjson.Result{}, model.NewError(model.KindNetwork, "rpc %s: HTTP %d", method, resp.StatusCode)
	}
	return doc.Get("result"), nil
}

// classifyRPCError maps a JSON-RPC error object to an error kind. NEAR nests
// the interesting name at different depths depending on the node version,
// so the whole object is searched.
func classifyRPCError(method string, e gjson.Result) error {
	raw := e.Raw
	msg := firstString(e.Get("cause.name"), e.Get("name"), e.Get("message"))
	if d := e.Get("data"); d.Exists() {
		msg = fmt.Sprintf("%s: %s", msg, d.String())
	}
	switch {
	case strings.Contains(raw, "TransactionSizeExceeded"):
		return model.NewError(model.KindPayloadTooLarge, "rpc %s: %s", method, msg)
	case strings.Contains(raw, "InvalidNonce"):
		return &nonceError{model.NewError(model.KindNetwork, "rpc %s: %s", method, msg)}
	case strings.Contains(raw, "UNKNOWN_ACCOUNT"), strings.Contains(raw, "UNKNOWN_ACCESS_KEY"),
		strings.Contains(raw, "AccessKeyNotFound"), strings.Contains(raw, "NotEnoughBalance"),
		strings.Contains(raw, "LackBalanceForState"), strings.Contains(raw, "InvalidSignature"):
		return model.NewError(model.KindConfiguration, "rpc %s: %s", method, msg)
	default:
		// TIMEOUT_ERROR, Expired, internal errors: worth another try.
		return model.NewError(model.KindNetwork, "rpc %s: %s", method, msg)
	}
}

// nonceError marks a rejection caused by a stale nonce.
type nonceError struct{ err *model.Error }

func (e *nonceError) Error() string { return e.err.Error() }
func (e *nonceError) Unwrap() error { return e.err }

func isNonceError(err error) bool {
	var ne *nonceError
	return errors.As(err, &ne)
}

func firstString(rs ...gjson.Result) string {
	for _, r := range rs {
		if s := r.String(); s != "" {
			return s
		}
	}
	return "unknown error"
}

// AccessKey is the state of one access key as of BlockHash.
type AccessKey struct {
	Nonce     uint64
	BlockHash [32]byte
}

// ViewAccessKey returns the access key's nonce and a recent final block hash.
func (r *RPC) ViewAccessKey(ctx context.Context, account, publicKey string) (AccessKey, error) {
	res, err := r.call(ctx, "query", map[string]string{
		"request_type": "view_access_key",
		"finality":     "final",
		"account_id":   account,
		"public_key":   publicKey,
	})
	if err != nil {
		return AccessKey{}, err
	}
	// Older nodes report a missing key inside the result.
	if e := res.Get("error"); e.Exists() {
		return AccessKey{}, model.NewError(model.KindConfiguration, "access key %s for %s: %s", publicKey, account, e.String())
	}
	var ak AccessKey
	ak.Nonce = res.Get("nonce").Uint()
	hash, err := base58.Decode(res.Get("block_hash").String())
	if err != nil || len(hash) != len(ak.BlockHash) {
		return AccessKey{}, model.NewError(model.KindNetwork, "view_access_key: bad block_hash %q", res.Get("block_hash").String())
	}
	copy(ak.BlockHash[:], hash)
	return ak, nil
}

// Outcome is the result of a committed transaction.
type Outcome struct {
	Hash string
	// Failure is the raw JSON of a failed execution status, empty on success.
	Failure string
}

// BroadcastTxCommit sends a signed transaction and waits for it to execute.
func (r *RPC) BroadcastTxCommit(ctx context.Context, signed []byte) (Outcome, error) {
	res, err := r.call(ctx, "broadcast_tx_commit", []string{base64.StdEncoding.EncodeToString(signed)})
	if err != nil {
		return Outcome{}, err
	}
	out := Outcome{Hash: res.Get("transaction.hash").String()}
	if f := res.Get("status.Failure"); f.Exists() {
		out.Failure = f.Raw
	}
	return out, nil
}
