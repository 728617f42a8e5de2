package near

import (
	"context"
	"strings"
	"sync"

	logging "github.com/ipfs/go-log/v2"

	"nearfs.io/upload/config"
	"nearfs.io/upload/model"
	"nearfs.io/upload/storage"
)

var log = logging.Logger("nearfs/near")

const (
	// StoreMethod is the method NEARFS indexers watch for. Its arguments are
	// the raw block bytes.
	StoreMethod = "fs_store"
	// DefaultGas is attached to each fs_store action.
	DefaultGas uint64 = 30_000_000_000_000
	// MaxTransactionGas is the protocol gas limit of one transaction.
	MaxTransactionGas uint64 = 300_000_000_000_000
	// MaxTransactionSize is the protocol size limit of one signed transaction
	// (max_transaction_size, 1.5 MiB since protocol version 69; 4 MiB before).
	MaxTransactionSize = 1_572_864
)

// Ledger submits blocks as fs_store function calls signed by one account.
//
// Calls go to the signer's own account. No contract needs to be deployed
// there: NEARFS indexers read the call arguments from the chain, so an
// execution failure because the code or method is missing still stores the
// block.
//
// Submit holds a mutex for the whole nonce-sign-broadcast cycle, so a Ledger
// never has two transactions in flight for its key.
type Ledger struct {
	rpc      *RPC
	signer   config.Signer
	receiver string
	gas      uint64

	mu    sync.Mutex
	nonce uint64
}

var _ storage.Submitter = (*Ledger)(nil)

// LedgerOptions tunes a Ledger. Zero values select the defaults.
type LedgerOptions struct {
	// Receiver is the account the calls go to. Default: the signer.
	Receiver string
	// Gas per action. Default: DefaultGas.
	Gas uint64
}

func NewLedger(rpc *RPC, signer config.Signer, opts LedgerOptions) (*Ledger, error) {
	if rpc == nil || rpc.URL == "" {
		return nil, model.NewError(model.KindConfiguration, "near: RPC endpoint is required")
	}
	if signer.Account == "" || len(signer.Key.Private) == 0 {
		return nil, model.NewError(model.KindConfiguration, "near: signer account and key are required")
	}
	l := &Ledger{rpc: rpc, signer: signer, receiver: opts.Receiver, gas: opts.Gas}
	if l.receiver == "" {
		l.receiver = signer.Account
	}
	if l.gas == 0 {
		l.gas = DefaultGas
	}
	if l.gas > MaxTransactionGas {
		return nil, model.NewError(model.KindConfiguration, "near: gas per action %d exceeds the transaction limit %d", l.gas, MaxTransactionGas)
	}
	return l, nil
}

// MaxActions is how many fs_store calls fit in one transaction's gas.
func (l *Ledger) MaxActions() int { return int(MaxTransactionGas / l.gas) }

// Submit stores blocks in one transaction.
func (l *Ledger) Submit(ctx context.Context, blocks []model.Block) (storage.Receipt, error) {
	if len(blocks) == 0 {
		return storage.Receipt{}, nil
	}
	ids := model.CIDs(blocks)
	if len(blocks) > l.MaxActions() {
		return storage.Receipt{}, model.NewError(model.KindPayloadTooLarge,
			"%d blocks need more than %d gas", len(blocks), MaxTransactionGas).WithCIDs(ids...)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	pub := l.signer.Key.PublicKeyString()
	ak, err := l.rpc.ViewAccessKey(ctx, l.signer.Account, pub)
	if err != nil {
		return storage.Receipt{}, err
	}
	nonce := ak.Nonce
	if l.nonce > nonce {
		nonce = l.nonce
	}
	nonce++

	pk, err := ED25519Key(l.signer.Key.Public)
	if err != nil {
		return storage.Receipt{}, err
	}
	tx := &Transaction{
		SignerID:   l.signer.Account,
		PublicKey:  pk,
		Nonce:      nonce,
		ReceiverID: l.receiver,
		BlockHash:  ak.BlockHash,
		Actions:    make([]Action, 0, len(blocks)),
	}
	for _, b := range blocks {
		tx.Actions = append(tx.Actions, NewFunctionCall(FunctionCall{MethodName: StoreMethod, Args: b.Data, Gas: l.gas}))
	}
	signed, err := tx.Sign(l.signer.Key)
	if err != nil {
		return storage.Receipt{}, err
	}
	if len(signed.Encoded) > MaxTransactionSize {
		return storage.Receipt{}, model.NewError(model.KindPayloadTooLarge,
			"transaction of %d bytes exceeds %d", len(signed.Encoded), MaxTransactionSize).WithCIDs(ids...)
	}

	log.Debugw("broadcasting", "tx", signed.Hash, "nonce", nonce, "blocks", len(blocks), "bytes", len(signed.Encoded))
	out, err := l.rpc.BroadcastTxCommit(ctx, signed.Encoded)
	if err != nil {
		if isNonceError(err) {
			// Let the next attempt start from the chain's view again.
			l.nonce = 0
		}
		return storage.Receipt{}, err
	}
	l.nonce = nonce

	if out.Failure != "" && !expectedFailure(out.Failure) {
		return storage.Receipt{}, model.NewError(model.KindUploadFailed, "transaction %s failed: %s", signed.Hash, out.Failure).WithCIDs(ids...)
	}
	hash := out.Hash
	if hash == "" {
		hash = signed.Hash
	}
	return storage.Receipt{ID: hash, CIDs: ids}, nil
}

// expectedFailure reports whether an execution failure only means there is
// no contract to run the call, which NEARFS does not need.
func expectedFailure(failure string) bool {
	return strings.Contains(failure, "CodeDoesNotExist") || strings.Contains(failure, "MethodNotFound")
}
