package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ipfs/go-cid"
	"go.uber.org/zap/zaptest"

	"nearfs.io/upload/cidutil"
	"nearfs.io/upload/importer"
	"nearfs.io/upload/model"
	"nearfs.io/upload/storage"
	"nearfs.io/upload/unixfs"
)

type fakeBackend struct {
	mu          sync.Mutex
	stored      map[string]bool
	order       []cid.Cid
	submits     [][]cid.Cid
	attempts    int
	hasCalls    int
	inflight    int
	maxInflight int

	hasDelay  time.Duration
	hasErr    func(id cid.Cid) error
	submitErr func(attempt int, batch []model.Block) error
}

func newFake() *fakeBackend { return &fakeBackend{stored: make(map[string]bool)} }

func (f *fakeBackend) Has(ctx context.Context, id cid.Cid) (bool, error) {
	f.mu.Lock()
	f.hasCalls++
	f.inflight++
	if f.inflight > f.maxInflight {
		f.maxInflight = f.inflight
	}
	hasErr := f.hasErr
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inflight--
		f.mu.Unlock()
	}()

	if f.hasDelay > 0 {
		time.Sleep(f.hasDelay)
	}
	if hasErr != nil {
		if err := hasErr(id); err != nil {
			return false, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stored[id.KeyString()], nil
}

func (f *fakeBackend) Submit(ctx context.Context, batch []model.Block) (storage.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.submitErr != nil {
		if err := f.submitErr(f.attempts, batch); err != nil {
			return storage.Receipt{}, err
		}
	}
	ids := model.CIDs(batch)
	f.submits = append(f.submits, ids)
	for _, b := range batch {
		f.stored[b.CID.KeyString()] = true
		f.order = append(f.order, b.CID)
	}
	return storage.Receipt{ID: fmt.Sprintf("rc%d", len(f.submits)), CIDs: ids}, nil
}

func testFiles() []model.File {
	return []model.File{
		{Name: "a.txt", Content: []byte("foo")},
		{Name: "docs/b.txt", Content: bytes.Repeat([]byte("b"), 100)},
		{Name: "docs/c.txt", Content: []byte("bar")},
		{Name: "docs/d.txt", Content: bytes.Repeat([]byte("d"), 70)},
	}
}

func testOptions(t *testing.T) Options {
	return Options{
		Import:     importer.Options{MaxBlockSize: 32},
		RetryDelay: time.Millisecond,
		Logger:     zaptest.NewLogger(t).Sugar(),
	}
}

func testImport(t *testing.T, opts Options) *importer.Result {
	t.Helper()
	imp, err := importer.Import(testFiles(), opts.Import)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	return imp
}

func TestRunUploadsChildrenFirst(t *testing.T) {
	opts := testOptions(t)
	imp := testImport(t, opts)
	f := newFake()

	res, err := Run(context.Background(), f, testFiles(), opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Root.Equals(imp.Root) {
		t.Fatalf("root %s, want %s", res.Root, imp.Root)
	}
	if res.Total != len(imp.Blocks) || res.Submitted != res.Total || res.Existing != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(res.Receipts) != len(f.submits) {
		t.Fatalf("%d receipts for %d submissions", len(res.Receipts), len(f.submits))
	}
	if last := f.order[len(f.order)-1]; !last.Equals(imp.Root) {
		t.Fatalf("root must be submitted last, got %s", last)
	}

	data := make(map[string][]byte)
	for _, b := range imp.Blocks {
		data[b.CID.KeyString()] = b.Data
	}
	pos := make(map[string]int)
	for i, id := range f.order {
		pos[id.KeyString()] = i
	}
	for i, id := range f.order {
		if id.Prefix().Codec != cidutil.DagPB {
			continue
		}
		n, err := unixfs.Decode(data[id.KeyString()])
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		for _, l := range n.Links {
			if pos[l.Hash.KeyString()] >= i {
				t.Fatalf("%s submitted before its child %s", id, l.Hash)
			}
		}
	}
}

func TestRunIdempotent(t *testing.T) {
	opts := testOptions(t)
	f := newFake()
	first, err := Run(context.Background(), f, testFiles(), opts)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	submits := len(f.submits)

	second, err := Run(context.Background(), f, testFiles(), opts)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if !second.Root.Equals(first.Root) {
		t.Fatalf("root changed between runs")
	}
	if second.Submitted != 0 || second.Existing != second.Total || len(f.submits) != submits {
		t.Fatalf("second run submitted blocks: %+v", second)
	}
}

func TestRunResumesAfterFailure(t *testing.T) {
	opts := testOptions(t)
	opts.MaxBatchBlocks = 1
	opts.RetryCount = 1
	imp := testImport(t, opts)
	target := imp.Blocks[2].CID

	f := newFake()
	var failures int
	f.submitErr = func(_ int, batch []model.Block) error {
		if batch[0].CID.Equals(target) {
			failures++
			return model.NewError(model.KindNetwork, "connection reset")
		}
		return nil
	}

	res, err := Run(context.Background(), f, testFiles(), opts)
	if !model.IsKind(err, model.KindUploadFailed) {
		t.Fatalf("expected KindUploadFailed, got %v", err)
	}
	pending := model.PendingCIDs(err)
	if len(pending) != 1 || !pending[0].Equals(target) {
		t.Fatalf("pending = %v, want [%s]", pending, target)
	}
	if failures != 2 {
		t.Fatalf("expected one attempt plus one retry, got %d", failures)
	}
	if res == nil || res.Submitted != len(imp.Blocks)-1 {
		t.Fatalf("later batches should still be submitted: %+v", res)
	}

	f.mu.Lock()
	f.submitErr = nil
	f.hasCalls = 0
	before := len(f.submits)
	f.mu.Unlock()

	res, err = Run(context.Background(), f, testFiles(), opts)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if !res.Root.Equals(imp.Root) {
		t.Fatalf("root changed on resume")
	}
	if res.Submitted != 1 || len(f.submits) != before+1 || !f.submits[before][0].Equals(target) {
		t.Fatalf("resume should submit only the missing block: %+v", res)
	}
	if f.hasCalls != len(imp.Blocks) {
		t.Fatalf("expected one existence check per block, got %d", f.hasCalls)
	}
}

func TestRunTerminalErrorStops(t *testing.T) {
	opts := testOptions(t)
	opts.MaxBatchBlocks = 1
	imp := testImport(t, opts)
	f := newFake()
	f.submitErr = func(int, []model.Block) error {
		return model.NewError(model.KindConfiguration, "access key not found")
	}

	_, err := Run(context.Background(), f, testFiles(), opts)
	var e *model.Error
	if !errors.As(err, &e) || e.Kind != model.KindUploadFailed {
		t.Fatalf("expected KindUploadFailed, got %v", err)
	}
	if !model.IsKind(e.Cause, model.KindConfiguration) {
		t.Fatalf("cause should be the configuration error, got %v", e.Cause)
	}
	if f.attempts != 1 {
		t.Fatalf("terminal error should stop after one attempt, got %d", f.attempts)
	}
	if len(e.CIDs) != len(imp.Blocks) {
		t.Fatalf("all %d blocks should be pending, got %d", len(imp.Blocks), len(e.CIDs))
	}
}

func TestRunSplitsTooLargeBatches(t *testing.T) {
	opts := testOptions(t)
	f := newFake()
	f.submitErr = func(_ int, batch []model.Block) error {
		if len(batch) > 2 {
			return model.NewError(model.KindPayloadTooLarge, "transaction too large")
		}
		return nil
	}
	res, err := Run(context.Background(), f, testFiles(), opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Submitted != res.Total {
		t.Fatalf("submitted %d of %d", res.Submitted, res.Total)
	}
	for _, s := range f.submits {
		if len(s) > 2 {
			t.Fatalf("oversized batch of %d accepted", len(s))
		}
	}
}

func TestRunBlockLargerThanBatch(t *testing.T) {
	opts := testOptions(t)
	opts.MaxBatchBytes = 16
	f := newFake()
	_, err := Run(context.Background(), f, testFiles(), opts)
	if !model.IsKind(err, model.KindPayloadTooLarge) {
		t.Fatalf("expected KindPayloadTooLarge, got %v", err)
	}
	if f.attempts != 0 {
		t.Fatalf("nothing should be submitted")
	}
}

func TestRunCancellation(t *testing.T) {
	opts := testOptions(t)
	opts.MaxBatchBlocks = 1
	imp := testImport(t, opts)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := newFake()
	f.submitErr = func(attempt int, _ []model.Block) error {
		if attempt == 1 {
			cancel()
		}
		return nil
	}
	res, err := Run(ctx, f, testFiles(), opts)
	if !model.IsKind(err, model.KindUploadFailed) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancelled upload failure, got %v", err)
	}
	if res.Submitted != 1 || len(model.PendingCIDs(err)) != len(imp.Blocks)-1 {
		t.Fatalf("submitted %d, pending %d", res.Submitted, len(model.PendingCIDs(err)))
	}
}

func TestRunCancelledBeforeChecks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := newFake()
	_, err := Run(ctx, f, testFiles(), testOptions(t))
	if !model.IsKind(err, model.KindUploadFailed) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancelled upload failure, got %v", err)
	}
	if f.attempts != 0 {
		t.Fatalf("nothing should be submitted after cancellation")
	}
}

func TestRunDuplicateNameBeforeNetwork(t *testing.T) {
	f := newFake()
	files := append(testFiles(), model.File{Name: "a.txt", Content: []byte("again")})
	_, err := Run(context.Background(), f, files, testOptions(t))
	if !model.IsKind(err, model.KindDuplicateName) {
		t.Fatalf("expected KindDuplicateName, got %v", err)
	}
	if f.hasCalls != 0 || f.attempts != 0 {
		t.Fatalf("backend was contacted")
	}
}

func TestExistenceChecksAreBounded(t *testing.T) {
	opts := testOptions(t)
	opts.Concurrency = 2
	f := newFake()
	f.hasDelay = 5 * time.Millisecond
	if _, err := Run(context.Background(), f, testFiles(), opts); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f.maxInflight < 1 || f.maxInflight > 2 {
		t.Fatalf("max in-flight checks %d, want 1..2", f.maxInflight)
	}
}

func TestExistenceFailureTreatedAsMissing(t *testing.T) {
	opts := testOptions(t)
	opts.RetryCount = 1
	f := newFake()
	first, err := Run(context.Background(), f, testFiles(), opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	f.mu.Lock()
	f.hasCalls = 0
	f.hasErr = func(cid.Cid) error { return model.NewError(model.KindNetwork, "gateway unavailable") }
	f.mu.Unlock()

	res, err := Run(context.Background(), f, testFiles(), opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Submitted != first.Total {
		t.Fatalf("unknown blocks should be resubmitted, got %d of %d", res.Submitted, first.Total)
	}
	if f.hasCalls != 2*first.Total {
		t.Fatalf("expected each check to be retried once, got %d calls", f.hasCalls)
	}
}

func TestExistenceTerminalErrorAborts(t *testing.T) {
	f := newFake()
	f.hasErr = func(cid.Cid) error { return model.NewError(model.KindConfiguration, "unsupported hash") }
	_, err := Run(context.Background(), f, testFiles(), testOptions(t))
	if !model.IsKind(err, model.KindConfiguration) {
		t.Fatalf("expected KindConfiguration, got %v", err)
	}
	if f.attempts != 0 {
		t.Fatalf("nothing should be submitted")
	}
}

func TestBlocksConsistencyCheck(t *testing.T) {
	opts := testOptions(t)
	imp := testImport(t, opts)

	corrupt := append([]model.Block(nil), imp.Blocks...)
	corrupt[0] = model.Block{CID: corrupt[0].CID, Data: []byte("tampered")}
	f := newFake()
	if _, err := Blocks(context.Background(), f, imp.Root, corrupt, opts); !model.IsKind(err, model.KindCIDMismatch) {
		t.Fatalf("corrupt block: expected KindCIDMismatch, got %v", err)
	}

	other, _ := cidutil.MustBuilder("").Raw([]byte("elsewhere"))
	if _, err := Blocks(context.Background(), f, other, imp.Blocks, opts); !model.IsKind(err, model.KindCIDMismatch) {
		t.Fatalf("missing root: expected KindCIDMismatch, got %v", err)
	}

	notPB := []byte("not a dag-pb node")
	id, _ := cidutil.MustBuilder("").DagPB(notPB)
	if _, err := Blocks(context.Background(), f, id, []model.Block{{CID: id, Data: notPB}}, opts); !model.IsKind(err, model.KindCIDMismatch) {
		t.Fatalf("bad dag-pb: expected KindCIDMismatch, got %v", err)
	}

	foreign, _ := cidutil.MustBuilder("sha2-512").Raw([]byte("x"))
	if _, err := Blocks(context.Background(), f, foreign, []model.Block{{CID: foreign, Data: []byte("x")}}, opts); !model.IsKind(err, model.KindCIDMismatch) {
		t.Fatalf("foreign hash: expected KindCIDMismatch, got %v", err)
	}

	if f.hasCalls != 0 {
		t.Fatalf("inconsistent blocks must not reach the backend")
	}
}

func TestBlocksDeduplicates(t *testing.T) {
	opts := testOptions(t)
	imp := testImport(t, opts)
	doubled := append(append([]model.Block(nil), imp.Blocks...), imp.Blocks...)
	f := newFake()
	res, err := Blocks(context.Background(), f, imp.Root, doubled, opts)
	if err != nil {
		t.Fatalf("Blocks: %v", err)
	}
	if res.Total != len(imp.Blocks) || len(f.order) != len(imp.Blocks) {
		t.Fatalf("duplicates were uploaded: total %d, stored %d", res.Total, len(f.order))
	}
}

func TestProgress(t *testing.T) {
	opts := testOptions(t)
	opts.MaxBatchBlocks = 2
	var seen [][2]int
	opts.OnProgress = func(done, total int) { seen = append(seen, [2]int{done, total}) }
	res, err := Run(context.Background(), newFake(), testFiles(), opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(seen) != len(res.Receipts) {
		t.Fatalf("%d progress calls for %d batches", len(seen), len(res.Receipts))
	}
	for i := 1; i < len(seen); i++ {
		if seen[i][0] <= seen[i-1][0] {
			t.Fatalf("progress went backwards: %v", seen)
		}
	}
	if last := seen[len(seen)-1]; last[0] != res.Total || last[1] != res.Total {
		t.Fatalf("final progress %v, want %d/%d", last, res.Total, res.Total)
	}
}

func TestBatchesGreedy(t *testing.T) {
	sizes := []int{4, 4, 4, 10, 1}
	var blocks []model.Block
	for _, n := range sizes {
		blocks = append(blocks, model.Block{Data: make([]byte, n)})
	}
	got, err := batches(blocks, 2, 10)
	if err != nil {
		t.Fatalf("batches: %v", err)
	}
	want := [][]int{{4, 4}, {4}, {10}, {1}}
	if len(got) != len(want) {
		t.Fatalf("got %d batches, want %d", len(got), len(want))
	}
	for i := range want {
		if len(got[i]) != len(want[i]) {
			t.Fatalf("batch %d has %d blocks, want %d", i, len(got[i]), len(want[i]))
		}
		for j := range want[i] {
			if got[i][j].Size() != want[i][j] {
				t.Fatalf("batch %d block %d size %d, want %d", i, j, got[i][j].Size(), want[i][j])
			}
		}
	}

	if _, err := batches([]model.Block{{Data: make([]byte, 11)}}, 2, 10); !model.IsKind(err, model.KindPayloadTooLarge) {
		t.Fatalf("expected KindPayloadTooLarge, got %v", err)
	}
}

func TestRetryCountBoundsAttempts(t *testing.T) {
	cases := []struct {
		retries int
		want    int
	}{
		{retries: -1, want: 1},
		{retries: 2, want: 3},
	}
	for _, tc := range cases {
		opts := testOptions(t)
		opts.RetryCount = tc.retries
		opts.MaxBatchBlocks = 100
		f := newFake()
		f.submitErr = func(int, []model.Block) error {
			return model.NewError(model.KindNetwork, "rpc unavailable")
		}

		_, err := Run(context.Background(), f, testFiles(), opts)
		if !model.IsKind(err, model.KindUploadFailed) {
			t.Fatalf("retries=%d: expected KindUploadFailed, got %v", tc.retries, err)
		}
		if f.attempts != tc.want {
			t.Fatalf("Run with retries=%d: %d submit attempts, want %d", tc.retries, f.attempts, tc.want)
		}

		imp := testImport(t, opts)
		f = newFake()
		f.submitErr = func(int, []model.Block) error {
			return model.NewError(model.KindNetwork, "rpc unavailable")
		}
		if _, err := Blocks(context.Background(), f, imp.Root, imp.Blocks, opts); err == nil {
			t.Fatalf("retries=%d: expected Blocks to fail", tc.retries)
		}
		if f.attempts != tc.want {
			t.Fatalf("Blocks with retries=%d: %d submit attempts, want %d", tc.retries, f.attempts, tc.want)
		}
	}
}

func TestMirrorFailureDoesNotResubmitToPrimary(t *testing.T) {
	opts := testOptions(t)
	opts.MaxBatchBlocks = 100
	primary := newFake()
	var mirrorFailures int
	rep := storage.Replicating{
		Submitters: []storage.NamedSubmitter{
			{Name: "near", Submitter: primary},
			{Name: "mirror", Submitter: submitFunc(func(context.Context, []model.Block) (storage.Receipt, error) {
				return storage.Receipt{}, model.NewError(model.KindNetwork, "disk full")
			})},
		},
		OnMirrorError: func(string, []model.Block, error) { mirrorFailures++ },
	}

	res, err := Run(context.Background(), storage.Join(primary, rep), testFiles(), opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if primary.attempts != 1 || mirrorFailures != 1 {
		t.Fatalf("primary attempts %d, mirror failures %d; want 1 and 1", primary.attempts, mirrorFailures)
	}
	if res.Submitted != res.Total {
		t.Fatalf("submitted %d of %d", res.Submitted, res.Total)
	}
}

type submitFunc func(context.Context, []model.Block) (storage.Receipt, error)

func (f submitFunc) Submit(ctx context.Context, blocks []model.Block) (storage.Receipt, error) {
	return f(ctx, blocks)
}
