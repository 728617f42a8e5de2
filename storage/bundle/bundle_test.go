package bundle_test

import (
	"bytes"
	"testing"

	"nearfs.io/upload/importer"
	"nearfs.io/upload/model"
	"nearfs.io/upload/storage/bundle"
)

func importFixture(t *testing.T) *importer.Result {
	t.Helper()
	res, err := importer.Import([]model.File{
		{Name: "a.txt", Content: []byte("foo")},
		{Name: "dir/b.txt", Content: bytes.Repeat([]byte("bar"), 100)},
	}, importer.Options{MaxBlockSize: 64})
	if err != nil {
		t.Fatal(err)
	}
	return res
}

func TestBundle_WriteIsDeterministic(t *testing.T) {
	res := importFixture(t)

	var outA, outB bytes.Buffer
	if err := bundle.WriteCAR(&outA, res.Root, res.Blocks); err != nil {
		t.Fatal(err)
	}
	if err := bundle.WriteCAR(&outB, importFixture(t).Root, importFixture(t).Blocks); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(outA.Bytes(), outB.Bytes()) {
		t.Fatalf("expected deterministic CAR bytes")
	}
}

func TestBundle_ReadRoundTrip(t *testing.T) {
	res := importFixture(t)

	var buf bytes.Buffer
	if err := bundle.WriteCAR(&buf, res.Root, res.Blocks); err != nil {
		t.Fatal(err)
	}
	a, err := bundle.ReadCAR(&buf)
	if err != nil {
		t.Fatalf("ReadCAR: %v", err)
	}
	root, err := a.Root()
	if err != nil {
		t.Fatalf("Root: %v", err)
	}
	if !root.Equals(res.Root) {
		t.Fatalf("root mismatch: %s vs %s", root, res.Root)
	}
	if len(a.Blocks) != len(res.Blocks) {
		t.Fatalf("expected %d blocks, got %d", len(res.Blocks), len(a.Blocks))
	}
	for i := range a.Blocks {
		if !a.Blocks[i].CID.Equals(res.Blocks[i].CID) || !bytes.Equal(a.Blocks[i].Data, res.Blocks[i].Data) {
			t.Fatalf("block %d differs", i)
		}
	}
}

func TestBundle_ReadRejectsCorruptBlock(t *testing.T) {
	res := importFixture(t)
	blocks := append([]model.Block(nil), res.Blocks...)
	blocks[0] = model.Block{CID: blocks[0].CID, Data: []byte("tampered")}

	var buf bytes.Buffer
	if err := bundle.WriteCAR(&buf, res.Root, blocks); err != nil {
		t.Fatal(err)
	}
	_, err := bundle.ReadCAR(&buf)
	if !model.IsKind(err, model.KindCIDMismatch) {
		t.Fatalf("expected KindCIDMismatch, got %v", err)
	}
	pending := model.PendingCIDs(err)
	if len(pending) != 1 || !pending[0].Equals(res.Blocks[0].CID) {
		t.Fatalf("expected error to name %s, got %v", res.Blocks[0].CID, pending)
	}
}

func TestBundle_ReadRejectsGarbage(t *testing.T) {
	if _, err := bundle.ReadCAR(bytes.NewReader([]byte("not a car"))); err == nil {
		t.Fatalf("expected error")
	}
}
