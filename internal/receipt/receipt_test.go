package receipt

import (
	"sync"
	"testing"

	"AnchorTrail/internal/canonical"
	"AnchorTrail/internal/commitment"
	"AnchorTrail/internal/config"
)

func newTestChain(t *testing.T) *Chain {
	t.Helper()
	engine, err := commitment.NewEngine(config.DefaultPolicy())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	chain, err := NewChain(config.DefaultPolicy(), engine)
	if err != nil {
		t.Fatalf("new chain: %v", err)
	}
	return chain
}

func TestChainLinksReceipts(t *testing.T) {
	chain := newTestChain(t)

	r1, err := chain.Add("", []string{"anchor-1"}, "in-1", "out-1")
	if err != nil {
		t.Fatalf("add r1: %v", err)
	}
	r2, err := chain.Add("", []string{"anchor-2"}, "in-2", "out-2")
	if err != nil {
		t.Fatalf("add r2: %v", err)
	}

	if r1.PriorDigest != GenesisDigest {
		t.Fatalf("first receipt must carry the genesis sentinel, got %s", r1.PriorDigest)
	}
	if r1.ConnectionsDigest != canonical.HashString(GenesisDigest+r1.OwnDigest) {
		t.Fatal("first connections digest mismatch")
	}
	if r2.PriorDigest != r1.ConnectionsDigest {
		t.Fatal("second receipt not linked to the first")
	}
	if r1.ID == "" || r1.ID == r2.ID {
		t.Fatal("receipt ids must be unique and non-empty")
	}
	if chain.Current() != r2.ConnectionsDigest {
		t.Fatal("chain tail not advanced")
	}
}

func TestVerifyIntegrityHonest(t *testing.T) {
	chain := newTestChain(t)
	for i := 0; i < 3; i++ {
		if _, err := chain.Add("", nil, i, i*2); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	ok, err := chain.VerifyIntegrity()
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatal("honest chain failed verification")
	}
}

func TestVerifyIntegrityDetectsTamperedPriorDigest(t *testing.T) {
	chain := newTestChain(t)
	for i := 0; i < 3; i++ {
		if _, err := chain.Add("", nil, i, i); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	chain.mu.Lock()
	chain.receipts[1].PriorDigest = canonical.HashString("forged")
	chain.mu.Unlock()

	ok, err := chain.VerifyIntegrity()
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Fatal("tampered prior digest went undetected")
	}
}

func TestVerifyIntegrityDetectsTamperedContent(t *testing.T) {
	chain := newTestChain(t)
	for i := 0; i < 3; i++ {
		if _, err := chain.Add("", nil, i, i); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	chain.mu.Lock()
	chain.receipts[1].Refs = []string{"injected-ref"}
	chain.mu.Unlock()

	ok, err := chain.VerifyIntegrity()
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Fatal("tampered receipt content went undetected")
	}
}

func TestExplanationDigests(t *testing.T) {
	chain := newTestChain(t)
	digest := canonical.HashString("explanation")
	r, err := chain.Add("", nil, "in", "out", WithExplanations(digest))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(r.ExplanationDigests) != 1 || r.ExplanationDigests[0] != digest {
		t.Fatalf("explanation digests not carried: %+v", r.ExplanationDigests)
	}

	if _, err := chain.Add("", nil, "in", "out", WithExplanations("NOT-HEX")); err == nil {
		t.Fatal("non-hex explanation digest accepted")
	}
}

func TestIndependentChainsProgressConcurrently(t *testing.T) {
	chains := []*Chain{newTestChain(t), newTestChain(t), newTestChain(t)}

	var wg sync.WaitGroup
	for _, chain := range chains {
		wg.Add(1)
		go func(c *Chain) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				if _, err := c.Add("", nil, i, i); err != nil {
					t.Errorf("add: %v", err)
					return
				}
			}
		}(chain)
	}
	wg.Wait()

	for i, chain := range chains {
		if chain.Len() != 10 {
			t.Fatalf("chain %d has %d receipts", i, chain.Len())
		}
		ok, err := chain.VerifyIntegrity()
		if err != nil || !ok {
			t.Fatalf("chain %d failed verification: %v", i, err)
		}
	}
}

func TestReceiptsReturnsCopies(t *testing.T) {
	chain := newTestChain(t)
	if _, err := chain.Add("", []string{"ref"}, "in", "out"); err != nil {
		t.Fatalf("add: %v", err)
	}
	receipts := chain.Receipts()
	receipts[0].Refs[0] = "mutated"
	receipts[0].OwnDigest = "mutated"

	ok, err := chain.VerifyIntegrity()
	if err != nil || !ok {
		t.Fatal("mutating a returned receipt affected the chain")
	}
}
