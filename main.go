// main.go - End-to-end scenario: mint, claim, atomic swap, faucet drain.
//
// Runs the full protocol against one in-process ledger:
//   - two faucets mint tokens to Alice and Bob via pay-to-id notes
//   - Alice and Bob prove mirrored swap transactions without submitting them
//     and hand the proven transactions to a matcher
//   - the matcher puts both maker transactions on chain, settles both sides
//     in one proven transaction, and nets zero
//   - a drain note is settled against an unbound faucet (and succeeds) and
//     rejected by a policy-bound one
//
// Usage:
//   go run .
//
// Architecture:
//   - one ledger holds all chain state; every client talks to it through
//     the in-process node
//   - each party gets its own store and keystore under a temp directory
//   - a background ticker produces blocks, so note confirmation really polls
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"noteswap/internal/client"
	"noteswap/internal/clob"
	"noteswap/internal/felt"
	"noteswap/internal/keystore"
	"noteswap/internal/ledger"
	"noteswap/internal/note"
	"noteswap/internal/prover"
	"noteswap/internal/transactions/drain"
	"noteswap/internal/transactions/p2id"
	"noteswap/internal/transactions/swap"
	"noteswap/internal/txrequest"
)

func fatal(step string, err error) {
	if err != nil {
		log.Fatalf("ERROR: %s: %v", step, err)
	}
}

func seed(b byte) [32]byte {
	var s [32]byte
	for i := range s {
		s[i] = b
	}
	return s
}

func serial(a, b uint64) felt.Word { return felt.WordFromUint64(a, b, 0, 0) }

func main() {
	log.Println("=== Conditional note transfer: mint / swap / drain scenario ===")

	workDir, err := os.MkdirTemp("", "noteswap-demo")
	fatal("workspace", err)
	defer os.RemoveAll(workDir)

	// =========================================================================
	// 1. SETUP: settlement circuit, proving keys, ledger, block production
	// =========================================================================

	log.Println("Compiling settlement circuit...")
	ccs, err := prover.Compile()
	fatal("circuit compilation", err)
	pk, vk, err := prover.SetupOrLoadKeys(ccs,
		filepath.Join(workDir, "settlement_pk.bin"),
		filepath.Join(workDir, "settlement_vk.bin"))
	fatal("key setup", err)

	chain := ledger.New(ledger.WithVerifyingKey(vk))
	node := client.NewInProcessNode(chain)

	newParty := func(name string) *client.Client {
		store, err := client.OpenStore(filepath.Join(workDir, name+"_store"))
		fatal(name+" store", err)
		keys, err := keystore.NewFilesystemKeyStore(filepath.Join(workDir, name+"_keys"))
		fatal(name+" keystore", err)
		return client.NewClient(node, store, keys, client.WithProver(ccs, pk))
	}

	operator := newParty("operator")
	aliceClient := newParty("alice")
	bobClient := newParty("bob")
	matcherClient := newParty("matcher")

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				chain.AdvanceBlock()
			}
		}
	}()

	// =========================================================================
	// 2. ACCOUNTS: two bound faucets, one drainable faucet, three wallets
	// =========================================================================

	faucetA, err := operator.NewFaucet(seed(1), "AAA", 6, 1_000_000)
	fatal("faucet AAA", err)
	faucetB, err := operator.NewFaucet(seed(2), "BBB", 6, 1_000_000)
	fatal("faucet BBB", err)
	loose, err := operator.NewFaucet(seed(3), "LSE", 6, 1_000_000, ledger.WithUnboundDistribute())
	fatal("faucet LSE", err)
	alice, err := aliceClient.NewWallet(seed(4), ledger.StoragePublic)
	fatal("alice wallet", err)
	bob, err := bobClient.NewWallet(seed(5), ledger.StoragePublic)
	fatal("bob wallet", err)
	matcherAcct, err := matcherClient.NewWallet(seed(6), ledger.StoragePublic)
	fatal("matcher wallet", err)

	symbols := map[note.AccountID]string{
		faucetA.ID(): "AAA",
		faucetB.ID(): "BBB",
		loose.ID():   "LSE",
	}

	ctx := context.Background()
	policy := client.RetryPolicy{Timeout: 10 * time.Second, Interval: 50 * time.Millisecond}

	// mint issues amount from faucet to a wallet and has the wallet claim it:
	// poll until the note's block is finalized (the wait imports it into the
	// wallet's store), then consume.
	mint := func(faucet *ledger.Account, to note.AccountID, toClient *client.Client, amount uint64, sn felt.Word) {
		asset, err := note.NewFungibleAsset(faucet.ID(), amount)
		fatal("asset", err)
		req, err := p2id.MintRequest(asset, to, note.NoteTypePublic, sn)
		fatal("mint request", err)
		tx, err := operator.NewTransaction(faucet.ID(), req)
		fatal("mint tx", err)
		outs, err := operator.SubmitTransaction(tx)
		fatal("mint submit", err)

		minted := outs[0].Full
		_, err = toClient.AwaitNote(ctx, minted.ID(), policy)
		fatal("note confirmation", err)
		consumeReq, err := p2id.ConsumeRequest(minted)
		fatal("consume request", err)
		consumeTx, err := toClient.NewTransaction(to, consumeReq)
		fatal("consume tx", err)
		_, err = toClient.SubmitTransaction(consumeTx)
		fatal("consume submit", err)
		log.Printf("Minted and claimed %d %s for %s", amount, symbols[faucet.ID()], to)
	}

	// =========================================================================
	// 3. FUNDING: Alice holds AAA, Bob holds BBB and LSE
	// =========================================================================

	mint(faucetA, alice.ID(), aliceClient, 100, serial(11, 1))
	mint(faucetB, bob.ID(), bobClient, 40, serial(12, 1))
	mint(loose, bob.ID(), bobClient, 100, serial(13, 1))

	// =========================================================================
	// 4. SWAP: Alice offers 10 AAA for 20 BBB, Bob the mirror image
	// =========================================================================

	assetA10, err := note.NewFungibleAsset(faucetA.ID(), 10)
	fatal("asset", err)
	assetB20, err := note.NewFungibleAsset(faucetB.ID(), 20)
	fatal("asset", err)

	// Each party executes and proves its swap transaction but never submits
	// it; the proven transaction is the order handed to the matcher.
	makeSwap := func(c *client.Client, who note.AccountID, offered, requested note.FungibleAsset, sn, paybackSn felt.Word) *ledger.ProvenTransaction {
		data, err := swap.NewSwapTransactionData(who, offered, requested)
		fatal("swap data", err)
		req, err := swap.InFlightSwapRequest(data, sn, paybackSn)
		fatal("swap request", err)
		tx, err := c.NewTransaction(who, req)
		fatal("swap tx", err)
		ptx, err := c.ProveTransaction(tx)
		fatal("swap proof", err)
		swapNote := req.OwnOutputNotes()[0]
		log.Printf("Swap note %s proven off-chain: %s for %s (%s)", swapNote.ID(), offered, requested, data.Tag())
		return ptx
	}

	aliceOrder := makeSwap(aliceClient, alice.ID(), assetA10, assetB20, serial(21, 1), serial(21, 2))
	bobOrder := makeSwap(bobClient, bob.ID(), assetB20, assetA10, serial(22, 1), serial(22, 2))

	matcher := clob.NewMatcher(matcherClient, matcherAcct.ID())
	_, err = matcher.SubmitOrder(aliceOrder)
	fatal("order intake", err)
	_, err = matcher.SubmitOrder(bobOrder)
	fatal("order intake", err)
	settled, err := matcher.Step(ctx)
	fatal("settlement", err)
	if !settled {
		log.Fatal("ERROR: orders did not cross")
	}
	log.Println("Matcher put both maker transactions on chain and settled them in one proven transaction")

	// Paybacks created by the swap scripts are header notes on chain. Each
	// maker reconstructs the full note from their expected details during
	// sync and consumes it through the unauthenticated path.
	claim := func(c *client.Client, who note.AccountID) {
		var payback *note.Note
		for i := 0; i < 100 && payback == nil; i++ {
			sum, err := c.SyncState()
			fatal("sync", err)
			if len(sum.Committed) > 0 {
				rec, err := c.Store().GetNote(sum.Committed[0])
				fatal("payback lookup", err)
				payback = rec.Note
			}
			time.Sleep(50 * time.Millisecond)
		}
		if payback == nil {
			log.Fatalf("ERROR: payback for %s never appeared", who)
		}
		req, err := txrequest.NewBuilder().WithUnauthenticatedInputNotes(payback).Build()
		fatal("payback consume request", err)
		tx, err := c.NewTransaction(who, req)
		fatal("payback consume tx", err)
		_, err = c.SubmitTransaction(tx)
		fatal("payback consume submit", err)
		log.Printf("%s claimed payback note %s", who, payback.ID())
	}
	claim(aliceClient, alice.ID())
	claim(bobClient, bob.ID())

	printBalances(chain, symbols, map[string]note.AccountID{
		"alice": alice.ID(), "bob": bob.ID(), "matcher": matcherAcct.ID(),
	})

	// =========================================================================
	// 5. DRAIN: burn 100 LSE, ask for 250 back
	// =========================================================================

	looseAsset, err := note.NewFungibleAsset(loose.ID(), 100)
	fatal("asset", err)
	drainReq, err := drain.FaucetDrainRequest(bob.ID(), looseAsset)
	fatal("drain request", err)
	drainTx, err := bobClient.NewTransaction(bob.ID(), drainReq)
	fatal("drain tx", err)
	drainOuts, err := bobClient.SubmitTransaction(drainTx)
	fatal("drain submit", err)
	drainNote := drainOuts[0].Full
	_, err = operator.AwaitNote(ctx, drainNote.ID(), policy)
	fatal("drain confirmation", err)

	settleReq, err := drain.SettleRequest(drainNote)
	fatal("drain settle request", err)
	settleTx, err := operator.NewTransaction(loose.ID(), settleReq)
	fatal("drain settle tx", err)
	_, err = operator.SubmitTransaction(settleTx)
	fatal("drain settle submit", err)
	log.Printf("Unbound faucet drained: burned 100 LSE, distributed %d", drain.Amount)

	// The same trick against a bound faucet dies on the distribute check.
	mint(faucetA, bob.ID(), bobClient, 40, serial(14, 1))
	boundAsset, err := note.NewFungibleAsset(faucetA.ID(), 50)
	fatal("asset", err)
	boundDrainReq, err := drain.FaucetDrainRequest(bob.ID(), boundAsset)
	fatal("bound drain request", err)
	boundDrainTx, err := bobClient.NewTransaction(bob.ID(), boundDrainReq)
	fatal("bound drain tx", err)
	boundOuts, err := bobClient.SubmitTransaction(boundDrainTx)
	fatal("bound drain submit", err)
	boundNote := boundOuts[0].Full
	_, err = operator.AwaitNote(ctx, boundNote.ID(), policy)
	fatal("bound drain confirmation", err)
	boundSettleReq, err := drain.SettleRequest(boundNote)
	fatal("bound settle request", err)
	boundSettleTx, err := operator.NewTransaction(faucetA.ID(), boundSettleReq)
	fatal("bound settle tx", err)
	if _, err := operator.SubmitTransaction(boundSettleTx); err == nil {
		log.Fatal("ERROR: bound faucet accepted a drain settlement")
	} else {
		log.Printf("Bound faucet rejected the drain: %v", err)
	}

	printBalances(chain, symbols, map[string]note.AccountID{
		"alice": alice.ID(), "bob": bob.ID(), "matcher": matcherAcct.ID(),
	})
	log.Println("=== Scenario complete ===")
}

func printBalances(chain *ledger.Ledger, symbols map[note.AccountID]string, accounts map[string]note.AccountID) {
	names := make([]string, 0, len(accounts))
	for name := range accounts {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Println("--- balances ---")
	for _, name := range names {
		snap, err := chain.GetAccount(accounts[name])
		if err != nil {
			fmt.Printf("  %-8s <%v>\n", name, err)
			continue
		}
		line := fmt.Sprintf("  %-8s", name)
		faucets := make([]note.AccountID, 0, len(snap.Vault))
		for f := range snap.Vault {
			faucets = append(faucets, f)
		}
		sort.Slice(faucets, func(i, j int) bool { return faucets[i] < faucets[j] })
		for _, f := range faucets {
			line += fmt.Sprintf(" %d %s", snap.Vault[f], symbols[f])
		}
		fmt.Println(line)
	}
}
