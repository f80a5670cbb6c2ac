package e2e

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/cucumber/godog"

	"proofdrop/internal/merkle"
	"proofdrop/internal/verification/models"
	"proofdrop/pkg/domain"
)

// RegisterSteps binds the step definitions to the scenario context.
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Verification
	ctx.Step(`^the hub reports "([^"]*)" as verified$`, tc.hubReportsVerified)
	ctx.Step(`^"([^"]*)" posts a verification for "([^"]*)"$`, tc.postVerificationAs)
	ctx.Step(`^"([^"]*)" should be verified$`, tc.shouldBeVerified)
	ctx.Step(`^"([^"]*)" should not be verified$`, tc.shouldNotBeVerified)

	// Relay
	ctx.Step(`^"([^"]*)" relays the verification of "([^"]*)" with fee (\d+)$`, tc.relayVerification)
	ctx.Step(`^"([^"]*)" should be verified crosschain$`, tc.shouldBeVerifiedCrosschain)

	// Ledger
	ctx.Step(`^"([^"]*)" credits "([^"]*)" with (\d+) native$`, tc.creditNative)
	ctx.Step(`^the native balance of "([^"]*)" should be (\d+)$`, tc.nativeBalanceShouldBe)

	// MultiSend
	ctx.Step(`^"([^"]*)" sends (\d+) native to each of "([^"]*)" and "([^"]*)" offering (\d+)$`, tc.batchSendNative)

	// Airdrop
	ctx.Step(`^"([^"]*)" creates native airdrop "([^"]*)" funded with (\d+) for:$`, tc.createNativeAirdrop)
	ctx.Step(`^"([^"]*)" claims from airdrop "([^"]*)"$`, tc.claimAirdrop)
	ctx.Step(`^"([^"]*)" cancels airdrop "([^"]*)"$`, tc.cancelAirdrop)
	ctx.Step(`^airdrop "([^"]*)" should have claimed (\d+) of (\d+)$`, tc.airdropClaimedShouldBe)

	// Responses
	ctx.Step(`^the response status should be (\d+)$`, tc.responseStatusShouldBe)
	ctx.Step(`^the error code should be "([^"]*)"$`, tc.errorCodeShouldBe)
	ctx.Step(`^the response field "([^"]*)" should equal "([^"]*)"$`, tc.responseFieldShouldEqual)
}

func airdropID(name string) string {
	return domain.BytesToBytes32([]byte(name)).Hex()
}

func (tc *TestContext) hubReportsVerified(ctx context.Context, name string) error {
	if err := tc.postVerificationAs(ctx, "hub", name); err != nil {
		return err
	}
	return tc.expectStatus(http.StatusOK)
}

func (tc *TestContext) postVerificationAs(ctx context.Context, as, name string) error {
	payload, err := hookPayload(tc.Account(name))
	if err != nil {
		return err
	}
	return tc.Do(as, http.MethodPost, "/hub/verification", map[string]string{"payload": payload})
}

func (tc *TestContext) verificationStatus(path string) (models.Status, error) {
	var st models.Status
	if err := tc.Do("owner", http.MethodGet, path, nil); err != nil {
		return st, err
	}
	if err := tc.expectStatus(http.StatusOK); err != nil {
		return st, err
	}
	return st, tc.decode(&st)
}

func (tc *TestContext) shouldBeVerified(ctx context.Context, name string) error {
	st, err := tc.verificationStatus("/verification/" + tc.Account(name).Hex())
	if err != nil {
		return err
	}
	if !st.Verified {
		return fmt.Errorf("expected %s to be verified: %s", name, string(tc.LastResponseBody))
	}
	return nil
}

func (tc *TestContext) shouldNotBeVerified(ctx context.Context, name string) error {
	st, err := tc.verificationStatus("/verification/" + tc.Account(name).Hex())
	if err != nil {
		return err
	}
	if st.Verified {
		return fmt.Errorf("expected %s not to be verified", name)
	}
	return nil
}

func (tc *TestContext) relayVerification(ctx context.Context, as, name string, fee int) error {
	return tc.Do(as, http.MethodPost, "/relay", map[string]any{
		"destination_domain": 1,
		"recipient":          tc.Account("receiver").Hex(),
		"account":            tc.Account(name).Hex(),
		"fee":                strconv.Itoa(fee),
	})
}

// shouldBeVerifiedCrosschain polls through /relay/await since local delivery
// is asynchronous.
func (tc *TestContext) shouldBeVerifiedCrosschain(ctx context.Context, name string) error {
	if err := tc.Do("owner", http.MethodPost, "/relay/await", map[string]any{
		"account": tc.Account(name).Hex(),
	}); err != nil {
		return err
	}
	if err := tc.expectStatus(http.StatusOK); err != nil {
		return err
	}
	st, err := tc.verificationStatus("/crosschain/verification/" + tc.Account(name).Hex())
	if err != nil {
		return err
	}
	if !st.Verified {
		return fmt.Errorf("expected %s to be verified crosschain: %s", name, string(tc.LastResponseBody))
	}
	return nil
}

func (tc *TestContext) creditNative(ctx context.Context, as, name string, amount int) error {
	return tc.Do(as, http.MethodPost, "/admin/ledger/credit", map[string]string{
		"account": tc.Account(name).Hex(),
		"amount":  strconv.Itoa(amount),
	})
}

func (tc *TestContext) nativeBalanceShouldBe(ctx context.Context, name string, want int) error {
	if err := tc.Do("owner", http.MethodGet, "/ledger/native/"+tc.Account(name).Hex(), nil); err != nil {
		return err
	}
	if err := tc.expectStatus(http.StatusOK); err != nil {
		return err
	}
	var resp struct {
		Balance domain.Amount `json:"balance"`
	}
	if err := tc.decode(&resp); err != nil {
		return err
	}
	if got := resp.Balance.String(); got != strconv.Itoa(want) {
		return fmt.Errorf("expected %s to hold %d native, got %s", name, want, got)
	}
	return nil
}

func (tc *TestContext) batchSendNative(ctx context.Context, as string, each int, first, second string, offered int) error {
	amount := strconv.Itoa(each)
	return tc.Do(as, http.MethodPost, "/multisend/native", map[string]any{
		"recipients": []string{tc.Account(first).Hex(), tc.Account(second).Hex()},
		"amounts":    []string{amount, amount},
		"value":      strconv.Itoa(offered),
	})
}

// createNativeAirdrop builds the tree from the table (account | amount),
// keeps the proofs for later claims and escrows the funding.
func (tc *TestContext) createNativeAirdrop(ctx context.Context, as, name string, funding int, table *godog.Table) error {
	entries := make([]map[string]string, 0, len(table.Rows))
	for i, row := range table.Rows {
		if i == 0 {
			continue
		}
		if len(row.Cells) != 2 {
			return fmt.Errorf("expected account and amount columns, got %d cells", len(row.Cells))
		}
		entries = append(entries, map[string]string{
			"account": tc.Account(row.Cells[0].Value).Hex(),
			"amount":  row.Cells[1].Value,
		})
	}
	if err := tc.Do(as, http.MethodPost, "/merkle/tree", map[string]any{"entries": entries}); err != nil {
		return err
	}
	if err := tc.expectStatus(http.StatusOK); err != nil {
		return err
	}
	var dist merkle.Distribution
	if err := tc.decode(&dist); err != nil {
		return err
	}
	tc.distributions[name] = &dist

	return tc.Do(as, http.MethodPost, "/airdrops/native", map[string]string{
		"id":          airdropID(name),
		"merkle_root": dist.Root.Hex(),
		"value":       strconv.Itoa(funding),
	})
}

func (tc *TestContext) claimAirdrop(ctx context.Context, as, name string) error {
	dist, ok := tc.distributions[name]
	if !ok {
		return fmt.Errorf("airdrop %q was not created in this scenario", name)
	}
	account := tc.Account(as)
	for _, alloc := range dist.Allocations {
		if alloc.Account != account {
			continue
		}
		proof := make([]string, len(alloc.Proof))
		for i, p := range alloc.Proof {
			proof[i] = p.Hex()
		}
		return tc.Do(as, http.MethodPost, "/airdrops/"+airdropID(name)+"/claim", map[string]any{
			"index":  alloc.Index.String(),
			"amount": alloc.Amount.String(),
			"proof":  proof,
		})
	}
	// Not in the tree: claim a made-up allocation with an empty proof.
	return tc.Do(as, http.MethodPost, "/airdrops/"+airdropID(name)+"/claim", map[string]any{
		"index":  "0",
		"amount": "1",
		"proof":  []string{},
	})
}

func (tc *TestContext) cancelAirdrop(ctx context.Context, as, name string) error {
	return tc.Do(as, http.MethodPost, "/airdrops/"+airdropID(name)+"/cancel", map[string]any{})
}

func (tc *TestContext) airdropClaimedShouldBe(ctx context.Context, name string, claimed, total int) error {
	if err := tc.Do("owner", http.MethodGet, "/airdrops/"+airdropID(name), nil); err != nil {
		return err
	}
	if err := tc.expectStatus(http.StatusOK); err != nil {
		return err
	}
	var resp struct {
		TotalAmount   domain.Amount `json:"total_amount"`
		ClaimedAmount domain.Amount `json:"claimed_amount"`
	}
	if err := tc.decode(&resp); err != nil {
		return err
	}
	if resp.ClaimedAmount.String() != strconv.Itoa(claimed) || resp.TotalAmount.String() != strconv.Itoa(total) {
		return fmt.Errorf("expected %d of %d claimed, got %s of %s", claimed, total, resp.ClaimedAmount, resp.TotalAmount)
	}
	return nil
}

func (tc *TestContext) responseStatusShouldBe(ctx context.Context, expectedStatus int) error {
	return tc.expectStatus(expectedStatus)
}

func (tc *TestContext) errorCodeShouldBe(ctx context.Context, code string) error {
	return tc.responseFieldShouldEqual(ctx, "error", code)
}

func (tc *TestContext) responseFieldShouldEqual(ctx context.Context, field, expectedValue string) error {
	value, err := tc.GetResponseField(field)
	if err != nil {
		return err
	}
	if got := fmt.Sprint(value); got != expectedValue {
		return fmt.Errorf("expected field %s to equal %s, got %s", field, expectedValue, got)
	}
	return nil
}
