package testutil

import (
	"fmt"
	"time"

	"proofdrop/internal/merkle"
	"proofdrop/pkg/domain"
)

// Accounts are deterministic, distinct, non-zero addresses for tests.
var Accounts = struct {
	Owner    domain.Address
	Hub      domain.Address
	Mailbox  domain.Address
	Alice    domain.Address
	Bob      domain.Address
	Carol    domain.Address
	Token    domain.Address
	Contract domain.Address
}{
	Owner:    domain.MustAddress("0x000000000000000000000000000000000000a001"),
	Hub:      domain.MustAddress("0x000000000000000000000000000000000000b0b0"),
	Mailbox:  domain.MustAddress("0x000000000000000000000000000000000000ba11"),
	Alice:    domain.MustAddress("0x00000000000000000000000000000000000a11ce"),
	Bob:      domain.MustAddress("0x0000000000000000000000000000000000000b0b"),
	Carol:    domain.MustAddress("0x00000000000000000000000000000000000ca201"),
	Token:    domain.MustAddress("0x00000000000000000000000000000000000070c0"),
	Contract: domain.MustAddress("0x0000000000000000000000000000000000c0ffee"),
}

// FixedNow is a stable clock for expiry arithmetic.
var FixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// NumberedAccount returns the address whose low bytes encode n.
func NumberedAccount(n int) domain.Address {
	return domain.MustAddress(fmt.Sprintf("0x%040x", n+0x1000))
}

// DistributionBuilder assembles Merkle airdrop allocations fluently.
type DistributionBuilder struct {
	entries []merkle.Entry
}

func NewDistributionBuilder() *DistributionBuilder {
	return &DistributionBuilder{}
}

// Add appends an allocation using the next sequential index.
func (b *DistributionBuilder) Add(account domain.Address, amount uint64) *DistributionBuilder {
	b.entries = append(b.entries, merkle.Entry{
		Index:   domain.NewAmount(uint64(len(b.entries))),
		Account: account,
		Amount:  domain.NewAmount(amount),
	})
	return b
}

// AddMany appends n allocations of amount to distinct numbered accounts.
func (b *DistributionBuilder) AddMany(n int, amount uint64) *DistributionBuilder {
	for i := range n {
		b.Add(NumberedAccount(i), amount)
	}
	return b
}

func (b *DistributionBuilder) Entries() []merkle.Entry {
	return append([]merkle.Entry(nil), b.entries...)
}

// Build panics on invalid input; builder misuse is a test bug.
func (b *DistributionBuilder) Build() *merkle.Distribution {
	d, err := merkle.BuildDistribution(b.entries)
	if err != nil {
		panic(err)
	}
	return d
}
