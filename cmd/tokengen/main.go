// Package main provides a CLI tool for minting caller tokens for the
// proofdrop API. Tokens are signed with the dev key unless -key is given and
// will NOT work against a deployment with its own AUTH_SIGNING_KEY.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	jwttoken "proofdrop/internal/jwt_token"
	"proofdrop/pkg/domain"
)

const (
	// Dev signing key - matches config.go when AUTH_SIGNING_KEY is not set
	devSigningKey = "dev-secret-key-change-in-production"

	defaultIssuer   = "proofdrop"
	defaultTokenTTL = 15 * time.Minute
)

type tokenOutput struct {
	Token     string            `json:"token"`
	Account   string            `json:"account"`
	ExpiresIn string            `json:"expires_in"`
	Usage     map[string]string `json:"usage"`
}

func main() {
	callerCmd := flag.NewFlagSet("caller", flag.ExitOnError)
	account := callerCmd.String("account", "", "Caller address (0x...). A random address is generated if empty.")
	key := callerCmd.String("key", devSigningKey, "HMAC signing key (AUTH_SIGNING_KEY)")
	issuer := callerCmd.String("issuer", defaultIssuer, "Token issuer (AUTH_ISSUER)")
	ttl := callerCmd.Duration("ttl", defaultTokenTTL, "Token time-to-live")
	jsonOut := callerCmd.Bool("json", false, "Output as JSON")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "caller":
		callerCmd.Parse(os.Args[2:]) //nolint:errcheck // ExitOnError
		generateCallerToken(*account, *key, *issuer, *ttl, *jsonOut)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`tokengen - Generate caller tokens for the proofdrop API

WARNING: The default signing key is the dev key. Only use for local
         development and testing.

Usage:
  tokengen <command> [flags]

Commands:
  caller    Generate a bearer token acting as an account

Examples:
  # Token for a fresh random account
  tokengen caller

  # Token for the configured owner, valid for an hour
  tokengen caller -account 0x000000000000000000000000000000000000a001 -ttl 1h

  # Output as JSON
  tokengen caller -json

Use "tokengen <command> -h" for more information about a command.`)
}

func generateCallerToken(rawAccount, key, issuer string, ttl time.Duration, jsonOutput bool) {
	account := parseOrGenerateAccount(rawAccount)
	svc := jwttoken.NewJWTService(key, issuer, ttl)

	token, err := svc.GenerateCallerToken(context.Background(), account)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating token: %v\n", err)
		os.Exit(1)
	}

	if jsonOutput {
		printJSON(tokenOutput{
			Token:     token,
			Account:   account.Hex(),
			ExpiresIn: ttl.String(),
			Usage: map[string]string{
				"header": "Authorization: Bearer <token>",
			},
		})
		return
	}

	fmt.Println("Caller Token (JWT)")
	fmt.Println("==================")
	fmt.Printf("Account:    %s\n", account.Hex())
	fmt.Printf("Issuer:     %s\n", issuer)
	fmt.Printf("Expires In: %s\n", ttl)
	fmt.Println()
	fmt.Println("Token:")
	fmt.Println(token)
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  curl -H \"Authorization: Bearer <token>\" http://localhost:8080/...")
}

func parseOrGenerateAccount(raw string) domain.Address {
	if raw == "" {
		pk, err := crypto.GenerateKey()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error generating account: %v\n", err)
			os.Exit(1)
		}
		return domain.Address(crypto.PubkeyToAddress(pk.PublicKey))
	}
	account, err := domain.ParseAddress(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid account: %v\n", err)
		os.Exit(1)
	}
	return account
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		os.Exit(1)
	}
}
