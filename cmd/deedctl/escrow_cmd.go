package main

import (
	"fmt"
	"io"
	"strings"

	"deedescrow/crypto"
	"deedescrow/rpc"
)

func runList(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("list", stderr)
	var (
		assetID uint64
		buyer   string
		price   string
		earnest string
	)
	fs.Uint64Var(&assetID, "asset", 0, "deed id")
	fs.StringVar(&buyer, "buyer", "", "buyer identity (bech32)")
	fs.StringVar(&price, "price", "", "purchase price (supports 10e18 shorthand)")
	fs.StringVar(&earnest, "earnest", "", "required earnest amount (supports 10e18 shorthand)")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if assetID == 0 {
		return printError(stderr, "--asset is required")
	}
	if err := validateIdentity("--buyer", buyer); err != nil {
		return printError(stderr, err.Error())
	}
	normalizedPrice, err := normalizeAmount("--price", price)
	if err != nil {
		return printError(stderr, err.Error())
	}
	normalizedEarnest, err := normalizeAmount("--earnest", earnest)
	if err != nil {
		return printError(stderr, err.Error())
	}
	params := map[string]interface{}{
		"assetId":       assetID,
		"buyer":         strings.TrimSpace(buyer),
		"purchasePrice": normalizedPrice,
		"escrowAmount":  normalizedEarnest,
	}
	return invoke(stdout, stderr, "escrow_list", params, true)
}

func runFund(name, method string, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet(name, stderr)
	var (
		assetID uint64
		amount  string
	)
	fs.Uint64Var(&assetID, "asset", 0, "deed id")
	fs.StringVar(&amount, "amount", "", "amount to move into escrow (supports 10e18 shorthand)")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if assetID == 0 {
		return printError(stderr, "--asset is required")
	}
	normalized, err := normalizeAmount("--amount", amount)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return invoke(stdout, stderr, method, map[string]interface{}{"assetId": assetID, "amount": normalized}, true)
}

func runInspect(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("inspect", stderr)
	var (
		assetID uint64
		passed  bool
	)
	fs.Uint64Var(&assetID, "asset", 0, "deed id")
	fs.BoolVar(&passed, "passed", false, "whether the inspection passed")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if assetID == 0 {
		return printError(stderr, "--asset is required")
	}
	return invoke(stdout, stderr, "escrow_updateInspectionStatus", map[string]interface{}{"assetId": assetID, "passed": passed}, true)
}

func runAssetCommand(name, method string, requireAuth bool, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet(name, stderr)
	var assetID uint64
	fs.Uint64Var(&assetID, "asset", 0, "deed id")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if assetID == 0 {
		return printError(stderr, "--asset is required")
	}
	return invoke(stdout, stderr, method, map[string]interface{}{"assetId": assetID}, requireAuth)
}

func runBalance(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("balance", stderr)
	var (
		address string
		assetID uint64
	)
	fs.StringVar(&address, "address", "", "identity to query; omitted for the escrow vault")
	fs.Uint64Var(&assetID, "asset", 0, "report the balance held for one listing")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	switch {
	case address != "" && assetID != 0:
		return printError(stderr, "--address and --asset are mutually exclusive")
	case address != "":
		if err := validateIdentity("--address", address); err != nil {
			return printError(stderr, err.Error())
		}
		return invoke(stdout, stderr, "bank_balance", map[string]interface{}{"address": strings.TrimSpace(address)}, false)
	case assetID != 0:
		return invoke(stdout, stderr, "escrow_getListing", map[string]interface{}{"assetId": assetID}, false)
	default:
		return invoke(stdout, stderr, "escrow_getBalance", nil, false)
	}
}

func runEvents(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("events", stderr)
	var (
		assetID uint64
		prefix  string
		limit   int
	)
	fs.Uint64Var(&assetID, "asset", 0, "deed id; omitted for the global log")
	fs.StringVar(&prefix, "prefix", "", "only show event types with this prefix")
	fs.IntVar(&limit, "limit", 0, "show only the newest N events")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if limit < 0 {
		return printError(stderr, "--limit must not be negative")
	}
	params := map[string]interface{}{}
	if assetID != 0 {
		params["assetId"] = assetID
	}
	if prefix != "" {
		params["prefix"] = prefix
	}
	if limit > 0 {
		params["limit"] = limit
	}
	return invoke(stdout, stderr, "escrow_listEvents", params, false)
}

func validateIdentity(flagName, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s is required", flagName)
	}
	if _, err := crypto.ParseIdentity(value); err != nil {
		return fmt.Errorf("%s: %v", flagName, err)
	}
	return nil
}

func normalizeAmount(flagName, value string) (string, error) {
	if strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("%s is required", flagName)
	}
	amount, err := rpc.ParseAmount(strings.ReplaceAll(value, "_", ""))
	if err != nil {
		return "", fmt.Errorf("%s: %v", flagName, err)
	}
	if amount.Sign() < 0 {
		return "", fmt.Errorf("%s must not be negative", flagName)
	}
	return amount.String(), nil
}
