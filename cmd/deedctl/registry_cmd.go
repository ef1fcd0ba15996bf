package main

import (
	"io"
	"strings"
)

func runMint(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("mint", stderr)
	var uri string
	fs.StringVar(&uri, "uri", "", "metadata URI for the deed")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if strings.TrimSpace(uri) == "" {
		return printError(stderr, "--uri is required")
	}
	return invoke(stdout, stderr, "registry_mint", map[string]interface{}{"uri": uri}, true)
}

func runApproveDeed(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("approve-deed", stderr)
	var (
		id       uint64
		operator string
	)
	fs.Uint64Var(&id, "id", 0, "deed id")
	fs.StringVar(&operator, "operator", "", "identity allowed to transfer the deed (bech32)")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if id == 0 {
		return printError(stderr, "--id is required")
	}
	if err := validateIdentity("--operator", operator); err != nil {
		return printError(stderr, err.Error())
	}
	params := map[string]interface{}{"operator": strings.TrimSpace(operator), "id": id}
	return invoke(stdout, stderr, "registry_approve", params, true)
}

func runOwner(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("owner", stderr)
	var (
		id      uint64
		withURI bool
	)
	fs.Uint64Var(&id, "id", 0, "deed id")
	fs.BoolVar(&withURI, "details", false, "show the full deed record")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if id == 0 {
		return printError(stderr, "--id is required")
	}
	method := "registry_ownerOf"
	if withURI {
		method = "registry_getDeed"
	}
	return invoke(stdout, stderr, method, map[string]interface{}{"id": id}, false)
}
