package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"deedescrow/crypto"
	"deedescrow/gateway/middleware"
)

var keygenScrypt = crypto.StandardScrypt

// readSecret prompts on the controlling terminal without echo.
var readSecret = func(prompt string, stderr io.Writer) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("stdin is not a terminal")
	}
	fmt.Fprint(stderr, prompt)
	secret, err := term.ReadPassword(fd)
	fmt.Fprintln(stderr)
	if err != nil {
		return "", err
	}
	return string(secret), nil
}

func runToken(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("token", stderr)
	var (
		subject  string
		keyFile  string
		issuer   string
		audience string
		scopes   string
		ttl      time.Duration
	)
	fs.StringVar(&subject, "subject", "", "identity the token speaks for (bech32)")
	fs.StringVar(&keyFile, "keystore", "", "derive the subject from a keystore file instead")
	fs.StringVar(&issuer, "issuer", "", "issuer claim; must match the node's auth config")
	fs.StringVar(&audience, "audience", "", "audience claim")
	fs.StringVar(&scopes, "scope", "", "comma-separated scopes, e.g. admin")
	fs.DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if (subject == "") == (keyFile == "") {
		return printError(stderr, "exactly one of --subject or --keystore is required")
	}
	if ttl <= 0 {
		return printError(stderr, "--ttl must be positive")
	}
	if keyFile != "" {
		passphrase, err := secretFromEnvOrPrompt("DEED_KEYSTORE_PASSPHRASE", "Keystore passphrase: ", true, stderr)
		if err != nil {
			return printError(stderr, err.Error())
		}
		key, err := crypto.LoadFromKeystore(keyFile, passphrase)
		if err != nil {
			return printError(stderr, fmt.Sprintf("open keystore: %v", err))
		}
		subject = key.PubKey().Address().String()
	} else if err := validateIdentity("--subject", subject); err != nil {
		return printError(stderr, err.Error())
	}
	secret, err := secretFromEnvOrPrompt("DEED_JWT_SECRET", "JWT secret: ", false, stderr)
	if err != nil {
		return printError(stderr, err.Error())
	}
	token, err := middleware.SignToken(middleware.TokenRequest{
		Secret:   secret,
		Issuer:   issuer,
		Audience: audience,
		Subject:  strings.TrimSpace(subject),
		Scopes:   splitScopes(scopes),
		TTL:      ttl,
		Now:      now(),
	})
	if err != nil {
		return printError(stderr, err.Error())
	}
	fmt.Fprintln(stdout, token)
	return 0
}

func runKeygen(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("keygen", stderr)
	var out string
	fs.StringVar(&out, "out", "", "path of the keystore file to write")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if strings.TrimSpace(out) == "" {
		return printError(stderr, "--out is required")
	}
	passphrase, err := secretFromEnvOrPrompt("DEED_KEYSTORE_PASSPHRASE", "New keystore passphrase: ", true, stderr)
	if err != nil {
		return printError(stderr, err.Error())
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return printError(stderr, err.Error())
	}
	addr, err := crypto.SaveToKeystoreWithParams(out, key, passphrase, keygenScrypt)
	if err != nil {
		return printError(stderr, fmt.Sprintf("write keystore: %v", err))
	}
	fmt.Fprintln(stdout, addr.String())
	return 0
}

func secretFromEnvOrPrompt(envKey, prompt string, allowEmpty bool, stderr io.Writer) (string, error) {
	if value, ok := os.LookupEnv(envKey); ok && (value != "" || allowEmpty) {
		return value, nil
	}
	secret, err := readSecret(prompt, stderr)
	if err != nil {
		return "", fmt.Errorf("%s not set and prompt failed: %v", envKey, err)
	}
	if secret == "" && !allowEmpty {
		return "", fmt.Errorf("%s must not be empty", envKey)
	}
	return secret, nil
}

func splitScopes(raw string) []string {
	var scopes []string
	for _, scope := range strings.Split(raw, ",") {
		if scope = strings.TrimSpace(scope); scope != "" {
			scopes = append(scopes, scope)
		}
	}
	return scopes
}
