package crypto

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	var raw [20]byte
	for i := range raw {
		raw[i] = byte(i + 1)
	}
	encoded := FormatIdentity(raw)
	if !strings.HasPrefix(encoded, IdentityPrefix+"1") {
		t.Fatalf("unexpected encoding %s", encoded)
	}
	decoded, err := ParseIdentity(encoded)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if decoded != raw {
		t.Fatalf("round trip mismatch")
	}
	fromHex, err := ParseIdentity("0x0102030405060708090a0b0c0d0e0f1011121314")
	if err != nil {
		t.Fatalf("parse hex: %v", err)
	}
	if fromHex != raw {
		t.Fatalf("hex identity mismatch")
	}
}

func TestParseIdentityRejects(t *testing.T) {
	for _, input := range []string{"", "0x1234", "addr1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqq", "deed1notvalid"} {
		if _, err := ParseIdentity(input); !errors.Is(err, ErrInvalidIdentity) {
			t.Fatalf("expected ErrInvalidIdentity for %q, got %v", input, err)
		}
	}
}

func TestKeystoreRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	path := filepath.Join(t.TempDir(), "keys", "seller.json")
	addr, err := SaveToKeystoreWithParams(path, key, "passphrase", LightScrypt)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := LoadFromKeystore(path, "passphrase")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.PubKey().Address() != addr {
		t.Fatalf("identity mismatch after reload")
	}
	if _, err := LoadFromKeystore(path, "wrong"); err == nil {
		t.Fatalf("expected wrong passphrase to fail")
	}
}

func TestSaveToKeystoreUsesStandardScrypt(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	path := filepath.Join(t.TempDir(), "role.keystore")
	if _, err := SaveToKeystore(path, key, ""); err != nil {
		t.Fatalf("save: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var file struct {
		Crypto struct {
			KDFParams struct {
				N int `json:"n"`
				P int `json:"p"`
			} `json:"kdfparams"`
		} `json:"crypto"`
	}
	if err := json.Unmarshal(raw, &file); err != nil {
		t.Fatalf("decode keystore: %v", err)
	}
	if file.Crypto.KDFParams.N != StandardScrypt.N || file.Crypto.KDFParams.P != StandardScrypt.P {
		t.Fatalf("expected standard scrypt cost, got n=%d p=%d", file.Crypto.KDFParams.N, file.Crypto.KDFParams.P)
	}
	if _, err := SaveToKeystoreWithParams(path, key, "", ScryptParams{}); err == nil {
		t.Fatalf("expected zero scrypt parameters to be rejected")
	}
}
