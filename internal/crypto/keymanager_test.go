package crypto

import (
	"os"
	"path/filepath"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

const testKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func TestEncryptDecryptKey(t *testing.T) {
	blob, err := EncryptKey("0x"+testKeyHex, "hunter2")
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecryptKey(blob, "hunter2")
	if err != nil {
		t.Fatal(err)
	}
	if got != testKeyHex {
		t.Fatalf("DecryptKey = %s, want %s", got, testKeyHex)
	}
	if _, err := DecryptKey(blob, "wrong"); err == nil {
		t.Fatal("expected error for wrong password")
	}
}

func TestLoadKeeperKey(t *testing.T) {
	want := "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

	raw, err := LoadKeeperKey(KeyConfig{RawPrivateKey: "0x" + testKeyHex})
	if err != nil {
		t.Fatal(err)
	}
	if got := ethcrypto.PubkeyToAddress(raw.PublicKey).Hex(); got != want {
		t.Fatalf("raw key address = %s, want %s", got, want)
	}

	blob, err := EncryptKey(testKeyHex, "pw")
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "keeper.json")
	if err := os.WriteFile(path, blob, 0o600); err != nil {
		t.Fatal(err)
	}
	fromFile, err := LoadKeeperKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "pw"})
	if err != nil {
		t.Fatal(err)
	}
	if got := ethcrypto.PubkeyToAddress(fromFile.PublicKey).Hex(); got != want {
		t.Fatalf("file key address = %s, want %s", got, want)
	}

	if _, err := LoadKeeperKey(KeyConfig{}); err == nil {
		t.Fatal("expected error with no key source")
	}
}
