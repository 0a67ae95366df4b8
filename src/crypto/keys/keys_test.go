package keys

import (
	"os"
	"path"
	"reflect"
	"testing"

	bcrypto "github.com/dogwoodlogic/bedrock-ledger-consensus-continuity/src/crypto"
)

func TestSimpleKeyfile(t *testing.T) {
	dir, err := os.MkdirTemp("", "continuity")
	if err != nil {
		t.Fatalf("err: %v ", err)
	}
	defer os.RemoveAll(dir)

	simpleKeyfile := NewSimpleKeyfile(path.Join(dir, "priv_key"))

	//a read before any write should fail
	key, err := simpleKeyfile.ReadKey()
	if err == nil {
		t.Fatal("ReadKey should generate an error")
	}
	if key != nil {
		t.Fatal("key is not nil")
	}

	key, _ = GenerateECDSAKey()

	if err := simpleKeyfile.WriteKey(key); err != nil {
		t.Fatalf("err: %v", err)
	}

	nKey, err := simpleKeyfile.ReadKey()
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if !reflect.DeepEqual(*nKey, *key) {
		t.Fatal("keys do not match")
	}
}

func TestFilePermissions(t *testing.T) {
	dir, err := os.MkdirTemp("", "continuity")
	if err != nil {
		t.Fatalf("err: %v ", err)
	}
	defer os.RemoveAll(dir)

	key, _ := GenerateECDSAKey()
	rawKey := PrivateKeyHex(key)

	badKeyPath := path.Join(dir, "priv_key_bad")

	shouldErr := []os.FileMode{
		0777, 0766, 0744,
		0677, 0666, 0644,
		0477, 0466, 0444,
	}

	for _, fm := range shouldErr {
		os.WriteFile(badKeyPath, []byte(rawKey), fm)
		os.Chmod(badKeyPath, fm)

		badKeyFile := NewSimpleKeyfile(badKeyPath)

		if _, err := badKeyFile.ReadKey(); err == nil {
			t.Fatalf("%o || should return a permissions error", fm)
		}
	}

	goodKeyPath := path.Join(dir, "priv_key_good")

	shouldNotErr := []os.FileMode{
		0700, 0600, 0500, 0400,
	}

	for _, fm := range shouldNotErr {
		os.WriteFile(goodKeyPath, []byte(rawKey), fm)
		os.Chmod(goodKeyPath, fm)

		goodKeyFile := NewSimpleKeyfile(goodKeyPath)

		if _, err := goodKeyFile.ReadKey(); err != nil {
			t.Fatalf("%o || should not return an error. Got %v", fm, err)
		}
	}
}

func TestSignatureEncoding(t *testing.T) {
	privKey, _ := GenerateECDSAKey()

	msg := "J'aime mieux forger mon ame que la meubler"
	msgHashBytes := bcrypto.SHA256([]byte(msg))

	r, s, _ := Sign(privKey, msgHashBytes)

	encodedSig := EncodeSignature(r, s)

	dr, ds, err := DecodeSignature(encodedSig)
	if err != nil {
		t.Fatal(err)
	}

	if r.Cmp(dr) != 0 {
		t.Fatal("signature Rs differ")
	}

	if s.Cmp(ds) != 0 {
		t.Fatal("signature Ss differ")
	}

	if !Verify(&privKey.PublicKey, msgHashBytes, dr, ds) {
		t.Fatal("decoded signature does not verify")
	}
}

func TestDumpParseRoundTrip(t *testing.T) {
	key, _ := GenerateECDSAKey()

	dump := DumpPrivateKey(key)

	parsed, err := ParsePrivateKey(dump)
	if err != nil {
		t.Fatal(err)
	}

	if parsed.D.Cmp(key.D) != 0 {
		t.Fatal("D values differ across dump/parse")
	}
	if parsed.PublicKey.X.Cmp(key.PublicKey.X) != 0 {
		t.Fatal("public keys differ across dump/parse")
	}
}
