package codec

import (
	"bytes"
	"testing"
	"time"

	"github.com/congo-pay/coa_auth/internal/wallet"
)

type sample struct {
	Wallet  wallet.Address   `cbor:"wallet"`
	UserID  uint64           `cbor:"user_id"`
	Members []wallet.Address `cbor:"members"`
	At      time.Time        `cbor:"at"`
}

func TestMarshalIsDeterministic(t *testing.T) {
	var w wallet.Address
	w[31] = 9
	in := sample{Wallet: w, UserID: 42, Members: []wallet.Address{w}, At: time.Unix(1_700_000_000, 5).UTC()}

	first, err := Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	second, err := Marshal(in)
	if err != nil {
		t.Fatalf("marshal again: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("encoding is not deterministic")
	}

	var out sample
	if err := Unmarshal(first, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Wallet != w || out.UserID != 42 || len(out.Members) != 1 || !out.At.Equal(in.At) {
		t.Fatalf("unexpected decoded record: %+v", out)
	}
}
