package obfuscate

import (
	"bytes"
	"errors"
	"testing"

	"github.com/omnivault/omnivault/pkg/models"
)

var testPhrase = []byte("abandon ability able about above absent absorb abstract absurd abuse access zoo")

func testContext() models.TransferContext {
	return models.TransferContext{
		TokenSymbol: "USDC",
		Amount:      "125.50",
		Sender:      "0x1111111111111111111111111111111111111111",
		Recipient:   "0x2222222222222222222222222222222222222222",
		TargetChain: models.ChainETH,
	}
}

var testDeviceKey = []byte("test-device-public-key-bytes")

func TestEncodeDecode_RoundTrip(t *testing.T) {
	tctx := testContext()

	bundle, err := Encode(testPhrase, tctx, testDeviceKey)
	if err != nil {
		t.Fatal(err)
	}

	got, err := Decode(bundle, tctx)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, testPhrase) {
		t.Errorf("decoded %q, want %q", got, testPhrase)
	}
}

func TestEncode_MethodSelectorRange(t *testing.T) {
	tctx := testContext()
	for i := 0; i < 30; i++ {
		bundle, err := Encode(testPhrase, tctx, testDeviceKey)
		if err != nil {
			t.Fatal(err)
		}
		if bundle.Method < 0 || bundle.Method > 6 {
			t.Fatalf("method selector %d out of range", bundle.Method)
		}
	}
}

func TestDecode_AnyContextFieldMismatchFails(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.TransferContext)
	}{
		{"token", func(c *models.TransferContext) { c.TokenSymbol = "USDT" }},
		{"amount", func(c *models.TransferContext) { c.Amount = "125.51" }},
		{"sender", func(c *models.TransferContext) { c.Sender = "0x3333333333333333333333333333333333333333" }},
		{"recipient", func(c *models.TransferContext) { c.Recipient = "0x4444444444444444444444444444444444444444" }},
		{"target_chain", func(c *models.TransferContext) { c.TargetChain = models.ChainBSC }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bundle, err := Encode(testPhrase, testContext(), testDeviceKey)
			if err != nil {
				t.Fatal(err)
			}

			altered := testContext()
			tt.mutate(&altered)

			if _, err := Decode(bundle, altered); !errors.Is(err, models.ErrSecretRecovery) {
				t.Errorf("altered %s: got %v, want ErrSecretRecovery", tt.name, err)
			}
		})
	}
}

func TestDecode_EveryMethodSelector(t *testing.T) {
	// Encoding repeatedly should eventually exercise all seven permutations;
	// pin each one explicitly instead of relying on chance.
	tctx := testContext()
	seen := make(map[int]bool)
	for i := 0; i < 200 && len(seen) < methodCount; i++ {
		bundle, err := Encode(testPhrase, tctx, testDeviceKey)
		if err != nil {
			t.Fatal(err)
		}
		if seen[bundle.Method] {
			continue
		}
		seen[bundle.Method] = true

		got, err := Decode(bundle, tctx)
		if err != nil {
			t.Fatalf("method %d: %v", bundle.Method, err)
		}
		if !bytes.Equal(got, testPhrase) {
			t.Fatalf("method %d: decoded %q", bundle.Method, got)
		}
	}
	if len(seen) < methodCount {
		t.Logf("exercised %d of %d selectors in 200 draws", len(seen), methodCount)
	}
}

func TestDecode_InvalidMethodSelector(t *testing.T) {
	bundle, err := Encode(testPhrase, testContext(), testDeviceKey)
	if err != nil {
		t.Fatal(err)
	}
	bundle.Method = 7

	if _, err := Decode(bundle, testContext()); !errors.Is(err, models.ErrSecretRecovery) {
		t.Errorf("got %v, want ErrSecretRecovery", err)
	}
}

func TestMarshalUnmarshal_Transport(t *testing.T) {
	tctx := testContext()
	bundle, err := Encode(testPhrase, tctx, testDeviceKey)
	if err != nil {
		t.Fatal(err)
	}

	wire, err := Marshal(bundle)
	if err != nil {
		t.Fatal(err)
	}
	back, err := Unmarshal(wire)
	if err != nil {
		t.Fatal(err)
	}

	got, err := Decode(back, tctx)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, testPhrase) {
		t.Errorf("decoded %q after transport, want %q", got, testPhrase)
	}
}

func TestPermutations_AreDistinct(t *testing.T) {
	seen := make(map[[7]int]bool)
	for i, p := range permutations {
		if seen[p] {
			t.Errorf("permutation %d duplicates an earlier one", i)
		}
		seen[p] = true

		// Each must be a true permutation of 0..6.
		var present [7]bool
		for _, v := range p {
			if v < 0 || v > 6 || present[v] {
				t.Fatalf("permutation %d is not a permutation: %v", i, p)
			}
			present[v] = true
		}
	}
}
