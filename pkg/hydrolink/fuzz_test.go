// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hydrolink

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, or 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

// newFuzzRng creates a new random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

var fuzzPrefixes = []string{PrefixRelayState, PrefixSensorState, PrefixTime, PingAck, ""}

// ============================================================
// Decoder Fuzz Tests
// ============================================================

// TestFuzzDecoder_RandomLines feeds random printable lines behind each prefix
// and verifies the decoder either returns a message or a DecodeError
func TestFuzzDecoder_RandomLines(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	d := NewDecoder(SchemaV8)
	const alphabet = "0123456789=,:.-LTPBHEFVC ON"

	for i := 0; i < rounds; i++ {
		var b strings.Builder
		b.WriteString(fuzzPrefixes[rng.Intn(len(fuzzPrefixes))])
		for n := rng.Intn(64); n > 0; n-- {
			b.WriteByte(alphabet[rng.Intn(len(alphabet))])
		}

		msg, err := d.Decode(b.String())
		if err != nil {
			if msg != nil {
				t.Fatalf("round %d: message returned alongside error for %q", i, b.String())
			}
			if !errors.Is(err, ErrDecode) {
				t.Fatalf("round %d: non-decode error %v", i, err)
			}
			continue
		}
		if msg.Type() == MsgUnknown {
			t.Fatalf("round %d: unknown message type without error for %q", i, b.String())
		}
	}
}

// TestFuzzDecoder_ValidSensorLines generates well-formed SSTATE lines
// and verifies every value survives decoding
func TestFuzzDecoder_ValidSensorLines(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	d := NewDecoder(SchemaV8)

	for i := 0; i < rounds; i++ {
		want := make([]float64, SchemaV8.Arity())
		parts := make([]string, SchemaV8.Arity())
		for j, f := range SchemaV8.Fields() {
			switch f.Kind {
			case KindInt:
				v := rng.Intn(200) - 50
				want[j] = float64(v)
				parts[j] = strconv.Itoa(v)
			case KindFloat:
				v := float64(rng.Intn(10000)) / 100
				want[j] = v
				parts[j] = strconv.FormatFloat(v, 'f', 2, 64)
			case KindSwitch:
				v := rng.Intn(2)
				want[j] = float64(v)
				parts[j] = strconv.Itoa(v)
			}
		}

		line := PrefixSensorState + strings.Join(parts, ",")
		msg, err := d.Decode(line)
		if err != nil {
			t.Fatalf("round %d: %q: %v", i, line, err)
		}
		r, _ := msg.SensorReport()
		for j := range want {
			if r.Values[j] != want[j] {
				t.Fatalf("round %d: value %d expected %v, got %v", i, j, want[j], r.Values[j])
			}
		}
	}
}

// TestFuzzDecoder_ValidRelayLines checks random RSTATE lines against a model
// in which the last value for a repeated code wins
func TestFuzzDecoder_ValidRelayLines(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	codes := []string{"LT", "LB", "PT", "PB", "FV", "FC", "HE", "XX"}

	for i := 0; i < rounds; i++ {
		n := rng.Intn(12) + 1
		want := map[string]bool{}
		entries := make([]string, n)
		for j := 0; j < n; j++ {
			code := codes[rng.Intn(len(codes))]
			v := rng.Intn(2)
			want[code] = v != 0
			entries[j] = fmt.Sprintf("%s=%d", code, v)
		}

		r, err := DecodeRelayReport(PrefixRelayState + strings.Join(entries, ","))
		if err != nil {
			t.Fatalf("round %d: %v", i, err)
		}
		if r.Len() != len(want) {
			t.Fatalf("round %d: expected %d codes, got %d", i, len(want), r.Len())
		}
		for code, on := range want {
			if got, _ := r.On(code); got != on {
				t.Fatalf("round %d: %s expected %v, got %v", i, code, on, got)
			}
		}
	}
}
