package id

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypedIDGeneration(t *testing.T) {
	tests := []struct {
		name   string
		gen    func() string
		prefix string
	}{
		{"client token", func() string { return NewClientToken().String() }, ClientPrefix},
		{"trace", func() string { return NewTraceID().String() }, TracePrefix},
		{"span", func() string { return NewSpanID().String() }, SpanPrefix},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := tt.gen()
			assert.True(t, strings.HasPrefix(v, tt.prefix+"_"))
			assert.Len(t, v, len(tt.prefix)+1+26)
			assert.NotEqual(t, v, tt.gen())
		})
	}
}

func TestParseClientToken(t *testing.T) {
	tok := NewClientToken()
	parsed, err := ParseClientToken(tok.String())
	require.NoError(t, err)
	assert.Equal(t, tok, parsed)

	for _, bad := range []string{"", "cli_", "trc_01ARZ3NDEKTSV4RRFFQ69G5FAV", "cli_not-a-ulid", "01ARZ3NDEKTSV4RRFFQ69G5FAV"} {
		_, err := ParseClientToken(bad)
		assert.Error(t, err, bad)
	}
}

func TestTimestamp(t *testing.T) {
	before := time.Now().Add(-time.Second)
	ts, err := Timestamp(NewSpanID().String())
	require.NoError(t, err)
	assert.True(t, ts.After(before))

	_, err = Timestamp("spn_garbage")
	assert.Error(t, err)
}

func TestDeterministicEntropy(t *testing.T) {
	a := NewGeneratorWithEntropy(bytes.NewReader(make([]byte, 64)))
	id := a.GenerateWithPrefix("x")
	assert.True(t, strings.HasSuffix(id, "0000000000000000"))
}

func TestConcurrentGeneration(t *testing.T) {
	const workers, each = 8, 100

	var mu sync.Mutex
	seen := make(map[ClientToken]bool, workers*each)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				tok := NewClientToken()
				mu.Lock()
				seen[tok] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, workers*each)
}
