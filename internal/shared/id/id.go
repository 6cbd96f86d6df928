// Package id generates the ULID-based identifiers used across the gateway.
//
// Identifiers carry a short type prefix so logs stay readable:
//
//	cli_01J9Z3...  remote kernel client token
//	trc_01J9Z3...  trace
//	spn_01J9Z3...  span
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ClientToken identifies one attached remote kernel client.
type ClientToken string

// TraceID identifies a trace.
type TraceID string

// SpanID identifies a span within a trace.
type SpanID string

const (
	ClientPrefix = "cli"
	TracePrefix  = "trc"
	SpanPrefix   = "spn"
)

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the process-wide generator.
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand.
func NewGenerator() *Generator {
	return &Generator{entropy: rand.Reader}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate())
}

// NewClientToken generates a remote client token.
func NewClientToken() ClientToken {
	return ClientToken(Default().GenerateWithPrefix(ClientPrefix))
}

// NewTraceID generates a trace id.
func NewTraceID() TraceID {
	return TraceID(Default().GenerateWithPrefix(TracePrefix))
}

// NewSpanID generates a span id.
func NewSpanID() SpanID {
	return SpanID(Default().GenerateWithPrefix(SpanPrefix))
}

func (t ClientToken) String() string { return string(t) }
func (t TraceID) String() string     { return string(t) }
func (s SpanID) String() string      { return string(s) }

// ParseClientToken validates s as a client token.
func ParseClientToken(s string) (ClientToken, error) {
	if _, err := parsePrefixed(s, ClientPrefix); err != nil {
		return "", err
	}
	return ClientToken(s), nil
}

// Timestamp extracts the creation time of a prefixed id.
func Timestamp(s string) (time.Time, error) {
	_, raw, ok := strings.Cut(s, "_")
	if !ok {
		raw = s
	}
	parsed, err := ulid.Parse(raw)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}

func parsePrefixed(s, prefix string) (ulid.ULID, error) {
	raw, ok := strings.CutPrefix(s, prefix+"_")
	if !ok {
		return ulid.ULID{}, fmt.Errorf("id %q: missing %s_ prefix", s, prefix)
	}
	parsed, err := ulid.Parse(raw)
	if err != nil {
		return ulid.ULID{}, fmt.Errorf("id %q: %w", s, err)
	}
	return parsed, nil
}
