package id

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Namespace UUIDs for the UUIDv5 derivations
var (
	TickerNamespace     = uuid.MustParse("3f6c1c1e-5a1d-4c8e-9a39-7c1b2f0e4a10")
	OccurrenceNamespace = uuid.MustParse("3f6c1c1e-5a1d-4c8e-9a39-7c1b2f0e4a11")
	CollectionNamespace = uuid.MustParse("3f6c1c1e-5a1d-4c8e-9a39-7c1b2f0e4a12")
)

// NewTickerID returns a fresh random ticker identity
func NewTickerID() uuid.UUID {
	return uuid.New()
}

// NewCollectionID returns a fresh random collection identity
func NewCollectionID() uuid.UUID {
	return uuid.New()
}

// TickerIDFromName derives a stable ticker identity from a name, used by the
// command line so the same label maps to the same record across runs
func TickerIDFromName(name string) uuid.UUID {
	return uuid.NewSHA1(TickerNamespace, []byte(name))
}

// CollectionChildID derives the identity of a collection member from the
// collection identity and the member's role (e.g. "bedtime", "wake")
func CollectionChildID(collectionID uuid.UUID, role string) uuid.UUID {
	return uuid.NewSHA1(CollectionNamespace, []byte(fmt.Sprintf("%s:%s", collectionID, role)))
}

// Generator mints occurrence identities. Every identity must differ from the
// owning ticker's identity and from every identity minted before it.
type Generator interface {
	NewOccurrenceID(tickerID uuid.UUID, at time.Time) uuid.UUID
}

// RandomGenerator mints random UUIDv4 identities
type RandomGenerator struct{}

func (RandomGenerator) NewOccurrenceID(tickerID uuid.UUID, at time.Time) uuid.UUID {
	for {
		occ := uuid.New()
		if occ != tickerID {
			return occ
		}
	}
}

// DeterministicGenerator derives UUIDv5 identities from the ticker, the
// occurrence time and a per-generator sequence number. Two generators fed the
// same calls produce the same identities; a single generator never repeats
// itself even when asked twice for the same ticker and time.
type DeterministicGenerator struct {
	mu  sync.Mutex
	seq uint64
}

// NewDeterministicGenerator creates a generator starting at sequence zero
func NewDeterministicGenerator() *DeterministicGenerator {
	return &DeterministicGenerator{}
}

func (g *DeterministicGenerator) NewOccurrenceID(tickerID uuid.UUID, at time.Time) uuid.UUID {
	g.mu.Lock()
	seq := g.seq
	g.seq++
	g.mu.Unlock()

	// Use RFC3339 format for consistent time representation
	combined := fmt.Sprintf("%s:%s:%d", tickerID, at.UTC().Format(time.RFC3339), seq)
	return uuid.NewSHA1(OccurrenceNamespace, []byte(combined))
}
