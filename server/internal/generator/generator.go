package generator

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// TimestampFormat is the layout of every timestamp the generator emits.
const TimestampFormat = time.RFC3339Nano

// Message types carried in the "type" field.
const (
	TypeWelcome = "welcome"
	TypeEcho    = "echo"
	TypeData    = "data"
)

// Generator builds outbound payloads. Implementations must be safe for
// concurrent use; every method may be called from many sessions at once.
type Generator interface {
	Welcome(sessionID string) (any, error)
	Echo(payload string) (any, error)
	Sample() (any, error)
}

// WelcomeMessage is sent once per connection.
type WelcomeMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// EchoMessage is sent in response to every inbound text frame.
type EchoMessage struct {
	Type      string `json:"type"`
	Original  string `json:"original"`
	Timestamp string `json:"timestamp"`
}

// DataMessage wraps one periodic sample.
type DataMessage struct {
	Type      string        `json:"type"`
	Timestamp string        `json:"timestamp"`
	Data      CountryRecord `json:"data"`
}

// CountryRecord is one randomised country update.
type CountryRecord struct {
	CountryCode string  `json:"countryCode"`
	CountryName string  `json:"countryName"`
	Population  int64   `json:"population"`
	GDP         float64 `json:"gdp"`
	Temperature float64 `json:"temperature"`
}

// countryNames maps the codes Mock knows how to name.
var countryNames = map[string]string{
	"US": "United States",
	"DE": "Germany",
	"FR": "France",
	"JP": "Japan",
	"BR": "Brazil",
	"IN": "India",
	"GB": "United Kingdom",
	"CA": "Canada",
	"AU": "Australia",
	"ZA": "South Africa",
}

// DefaultCountries is used when no country list is configured.
var DefaultCountries = []string{"US", "DE", "FR", "JP", "BR", "IN"}

// Mock is a Generator producing random country samples.
type Mock struct {
	clock     clockwork.Clock
	countries []string

	mu  sync.Mutex
	rng *rand.Rand
}

// Option configures a Mock.
type Option func(*Mock)

// WithClock sets the clock used for timestamps.
func WithClock(c clockwork.Clock) Option {
	return func(m *Mock) { m.clock = c }
}

// WithSeed makes the sample sequence deterministic. A zero seed keeps the
// time-based seed.
func WithSeed(seed uint64) Option {
	return func(m *Mock) {
		if seed != 0 {
			m.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
		}
	}
}

// WithCountries restricts samples to the given ISO codes.
func WithCountries(codes []string) Option {
	return func(m *Mock) {
		if len(codes) > 0 {
			m.countries = append([]string(nil), codes...)
		}
	}
}

// NewMock creates a Mock generator.
func NewMock(opts ...Option) *Mock {
	now := uint64(time.Now().UnixNano())
	m := &Mock{
		clock:     clockwork.NewRealClock(),
		countries: DefaultCountries,
		rng:       rand.New(rand.NewPCG(now, now>>1)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Welcome returns the greeting for a new session.
func (m *Mock) Welcome(sessionID string) (any, error) {
	return WelcomeMessage{
		Type:      TypeWelcome,
		SessionID: sessionID,
		Message:   "Connected to data stream",
		Timestamp: m.timestamp(),
	}, nil
}

// Echo returns payload together with the server timestamp.
func (m *Mock) Echo(payload string) (any, error) {
	return EchoMessage{
		Type:      TypeEcho,
		Original:  payload,
		Timestamp: m.timestamp(),
	}, nil
}

// Sample returns one random country record.
func (m *Mock) Sample() (any, error) {
	if len(m.countries) == 0 {
		return nil, fmt.Errorf("generator: no countries configured")
	}

	m.mu.Lock()
	code := m.countries[m.rng.IntN(len(m.countries))]
	rec := CountryRecord{
		CountryCode: code,
		CountryName: CountryName(code),
		Population:  1_000_000 + m.rng.Int64N(1_400_000_000),
		GDP:         round2(100 + m.rng.Float64()*25_000),
		Temperature: round2(-10 + m.rng.Float64()*45),
	}
	m.mu.Unlock()

	return DataMessage{
		Type:      TypeData,
		Timestamp: m.timestamp(),
		Data:      rec,
	}, nil
}

// CountryName returns the display name for code, or code itself when unknown.
func CountryName(code string) string {
	if name, ok := countryNames[code]; ok {
		return name
	}
	return code
}

func (m *Mock) timestamp() string {
	return m.clock.Now().UTC().Format(TimestampFormat)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
