// Package sampler provides the sources of raw intensity samples read at each
// scan point.
package sampler

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"sync"
)

// Sampler yields one raw numeric sample on demand.
type Sampler interface {
	ReadOne() (float64, error)
}

// Func adapts an ordinary function to the Sampler interface.
type Func func() (float64, error)

// ReadOne calls f.
func (f Func) ReadOne() (float64, error) { return f() }

// ErrInvalidSample is returned for a reply that parses to NaN or an infinity.
var ErrInvalidSample = errors.New("sample is not a finite number")

// Querier sends one command line and returns one response line. It is
// satisfied by *serialport.Conn.
type Querier interface {
	Query(command string) (string, error)
}

// Dialer opens a fresh connection to the sampler.
type Dialer func() (Querier, error)

// Reconnecter is implemented by samplers whose transport can be reopened
// after a fault.
type Reconnecter interface {
	Reconnect() error
}

// DefaultQuery is the command the ADC bridge answers with a single reading.
const DefaultQuery = "READ?"

// SerialSampler reads samples from an ADC bridge on a serial line by issuing
// a query per sample and parsing the numeric reply.
type SerialSampler struct {
	mu    sync.Mutex
	conn  Querier
	dial  Dialer
	query string
}

// NewSerialSampler returns a SerialSampler issuing query (DefaultQuery when
// empty) over conn. It cannot reconnect.
func NewSerialSampler(conn Querier, query string) *SerialSampler {
	if query == "" {
		query = DefaultQuery
	}
	return &SerialSampler{conn: conn, query: query}
}

// DialSerialSampler opens a SerialSampler through dial. Reconnect closes the
// current connection and dials again.
func DialSerialSampler(dial Dialer, query string) (*SerialSampler, error) {
	conn, err := dial()
	if err != nil {
		return nil, err
	}
	s := NewSerialSampler(conn, query)
	s.dial = dial
	return s, nil
}

// ReadOne issues the sample query and parses the response.
func (s *SerialSampler) ReadOne() (float64, error) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return 0, errors.New("sampler not connected")
	}

	resp, err := conn.Query(s.query)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(resp, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse sample %q: %w", resp, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSample, resp)
	}
	return v, nil
}

// Reconnect closes the current connection and dials a new one.
func (s *SerialSampler) Reconnect() error {
	if s.dial == nil {
		return errors.New("sampler has no dialer")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	closeQuerier(s.conn)
	s.conn = nil
	conn, err := s.dial()
	if err != nil {
		return fmt.Errorf("failed to reconnect sampler: %w", err)
	}
	s.conn = conn
	return nil
}

// Close closes the current connection if it can be closed.
func (s *SerialSampler) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := closeQuerier(s.conn)
	s.conn = nil
	return err
}

func closeQuerier(q Querier) error {
	if c, ok := q.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Sequence is a deterministic Sampler that cycles through Values.
type Sequence struct {
	mu     sync.Mutex
	Values []float64
	reads  int
}

// NewSequence returns a Sequence over values.
func NewSequence(values ...float64) *Sequence {
	return &Sequence{Values: values}
}

// ReadOne returns the next value, wrapping around at the end.
func (s *Sequence) ReadOne() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Values) == 0 {
		return 0, fmt.Errorf("sequence sampler has no values")
	}
	v := s.Values[s.reads%len(s.Values)]
	s.reads++
	return v, nil
}

// Reads returns how many samples have been taken.
func (s *Sequence) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}
