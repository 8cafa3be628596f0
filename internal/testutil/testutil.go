package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"rankfetcher/internal/fetcher"
	"rankfetcher/internal/identifier"
	"rankfetcher/internal/request"
)

// MockFetcher is a mock implementation of the Fetcher interface for testing
type MockFetcher struct {
	FetchFunc func(ctx context.Context, id identifier.Identifier) fetcher.Outcome
}

// Fetch implements the Fetcher interface
func (m *MockFetcher) Fetch(ctx context.Context, id identifier.Identifier) fetcher.Outcome {
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, id)
	}
	return fetcher.Success(id, id.Market, nil, nil)
}

// Reply is one scripted transport result.
type Reply struct {
	Status int
	Body   string
	Err    error

	// Delay holds the call open before replying, honoring the request context
	Delay time.Duration
}

// JSON returns a 200 reply with body
func JSON(body string) Reply {
	return Reply{Status: 200, Body: body}
}

// Rank returns a 200 reply carrying rank
func Rank(rank int) Reply {
	return JSON(fmt.Sprintf(`{"rank": %d}`, rank))
}

// Status returns an empty reply with the given status
func Status(code int) Reply {
	return Reply{Status: code}
}

// FakeTransport replays scripted replies per code and records how many calls
// were in flight at once. The last reply of a script repeats forever; codes
// without a script get Default.
type FakeTransport struct {
	Default Reply

	mu          sync.Mutex
	scripts     map[string][]Reply
	calls       map[string]int
	inFlight    int
	maxInFlight int
	total       int
}

// NewFakeTransport creates a FakeTransport answering unknown codes with def
func NewFakeTransport(def Reply) *FakeTransport {
	return &FakeTransport{
		Default: def,
		scripts: make(map[string][]Reply),
		calls:   make(map[string]int),
	}
}

// Script sets the replies for code, in call order
func (f *FakeTransport) Script(code string, replies ...Reply) *FakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[code] = replies
	return f
}

// Do implements fetcher.Transport
func (f *FakeTransport) Do(ctx context.Context, d request.Descriptor) (*fetcher.Response, error) {
	code := d.Identifier.Code

	f.mu.Lock()
	n := f.calls[code]
	f.calls[code] = n + 1
	f.total++
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	reply := f.Default
	if script, ok := f.scripts[code]; ok && len(script) > 0 {
		if n >= len(script) {
			n = len(script) - 1
		}
		reply = script[n]
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if reply.Delay > 0 {
		timer := time.NewTimer(reply.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if reply.Err != nil {
		return nil, reply.Err
	}
	return &fetcher.Response{StatusCode: reply.Status, Body: []byte(reply.Body)}, nil
}

// Calls returns how many times code was requested
func (f *FakeTransport) Calls(code string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[code]
}

// TotalCalls returns the number of requests across all codes
func (f *FakeTransport) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.total
}

// MaxInFlight returns the highest number of concurrent calls observed
func (f *FakeTransport) MaxInFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInFlight
}

// SleepRecorder replaces real backoff sleeps and records requested delays.
type SleepRecorder struct {
	mu  sync.Mutex
	all []time.Duration
}

// NewSleepRecorder creates a SleepRecorder
func NewSleepRecorder() *SleepRecorder {
	return &SleepRecorder{}
}

// Sleep records d and returns immediately unless ctx is already done
func (s *SleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.all = append(s.all, d)
	s.mu.Unlock()
	return ctx.Err()
}

// Delays returns every recorded delay in call order
func (s *SleepRecorder) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.all...)
}

// MustParse parses code or panics; for fixtures only
func MustParse(code string) identifier.Identifier {
	id, err := identifier.Parse(code)
	if err != nil {
		panic(err)
	}
	return id
}

// MustParseAll parses every code
func MustParseAll(codes ...string) []identifier.Identifier {
	ids := make([]identifier.Identifier, 0, len(codes))
	for _, c := range codes {
		ids = append(ids, MustParse(c))
	}
	return ids
}
