package progress

import "io"

// State is the progress of one stream download. Total is 0 when the size is unknown.
type State struct {
	Total    uint64
	Received uint64
}

// Done reports whether a known total has been fully received.
func (s State) Done() bool {
	return s.Total > 0 && s.Received >= s.Total
}

// Percent returns the completion percentage, or -1 when the total is unknown.
func (s State) Percent() float64 {
	if s.Total == 0 {
		return -1
	}

	return float64(s.Received) * 100 / float64(s.Total)
}

// Reader wraps an io.Reader and reports the cumulative state after every chunk read.
type Reader struct {
	Reader     io.Reader
	OnProgress func(State)
	state      State
}

func NewReader(r io.Reader, total uint64, cb func(State)) *Reader {
	return &Reader{
		Reader:     r,
		OnProgress: cb,
		state:      State{Total: total},
	}
}

// State returns the progress so far.
func (pr *Reader) State() State {
	return pr.state
}

func (pr *Reader) Read(p []byte) (int, error) {
	n, err := pr.Reader.Read(p)
	if n > 0 {
		pr.state.Received += uint64(n)
		if pr.OnProgress != nil {
			pr.OnProgress(pr.state)
		}
	}

	return n, err
}
