package chat

// Stream delivers one Ask's output: token fragments in generation order,
// then the aggregated final text. Not safe for concurrent use.
type Stream struct {
	ch  chan Output
	err error

	final   string
	done    bool
	drained bool
}

// Next returns the next streamed fragment. It returns false once the stream
// is exhausted; check Completed for the final text and outcome.
func (s *Stream) Next() (string, bool) {
	if s.drained {
		return "", false
	}
	for o := range s.ch {
		if o.Done {
			s.final = o.Final
			s.done = true
			continue
		}
		return o.Token, true
	}
	s.drained = true
	return "", false
}

// Completed drains any remaining fragments and returns the aggregated final
// text. A stream that ended without a Done event means the turn was aborted;
// that is reported as ErrTurnAborted.
func (s *Stream) Completed() (string, error) {
	for !s.drained {
		s.Next()
	}
	if s.err != nil {
		return "", s.err
	}
	if !s.done {
		return "", ErrTurnAborted
	}
	return s.final, nil
}
