// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package vmaf

import (
	"fmt"
)

type contextState int

const (
	stateCreated contextState = iota
	stateAccumulating
	stateFlushed
	stateDestroyed
)

func (s contextState) String() string {
	switch s {
	case stateCreated:
		return "created"
	case stateAccumulating:
		return "accumulating"
	case stateFlushed:
		return "flushed"
	case stateDestroyed:
		return "destroyed"
	}
	return fmt.Sprintf("contextState(%d)", int(s))
}

// scoringContext guards an engine Context with its lifecycle:
// created -> accumulating -> flushed -> destroyed. Index ordering is the
// caller's job, only state transitions are enforced here.
type scoringContext struct {
	ctx       Context
	state     contextState
	submitted int
	last      int
}

func newScoringContext(e Engine, threads int) (*scoringContext, error) {
	ctx, err := e.NewContext(Configuration{
		LogLevel:  LogLevelInfo,
		Threads:   threads,
		Subsample: 1,
	})
	if err != nil {
		return nil, err
	}
	return &scoringContext{ctx: ctx, last: -1}, nil
}

func (s *scoringContext) expect(states ...contextState) error {
	for _, st := range states {
		if s.state == st {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrContextState, s.state)
}

// submit hands a picture pair to the engine. On success the engine owns
// both pictures.
func (s *scoringContext) submit(index int, ref, dist *Picture) error {
	if err := s.expect(stateCreated, stateAccumulating); err != nil {
		return err
	}
	if err := s.ctx.ReadPictures(ref, dist, index); err != nil {
		return err
	}
	s.state = stateAccumulating
	s.submitted++
	s.last = index
	return nil
}

// flush ends the stream. The context counts as flushed even if the engine
// reports a failure, no further submissions are accepted.
func (s *scoringContext) flush() error {
	if err := s.expect(stateCreated, stateAccumulating); err != nil {
		return err
	}
	s.state = stateFlushed
	return s.ctx.Flush()
}

func (s *scoringContext) extract(m LoadedModel, start, end int) (Score, error) {
	if err := s.expect(stateFlushed); err != nil {
		return Score{}, err
	}
	return m.score(s.ctx, start, end)
}

func (s *scoringContext) write(path string, format OutputFormat) error {
	if err := s.expect(stateFlushed); err != nil {
		return err
	}
	return s.ctx.WriteOutput(path, format)
}

// destroy closes the engine context, only the first call has any effect.
func (s *scoringContext) destroy() error {
	if s == nil || s.state == stateDestroyed {
		return nil
	}
	s.state = stateDestroyed
	return s.ctx.Close()
}
