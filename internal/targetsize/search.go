// Package targetsize finds the highest encoder quality whose output fits a
// size budget.
//
// The search assumes encoded size is non-decreasing in quality for a fixed
// image. Standard lossy codecs behave this way for almost all inputs but the
// codec contract does not guarantee it; violations observed during a search
// are reported through EncodeResult.NonMonotonic.
package targetsize

import (
	"context"
)

// EncodeToTarget encodes req.Source at the highest quality in
// [req.MinQuality, req.StartQuality] whose size does not exceed req.TargetKB.
//
// When no tested quality fits, the smallest observed trial is returned with
// MetTarget=false. Codec errors are returned as *CodecFailure and never
// retried. With StrategyBinary the codec is invoked at most
// ceil(log2(StartQuality-MinQuality+1))+1 times.
func EncodeToTarget(ctx context.Context, req EncodeRequest, codec Codec) (*EncodeResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err := codec.Decode(req.Source, req.Resize)
	if err != nil {
		return nil, &CodecFailure{Reason: "decode source", Err: err}
	}

	s := &search{
		ctx:    ctx,
		req:    req,
		encode: func(q int) ([]byte, error) { return codec.Encode(img, q, req.Format) },
	}

	top, err := s.probe(req.StartQuality)
	if err != nil {
		return nil, err
	}
	if top.SizeKB <= req.TargetKB {
		return s.result(top, true), nil
	}

	// The top of the range is known not to fit.
	switch req.Strategy {
	case StrategyLinear:
		err = s.walk(req.MinQuality, req.StartQuality-req.Step)
	default:
		err = s.bisect(req.MinQuality, req.StartQuality-1)
	}
	if err != nil {
		return nil, err
	}

	if s.best != nil {
		return s.result(*s.best, true), nil
	}
	return s.result(*s.smallest, false), nil
}

type observation struct {
	quality int
	sizeKB  float64
}

type search struct {
	ctx    context.Context
	req    EncodeRequest
	encode func(quality int) ([]byte, error)

	trials       int
	best         *Trial
	smallest     *Trial
	seen         []observation
	nonMonotonic bool
}

// bisect tests the closed interval [low, high].
func (s *search) bisect(low, high int) error {
	for low <= high {
		mid := (low + high) / 2
		t, err := s.probe(mid)
		if err != nil {
			return err
		}
		if t.SizeKB <= s.req.TargetKB {
			low = mid + 1
		} else {
			high = mid - 1
		}
	}
	return nil
}

// walk tests from, from-step, ... and always finishes at floor.
func (s *search) walk(floor, from int) error {
	for q := from; q > floor; q -= s.req.Step {
		t, err := s.probe(q)
		if err != nil {
			return err
		}
		if t.SizeKB <= s.req.TargetKB {
			return nil
		}
	}
	if floor >= s.req.StartQuality {
		return nil
	}
	_, err := s.probe(floor)
	return err
}

// probe runs one trial and updates best, smallest and the monotonicity guard.
// Only the best and smallest trials keep their buffers.
func (s *search) probe(quality int) (Trial, error) {
	if err := s.ctx.Err(); err != nil {
		return Trial{}, err
	}

	data, err := s.encode(quality)
	s.trials++
	if err != nil {
		return Trial{}, &CodecFailure{Quality: quality, Reason: "encode " + string(s.req.Format), Err: err}
	}
	t := Trial{Quality: quality, Bytes: data, SizeKB: sizeKB(data)}

	for _, o := range s.seen {
		if (o.quality > quality && o.sizeKB < t.SizeKB) || (o.quality < quality && o.sizeKB > t.SizeKB) {
			s.nonMonotonic = true
			break
		}
	}
	s.seen = append(s.seen, observation{quality: quality, sizeKB: t.SizeKB})

	if t.SizeKB <= s.req.TargetKB && (s.best == nil || quality > s.best.Quality) {
		best := t
		s.best = &best
	}
	if s.smallest == nil || t.SizeKB < s.smallest.SizeKB ||
		(t.SizeKB == s.smallest.SizeKB && quality < s.smallest.Quality) {
		smallest := t
		s.smallest = &smallest
	}
	return t, nil
}

func (s *search) result(t Trial, met bool) *EncodeResult {
	return &EncodeResult{
		Bytes:        t.Bytes,
		Format:       s.req.Format,
		QualityUsed:  t.Quality,
		SizeKB:       t.SizeKB,
		MetTarget:    met,
		Trials:       s.trials,
		NonMonotonic: s.nonMonotonic,
	}
}
