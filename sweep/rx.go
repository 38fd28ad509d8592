package sweep

import (
	"github.com/golang/glog"

	"github.com/hb9tf/sweeper/sdr"
)

// writeErrorEvery limits how often failed writes are logged.
const writeErrorEvery = 1000

// handleTransfer is the sdr.TransferFunc the device calls for every
// completed transfer. A non-zero return asks the device to stop streaming.
func (s *State) handleTransfer(t *sdr.Transfer) int {
	l := s.locker()

	l.Lock()
	if !s.enter() {
		l.Unlock()
		return -1
	}
	onBlock := s.onBlock
	l.Unlock()
	defer s.transfers.Done()

	if onBlock != nil && onBlock(s, t) == Stop {
		l.Lock()
		s.onBlock = nil
		l.Unlock()
	}

	if s.sink == SinkWriter && s.out == nil {
		return -1
	}

	l.Lock()
	if s.status.Exiting || s.status.Run == Stopped {
		l.Unlock()
		return -1
	}
	// Without normalized timestamps every transfer is stamped on arrival,
	// as the device library does, not only the first one of the run.
	if !s.status.NormalizedTimestamp || s.transferTime.IsZero() {
		s.transferTime = s.now()
	}
	s.byteCount += uint64(t.ValidLength)
	l.Unlock()

	if len(s.ranges) == 0 {
		return -1
	}
	sweepStart := uint64(s.ranges[0].MinMHz) * sdr.FreqOneMHz
	ceiling := uint64(sdr.FreqMaxMHz) * sdr.FreqOneMHz

	for i := 0; i < s.blocksPerTransfer; i++ {
		end := (i + 1) * sdr.BytesPerBlock
		if end > t.ValidLength || end > len(t.Buffer) {
			break
		}
		block := t.Buffer[i*sdr.BytesPerBlock : end]
		freq, ok := sdr.ParseBlockHeader(block)
		if !ok {
			glog.V(3).Infof("skipping block %d: bad header\n", i)
			continue
		}

		if freq == sweepStart {
			s.sweepBoundary()
		}

		l.Lock()
		st := s.status
		ts := s.transferTime
		onSpectrum := s.onSpectrum
		l.Unlock()

		if st.Exiting || st.Run == Stopped {
			return -1
		}
		if !st.SweepStarted || freq > ceiling || st.BypassFFT || !s.engine.ready() {
			continue
		}

		s.engine.analyze(block)
		s.spectrum.fill(&s.engine, freq, s.sampleRate, ts)

		if onSpectrum != nil && onSpectrum(s, &s.spectrum, t) == Stop {
			l.Lock()
			s.onSpectrum = nil
			l.Unlock()
		}

		var err error
		switch s.mode {
		case OutputText:
			if s.sink == SinkWriter {
				err = s.enc.writeText(s.out, &s.spectrum)
			}
		case OutputBinary:
			if s.sink == SinkWriter {
				err = s.enc.writeBinary(s.out, &s.spectrum)
			}
		case OutputInverse:
			s.engine.splice(freq, sweepStart)
		}
		if err != nil {
			s.writeFailed(freq, err)
		}
	}
	return 0
}

// enter registers a pipeline call if the state is running. Callers hold
// the lock.
func (s *State) enter() bool {
	st := s.status
	if st.Lifecycle != Initialized || st.Run == Stopped || st.Exiting {
		return false
	}
	s.transfers.Add(1)
	return true
}

// sweepBoundary runs when a block tuned to the start of the first range
// arrives. It finishes the previous sweep, if there was one, and decides
// whether the run is over.
func (s *State) sweepBoundary() {
	l := s.locker()
	l.Lock()
	if s.status.Exiting || s.status.Run == Stopped {
		l.Unlock()
		return
	}
	completed := s.status.SweepStarted
	bypass := s.status.BypassFFT
	l.Unlock()

	if completed && !bypass && s.mode == OutputInverse {
		if samples := s.engine.reconstruct(); samples != nil && s.sink == SinkWriter {
			if err := s.enc.writeInverse(s.out, samples); err != nil {
				s.writeFailed(0, err)
			}
		}
	}

	l.Lock()
	defer l.Unlock()
	// A Stop that landed during reconstruction already reset the counters.
	if s.status.Exiting || s.status.Run == Stopped {
		return
	}
	if completed {
		s.sweepCount++
		if s.status.NormalizedTimestamp {
			s.transferTime = s.now()
		}
		switch s.status.Finiteness {
		case OneShot:
			s.status.Exiting = true
		case Finite:
			if s.sweepCount >= s.maxSweeps {
				s.status.Exiting = true
			}
		}
	}
	s.status.SweepStarted = true
}

func (s *State) writeFailed(freq uint64, err error) {
	if s.writeErrors%writeErrorEvery == 0 {
		glog.Warningf("unable to write output for %d Hz (%d failures so far): %s\n", freq, s.writeErrors+1, err)
	}
	s.writeErrors++
}
