package audio

// downmix averages interleaved frames into a single channel.
func downmix(data []float32, channels int) []float32 {
	if channels <= 1 {
		return data
	}

	frames := len(data) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += data[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// resample converts between sample rates with linear interpolation. Speech models
// are tolerant of the mild aliasing this introduces.
func resample(in []float32, from, to int) []float32 {
	if from == to || len(in) == 0 || from <= 0 || to <= 0 {
		return in
	}

	n := int(int64(len(in)) * int64(to) / int64(from))
	if n == 0 {
		return nil
	}

	out := make([]float32, n)
	step := float64(from) / float64(to)
	last := len(in) - 1
	for i := range out {
		pos := float64(i) * step
		idx := int(pos)
		if idx >= last {
			out[i] = in[last]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = in[idx] + (in[idx+1]-in[idx])*frac
	}
	return out
}

func clamp(samples []float32) {
	for i, v := range samples {
		switch {
		case v > 1:
			samples[i] = 1
		case v < -1:
			samples[i] = -1
		}
	}
}
