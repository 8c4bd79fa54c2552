package audio

import (
	"log/slog"
	"sync"
)

// Normalizer converts frames to a target format, logging once on the first
// mismatch. Create one per stream; it is not safe for shared use across
// goroutines.
type Normalizer struct {
	Target Format

	warnMismatch sync.Once
	warnCorrupt  sync.Once
}

// Normalize converts frame to the target format. Matching frames pass through
// unchanged. Frames with an odd byte count (corrupt int16 PCM) are dropped:
// the returned frame carries nil Data.
func (n *Normalizer) Normalize(frame Frame) Frame {
	if len(frame.Data)%2 != 0 {
		n.warnCorrupt.Do(func() {
			slog.Warn("audio: odd byte count in PCM frame, dropping",
				"bytes", len(frame.Data),
				"sample_rate", frame.SampleRate,
			)
		})
		return Frame{SampleRate: n.Target.SampleRate, Channels: n.Target.Channels, Timestamp: frame.Timestamp}
	}

	if frame.SampleRate == n.Target.SampleRate && frame.Channels == n.Target.Channels {
		return frame
	}

	n.warnMismatch.Do(func() {
		slog.Warn("audio: format mismatch, converting",
			"from_rate", frame.SampleRate, "from_channels", frame.Channels,
			"to_rate", n.Target.SampleRate, "to_channels", n.Target.Channels,
		)
	})

	pcm := frame.Data

	// Downmix before resampling so the resampler only ever sees mono.
	if frame.Channels == 2 && n.Target.Channels == 1 {
		pcm = StereoToMono(pcm)
	}
	if frame.SampleRate != n.Target.SampleRate {
		pcm = ResampleMono16(pcm, frame.SampleRate, n.Target.SampleRate)
	}
	if frame.Channels == 1 && n.Target.Channels == 2 {
		pcm = MonoToStereo(pcm)
	}

	return Frame{
		Data:       pcm,
		SampleRate: n.Target.SampleRate,
		Channels:   n.Target.Channels,
		Timestamp:  frame.Timestamp,
	}
}

// StereoToMono averages each interleaved L+R pair into one mono sample,
// clamping to the int16 range.
func StereoToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		l := int32(int16(pcm[i*4]) | int16(pcm[i*4+1])<<8)
		r := int32(int16(pcm[i*4+2]) | int16(pcm[i*4+3])<<8)
		avg := (l + r) / 2
		if avg > 32767 {
			avg = 32767
		} else if avg < -32768 {
			avg = -32768
		}
		out[i*2] = byte(avg)
		out[i*2+1] = byte(avg >> 8)
	}
	return out
}

// MonoToStereo duplicates each mono sample into an L+R pair.
func MonoToStereo(pcm []byte) []byte {
	out := make([]byte, (len(pcm)/2)*4)
	for i := 0; i+1 < len(pcm); i += 2 {
		j := i * 2
		out[j], out[j+1] = pcm[i], pcm[i+1]
		out[j+2], out[j+3] = pcm[i], pcm[i+1]
	}
	return out
}

// ResampleMono16 resamples mono int16 PCM from srcRate to dstRate using
// linear interpolation. Returns the input unchanged when the rates already
// match or the input is too short to resample.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstSamples {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)

		s0 := int16(pcm[idx*2]) | int16(pcm[idx*2+1])<<8
		s1 := s0
		if idx+1 < srcSamples {
			s1 = int16(pcm[(idx+1)*2]) | int16(pcm[(idx+1)*2+1])<<8
		}

		v := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}
