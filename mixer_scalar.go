package modrender

// These are the inner mixing loops. Each one mixes sample data from pos up to
// (but not including) epos into the mix buffer starting at cur, stepping
// through the sample by dr (16.16 fixed point) per output frame. They return
// the updated sample position and buffer cursor.
//
// WARNING: no clamping when mixing into mixbuffer. Clamping is applied when
// the block is converted to the output bit depth.

func mixMono(pos, epos, dr uint, cur, vol int, sample []int16, buffer []int) (uint, int) {
	for pos < epos {
		sd := int(sample[pos>>16])
		buffer[cur] += sd * vol

		pos += dr
		cur++
	}

	return pos, cur
}

func mixStereo(pos, epos, dr uint, cur, lvol, rvol int, sample []int16, buffer []int) (uint, int) {
	switch {
	case rvol == 0:
		// Fully panned left
		for pos < epos {
			buffer[cur] += int(sample[pos>>16]) * lvol

			pos += dr
			cur += 2
		}
	case lvol == 0:
		// Fully panned right
		for pos < epos {
			buffer[cur+1] += int(sample[pos>>16]) * rvol

			pos += dr
			cur += 2
		}
	default:
		for pos < epos {
			sd := int(sample[pos>>16])
			buffer[cur+0] += sd * lvol
			buffer[cur+1] += sd * rvol

			pos += dr
			cur += 2
		}
	}

	return pos, cur
}

// lerp blends the sample frame at pos with the one after it. tail is used as
// the following frame at the end of the sample data.
func lerp(pos uint, sample []int16, tail int) int {
	i := pos >> 16
	s0 := int(sample[i])
	s1 := tail
	if i+1 < uint(len(sample)) {
		s1 = int(sample[i+1])
	}
	frac := int(pos & 0xFFFF)
	return s0 + ((s1-s0)*frac)>>16
}

func mixMonoLinear(pos, epos, dr uint, cur, vol int, sample []int16, tail int, buffer []int) (uint, int) {
	for pos < epos {
		buffer[cur] += lerp(pos, sample, tail) * vol

		pos += dr
		cur++
	}

	return pos, cur
}

func mixStereoLinear(pos, epos, dr uint, cur, lvol, rvol int, sample []int16, tail int, buffer []int) (uint, int) {
	for pos < epos {
		sd := lerp(pos, sample, tail)
		buffer[cur+0] += sd * lvol
		buffer[cur+1] += sd * rvol

		pos += dr
		cur += 2
	}

	return pos, cur
}
