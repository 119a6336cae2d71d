package object

import (
	"bytes"
	"sort"
)

// splitLines splits data after every '\n', keeping the terminators. A final
// unterminated line is returned as is.
func splitLines(data []byte) [][]byte {
	if len(data) == 0 {
		return nil
	}
	lines := make([][]byte, 0, bytes.Count(data, []byte{'\n'})+1)
	for len(data) > 0 {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			lines = append(lines, data)
			break
		}
		lines = append(lines, data[:i+1])
		data = data[i+1:]
	}
	return lines
}

// ComputeDelta builds a delta that turns base into target. It matches
// target lines against base lines, scanning forward from the last base line
// consumed: a matched line becomes a copy, an unmatched one an insert.
// Adjacent copies are merged and consecutive inserts concatenated.
func ComputeDelta(base, target []byte) []byte {
	out := EncodeSize(uint64(len(base)))
	out = append(out, EncodeSize(uint64(len(target)))...)

	baseLines := splitLines(base)
	offsets := make([]uint64, len(baseLines))
	positions := make(map[string][]int, len(baseLines))
	var off uint64
	for i, line := range baseLines {
		offsets[i] = off
		off += uint64(len(line))
		positions[string(line)] = append(positions[string(line)], i)
	}

	var (
		cursor     int
		copyOff    uint64
		copySize   uint64
		pendingIns []byte
	)
	flushCopy := func() {
		if copySize > 0 {
			out = appendCopy(out, copyOff, copySize)
			copySize = 0
		}
	}
	flushInsert := func() {
		if len(pendingIns) > 0 {
			out = appendInsert(out, pendingIns)
			pendingIns = pendingIns[:0]
		}
	}

	for _, line := range splitLines(target) {
		idx := nextPosition(positions[string(line)], cursor)
		if idx < 0 || offsets[idx]+uint64(len(line)) > maxCopyOffset {
			flushCopy()
			pendingIns = append(pendingIns, line...)
			continue
		}
		flushInsert()
		lineOff := offsets[idx]
		if copySize > 0 && copyOff+copySize == lineOff {
			copySize += uint64(len(line))
		} else {
			flushCopy()
			copyOff = lineOff
			copySize = uint64(len(line))
		}
		cursor = idx + 1
	}
	flushCopy()
	flushInsert()
	return out
}

// nextPosition returns the first element of the ascending list ps that is
// >= from, or -1.
func nextPosition(ps []int, from int) int {
	i := sort.SearchInts(ps, from)
	if i == len(ps) {
		return -1
	}
	return ps[i]
}

// lineShare returns the fraction of lines the two inputs have in common,
// counting each base line at most once, over the larger line count.
func lineShare(base, target []byte) float64 {
	baseLines := splitLines(base)
	targetLines := splitLines(target)
	larger := len(baseLines)
	if len(targetLines) > larger {
		larger = len(targetLines)
	}
	if larger == 0 {
		return 1
	}
	counts := make(map[string]int, len(baseLines))
	for _, line := range baseLines {
		counts[string(line)]++
	}
	matched := 0
	for _, line := range targetLines {
		if counts[string(line)] > 0 {
			counts[string(line)]--
			matched++
		}
	}
	return float64(matched) / float64(larger)
}
