package state

import (
	"encoding/binary"
	"sort"

	"github.com/OneOfOne/xxhash"
)

// computeHash feeds every field a condition can read into xxhash. Map keys are
// sorted so equal snapshots always hash equally.
func computeHash(s *Snapshot) uint64 {
	h := xxhash.New64()
	var buf [8]byte

	writeInt := func(v int64) {
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		h.Write(buf[:])
	}
	writeStr := func(v string) {
		writeInt(int64(len(v)))
		h.WriteString(v)
	}
	writeCard := func(c Card) {
		writeStr(c.ID)
		writeStr(c.Element)
		writeInt(int64(c.Lifetime))
		keys := make([]string, 0, len(c.Aspects))
		for k := range c.Aspects {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		writeInt(int64(len(keys)))
		for _, k := range keys {
			writeStr(k)
			writeInt(int64(c.Aspects[k]))
		}
	}

	if s.Running {
		writeInt(1)
	} else {
		writeInt(0)
	}

	writeInt(int64(len(s.Cards)))
	for _, c := range s.Cards {
		writeCard(c)
	}

	writeInt(int64(len(s.Situations)))
	for _, sit := range s.Situations {
		writeStr(sit.ID)
		writeStr(string(sit.State))
		writeStr(sit.Recipe)
		writeInt(int64(sit.TimeRemaining))
		writeInt(int64(len(sit.Slots)))
		for _, sl := range sit.Slots {
			writeStr(sl.ID)
			writeStr(sl.Card)
		}
		writeInt(int64(len(sit.Output)))
		for _, c := range sit.Output {
			writeCard(c)
		}
	}

	if s.Mansus != nil {
		writeInt(1)
		writeStr(s.Mansus.Situation)
		writeInt(int64(len(s.Mansus.Faces)))
		for _, f := range s.Mansus.Faces {
			writeStr(f)
		}
	} else {
		writeInt(0)
	}

	return h.Sum64()
}
