package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// StateDigest hashes the clock, every trip's progress, the parking inventory, and the
// buses. Two worlds fed the same inputs must produce identical digests tick by tick.
func (w *World) StateDigest() string {
	h := sha256.New()
	var tmp [8]byte

	digestWriteU64(h, &tmp, uint64(w.tick))
	w.digestTrips(h, &tmp)
	w.digestParking(h, &tmp)
	w.digestBuses(h, &tmp)

	return hex.EncodeToString(h.Sum(nil))
}

func (w *World) digestTrips(h hashWriter, tmp *[8]byte) {
	digestWriteU64(h, tmp, uint64(len(w.pending)))
	for _, t := range w.pending {
		digestTrip(h, tmp, t)
	}
	digestWriteU64(h, tmp, uint64(len(w.active)))
	for _, t := range w.active {
		digestTrip(h, tmp, t)
	}
	digestWriteU64(h, tmp, uint64(w.finished))
}

func digestTrip(h hashWriter, tmp *[8]byte, t *trip) {
	digestWriteI64(h, tmp, int64(t.rec.ID))
	h.Write([]byte(t.rec.Mode))
	digestWriteU64(h, tmp, uint64(t.rec.Start))
	digestWriteI64(h, tmp, int64(t.rec.Ped))
	digestWriteI64(h, tmp, int64(t.rec.Car))
	digestWriteI64(h, tmp, int64(t.cur))
	digestWriteU64(h, tmp, uint64(t.legEnds))
}

func (w *World) digestParking(h hashWriter, tmp *[8]byte) {
	digestWriteU64(h, tmp, uint64(w.parking.Len()))
	w.parking.Each(func(pc ParkedCar) {
		digestWriteI64(h, tmp, int64(pc.Car))
		digestWriteI64(h, tmp, int64(pc.Spot.Lane))
		digestWriteI64(h, tmp, int64(pc.Spot.Idx))
		digestWriteI64(h, tmp, int64(pc.Owner))
		h.Write([]byte{boolByte(pc.HasOwner)})
	})
}

func (w *World) digestBuses(h hashWriter, tmp *[8]byte) {
	digestWriteU64(h, tmp, uint64(len(w.buses)))
	for _, b := range w.buses {
		digestWriteI64(h, tmp, int64(b.car))
		digestWriteI64(h, tmp, int64(b.next))
		digestWriteU64(h, tmp, uint64(b.arrives))
		digestWriteU64(h, tmp, uint64(len(b.riders)))
	}
}

func digestWriteU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteI64(h hashWriter, tmp *[8]byte, v int64) {
	digestWriteU64(h, tmp, uint64(v))
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

type hashWriter interface {
	Write(p []byte) (n int, err error)
}
