package core

import (
	"time"

	"github.com/mus-format/mus-go"
	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
)

// LedgerEntryMUS serializes LedgerEntry values in the MUS format for
// storage. DeliveredAt is encoded as unix seconds; sub-second precision
// does not survive a round trip.
var LedgerEntryMUS = ledgerEntryMUS{}

var _ mus.Serializer[LedgerEntry] = LedgerEntryMUS

type ledgerEntryMUS struct{}

func (s ledgerEntryMUS) Marshal(e LedgerEntry, bs []byte) (n int) {
	n = ord.String.Marshal(e.ChunkID, bs)
	n += varint.Int64.Marshal(e.DeliveredAt.Unix(), bs[n:])
	n += varint.Int.Marshal(e.Attempts, bs[n:])
	return n
}

func (s ledgerEntryMUS) Unmarshal(bs []byte) (e LedgerEntry, n int, err error) {
	var n1 int

	e.ChunkID, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}

	var sec int64
	sec, n1, err = varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	e.DeliveredAt = time.Unix(sec, 0).UTC()

	e.Attempts, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	return
}

func (s ledgerEntryMUS) Size(e LedgerEntry) (size int) {
	size = ord.String.Size(e.ChunkID)
	size += varint.Int64.Size(e.DeliveredAt.Unix())
	size += varint.Int.Size(e.Attempts)
	return size
}

func (s ledgerEntryMUS) Skip(bs []byte) (n int, err error) {
	var n1 int

	n, err = ord.String.Skip(bs)
	if err != nil {
		return
	}

	n1, err = varint.Int64.Skip(bs[n:])
	n += n1
	if err != nil {
		return
	}

	n1, err = varint.Int.Skip(bs[n:])
	n += n1
	return
}
