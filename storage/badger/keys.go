package badger

// Key prefixes for different data types
const (
	ledgerPrefix = "ledger:v1"
)

// makeLedgerKey generates a key for a delivered-chunk ledger entry.
func makeLedgerKey(chunkID string) []byte {
	return []byte(ledgerPrefix + ":" + chunkID)
}

// ledgerKeyPrefix returns the prefix covering all ledger entries.
func ledgerKeyPrefix() []byte {
	return []byte(ledgerPrefix + ":")
}

// chunkIDFromLedgerKey recovers the chunk ID from a ledger key.
func chunkIDFromLedgerKey(key []byte) string {
	return string(key[len(ledgerPrefix)+1:])
}
