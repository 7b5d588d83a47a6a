package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
)

// Domain prefixes for content hashes.
// Version suffix enables future algorithm migration.
const (
	DomainRecord     = "reljoin/record/v1"
	DomainResult     = "reljoin/result/v1"
	DomainDescriptor = "reljoin/descriptor/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// RecordHash computes the content hash of a single record.
// Two records hash equal iff their canonical JSON is equal: key order never
// matters, Int(1) and Real(1) agree, Int(1) and Text("1") do not.
func RecordHash(rec Record) (string, error) {
	canonical, err := MarshalCanonical(rec)
	if err != nil {
		return "", fmt.Errorf("RecordHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainRecord, canonical), nil
}

// ResultHash computes an order-insensitive hash of a row multiset.
// Duplicates count: {r, r} and {r} hash differently.
func ResultHash(rows []Record) (string, error) {
	hashes, err := RecordHashes(rows)
	if err != nil {
		return "", err
	}
	slices.Sort(hashes)

	canonical, err := MarshalCanonical(hashes)
	if err != nil {
		return "", fmt.Errorf("ResultHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainResult, canonical), nil
}

// RecordHashes returns the hash of every row, in row order.
func RecordHashes(rows []Record) ([]string, error) {
	hashes := make([]string, len(rows))
	for i, row := range rows {
		h, err := RecordHash(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		hashes[i] = h
	}
	return hashes, nil
}

// MustRecordHash is like RecordHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustRecordHash(rec Record) string {
	h, err := RecordHash(rec)
	if err != nil {
		panic(err)
	}
	return h
}
