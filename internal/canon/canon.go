// Package canon canonicalizes a context snapshot into a deterministic byte
// stream and fingerprint, so the significance engine can compare two
// snapshots for equality without caring about field order, whitespace, or
// which wall-clock tick produced them.
//
// Canonicalization is a pure function: same input, same output, every time,
// on any machine. It never does I/O and never allocates network calls.
package canon

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"regexp"
	"sort"
	"strings"

	"github.com/heytcass/jasper/internal/model"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// normalizeText collapses runs of whitespace and trims the ends, so two
// otherwise-identical fields that only differ in incidental spacing
// canonicalize identically.
func normalizeText(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

// Order sorts items by (starts_at NULLS LAST, source_id, source_uid), a
// fixed comparator so two snapshots holding the same items in different
// fetch order canonicalize identically.
func Order(items []model.ContextItem) []model.ContextItem {
	ordered := make([]model.ContextItem, len(items))
	copy(ordered, items)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		switch {
		case a.StartsAt == nil && b.StartsAt != nil:
			return false
		case a.StartsAt != nil && b.StartsAt == nil:
			return true
		case a.StartsAt != nil && b.StartsAt != nil && !a.StartsAt.Equal(*b.StartsAt):
			return a.StartsAt.Before(*b.StartsAt)
		}
		if a.SourceID != b.SourceID {
			return a.SourceID < b.SourceID
		}
		return a.SourceUID < b.SourceUID
	})
	return ordered
}

// Redact returns a copy of item with the fields flagged as PII-bearing by
// the privacy config cleared; it never mutates item. The aggregator, the
// pipeline and Fingerprint do not call it, so the privacy settings do not
// change what is fingerprinted or sent to the LLM client.
func Redact(item model.ContextItem, redactLocation, redactDescription bool) model.ContextItem {
	out := item
	if redactLocation {
		out.Location = ""
	}
	if redactDescription {
		out.Description = ""
	}
	return out
}

// writeItem appends one item's canonical, length-prefixed fields to buf.
// taken_at is deliberately excluded: two snapshots with identical items but
// different capture times must fingerprint identically, or every tick would
// register as a change.
func writeItem(buf *strings.Builder, item model.ContextItem) {
	fields := []string{
		item.SourceID,
		item.SourceUID,
		item.Kind,
		normalizeText(item.Title),
		normalizeText(item.Description),
		normalizeText(item.Location),
	}
	if item.StartsAt != nil {
		fields = append(fields, item.StartsAt.UTC().Format("20060102T150405Z"))
	} else {
		fields = append(fields, "")
	}
	if item.EndsAt != nil {
		fields = append(fields, item.EndsAt.UTC().Format("20060102T150405Z"))
	} else {
		fields = append(fields, "")
	}

	keys := make([]string, 0, len(item.Metadata))
	for k := range item.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, k, item.Metadata[k])
	}

	for _, f := range fields {
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(f)))
		buf.Write(lenBuf[:])
		buf.WriteString(f)
	}
}

// Canonicalize orders and serializes a snapshot's items into a deterministic
// byte stream, excluding taken_at. Item fields are serialized as given; no
// privacy redaction is applied here.
func Canonicalize(items []model.ContextItem) string {
	ordered := Order(items)
	var buf strings.Builder
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(ordered)))
	buf.Write(countBuf[:])
	for _, item := range ordered {
		writeItem(&buf, item)
	}
	return buf.String()
}

// Fingerprint returns the hex-encoded SHA-256 digest of the canonical byte
// stream for items. Two snapshots with the same set of items, regardless of
// fetch order or capture time, produce the same fingerprint.
func Fingerprint(items []model.ContextItem) string {
	sum := sha256.Sum256([]byte(Canonicalize(items)))
	return hex.EncodeToString(sum[:])
}
