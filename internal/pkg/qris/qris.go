package qris

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// EMV-style TLV payload handling for QRIS payloads. Records carry a two-digit
// ASCII tag, a two-digit ASCII length and the value. Order is preserved so a
// parsed payload renders back byte-identical.

const (
	TagPointOfInitiation = "01"
	TagAmount            = "54"
	TagCountryCode       = "58"
	TagCRC               = "63"

	pointOfInitiationStatic  = "11"
	pointOfInitiationDynamic = "12"
)

var (
	ErrInvalidPayload  = errors.New("qris: malformed TLV payload")
	ErrInvalidChecksum = errors.New("qris: checksum mismatch")
)

// Record is a single TLV entry.
type Record struct {
	Tag   string
	Value string
}

// Parse splits payload into ordered TLV records.
func Parse(payload string) ([]Record, error) {
	var records []Record
	for i := 0; i < len(payload); {
		if i+4 > len(payload) {
			return nil, ErrInvalidPayload
		}
		tag := payload[i : i+2]
		length, err := strconv.Atoi(payload[i+2 : i+4])
		if err != nil || length < 0 {
			return nil, ErrInvalidPayload
		}
		if i+4+length > len(payload) {
			return nil, ErrInvalidPayload
		}
		records = append(records, Record{Tag: tag, Value: payload[i+4 : i+4+length]})
		i += 4 + length
	}
	if len(records) == 0 {
		return nil, ErrInvalidPayload
	}
	return records, nil
}

// Render serializes records back into the wire form.
func Render(records []Record) string {
	var b strings.Builder
	for _, r := range records {
		b.WriteString(r.Tag)
		b.WriteString(fmt.Sprintf("%02d", len(r.Value)))
		b.WriteString(r.Value)
	}
	return b.String()
}

// Validate recomputes the trailing CRC of a static source payload and compares
// it case-insensitively against the embedded tag 63 value.
func Validate(payload string) error {
	records, err := Parse(payload)
	if err != nil {
		return err
	}
	last := records[len(records)-1]
	if last.Tag != TagCRC || len(last.Value) != 4 {
		return ErrInvalidChecksum
	}
	// Everything up to and including the "6304" header is covered.
	covered := payload[:len(payload)-4]
	want := fmt.Sprintf("%04X", Checksum([]byte(covered)))
	if !strings.EqualFold(want, last.Value) {
		return ErrInvalidChecksum
	}
	return nil
}

// InjectAmount derives a dynamic payload from a static source: the amount is
// written at tag 54 (inserted before tag 58 when absent), tag 01 is switched
// to merchant-presented dynamic mode, and the tag 63 checksum is recomputed.
// Amounts are whole currency units, rendered without separators.
func InjectAmount(payload string, amount int64) (string, error) {
	if amount <= 0 {
		return "", fmt.Errorf("qris: non-positive amount %d", amount)
	}
	records, err := Parse(payload)
	if err != nil {
		return "", err
	}

	value := strconv.FormatInt(amount, 10)
	out := make([]Record, 0, len(records)+1)
	injected := false
	for _, r := range records {
		switch r.Tag {
		case TagCRC:
			// Stripped; reappended after recomputation.
			continue
		case TagPointOfInitiation:
			if r.Value == pointOfInitiationStatic {
				r.Value = pointOfInitiationDynamic
			}
		case TagAmount:
			r.Value = value
			injected = true
		case TagCountryCode:
			if !injected {
				out = append(out, Record{Tag: TagAmount, Value: value})
				injected = true
			}
		}
		out = append(out, r)
	}
	if !injected {
		out = append(out, Record{Tag: TagAmount, Value: value})
	}

	body := Render(out) + TagCRC + "04"
	return body + fmt.Sprintf("%04X", Checksum([]byte(body))), nil
}
