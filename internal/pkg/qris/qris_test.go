package qris

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecksumKnownVector(t *testing.T) {
	// CRC-16/X.25 check value
	assert.Equal(t, uint16(0x906E), Checksum([]byte("123456789")))
}

func buildStaticPayload(t *testing.T, withAmount bool) string {
	t.Helper()

	records := []Record{
		{Tag: "00", Value: "01"},
		{Tag: "01", Value: "11"},
		{Tag: "26", Value: "0016ID.CO.QRIS.WWW0215ID1234567890123"},
		{Tag: "52", Value: "5999"},
		{Tag: "53", Value: "360"},
	}
	if withAmount {
		records = append(records, Record{Tag: "54", Value: "1500"})
	}
	records = append(records,
		Record{Tag: "58", Value: "ID"},
		Record{Tag: "59", Value: "WARUNG KOPI"},
		Record{Tag: "60", Value: "JAKARTA"},
	)

	body := Render(records) + "6304"
	return body + fmt.Sprintf("%04X", Checksum([]byte(body)))
}

func TestParseRenderRoundTrip(t *testing.T) {
	payload := buildStaticPayload(t, true)

	records, err := Parse(payload)
	require.NoError(t, err)
	assert.Equal(t, payload, Render(records))
}

func TestParseMalformed(t *testing.T) {
	cases := []string{
		"",
		"00",          // truncated header
		"0005AB",      // length longer than remainder
		"00XY12",      // non-numeric length
		"000201019x1", // garbage tail
	}
	for _, payload := range cases {
		_, err := Parse(payload)
		assert.Error(t, err, "payload %q", payload)
	}
}

func TestValidate(t *testing.T) {
	payload := buildStaticPayload(t, false)
	require.NoError(t, Validate(payload))

	// Lowercase checksum digits are accepted.
	require.NoError(t, Validate(payload[:len(payload)-4]+strings.ToLower(payload[len(payload)-4:])))

	// Any payload mutation breaks the checksum.
	tampered := strings.Replace(payload, "WARUNG", "WARUNK", 1)
	assert.ErrorIs(t, Validate(tampered), ErrInvalidChecksum)

	// Missing trailing CRC record.
	assert.Error(t, Validate(Render([]Record{{Tag: "00", Value: "01"}})))
}

func TestInjectAmountInsertsBeforeCountryCode(t *testing.T) {
	payload := buildStaticPayload(t, false)

	dynamic, err := InjectAmount(payload, 10001)
	require.NoError(t, err)
	require.NoError(t, Validate(dynamic))

	records, err := Parse(dynamic)
	require.NoError(t, err)

	tags := make([]string, 0, len(records))
	var amount string
	var mode string
	for _, r := range records {
		tags = append(tags, r.Tag)
		switch r.Tag {
		case TagAmount:
			amount = r.Value
		case TagPointOfInitiation:
			mode = r.Value
		}
	}

	assert.Equal(t, "10001", amount)
	assert.Equal(t, "12", mode)

	idx54 := indexOf(tags, "54")
	idx58 := indexOf(tags, "58")
	require.GreaterOrEqual(t, idx54, 0)
	require.GreaterOrEqual(t, idx58, 0)
	assert.Equal(t, idx58-1, idx54)
}

func TestInjectAmountReplacesExisting(t *testing.T) {
	payload := buildStaticPayload(t, true)

	dynamic, err := InjectAmount(payload, 250500)
	require.NoError(t, err)
	require.NoError(t, Validate(dynamic))

	records, err := Parse(dynamic)
	require.NoError(t, err)
	count := 0
	for _, r := range records {
		if r.Tag == TagAmount {
			count++
			assert.Equal(t, "250500", r.Value)
		}
	}
	assert.Equal(t, 1, count)
}

func TestInjectAmountDeterministic(t *testing.T) {
	payload := buildStaticPayload(t, false)

	first, err := InjectAmount(payload, 9999)
	require.NoError(t, err)
	second, err := InjectAmount(payload, 9999)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestInjectAmountRejectsNonPositive(t *testing.T) {
	payload := buildStaticPayload(t, false)

	_, err := InjectAmount(payload, 0)
	assert.Error(t, err)
	_, err = InjectAmount(payload, -5)
	assert.Error(t, err)
}

func indexOf(list []string, want string) int {
	for i, v := range list {
		if v == want {
			return i
		}
	}
	return -1
}
