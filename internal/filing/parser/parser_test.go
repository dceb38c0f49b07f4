package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatusMessage(t *testing.T) {
	t.Run("rejection with coded errors", func(t *testing.T) {
		data := []byte(`<?xml version="1.0"?>
<RERXStatus>
  <Status>Rejected</Status>
  <Errors>
    <Error code="E101">Transferee identification is missing</Error>
    <Error code="E204">Filing date precedes the regime start</Error>
  </Errors>
</RERXStatus>`)

		result, err := ParseStatusMessage(data)
		require.NoError(t, err)
		assert.Equal(t, StatusRejected, result.Status)
		require.Len(t, result.Errors, 2)
		assert.Equal(t, "E101: Transferee identification is missing", result.Errors[0])
		assert.Equal(t, "E204: Filing date precedes the regime start", result.Errors[1])
	})

	t.Run("acceptance", func(t *testing.T) {
		result, err := ParseStatusMessage([]byte(`<RERXStatus><Status>Accepted</Status></RERXStatus>`))
		require.NoError(t, err)
		assert.Equal(t, StatusAccepted, result.Status)
		assert.Empty(t, result.Errors)
	})

	t.Run("accepted with warnings keeps the warning texts", func(t *testing.T) {
		data := []byte(`<RERXStatus>
  <Status>Accepted With Warnings</Status>
  <Errors><Error code="W301">Ownership percentages do not sum to 100</Error></Errors>
</RERXStatus>`)

		result, err := ParseStatusMessage(data)
		require.NoError(t, err)
		assert.Equal(t, StatusAcceptedWithWarnings, result.Status)
		assert.Equal(t, []string{"W301: Ownership percentages do not sum to 100"}, result.Errors)
	})

	t.Run("status value is matched case-insensitively", func(t *testing.T) {
		for _, raw := range []string{"ACCEPTED", "accepted", " Accepted "} {
			result, err := ParseStatusMessage([]byte(`<RERXStatus><Status>` + raw + `</Status></RERXStatus>`))
			require.NoError(t, err, "status %q", raw)
			assert.Equal(t, StatusAccepted, result.Status)
		}
	})

	t.Run("namespace-prefixed elements still match", func(t *testing.T) {
		data := []byte(`<?xml version="1.0"?>
<ns1:RERXStatus xmlns:ns1="urn:regulator:rerx:response">
  <ns1:Status>Rejected</ns1:Status>
  <ns1:Errors><ns1:Error code="E101">Bad data</ns1:Error></ns1:Errors>
</ns1:RERXStatus>`)

		result, err := ParseStatusMessage(data)
		require.NoError(t, err)
		assert.Equal(t, StatusRejected, result.Status)
		assert.Equal(t, []string{"E101: Bad data"}, result.Errors)
	})

	t.Run("bare rejection gets a default reason", func(t *testing.T) {
		result, err := ParseStatusMessage([]byte(`<RERXStatus><Status>Rejected</Status></RERXStatus>`))
		require.NoError(t, err)
		require.Len(t, result.Errors, 1)
		assert.Contains(t, result.Errors[0], "rejected without detail")
	})

	t.Run("unknown status is an error", func(t *testing.T) {
		_, err := ParseStatusMessage([]byte(`<RERXStatus><Status>Pending</Status></RERXStatus>`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unknown status "Pending"`)
	})

	t.Run("missing status is an error", func(t *testing.T) {
		_, err := ParseStatusMessage([]byte(`<RERXStatus></RERXStatus>`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no status value")
	})

	t.Run("malformed XML is an error", func(t *testing.T) {
		_, err := ParseStatusMessage([]byte(`<RERXStatus><Status>Accepted`))
		require.Error(t, err)
	})

	t.Run("blank error entries are dropped", func(t *testing.T) {
		data := []byte(`<RERXStatus>
  <Status>Accepted</Status>
  <Errors><Error code="">   </Error></Errors>
</RERXStatus>`)
		result, err := ParseStatusMessage(data)
		require.NoError(t, err)
		assert.Empty(t, result.Errors)
	})
}

func TestParseAcknowledgment(t *testing.T) {
	t.Run("receipts keyed by activity sequence", func(t *testing.T) {
		data := []byte(`<?xml version="1.0"?>
<RERXAcknowledgment>
  <Activity SeqNum="1"><ReceiptID>RER-2026-000123</ReceiptID></Activity>
  <Activity SeqNum="2"><ReceiptID>RER-2026-000124</ReceiptID></Activity>
</RERXAcknowledgment>`)

		receipts, err := ParseAcknowledgment(data)
		require.NoError(t, err)
		assert.Equal(t, map[int64]string{
			1: "RER-2026-000123",
			2: "RER-2026-000124",
		}, receipts)
	})

	t.Run("nested receipt element is accepted", func(t *testing.T) {
		data := []byte(`<RERXAcknowledgment>
  <Activity SeqNum="1"><Receipt><ID>RER-2026-000125</ID></Receipt></Activity>
</RERXAcknowledgment>`)

		receipts, err := ParseAcknowledgment(data)
		require.NoError(t, err)
		assert.Equal(t, "RER-2026-000125", receipts[1])
	})

	t.Run("empty acknowledgment is an error", func(t *testing.T) {
		_, err := ParseAcknowledgment([]byte(`<RERXAcknowledgment></RERXAcknowledgment>`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no activities")
	})

	t.Run("activity without a receipt is an error", func(t *testing.T) {
		_, err := ParseAcknowledgment([]byte(`<RERXAcknowledgment><Activity SeqNum="1"></Activity></RERXAcknowledgment>`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no receipt identifier")
	})

	t.Run("non-positive sequence number is an error", func(t *testing.T) {
		_, err := ParseAcknowledgment([]byte(`<RERXAcknowledgment><Activity SeqNum="0"><ReceiptID>R1</ReceiptID></Activity></RERXAcknowledgment>`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid sequence number")
	})

	t.Run("malformed XML is an error", func(t *testing.T) {
		_, err := ParseAcknowledgment([]byte(`not xml at all`))
		require.Error(t, err)
	})
}
