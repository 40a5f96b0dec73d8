package batch

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_SingleRow(t *testing.T) {
	t.Parallel()

	rows, err := Parse([]byte("hdr\n1,Widget,http://a/1.png;http://a/2.png\n"))
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.NoError(t, row.ParseErr)
	assert.Equal(t, 0, row.Ordinal)
	assert.Equal(t, "1", row.SerialNumber)
	assert.Equal(t, "Widget", row.ProductName)
	assert.Equal(t, []string{"http://a/1.png", "http://a/2.png"}, row.InputURLs)
}

func TestParse_SkipsBlankLinesAndHeader(t *testing.T) {
	t.Parallel()

	payload := "\n   \nS. No.,Product Name,Input Image Urls\r\n\n1,A,http://a/1.png\r\n  \n2,B,http://b/1.png\n"
	rows, err := Parse([]byte(payload))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "A", rows[0].ProductName)
	assert.Equal(t, 0, rows[0].Ordinal)
	assert.Equal(t, "B", rows[1].ProductName)
	assert.Equal(t, 1, rows[1].Ordinal)
	assert.Equal(t, []string{"http://b/1.png"}, rows[1].InputURLs)
}

func TestParse_HeaderOnly(t *testing.T) {
	t.Parallel()

	rows, err := Parse([]byte("hdr\n"))
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestParse_MalformedRowDoesNotAbortBatch(t *testing.T) {
	t.Parallel()

	payload := "hdr\n1,Widget\n2,Gadget,http://g/1.png\n3,Too,Many,Fields\n"
	rows, err := Parse([]byte(payload))
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.True(t, errors.Is(rows[0].ParseErr, ErrMalformedRow))
	assert.Equal(t, "Widget", rows[0].ProductName)
	assert.Equal(t, "1,Widget", rows[0].Raw)

	assert.NoError(t, rows[1].ParseErr)
	assert.Equal(t, []string{"http://g/1.png"}, rows[1].InputURLs)

	assert.True(t, errors.Is(rows[2].ParseErr, ErrMalformedRow))
}

func TestParse_QuotedProductName(t *testing.T) {
	t.Parallel()

	rows, err := Parse([]byte("hdr\n1,\"Widget, large\",http://a/1.png\n"))
	require.NoError(t, err)
	require.Len(t, rows, 1)

	assert.NoError(t, rows[0].ParseErr)
	assert.Equal(t, "Widget, large", rows[0].ProductName)
}

func TestParse_BrokenQuoteIsRowLevel(t *testing.T) {
	t.Parallel()

	rows, err := Parse([]byte("hdr\n1,\"Widget,http://a/1.png\n2,B,http://b/1.png\n"))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.True(t, errors.Is(rows[0].ParseErr, ErrMalformedRow))
	assert.NoError(t, rows[1].ParseErr)
}

func TestParse_EmptyURLSubfieldsAreKept(t *testing.T) {
	t.Parallel()

	rows, err := Parse([]byte("hdr\n1,Widget,http://a/1.png;;http://a/3.png;\n"))
	require.NoError(t, err)
	require.Len(t, rows, 1)

	assert.Equal(t, []string{"http://a/1.png", "", "http://a/3.png", ""}, rows[0].InputURLs)
}

func TestParse_BinaryPayload(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		payload []byte
	}{
		{name: "invalid utf8", payload: []byte{0xff, 0xfe, 0xfd, 0x00, 0x81}},
		{name: "nul bytes", payload: []byte("hdr\n1,A\x00,http://a/1.png\n")},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			rows, err := Parse(tc.payload)
			assert.ErrorIs(t, err, ErrUnparseable)
			assert.Nil(t, rows)
		})
	}
}

func TestSplitURLs(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{""}, SplitURLs(""))
	assert.Equal(t, []string{"http://a/1.png", "http://a/2.png"}, SplitURLs(" http://a/1.png ; http://a/2.png "))
}
