package fastq

import (
	"bytes"
	"strings"
	"testing"

	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

const fq = `@NB500956:89:HW2FHBGX2:1:11101:25648:1069 1:N:0:ATCACG
ATACAGGCCTGANCCACTGTGCC
+
AAAAAEEEEEEE#EEAEEEEEEE
@loc1;size=3;
CTCAACTCTGAGNCAGACAGAAATACNTTTNNTNTGAGTTACA
+
AAAAAEEEEEEE#EEEEEEEEEEEEE#EEE##E#EEEEEEEEE
`

func scanAll(s string) ([]Read, error) {
	var (
		sc    = NewScanner(strings.NewReader(s))
		r     Read
		reads []Read
	)
	for sc.Scan(&r) {
		reads = append(reads, r)
	}
	return reads, sc.Err()
}

func TestScan(t *testing.T) {
	reads, err := scanAll(fq)
	assert.NoError(t, err)
	assert.EQ(t, len(reads), 2)
	expect.EQ(t, reads[0], Read{
		ID:   "@NB500956:89:HW2FHBGX2:1:11101:25648:1069 1:N:0:ATCACG",
		Seq:  "ATACAGGCCTGANCCACTGTGCC",
		Qual: "AAAAAEEEEEEE#EEAEEEEEEE",
	})
	expect.EQ(t, reads[0].Name(), "NB500956:89:HW2FHBGX2:1:11101:25648:1069")
	expect.EQ(t, reads[1].Name(), "loc1;size=3;")
}

func TestScanTolerant(t *testing.T) {
	crlf := strings.Replace(fq, "\n", "\r\n", -1)
	reads, err := scanAll("\n" + crlf + "\n\n")
	assert.NoError(t, err)
	expect.EQ(t, len(reads), 2)
	expect.EQ(t, reads[1].Seq, "CTCAACTCTGAGNCAGACAGAAATACNTTTNNTNTGAGTTACA")

	// No trailing newline.
	reads, err = scanAll(strings.TrimSuffix(fq, "\n"))
	assert.NoError(t, err)
	expect.EQ(t, len(reads), 2)

	long := strings.Repeat("ACGT", 100000)
	reads, err = scanAll("@x\n" + long + "\n+\n" + long + "\n")
	assert.NoError(t, err)
	expect.EQ(t, reads[0].Seq, long)
}

func TestScanErrors(t *testing.T) {
	for _, c := range []struct {
		in   string
		want error
	}{
		{"@a\nACGT\n+\n", ErrShort},
		{"@a\nACGT\n", ErrShort},
		{"a\nACGT\n+\nIIII\n", ErrInvalid},
		{"@a\nACGT\n-\nIIII\n", ErrInvalid},
		{"", nil},
	} {
		_, err := scanAll(c.in)
		expect.EQ(t, err, c.want, "input %q", c.in)
	}
}

func TestPairScanner(t *testing.T) {
	one := "@a/1\nACGT\n+\nIIII\n"
	n, err := CountPairs(strings.NewReader(one+one), strings.NewReader(one+one))
	assert.NoError(t, err)
	expect.EQ(t, n, 2)

	_, err = CountPairs(strings.NewReader(one+one), strings.NewReader(one))
	expect.EQ(t, err, ErrDiscordant)
	_, err = CountPairs(strings.NewReader(""), strings.NewReader(one))
	expect.EQ(t, err, ErrDiscordant)
}

func TestWriteRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	assert.NoError(t, w.Write(&Read{ID: "r1;size=2;", Seq: "ACGT", Qual: "IIII"}))
	assert.NoError(t, w.Write(&Read{ID: "@r2", Seq: "GG", Qual: "!!"}))
	assert.NoError(t, w.Flush())
	expect.EQ(t, buf.String(), "@r1;size=2;\nACGT\n+\nIIII\n@r2\nGG\n+\n!!\n")

	reads, err := scanAll(buf.String())
	assert.NoError(t, err)
	expect.EQ(t, reads[0].Name(), "r1;size=2;")
	expect.EQ(t, reads[1].Qual, "!!")
}
