package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"math/rand/v2"
	"net"
	"strings"
	"testing"

	"github.com/alan-christopher/qkdsim/qkd"
	"github.com/alan-christopher/qkdsim/qkd/bitmap"
	"github.com/alan-christopher/qkdsim/qkd/protocol"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

func testResult(id string, qber float64) qkd.Result {
	p := qkd.DefaultParams()
	p.CrossCheckFraction = qkd.Fraction(0.1)
	p.EnableLosses = true
	return qkd.Result{
		RunID:           uuid.MustParse(id),
		Protocol:        protocol.BB84,
		Params:          p,
		LossProbability: 0.5,
		RoundsRequested: 1000,
		RoundsSent:      500,
		SiftedLength:    250,
		CheckSize:       25,
		KeyLength:       225,
		KeyRate:         225000,
		QBER:            &qber,
	}
}

var (
	resA = testResult("6f1c8a4e-2b1d-4c55-9a7e-0d3f5b2e9c01", 0.02)
	resB = testResult("0b8e2d77-51c3-4f1a-8e6d-7c9a4b3e2f10", 0)
)

func TestParseFormat(t *testing.T) {
	for _, f := range Formats {
		got, err := ParseFormat(strings.ToUpper(string(f)))
		require.NoError(t, err)
		assert.Equal(t, f, got)
	}
	_, err := ParseFormat("xml")
	assert.Error(t, err)
}

func TestRow(t *testing.T) {
	r := NewRow(resA)
	assert.Len(t, r.Strings(), len(Columns))
	assert.Equal(t, "BB84", r.Protocol)
	assert.Equal(t, 1000, r.NBits)
	assert.Equal(t, "truncate", r.LossMode)
	assert.Equal(t, "", r.Strings()[len(Columns)-1], "absent S")
	assert.Len(t, r.Map(), len(Columns))
}

func TestCSV(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(FormatCSV, &buf, nil)
	require.NoError(t, err)
	require.NoError(t, w.Write(resA))
	require.NoError(t, w.Write(resB))
	require.NoError(t, w.Close())

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, strings.Join(Columns, ", "), lines[0])
	for i, res := range []qkd.Result{resA, resB} {
		want := strings.Join(NewRow(res).Strings(), ", ")
		if lines[i+1] != want {
			t.Errorf("line %d: got %q, want %q", i+1, lines[i+1], want)
		}
	}
}

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(FormatJSON, &buf, nil)
	require.NoError(t, err)
	require.NoError(t, w.Write(resA))
	require.NoError(t, w.Write(resB))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &got))
	assert.Equal(t, resA.RunID.String(), got["run_id"])
	assert.Equal(t, 0.02, got["qber"])
	assert.Equal(t, 225.0, got["key_length"])
	assert.Contains(t, got, "s")
	assert.Nil(t, got["s"])
}

func TestMsgpack(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(FormatMsgpack, &buf, nil)
	require.NoError(t, err)
	require.NoError(t, w.Write(resA))
	require.NoError(t, w.Write(resB))

	dec := msgpack.NewDecoder(&buf)
	for _, res := range []qkd.Result{resA, resB} {
		var got Row
		require.NoError(t, dec.Decode(&got))
		assert.Equal(t, NewRow(res), got)
	}
}

func TestTable(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(FormatTable, &buf, nil)
	require.NoError(t, err)
	require.NoError(t, w.Write(resA))
	assert.Zero(t, buf.Len(), "tables render on Close")
	require.NoError(t, w.Close())
	out := buf.String()
	assert.Contains(t, out, "KeyLength")
	assert.Contains(t, out, "225000")
	assert.Contains(t, out, resA.RunID.String())

	buf.Reset()
	require.NoError(t, w.Write(resA))
	require.NoError(t, w.Write(resB))
	require.NoError(t, w.Close())
	out = buf.String()
	assert.Contains(t, out, resA.RunID.String())
	assert.Contains(t, out, resB.RunID.String())
}

func TestRecordNulls(t *testing.T) {
	rec, err := Record(resA)
	require.NoError(t, err)
	_, isNull := rec.Fields["s"].GetKind().(*structpb.Value_NullValue)
	assert.True(t, isNull)
	assert.Equal(t, 0.02, rec.Fields["qber"].GetNumberValue())
	assert.Equal(t, 0.1, rec.Fields["cross_check_fraction"].GetNumberValue())
}

func newKey(seed uint64, n int) []byte {
	rng := rand.New(rand.NewPCG(seed, 0))
	key := make([]byte, n)
	for i := range key {
		key[i] = byte(rng.UintN(256))
	}
	return key
}

func TestFramedRoundTrip(t *testing.T) {
	tag := NewToeplitz(newKey(1, 8192), 40)
	tcs := []struct {
		name string
		tag  *Toeplitz
	}{
		{"untagged", nil},
		{"tagged", &tag},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			w, err := NewWriter(FormatProto, &buf, tc.tag)
			require.NoError(t, err)
			require.NoError(t, w.Write(resA))
			require.NoError(t, w.Write(resB))

			r := NewFramedReader(&buf, tc.tag)
			for _, res := range []qkd.Result{resA, resB} {
				got, err := r.Read()
				require.NoError(t, err)
				want, err := Record(res)
				require.NoError(t, err)
				if !proto.Equal(got, want) {
					t.Errorf("record mangled in transit: got %v, want %v", got, want)
				}
			}
			_, err = r.Read()
			assert.Equal(t, io.EOF, err)
		})
	}
}

func TestFramedOverPipe(t *testing.T) {
	l, r := net.Pipe()
	tag := NewToeplitz(newKey(2, 8192), 32)
	w, err := NewFramedWriter(l, &tag)
	require.NoError(t, err)
	rd := NewFramedReader(r, &tag)
	want, err := Record(resA)
	require.NoError(t, err)

	// net.Pipe() doesn't do any sort of buffering, so we perform these
	// operations asynchronously.
	wErr := make(chan error, 1)
	go func() { wErr <- w.WriteMessage(want) }()
	got, err := rd.Read()
	require.NoError(t, err)
	require.NoError(t, <-wErr)
	assert.True(t, proto.Equal(want, got))
}

func TestFramedTagMismatch(t *testing.T) {
	var buf bytes.Buffer
	wTag := NewToeplitz(newKey(3, 8192), 40)
	rTag := NewToeplitz(newKey(4, 8192), 40)
	w, err := NewFramedWriter(&buf, &wTag)
	require.NoError(t, err)
	require.NoError(t, w.Write(resA))
	_, err = NewFramedReader(&buf, &rTag).Read()
	assert.True(t, errors.Is(err, ErrTagMismatch), "got %v", err)
}

func TestNewFramedWriterErrors(t *testing.T) {
	_, err := NewFramedWriter(nil, nil)
	assert.Error(t, err)
	empty := NewToeplitz(nil, 0)
	_, err = NewFramedWriter(io.Discard, &empty)
	assert.Error(t, err)
}

func TestFramedWriterKeySize(t *testing.T) {
	need := KeyBytesFor(64, MaxTaggedRecordBytes)
	if need != 2056 {
		t.Errorf("KeyBytesFor(64, %d) == %d, want 2056", MaxTaggedRecordBytes, need)
	}
	tcs := []struct {
		name    string
		keyLen  int
		wantErr bool
	}{
		{name: "short", keyLen: 64, wantErr: true},
		{name: "one byte short", keyLen: need - 1, wantErr: true},
		{name: "exact", keyLen: need},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			tag := NewToeplitz(newKey(8, tc.keyLen), 64)
			w, err := NewFramedWriter(io.Discard, &tag)
			if tc.wantErr {
				assert.ErrorContains(t, err, "tag key too short")
				return
			}
			require.NoError(t, err)
			assert.NoError(t, w.Write(resA))
		})
	}
}

func TestToeplitzMul(t *testing.T) {
	tcs := []struct {
		key  []byte
		m    int
		vec  string
		want string
	}{
		{[]byte{0x0b}, 2, "101", "01"},
		{[]byte{0x0b}, 1, "1", "1"},
		{[]byte{0xff}, 3, "11", "000"},
		{[]byte{0xff}, 3, "111", "111"},
	}
	for _, tc := range tcs {
		vec, err := bitmap.FromString(tc.vec)
		require.NoError(t, err)
		want, err := bitmap.FromString(tc.want)
		require.NoError(t, err)
		got, err := NewToeplitz(tc.key, tc.m).Mul(vec)
		require.NoError(t, err)
		if !bitmap.Equal(got, want) {
			t.Errorf("Mul(%s) with key %x: got %v, want %v", tc.vec, tc.key, got, want)
		}
	}

	_, err := NewToeplitz([]byte{0x01}, 4).Mul(bitmap.NewDense(nil, 6))
	assert.Error(t, err, "key too short")
}

func TestToeplitzLinear(t *testing.T) {
	tp := NewToeplitz(newKey(5, 64), 24)
	a := bitmap.NewDense(newKey(6, 32), -1)
	b := bitmap.NewDense(newKey(7, 32), -1)
	ha, err := tp.Mul(a)
	require.NoError(t, err)
	hb, err := tp.Mul(b)
	require.NoError(t, err)
	hab, err := tp.Mul(bitmap.XOr(a, b))
	require.NoError(t, err)
	assert.True(t, bitmap.Equal(hab, bitmap.XOr(ha, hb)))
}
