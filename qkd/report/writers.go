package report

import (
	"fmt"
	"io"

	"github.com/alan-christopher/qkdsim/qkd"
	"github.com/olekukonko/tablewriter"
	"github.com/vmihailenco/msgpack/v5"
	"google.golang.org/protobuf/encoding/protojson"
)

// jsonWriter writes one JSON object per line.
type jsonWriter struct {
	w io.Writer
}

func (j *jsonWriter) Write(res qkd.Result) error {
	rec, err := Record(res)
	if err != nil {
		return err
	}
	b, err := protojson.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(j.w, "%s\n", b)
	return err
}

func (j *jsonWriter) Close() error {
	return nil
}

// msgpackWriter writes a stream of msgpack maps.
type msgpackWriter struct {
	enc *msgpack.Encoder
}

func newMsgpackWriter(w io.Writer) *msgpackWriter {
	return &msgpackWriter{enc: msgpack.NewEncoder(w)}
}

func (m *msgpackWriter) Write(res qkd.Result) error {
	return m.enc.Encode(NewRow(res))
}

func (m *msgpackWriter) Close() error {
	return nil
}

// tableWriter buffers rows and renders them as a table on Close. A single
// result is rendered as one field per line.
type tableWriter struct {
	w    io.Writer
	rows []Row
}

func newTableWriter(w io.Writer) *tableWriter {
	return &tableWriter{w: w}
}

func (t *tableWriter) Write(res qkd.Result) error {
	t.rows = append(t.rows, NewRow(res))
	return nil
}

func (t *tableWriter) Close() error {
	if len(t.rows) == 0 {
		return nil
	}
	table := tablewriter.NewWriter(t.w)
	table.SetAutoWrapText(false)
	if len(t.rows) == 1 {
		table.SetHeader([]string{"Field", "Value"})
		for i, v := range t.rows[0].Strings() {
			table.Append([]string{Columns[i], v})
		}
	} else {
		table.SetHeader(Columns)
		for _, r := range t.rows {
			table.Append(r.Strings())
		}
	}
	table.Render()
	t.rows = nil
	return nil
}
