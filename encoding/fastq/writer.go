package fastq

import (
	"bufio"
	"io"
)

// Writer writes FASTQ records. Output is buffered; call Flush when done.
type Writer struct {
	w   *bufio.Writer
	err error
}

// NewWriter creates a Writer on w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// Write writes r. An ID without a leading '@' gets one.
func (w *Writer) Write(r *Read) error {
	if len(r.ID) == 0 || r.ID[0] != '@' {
		w.writeString("@")
	}
	w.writeString(r.ID)
	w.writeString("\n")
	w.writeString(r.Seq)
	w.writeString("\n+\n")
	w.writeString(r.Qual)
	w.writeString("\n")
	return w.err
}

// Flush writes any buffered data to the underlying writer.
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	return w.w.Flush()
}

func (w *Writer) writeString(s string) {
	if w.err != nil {
		return
	}
	_, w.err = w.w.WriteString(s)
}
