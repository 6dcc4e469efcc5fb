package report

import (
	"fmt"
	"io"

	"github.com/foxboron/go-uefi-sct/sct/assert"
)

// Stream returns a sink printing one line per record as it is made.
func Stream(w io.Writer) assert.Sink {
	return assert.SinkFunc(func(r assert.Record) error {
		_, err := fmt.Fprintf(w, "%s %s %s\n", r.Outcome, r.ID, r.Title)
		return err
	})
}
