package assert_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sctassert "github.com/foxboron/go-uefi-sct/sct/assert"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestRecorderAppendsInOrder(t *testing.T) {
	r := sctassert.NewRecorder(discard())
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	r.Record(sctassert.Record{ID: ids[0], Outcome: sctassert.Passed, Title: "a"})
	r.Record(sctassert.Record{ID: ids[1], Outcome: sctassert.Failed, Title: "b"})
	mark := r.Len()
	r.Record(sctassert.Record{ID: ids[2], Outcome: sctassert.Warning, Title: "c"})

	recs := r.Records()
	require.Len(t, recs, 3)
	for i, rec := range recs {
		assert.Equal(t, ids[i], rec.ID)
		assert.False(t, rec.Time.IsZero())
	}
	assert.Equal(t, sctassert.Counts{Passed: 1, Failed: 1, Warning: 1}, r.Summary())
	require.Len(t, r.Since(mark), 1)
	assert.Empty(t, r.Since(10))
}

func TestRecorderSinkFailureIsSwallowed(t *testing.T) {
	var got []sctassert.Record
	failing := sctassert.SinkFunc(func(sctassert.Record) error { return errors.New("disk full") })
	panicking := sctassert.SinkFunc(func(sctassert.Record) error { panic("boom") })
	collecting := sctassert.SinkFunc(func(r sctassert.Record) error {
		got = append(got, r)
		return nil
	})
	r := sctassert.NewRecorder(discard(), failing, panicking, collecting)

	r.Record(sctassert.Record{ID: uuid.New(), Outcome: sctassert.Passed})

	assert.Len(t, r.Records(), 1)
	assert.Len(t, got, 1)
}

func TestRecorderContextIsCopied(t *testing.T) {
	r := sctassert.NewRecorder(discard())
	ctx := map[string]any{"status": "EFI_SUCCESS"}
	r.Record(sctassert.Record{ID: uuid.New(), Context: ctx})
	ctx["status"] = "changed"
	assert.Equal(t, "EFI_SUCCESS", r.Records()[0].Context["status"])
}

func TestRecorderAttachesMessages(t *testing.T) {
	r := sctassert.NewRecorder(discard())
	r.Message(slog.LevelInfo, "StructureVersion %d.%d", 1, 1)
	r.Record(sctassert.Record{ID: uuid.New(), Message: "observed"})
	r.Record(sctassert.Record{ID: uuid.New()})

	recs := r.Records()
	assert.Equal(t, "StructureVersion 1.1\nobserved", recs[0].Message)
	assert.Empty(t, recs[1].Message)
}

func TestOutcomeJSON(t *testing.T) {
	b, err := json.Marshal(sctassert.Record{Outcome: sctassert.Warning})
	require.NoError(t, err)
	var back sctassert.Record
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, sctassert.Warning, back.Outcome)
	assert.Contains(t, string(b), `"outcome":"WARN"`)
}
