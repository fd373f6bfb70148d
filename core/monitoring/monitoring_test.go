package monitoring

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMonitor struct {
	errs    []error
	tags    []map[string]string
	flushed bool
}

func (r *recordingMonitor) CaptureException(err error, tags map[string]string) {
	r.errs = append(r.errs, err)
	r.tags = append(r.tags, tags)
}

func (r *recordingMonitor) Flush(time.Duration) { r.flushed = true }

func TestCaptureRoutesToCurrentMonitor(t *testing.T) {
	rec := &recordingMonitor{}
	Init(rec)
	t.Cleanup(func() { Init(nil) })

	CaptureException(errors.New("boom"), map[string]string{"component": "dispatcher"})
	CaptureException(nil, nil)
	Flush(time.Second)

	require.Len(t, rec.errs, 1)
	assert.Equal(t, "dispatcher", rec.tags[0]["component"])
	assert.True(t, rec.flushed)
}

func TestCapturePanic(t *testing.T) {
	rec := &recordingMonitor{}
	Init(rec)
	t.Cleanup(func() { Init(nil) })

	var got error
	func() {
		defer func() {
			got = CapturePanic(recover(), nil)
		}()
		panic("taxi exploded")
	}()

	require.Error(t, got)
	assert.Contains(t, got.Error(), "taxi exploded")
	assert.Len(t, rec.errs, 1)
	assert.NoError(t, CapturePanic(nil, nil))
}
