package rabbitmq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/model"
)

func TestJobCodec(t *testing.T) {
	job := model.IngestJob{DocumentID: "d1", TenantID: "u1", Name: "notes.txt", Text: "Hello there."}

	body, err := EncodeJob(job)
	require.NoError(t, err)

	got, err := DecodeJob(body)
	require.NoError(t, err)
	assert.Equal(t, job, got)
}

func TestDecodeJobRejectsIncompleteJobs(t *testing.T) {
	_, err := DecodeJob([]byte(`{"document_id":"d1"}`))
	assert.Error(t, err)

	_, err = DecodeJob([]byte(`not json`))
	assert.Error(t, err)
}

func TestPingClosedConnection(t *testing.T) {
	assert.ErrorIs(t, Ping(nil), ErrConnectionClosed)
}
