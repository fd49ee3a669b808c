package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypeString(t *testing.T) {
	assert.Equal(t, "JOB-START", JobStarted.String())
	assert.Equal(t, "MV", FileStarted.String())
	assert.Equal(t, "CKSUM-OK", ChecksumOK.String())
	assert.Equal(t, "RM-SRC", SourceDeleted.String())
	assert.Equal(t, "RMDIR", DirRemoved.String())
	assert.Equal(t, "UNKNOWN", Type(0).String())
	assert.Equal(t, "UNKNOWN", Type(99).String())
}
