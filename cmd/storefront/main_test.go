package main

import (
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestSetupLogger(t *testing.T) {
	defer log.SetLevel(log.InfoLevel)

	tests := []struct {
		raw     string
		want    log.Level
		wantErr bool
	}{
		{"", log.InfoLevel, false},
		{" debug ", log.DebugLevel, false},
		{"WARN", log.WarnLevel, false},
		{"chatty", log.InfoLevel, true},
	}
	for _, tt := range tests {
		err := setupLogger(tt.raw)
		if tt.wantErr {
			assert.Error(t, err, tt.raw)
		} else {
			assert.NoError(t, err, tt.raw)
		}
		assert.Equal(t, tt.want, log.GetLevel(), tt.raw)
	}

	formatter, ok := log.StandardLogger().Formatter.(*log.TextFormatter)
	if assert.True(t, ok) {
		assert.True(t, formatter.FullTimestamp)
	}
}
