package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/kisanmitra/backend/internal/analytics"
	"github.com/stretchr/testify/assert"
)

func TestPrintSummariesSortsOperations(t *testing.T) {
	var buf bytes.Buffer
	printSummaries(&buf, map[string]analytics.Summary{
		"search": {Total: 4, Errors: 1, ErrorRate: 0.25, AvgMs: 12.5, P95Ms: 30},
		"chat":   {Total: 10, CacheHitRate: 0.4, AvgMs: 820, P95Ms: 1900},
	}, 24*time.Hour)

	out := buf.String()
	assert.Less(t, strings.Index(out, "chat"), strings.Index(out, "search"))
	assert.Contains(t, out, "25.0%")
	assert.Contains(t, out, "40.0%")
}

func TestPrintSummariesEmpty(t *testing.T) {
	var buf bytes.Buffer
	printSummaries(&buf, nil, time.Hour)
	assert.Equal(t, "No events in the last 1h0m0s\n", buf.String())
}

func TestRoleRejectsUnknownRole(t *testing.T) {
	rootCmd.SetArgs([]string{"users", "role", "a@b.in", "superuser"})
	var errBuf bytes.Buffer
	rootCmd.SetErr(&errBuf)
	err := rootCmd.Execute()
	assert.ErrorContains(t, err, "unknown role")
}
