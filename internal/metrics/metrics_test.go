//-------------------------------------------------------------------------
//
// pgEdge Star Schema ETL
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunGauges(t *testing.T) {
	r := NewRun()

	r.Rows(StageExtract, "primary", "Orders", 830)
	r.Rows(StageLoad, "", "FactSales", 2155)
	r.Failure(StageLoad, "", "DimDate")
	r.Consolidated("OrderDetails", 12, 2, 40)
	r.Finish(1500*time.Millisecond, true)

	assert.Equal(t, 830.0, testutil.ToFloat64(r.tableRows.WithLabelValues(StageExtract, "primary", "Orders")))
	assert.Equal(t, 2155.0, testutil.ToFloat64(r.tableRows.WithLabelValues(StageLoad, "", "FactSales")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.tableFailures.WithLabelValues(StageLoad, "", "DimDate")))
	assert.Equal(t, 12.0, testutil.ToFloat64(r.duplicatesRemoved.WithLabelValues("OrderDetails")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.internalDuplicates.WithLabelValues("OrderDetails")))
	assert.Equal(t, 40.0, testutil.ToFloat64(r.secondaryContributed.WithLabelValues("OrderDetails")))
	assert.Equal(t, 1.5, testutil.ToFloat64(r.duration))
	assert.Greater(t, testutil.ToFloat64(r.lastSuccess), 0.0)
}

func TestFinishWithoutSuccess(t *testing.T) {
	r := NewRun()
	r.Finish(time.Second, false)
	assert.Equal(t, 0.0, testutil.ToFloat64(r.lastSuccess))
}

func TestGatherer(t *testing.T) {
	r := NewRun()
	r.Rows(StageTransform, "", "DimShippers", 3)

	n, err := testutil.GatherAndCount(r.Gatherer(), "starschema_table_rows")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPush(t *testing.T) {
	var method, path, body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		method = req.Method
		path = req.URL.Path
		b, _ := io.ReadAll(req.Body)
		body = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := NewRun()
	r.Rows(StageLoad, "", "FactSales", 7)

	require.NoError(t, r.Push(context.Background(), srv.URL, "pgedge_starschema"))
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/metrics/job/pgedge_starschema", path)
	assert.True(t, strings.Contains(body, "starschema_table_rows"))
}

func TestPushError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewRun().Push(context.Background(), srv.URL, "pgedge_starschema")
	assert.Error(t, err)
}
